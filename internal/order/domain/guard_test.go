package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllow_Matrix(t *testing.T) {
	tests := []struct {
		status Status
		role   Role
		want   bool
	}{
		{StatusCreated, RoleOwner, true},
		{StatusCreated, RoleAdmin, true},
		{StatusCreated, RoleNone, false},
		{StatusProcessing, RoleOwner, true},
		{StatusProcessing, RoleAdmin, true},
		{StatusProcessing, RoleNone, false},
		{StatusShipping, RoleOwner, false},
		{StatusShipping, RoleAdmin, true},
		{StatusShipping, RoleNone, false},
		{StatusDelivered, RoleOwner, false},
		{StatusDelivered, RoleAdmin, false},
		{StatusDelivered, RoleNone, false},
		{StatusCancelled, RoleOwner, false},
		{StatusCancelled, RoleAdmin, false},
		{StatusCancelled, RoleNone, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status)+"/"+string(tt.role), func(t *testing.T) {
			assert.Equal(t, tt.want, Allow(tt.status, tt.role))
		})
	}
}

func TestActor_RoleFor(t *testing.T) {
	o := Order{ID: "o-1", OwnerID: "alice"}

	assert.Equal(t, RoleOwner, Actor{ID: "alice"}.RoleFor(o))
	assert.Equal(t, RoleAdmin, Actor{ID: "alice", Admin: true}.RoleFor(o))
	assert.Equal(t, RoleAdmin, Actor{ID: "root", Admin: true}.RoleFor(o))
	assert.Equal(t, RoleNone, Actor{ID: "bob"}.RoleFor(o))
	assert.Equal(t, RoleNone, Actor{}.RoleFor(Order{}))
	assert.False(t, Actor{ID: "bob"}.CanView(o))
}
