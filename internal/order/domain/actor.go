package domain

// Role is an actor's standing relative to one order.
type Role string

const (
	RoleNone  Role = "none"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// Actor is the authenticated caller, resolved once at the request boundary.
type Actor struct {
	ID    string
	Admin bool
}

func (a Actor) RoleFor(o Order) Role {
	switch {
	case a.Admin:
		return RoleAdmin
	case a.ID != "" && a.ID == o.OwnerID:
		return RoleOwner
	default:
		return RoleNone
	}
}

// CanView reports whether the actor may read the order.
func (a Actor) CanView(o Order) bool {
	return a.RoleFor(o) != RoleNone
}
