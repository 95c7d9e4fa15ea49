package catalog

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/logging"
)

func TestClient_GetProduct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/products/P1":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"P1","name":"Mug","category":"kitchen","price":10.5,"quantity":7}`))
		case "/products/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(logging.Discard(), srv.URL+"/", time.Second)
	ctx := context.Background()

	p, err := c.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, "P1", p.ID)
	assert.Equal(t, "Mug", p.Name)
	assert.Equal(t, "10.50", p.Price.StringFixed(2))
	assert.Equal(t, 7, p.AvailableQuantity)

	_, err = c.GetProduct(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = c.GetProduct(ctx, "broken")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(logging.Discard(), url, time.Second).GetProduct(context.Background(), "P1")
	assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
}
