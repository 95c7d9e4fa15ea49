package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

const userHeader = "X-User-ID"

// Client talks to the cart service on behalf of one owner per call.
type Client struct {
	log     *slog.Logger
	baseURL string
	http    *http.Client
	tracer  trace.Tracer
}

func NewClient(log *slog.Logger, baseURL string, timeout time.Duration) *Client {
	return &Client{
		log:     log,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tracer:  otel.Tracer("cart-client"),
	}
}

type cartResp struct {
	Items []domain.CartItem `json:"items"`
}

func (c *Client) Snapshot(ctx context.Context, ownerID string) ([]domain.CartItem, error) {
	ctx, span := c.tracer.Start(ctx, "CartSnapshot")
	defer span.End()

	resp, err := c.do(ctx, http.MethodGet, ownerID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("cart returned %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	}

	var cart cartResp
	if err := json.NewDecoder(resp.Body).Decode(&cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return cart.Items, nil
}

func (c *Client) Clear(ctx context.Context, ownerID string) error {
	ctx, span := c.tracer.Start(ctx, "CartClear")
	defer span.End()

	resp, err := c.do(ctx, http.MethodDelete, ownerID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("cart clear returned %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, ownerID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/cart/", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(userHeader, ownerID)
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("cart unreachable", "owner_id", ownerID, "method", method, "err", err)
		return nil, fmt.Errorf("cart: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	return resp, nil
}
