package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/orderflow/internal/order/application"
	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

// Client reads product price and stock from the catalog service.
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
		tracer:  otel.Tracer("catalog-client"),
	}
}

type productResp struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
}

func (c *Client) GetProduct(ctx context.Context, productID string) (application.Product, error) {
	ctx, span := c.tracer.Start(ctx, "GetProduct", trace.WithAttributes(attribute.String("product.id", productID)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products/"+url.PathEscape(productID), nil)
	if err != nil {
		return application.Product{}, err
	}
	req.Header.Set("Accept", "application/json")
	tracing.InjectHTTPHeaders(ctx, req.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		span.RecordError(err)
		return application.Product{}, fmt.Errorf("catalog: %w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return application.Product{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		c.log.Warn("catalog error", "product_id", productID, "status", resp.StatusCode)
		return application.Product{}, fmt.Errorf("catalog returned %d: %w", resp.StatusCode, domain.ErrUpstreamUnavailable)
	}

	var p productResp
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return application.Product{}, fmt.Errorf("decode product %s: %w: %v", productID, domain.ErrUpstreamUnavailable, err)
	}
	if p.ID == "" {
		p.ID = productID
	}
	return application.Product{ID: p.ID, Name: p.Name, Price: p.Price, AvailableQuantity: p.Quantity}, nil
}
