package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/orderflow/internal/order/application"
	"github.com/dmehra2102/orderflow/internal/order/domain"
	"github.com/dmehra2102/orderflow/pkg/metrics"
	"github.com/dmehra2102/orderflow/pkg/tracing"
)

const maxBody = 1 << 20

type Handler struct {
	log      *slog.Logger
	service  *application.Service
	auth     *Authenticator
	metrics  *metrics.ServerMetrics
	gatherer prometheus.Gatherer
	tracer   trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Service, auth *Authenticator, m *metrics.ServerMetrics, gatherer prometheus.Gatherer) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		auth:     auth,
		metrics:  m,
		gatherer: gatherer,
		tracer:   otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.instrument)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(h.gatherer))

	r.Group(func(r chi.Router) {
		r.Use(h.auth.Middleware)
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				r.Body = http.MaxBytesReader(w, r.Body, maxBody)
				next.ServeHTTP(w, r)
			})
		})

		r.Post("/orders", h.createOrder)
		r.Get("/orders", h.listOrders)
		r.Get("/orders/statuses", h.statuses)
		r.Get("/orders/{id}", h.getOrder)
		r.Put("/orders/{id}/cancel", h.cancelOrder)
		r.Put("/orders/{id}/status", h.setStatus)
		r.Get("/orders/{id}/notifications", h.notifications)
	})
	return r
}

// instrument joins the caller's trace and records request count and latency
// per route pattern.
func (h *Handler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := tracing.ExtractHTTPHeaders(r.Context(), r.Header)

		next.ServeHTTP(ww, r.WithContext(ctx))

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = r.Method + " " + rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		h.metrics.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		h.metrics.LatencyMS.WithLabelValues(route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()
	actor := actorFrom(ctx)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid body"})
		return
	}
	var items []domain.CartItem
	if len(bytes.TrimSpace(body)) > 0 {
		if err := validateJSONSchema(checkoutLoader, body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		var req checkoutReq
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid body"})
			return
		}
		items = req.Items
	}

	o, err := h.service.Checkout(ctx, actor, items)
	if err != nil {
		span.RecordError(err)
		h.writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("order.id", o.ID))
	w.Header().Set("Location", "/orders/"+o.ID)
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.service.GetOrder(ctx, actorFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "ListOrders")
	defer span.End()

	q := r.URL.Query()
	offset, err1 := intParam(q.Get("offset"))
	limit, err2 := intParam(q.Get("limit"))
	if err := errors.Join(err1, err2); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "offset and limit must be non-negative integers"})
		return
	}

	orders, err := h.service.ListOrders(ctx, actorFrom(ctx), domain.ListFilter{OwnerID: q.Get("owner"), Offset: offset, Limit: limit})
	if err != nil {
		h.writeError(w, err)
		return
	}
	resp := listResp{Orders: make([]orderResp, 0, len(orders)), Offset: offset, Limit: limit}
	for _, o := range orders {
		resp.Orders = append(resp.Orders, toOrderResp(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CancelOrder")
	defer span.End()

	o, err := h.service.Cancel(ctx, actorFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		span.RecordError(err)
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "SetOrderStatus")
	defer span.End()

	raw := r.URL.Query().Get("status")
	if raw == "" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: "invalid body"})
			return
		}
		if err := validateJSONSchema(statusLoader, body); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResp{Error: err.Error()})
			return
		}
		var req statusReq
		_ = json.Unmarshal(body, &req)
		raw = req.Status
	}
	status, ok := domain.ParseStatus(raw)
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp{Error: "unknown status " + strconv.Quote(raw)})
		return
	}

	o, err := h.service.SetStatus(ctx, actorFrom(ctx), chi.URLParam(r, "id"), status)
	if err != nil {
		span.RecordError(err)
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *Handler) statuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]domain.Status{"statuses": h.service.Statuses()})
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "OrderNotifications")
	defer span.End()

	recs, err := h.service.Notifications(ctx, actorFrom(ctx), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if recs == nil {
		recs = []domain.NotificationRecord{}
	}
	writeJSON(w, http.StatusOK, map[string][]domain.NotificationRecord{"notifications": recs})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	resp := errorResp{Error: err.Error()}
	var stock *domain.InsufficientStockError
	if errors.As(err, &stock) {
		resp.ProductID = stock.ProductID
		resp.Requested = stock.Requested
		available := stock.Available
		resp.Available = &available
	}

	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		h.log.Error("request failed", "status", code, "err", err)
	}
	writeJSON(w, code, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidCart):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, errors.New("invalid integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
