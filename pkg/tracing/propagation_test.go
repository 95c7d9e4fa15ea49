package tracing

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/orderflow/pkg/logging"
)

func TestTraceparentRoundTrip(t *testing.T) {
	tp, err := Init(context.Background(), "test", "", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	assert.Empty(t, Traceparent(context.Background()))

	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	defer span.End()

	tp1 := Traceparent(ctx)
	require.NotEmpty(t, tp1)
	assert.Contains(t, tp1, span.SpanContext().TraceID().String())

	h := http.Header{}
	InjectHTTPHeaders(ctx, h)
	assert.Equal(t, tp1, h.Get(TraceparentHeader))

	back := ExtractHTTPHeaders(context.Background(), h)
	assert.Equal(t, tp1, Traceparent(back))
}

func TestWithTraceparent(t *testing.T) {
	tp, err := Init(context.Background(), "test", "", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	parent, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()
	carried := Traceparent(parent)

	detached := WithTraceparent(context.Background(), carried)
	assert.Equal(t, carried, Traceparent(detached))

	_, child := tp.Tracer("test").Start(detached, "notify")
	defer child.End()
	assert.Equal(t, span.SpanContext().TraceID(), child.SpanContext().TraceID())

	assert.Equal(t, parent, WithTraceparent(parent, "00-ffffffffffffffffffffffffffffffff-ffffffffffffffff-01"))
	assert.Equal(t, context.Background(), WithTraceparent(context.Background(), ""))
}
