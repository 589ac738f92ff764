package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{ServiceName: "stockledger"})
	require.NoError(t, err)
	require.NotNil(t, tp)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	require.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupWithEndpointBuildsProvider(t *testing.T) {
	tp, shutdown, err := Setup(context.Background(), Config{Endpoint: "127.0.0.1:4318", ServiceName: "stockledger", Insecure: true})
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = shutdown(ctx)
}
