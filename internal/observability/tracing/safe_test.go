package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsAndTruncates(t *testing.T) {
	long := strings.Repeat("x", 300)
	attrs := SafeAttributes(
		attribute.String("email", "ops@example.com"),
		attribute.String("http.route", long),
		attribute.Int("http.status_code", 200),
	)
	require.Len(t, attrs, 2)
	require.Len(t, attrs[0].Value.AsString(), maxAttributeLength)
}

func TestSafeErrorNil(t *testing.T) {
	require.NoError(t, SafeError(nil))
	require.EqualError(t, SafeError(errors.New(" boom ")), "boom")
}
