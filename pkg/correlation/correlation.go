package correlation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// HeaderName carries the correlation ID between client and server.
const HeaderName = "X-Correlation-ID"

// maxLength bounds IDs accepted from request headers.
const maxLength = 128

// IDGenerator generates correlation IDs
type IDGenerator struct {
	serviceName string
	now         func() time.Time
}

// NewIDGenerator creates a new correlation ID generator
func NewIDGenerator(serviceName string) *IDGenerator {
	return &IDGenerator{
		serviceName: serviceName,
		now:         time.Now,
	}
}

// Generate creates a new correlation ID
// Format: {service}-{timestamp}-{random}
// Example: client-1699564823-a3f9c2
// Safe for concurrent use.
func (g *IDGenerator) Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s-%d-%s", g.serviceName, g.now().Unix(), random)
}

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// CorrelationIDKey is the context key for correlation ID
const CorrelationIDKey contextKey = "correlation_id"

// WithID adds correlation ID to context
func WithID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, CorrelationIDKey, correlationID)
}

// FromContext retrieves correlation ID from context
func FromContext(ctx context.Context) (string, bool) {
	correlationID, ok := ctx.Value(CorrelationIDKey).(string)
	return correlationID, ok
}

// GetOrGenerate retrieves correlation ID from context or generates a new one
func GetOrGenerate(ctx context.Context, generator *IDGenerator) (string, context.Context) {
	if correlationID, ok := FromContext(ctx); ok && correlationID != "" {
		return correlationID, ctx
	}

	correlationID := generator.Generate()
	return correlationID, WithID(ctx, correlationID)
}

// ExtractFromHeader returns the trimmed header value, or "" when it is not a usable ID.
func ExtractFromHeader(headerValue string) string {
	v := strings.TrimSpace(headerValue)
	if !Validate(v) {
		return ""
	}
	return v
}

// Validate reports whether id is non-empty, bounded and free of control characters.
func Validate(correlationID string) bool {
	if correlationID == "" || len(correlationID) > maxLength {
		return false
	}
	for _, r := range correlationID {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	return true
}
