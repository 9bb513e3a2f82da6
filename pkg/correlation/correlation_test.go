package correlation

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGenerateFormat(t *testing.T) {
	g := NewIDGenerator("client")
	g.now = func() time.Time { return time.Unix(1699564823, 0) }

	id := g.Generate()
	assert.Regexp(t, regexp.MustCompile(`^client-1699564823-[0-9a-f]{6}$`), id)
	assert.NotEqual(t, id, g.Generate())
}

func TestGetOrGenerate(t *testing.T) {
	g := NewIDGenerator("api")

	id, ctx := GetOrGenerate(context.Background(), g)
	assert.True(t, strings.HasPrefix(id, "api-"))
	got, ok := FromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, id, got)

	again, ctx2 := GetOrGenerate(ctx, g)
	assert.Equal(t, id, again)
	assert.Equal(t, ctx, ctx2)
}

func TestExtractFromHeader(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"plain", "client-1-abcdef", "client-1-abcdef"},
		{"trimmed", "  client-1-abcdef ", "client-1-abcdef"},
		{"empty", "", ""},
		{"control chars", "bad\nid", ""},
		{"too long", strings.Repeat("x", 200), ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractFromHeader(tc.header))
		})
	}
}
