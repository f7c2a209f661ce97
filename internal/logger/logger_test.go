package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestWithContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf)

	ctx := WithContext(context.Background(), log)
	got := FromContext(ctx)

	got.Info().Str("key", "value").Msg("hello")
	out := buf.String()
	if !strings.Contains(out, `"key":"value"`) || !strings.Contains(out, "hello") {
		t.Errorf("context logger did not write to the original writer: %q", out)
	}
}

func TestFromContextFallsBack(t *testing.T) {
	// Must not panic and must return a usable logger.
	log := FromContext(context.Background())
	log.Debug().Msg("fallback")
}
