package log

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestLogGuardRedirectFields(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Output: &buf, Component: ComponentHTTP}))

	sl.LogGuardRedirect(context.Background(), "/users", "/", "c-1", "user")

	out := buf.String()
	for _, want := range []string{
		"component=guard",
		"client_id=c-1",
		"guard_state=user",
		"route=/users",
		"redirect=/",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %s", want, out)
		}
	}
	if strings.Count(out, "component=") != 1 {
		t.Errorf("component logged more than once: %s", out)
	}
}
