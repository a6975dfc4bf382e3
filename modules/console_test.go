package modules

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ajkachnic/pbrain/core"
)

func TestInitializeWithPipes(t *testing.T) {
	var out bytes.Buffer
	ctx := core.NewContext("test")

	if err := Initialize(&ctx, strings.NewReader("ok"), &out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	result, err := core.Interpret(&ctx, []byte(",.>,.>,"))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if out.String() != "ok" || result != -1 {
		t.Fatalf("expected ok and -1, got %q and %d", out.String(), result)
	}
}

func TestTailWriter(t *testing.T) {
	tests := []struct {
		writes   []string
		expected string
	}{
		{[]string{"Name? "}, "Name? "},
		{[]string{"hello\n", "Name", "? "}, "Name? "},
		{[]string{"a\nb\nc"}, "c"},
		{[]string{"partial", " line\n"}, ""},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		w := &tailWriter{w: &out}

		for _, s := range tt.writes {
			if _, err := w.Write([]byte(s)); err != nil {
				t.Fatalf("unexpected error: %s", err)
			}
		}

		if string(w.tail) != tt.expected {
			t.Errorf("%q: expected tail %q, got %q", tt.writes, tt.expected, w.tail)
		}
		if out.String() != strings.Join(tt.writes, "") {
			t.Errorf("%q: output must pass through unchanged, got %q", tt.writes, out.String())
		}
	}
}
