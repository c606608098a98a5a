package logger

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFieldGetKeyValue(t *testing.T) {
	cases := []struct {
		field Field
		key   string
		value interface{}
	}{
		{String("instrument", "AAPL"), "instrument", "AAPL"},
		{Int("count", 3), "count", 3},
		{Int64("offset", int64(9)), "offset", int64(9)},
		{Float64("mean", 0.42), "mean", 0.42},
		{Bool("enabled", true), "enabled", true},
	}
	for _, c := range cases {
		k, v := c.field.GetKeyValue()
		if k != c.key {
			t.Fatalf("key = %q, want %q", k, c.key)
		}
		if v != c.value {
			t.Fatalf("value for %q = %v, want %v", k, v, c.value)
		}
	}
}

func TestFieldsRenderToJSON(t *testing.T) {
	var buf bytes.Buffer
	zl := zerolog.New(&buf)

	event := zl.Info()
	for _, f := range []Field{
		String("instrument", "AAPL"),
		Float64("change_pct", 12.5),
		Int("n", 63),
		Duration("took", 1500*time.Millisecond),
	} {
		f.AddTo(event)
	}
	event.Msg("baseline drift detected")

	out := buf.String()
	for _, want := range []string{
		`"instrument":"AAPL"`,
		`"change_pct":12.5`,
		`"n":63`,
		`"took":1500`,
		`"message":"baseline drift detected"`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("log line %q missing %q", out, want)
		}
	}
}
