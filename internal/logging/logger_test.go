package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		"WARN":    zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"":        zerolog.InfoLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Fatalf("parseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestInit_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := Init(Config{Level: "info", Format: "json", Output: &buf})
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	workerLog := Component(logger, "worker")
	workerLog.Info().Str("job_id", "j1").Msg("job completed")

	out := buf.String()
	if !strings.Contains(out, `"component":"worker"`) {
		t.Fatalf("expected component field, got %s", out)
	}
	if !strings.Contains(out, `"job_id":"j1"`) {
		t.Fatalf("expected job_id field, got %s", out)
	}
}
