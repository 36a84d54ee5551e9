package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"trace", LevelTrace, false},
		{"DEBUG", LevelDebug, false},
		{"Info", LevelInfo, false},
		{"warn", LevelWarning, false},
		{"WARNING", LevelWarning, false},
		{"error", LevelError, false},
		{"fatal", LevelFatal, false},
		{"verbose", LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseLevel(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestSetOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "json")
	defer SetOutput(os.Stdout, "json")

	prev := GetLevel()
	SetLevel(LevelInfo)
	defer SetLevel(prev)

	Info("ruleset saved", "ruleset_id", "r_abc12345")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	if record["msg"] != "ruleset saved" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["ruleset_id"] != "r_abc12345" {
		t.Errorf("ruleset_id = %v", record["ruleset_id"])
	}
}

func TestSetOutput_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "text")
	defer SetOutput(os.Stdout, "json")

	prev := GetLevel()
	SetLevel(LevelWarning)
	defer SetLevel(prev)

	Debug("hidden")
	Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected no output below WARN, got %q", buf.String())
	}
}

func TestSampledErrorsStillCount(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf, "json")
	defer SetOutput(os.Stdout, "json")
	SetSampleRate(1)
	defer SetSampleRate(100)

	before := TotalErrors.Load()
	Error("evaluation failed", "error", "boom")
	if got := TotalErrors.Load() - before; got != 1 {
		t.Errorf("TotalErrors delta = %d, want 1", got)
	}
	if !strings.Contains(buf.String(), "evaluation failed") {
		t.Errorf("sample rate 1 should log every error, got %q", buf.String())
	}
}

func TestCounters(t *testing.T) {
	passed := EvaluationsPassed.Load()
	failed := EvaluationsFailed.Load()
	notFound := Total404Errors.Load()

	CountEvaluation(true)
	CountEvaluation(false)
	CountEvaluation(false)
	WarnHttp4xx(404)

	stats := Stats()
	if stats["evaluations_passed"]-passed != 1 {
		t.Errorf("evaluations_passed delta = %d, want 1", stats["evaluations_passed"]-passed)
	}
	if stats["evaluations_failed"]-failed != 2 {
		t.Errorf("evaluations_failed delta = %d, want 2", stats["evaluations_failed"]-failed)
	}
	if stats["http_404"]-notFound != 1 {
		t.Errorf("http_404 delta = %d, want 1", stats["http_404"]-notFound)
	}
}
