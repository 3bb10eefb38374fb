package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

var _ Logger = (*Zerolog)(nil)
var _ Logger = (*NoopLogger)(nil)

func TestZerologFieldTranslation(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(zerolog.New(&buf))

	logger.Info("stream opened",
		String("device", "mic-0"),
		Int("width", 1920),
		Uint64("node", 42),
		Bool("audio", true),
		Duration("backoff", 250*time.Millisecond),
		Err(errors.New("pipe closed")),
	)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line not JSON: %v: %q", err, buf.String())
	}
	if line["message"] != "stream opened" || line["level"] != "info" {
		t.Errorf("line = %v", line)
	}
	if line["device"] != "mic-0" || line["width"] != float64(1920) {
		t.Errorf("fields = %v", line)
	}
	if line["node"] != float64(42) || line["audio"] != true {
		t.Errorf("fields = %v", line)
	}
	if line["backoff"] != float64(250) {
		t.Errorf("backoff = %v", line["backoff"])
	}
	if line["error"] != "pipe closed" {
		t.Errorf("error = %v", line["error"])
	}
}

func TestZerologLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(zerolog.New(&buf).Level(zerolog.InfoLevel))

	logger.Debug("filtered out")
	if buf.Len() != 0 {
		t.Errorf("debug line leaked: %q", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn line dropped")
	}
}
