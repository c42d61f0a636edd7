package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tuncerburak97/tekrar/internal/config"
)

func TestInitJSON(t *testing.T) {
	var buf bytes.Buffer
	l := InitWithWriter(config.LogConfig{Level: "debug", Format: "json"}, &buf)

	l.Info().Str("request_id", "r1").Msg("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json output, got %q: %v", buf.String(), err)
	}
	if entry["request_id"] != "r1" || entry["message"] != "hello" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if zerolog.GlobalLevel() != zerolog.DebugLevel {
		t.Errorf("global level = %v, want debug", zerolog.GlobalLevel())
	}
}

func TestInitInvalidLevel(t *testing.T) {
	var buf bytes.Buffer
	InitWithWriter(config.LogConfig{Level: "loud", Format: "json"}, &buf)

	if zerolog.GlobalLevel() != zerolog.InfoLevel {
		t.Errorf("global level = %v, want info", zerolog.GlobalLevel())
	}
	if !bytes.Contains(buf.Bytes(), []byte("Invalid log level")) {
		t.Errorf("expected warning about invalid level, got %q", buf.String())
	}
}
