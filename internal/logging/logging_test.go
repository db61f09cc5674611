package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestProdLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "prod", "info")
	log.Info().Str("component", "test").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %q", buf.String())
	}
	if entry["message"] != "hello" || entry["component"] != "test" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "prod", "warn")
	log.Info().Msg("quiet")
	log.Warn().Msg("loud")

	if strings.Contains(buf.String(), "quiet") || !strings.Contains(buf.String(), "loud") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "prod", "chatty")
	log.Debug().Msg("debug")
	log.Info().Msg("info")

	if strings.Contains(buf.String(), `"debug"`) || !strings.Contains(buf.String(), "info") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestDevLoggerIsConsole(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "dev", "debug").Debug().Msg("readable")
	if strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), "readable") {
		t.Fatalf("output = %q", buf.String())
	}
}
