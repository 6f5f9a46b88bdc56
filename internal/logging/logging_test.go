package logging

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewDefaultsToInfoOnInvalidLevel(t *testing.T) {
	log := New("not-a-level", "text")
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected info level fallback, got %v", log.GetLevel())
	}
}

func TestForTagsComponentField(t *testing.T) {
	log := New("debug", "json")
	var buf bytes.Buffer
	log.SetOutput(&buf)

	entry := For(log, "resolver")
	entry.Info("resolved a key")

	if got := buf.String(); !bytes.Contains([]byte(got), []byte(`"component":"resolver"`)) {
		t.Fatalf("expected component field in output, got %q", got)
	}
}
