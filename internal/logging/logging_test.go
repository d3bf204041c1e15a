package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"torrentify/internal/config"
)

func TestJSONFormatAndLevel(t *testing.T) {
	var buf bytes.Buffer
	log, _, err := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("hidden")
	log.WithField("job_id", "job_1").Warn("visible")

	line := strings.TrimSpace(buf.String())
	if strings.Contains(line, "hidden") {
		t.Fatalf("info entry should be filtered at warn level: %s", line)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("not json: %v (%s)", err, line)
	}
	if entry["message"] != "visible" || entry["job_id"] != "job_1" || entry["timestamp"] == nil {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log, _, err := newLogger(config.LogConfig{Level: "chatty"}, &bytes.Buffer{})
	if err != nil {
		t.Fatal(err)
	}
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level %v", log.GetLevel())
	}
}

func TestRotatedFileOutput(t *testing.T) {
	file := filepath.Join(t.TempDir(), "logs", "torrentify.log")
	var buf bytes.Buffer
	log, closer, err := newLogger(config.LogConfig{Level: "info", File: file, MaxSizeMB: 1}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	log.Info("to both")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "to both") || !strings.Contains(buf.String(), "to both") {
		t.Fatalf("entry missing: file=%q stdout=%q", data, buf.String())
	}
}
