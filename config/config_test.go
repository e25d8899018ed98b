package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "streams.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestParseLoadsStreamsAndFlags(t *testing.T) {
	path := writeConfigFile(t, `{"urls": {"cam1": {"video": "rtsp://10.0.0.1/stream1"}}}`)

	cfg, err := Parse([]string{"-C", path, "-t", "tcp", "-p", "9090"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Streams["cam1"] != "rtsp://10.0.0.1/stream1" {
		t.Fatalf("unexpected streams: %+v", cfg.Streams)
	}
	if cfg.Transport != "tcp" {
		t.Fatalf("expected transport tcp, got %q", cfg.Transport)
	}
	if cfg.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Port)
	}
}

func TestParseRequiresConfigFlag(t *testing.T) {
	if _, err := Parse([]string{}); err == nil {
		t.Fatal("expected error when -C is missing")
	}
}

func TestParseRejectsNonRTSPScheme(t *testing.T) {
	path := writeConfigFile(t, `{"urls": {"cam1": {"video": "http://10.0.0.1/stream1"}}}`)

	if _, err := Parse([]string{"-C", path}); err == nil {
		t.Fatal("expected error for a non-rtsp(s) scheme")
	}
}

func TestParseRejectsPartialTLSFlags(t *testing.T) {
	path := writeConfigFile(t, `{"urls": {"cam1": {"video": "rtsps://10.0.0.1/stream1"}}}`)

	if _, err := Parse([]string{"-C", path, "-c", "cert.pem"}); err == nil {
		t.Fatal("expected error when only -c is set")
	}
}

func TestParseDefaultsPortTo8080(t *testing.T) {
	path := writeConfigFile(t, `{"urls": {}}`)

	cfg, err := Parse([]string{"-C", path})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Port)
	}
}
