// Package config loads the relay's startup configuration: the JSON stream
// document named by -C and the small set of supporting CLI flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
)

// StreamEntry is one named stream's configuration, mapped from the JSON
// document's "urls" object.
type StreamEntry struct {
	Video string `json:"video"`
}

// streamsFile is the on-disk shape: {"urls": {"<name>": {"video": "<rtsp-url>"}}}.
type streamsFile struct {
	URLs map[string]StreamEntry `json:"urls"`
}

// Config holds everything needed to start the relay: the stream table and
// the CLI-supplied server settings.
type Config struct {
	Streams   map[string]string // name -> rtsp(s):// URL
	Transport string            // "", "tcp", or "udp"
	CertFile  string
	KeyFile   string
	Port      int
}

// Parse reads CLI flags from args and loads the config file they name. args
// should not include the program name (i.e. pass os.Args[1:]).
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("rtsp2ws", flag.ContinueOnError)
	configPath := fs.String("C", "", "path to the stream configuration JSON file")
	transport := fs.String("t", "", "RTSP transport: tcp or udp (default: library choice)")
	certFile := fs.String("c", "", "TLS certificate file")
	keyFile := fs.String("k", "", "TLS private key file")
	port := fs.Int("p", 8080, "HTTP listen port")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *configPath == "" {
		return nil, fmt.Errorf("config: -C <config.json> is required")
	}

	streams, err := loadStreams(*configPath)
	if err != nil {
		return nil, err
	}

	if (*certFile == "") != (*keyFile == "") {
		return nil, fmt.Errorf("config: -c and -k must both be set to enable TLS")
	}

	return &Config{
		Streams:   streams,
		Transport: *transport,
		CertFile:  *certFile,
		KeyFile:   *keyFile,
		Port:      *port,
	}, nil
}

// loadStreams reads and validates the stream configuration document. Each
// URL must parse as rtsp:// or rtsps://; anything else is a configuration
// error, rejected before any Ingester starts.
func loadStreams(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}

	var doc streamsFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	streams := make(map[string]string, len(doc.URLs))
	for name, entry := range doc.URLs {
		u, err := url.Parse(entry.Video)
		if err != nil {
			return nil, fmt.Errorf("config: stream %q: invalid URL %q: %w", name, entry.Video, err)
		}
		if u.Scheme != "rtsp" && u.Scheme != "rtsps" {
			return nil, fmt.Errorf("config: stream %q: unsupported scheme %q, want rtsp or rtsps", name, u.Scheme)
		}
		streams[name] = entry.Video
	}

	return streams, nil
}
