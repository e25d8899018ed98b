// Package supervisor implements the Lifecycle component (C6): it builds the
// stream registry from configuration, spawns one Ingester per entry, and
// runs them until ctx is cancelled.
package supervisor

import (
	"context"
	"sync"

	"rtsp2ws/config"
	"rtsp2ws/internal/ingest"
	"rtsp2ws/internal/loglevel"
	"rtsp2ws/internal/metrics"
	"rtsp2ws/internal/registry"
	"rtsp2ws/pkg/models"
)

// Build constructs a Registry from the configured streams, one
// StreamDefinition per entry.
func Build(cfg *config.Config) registry.Registry {
	streams := make([]*models.StreamDefinition, 0, len(cfg.Streams))
	for name, url := range cfg.Streams {
		streams = append(streams, models.NewStreamDefinition("/"+name, url))
	}
	return registry.New(streams)
}

// Run launches one Ingester goroutine per registered stream and blocks
// until every one of them has returned, which happens only once ctx is
// cancelled or every Ingester has failed permanently. A failed Ingester is
// not restarted; reconnection is left to the operator.
func Run(ctx context.Context, cfg *config.Config, reg registry.Registry, m *metrics.Metrics) error {
	transport, err := ingest.ParseTransport(cfg.Transport)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	for _, stream := range reg {
		wg.Add(1)
		go func(stream *models.StreamDefinition) {
			defer wg.Done()
			ing := ingest.New(stream, transport, m)
			err := ing.Run(ctx)
			stream.Close()
			if err != nil {
				loglevel.Logf(loglevel.Error, "supervisor: ingester for %s ended: %v", stream.Path, err)
			}
		}(stream)
	}

	wg.Wait()
	return nil
}
