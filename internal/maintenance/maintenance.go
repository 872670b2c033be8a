// Package maintenance re-probes stored servers to refresh or prune the database.
package maintenance

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcstatus/internal/config"
	"github.com/woozymasta/mcstatus/internal/geoip"
	"github.com/woozymasta/mcstatus/internal/minecraft"
	"github.com/woozymasta/mcstatus/internal/models"
	"github.com/woozymasta/mcstatus/internal/storage"
)

const defaultWorkers = 10

// Summary counts the outcome of one recheck run.
type Summary struct {
	Checked int64 `json:"checked"`
	Updated int64 `json:"updated"`
	Failed  int64 `json:"failed"`
	Deleted int64 `json:"deleted"`
}

type task struct {
	store  *storage.Repository
	geo    *geoip.Provider
	opts   minecraft.Options
	prune  bool
	result Summary
}

// Run re-probes every stored server, or only those not seen within cfg.Recheck.Stale.
// Responding servers are updated; unresponsive ones are deleted when cfg.Recheck.Prune is set.
func Run(ctx context.Context, cfg *config.Config, store *storage.Repository, geo *geoip.Provider) (Summary, error) {
	var seenBefore time.Time
	if cfg.Recheck.Stale > 0 {
		seenBefore = time.Now().Add(-cfg.Recheck.Stale)
	}

	servers, err := store.GetServersSubset(seenBefore)
	if err != nil {
		return Summary{}, err
	}

	if len(servers) == 0 {
		log.Info().Msg("No servers found for re-check")
		return Summary{}, nil
	}

	workers := cfg.Recheck.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	t := &task{
		store: store,
		geo:   geo,
		opts:  cfg.Probe.Options(),
		prune: cfg.Recheck.Prune,
	}

	log.Info().
		Int("count", len(servers)).
		Int("workers", workers).
		Bool("prune", t.prune).
		Msg("Starting re-check")

	t.runWorkerPool(ctx, servers, workers)

	log.Info().
		Int64("updated", t.result.Updated).
		Int64("failed", t.result.Failed).
		Int64("deleted", t.result.Deleted).
		Msg("Re-check completed")

	return t.result, ctx.Err()
}

func (t *task) runWorkerPool(ctx context.Context, servers []models.ServerRecord, workers int) {
	jobs := make(chan models.ServerRecord, len(servers))
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				if ctx.Err() != nil {
					continue
				}
				t.process(ctx, rec)
			}
		}()
	}

	// Send jobs
	for _, s := range servers {
		jobs <- s
	}
	close(jobs)

	wg.Wait()
}

func (t *task) process(ctx context.Context, rec models.ServerRecord) {
	atomic.AddInt64(&t.result.Checked, 1)

	logCtx := log.With().
		Str("host", rec.Host).
		Int("port", rec.Port).
		Logger()

	if rec.Port < 1 || rec.Port > 65535 {
		logCtx.Debug().Msg("Invalid port")
		t.fail(rec)
		return
	}

	server := minecraft.NewServer(rec.Host, uint16(rec.Port))
	status, err := server.Status(ctx, t.opts)
	if err != nil {
		logCtx.Debug().Err(err).Msg("Server unreachable")
		t.fail(rec)
		return
	}

	updated := models.NewServerRecord(server, status, time.Now())
	updated.IP, updated.CountryCode = t.geo.LookupHost(ctx, t.opts.Resolver, rec.Host)

	// UpsertServer keeps first_seen and increments the probe count
	if err := t.store.UpsertServer(updated); err != nil {
		logCtx.Error().Err(err).Msg("Failed to update server")
		atomic.AddInt64(&t.result.Failed, 1)
		return
	}

	atomic.AddInt64(&t.result.Updated, 1)
	logCtx.Trace().Msg("Server updated successfully")
}

func (t *task) fail(rec models.ServerRecord) {
	atomic.AddInt64(&t.result.Failed, 1)
	if !t.prune {
		return
	}

	if err := t.store.DeleteServer(rec.Host, rec.Port); err != nil {
		log.Error().Err(err).Str("host", rec.Host).Int("port", rec.Port).Msg("Failed to delete server")
		return
	}

	atomic.AddInt64(&t.result.Deleted, 1)
}
