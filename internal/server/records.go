package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcstatus/internal/models"
)

// resolveTimeout bounds the address resolution of one record.
const resolveTimeout = 5 * time.Second

// enqueue hands a successful status probe to the record workers without
// blocking the request. Results are dropped when the queue is full or the
// workers are stopped.
func (s *Server) enqueue(job recordJob) bool {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if s.stopped {
		log.Debug().Str("server", job.server.Address()).Msg("Workers stopped, probe result dropped")
		return false
	}

	select {
	case s.queue <- job:
		return true
	default:
		log.Warn().Str("server", job.server.Address()).Msg("Record queue is full, probe result dropped")
		return false
	}
}

// worker writes records until shutdown, then drains what is left in the queue.
func (s *Server) worker() {
	defer s.wg.Done()

	for {
		select {
		case job := <-s.queue:
			s.processJob(job)
		case <-s.shutdown:
			for {
				select {
				case job := <-s.queue:
					s.processJob(job)
				default:
					return
				}
			}
		}
	}
}

// processJob resolves the server address and its country (GeoIP) and upserts the record to the storage.
func (s *Server) processJob(job recordJob) {
	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	record := models.NewServerRecord(job.server, job.status, job.seen)
	record.IP, record.CountryCode = s.geoip.LookupHost(ctx, s.probe.Resolver, job.server.Host)

	if err := s.storage.UpsertServer(record); err != nil {
		log.Error().Err(err).Str("server", job.server.Address()).Msg("Failed to save server to DB")
		return
	}

	log.Debug().
		Str("server", job.server.Address()).
		Str("ip", record.IP).
		Str("country", record.CountryCode).
		Msg("Server recorded")
}
