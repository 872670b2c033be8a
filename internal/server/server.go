// Package server implements the HTTP probe API, its middleware, and request handlers.
package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/woozymasta/mcstatus/internal/config"
	"github.com/woozymasta/mcstatus/internal/geoip"
	"github.com/woozymasta/mcstatus/internal/storage"
)

const (
	// queueSize is the capacity of the record queue.
	queueSize = 1000

	// defaultWorkers is the number of record workers.
	defaultWorkers = 4

	// clientTTL is how long an idle client keeps its rate limiter.
	clientTTL = 10 * time.Minute
)

// New creates a new Server instance with the provided storage, GeoIP provider, and configuration.
func New(store *storage.Repository, geo *geoip.Provider, cfg *config.Config) *Server {
	hostMap := make(map[uint64]struct{})
	for _, host := range cfg.Serve.Server.AllowedHosts {
		host = strings.TrimSpace(host)
		if host == "" {
			continue
		}
		hostMap[hostKey(host)] = struct{}{}
	}

	return &Server{
		storage:        store,
		geoip:          geo,
		probe:          cfg.Probe.Options(),
		authToken:      cfg.Serve.Server.AuthToken,
		allowedHosts:   hostMap,
		trustProxy:     cfg.Serve.Server.TrustProxy,
		hardLimitCount: cfg.Serve.RateLimit.HardLimitCount,
		hardLimitWin:   cfg.Serve.RateLimit.HardLimitWin,
		softLimitDur:   cfg.Serve.RateLimit.SoftLimitDur,
		workers:        defaultWorkers,

		clients:  make(map[string]*client),
		queue:    make(chan recordJob, queueSize),
		shutdown: make(chan struct{}),
	}
}

// StartWorkers starts the record worker pool and the cache cleanup routine.
func (s *Server) StartWorkers() {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}

	go s.gcCaches()
}

// StopWorkers stops the background routines and waits until queued records are written.
// Results of probes that finish afterwards are dropped. Calling it twice is a no-op.
func (s *Server) StopWorkers() {
	s.queueMu.Lock()
	if s.stopped {
		s.queueMu.Unlock()
		return
	}
	s.stopped = true
	s.queueMu.Unlock()

	close(s.shutdown)
	s.wg.Wait()
}

// Run configures the HTTP routes and returns the main handler.
func (s *Server) Run() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("GET /api/status", s.RateLimitMiddleware(http.HandlerFunc(s.handleStatus)))
	mux.Handle("GET /api/ping", s.RateLimitMiddleware(http.HandlerFunc(s.handlePing)))
	mux.Handle("GET /api/query", s.RateLimitMiddleware(http.HandlerFunc(s.handleQuery)))
	mux.Handle("GET /api/version", http.HandlerFunc(s.handleVersion))

	mux.Handle("GET /api/servers", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleServers)))
	mux.Handle("GET /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleGetServer)))
	mux.Handle("DELETE /api/server", AdminAuthMiddleware(s.authToken, http.HandlerFunc(s.handleDeleteServer)))

	return s.LoggingMiddleware(mux)
}

// hostKey is the allowed-host set key of host.
func hostKey(host string) uint64 {
	return xxhash.Sum64String(strings.ToLower(host))
}

// hostAllowed reports whether probes to host are permitted.
func (s *Server) hostAllowed(host string) bool {
	if len(s.allowedHosts) == 0 {
		return true
	}
	_, ok := s.allowedHosts[hostKey(host)]

	return ok
}

// gcCaches periodically drops expired soft-limit entries and idle rate limiters.
func (s *Server) gcCaches() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.expire(time.Now())
		}
	}
}

func (s *Server) expire(now time.Time) {
	s.seenCache.Range(func(key, value interface{}) bool {
		if t, ok := value.(time.Time); !ok || now.Sub(t) > s.softLimitDur {
			s.seenCache.Delete(key)
		}
		return true
	})

	s.mu.Lock()
	for ip, c := range s.clients {
		if now.Sub(c.lastSeen) > clientTTL {
			delete(s.clients, ip)
		}
	}
	s.mu.Unlock()
}
