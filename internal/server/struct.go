package server

import (
	"sync"
	"time"

	"github.com/woozymasta/mcstatus/internal/geoip"
	"github.com/woozymasta/mcstatus/internal/minecraft"
	"github.com/woozymasta/mcstatus/internal/storage"
	"golang.org/x/time/rate"
)

// Server holds the dependencies, configuration, and runtime state required
// to handle HTTP probe requests and background recording of probe results.
type Server struct {
	// storage keeps the history of successfully probed servers.
	storage *storage.Repository

	// geoip resolves server addresses to country codes.
	// It can be nil if the GeoIP database is not initialized.
	geoip *geoip.Provider

	// allowedHosts is a set of hashed host names (using xxhash) that may be probed.
	// An empty set allows every host.
	allowedHosts map[uint64]struct{}

	// queue passes successful status probes from HTTP handlers to the record workers.
	// It is never closed; handlers may still finish a probe after shutdown.
	queue chan recordJob

	// shutdown broadcasts a stop signal to the background routines.
	shutdown chan struct{}

	// clients maps a client IP to its hard rate limiter.
	clients map[string]*client

	// seenCache maps the xxhash of a probed address to the time of its last live status probe.
	// It backs the soft limit: repeated status requests are answered from storage.
	seenCache sync.Map

	// authToken is the secret token required to access administrative API endpoints.
	authToken string

	// probe holds timeout, tries, protocol version and resolver of every live probe.
	probe minecraft.Options

	// wg waits for the record workers to drain the queue on shutdown.
	wg sync.WaitGroup

	// mu guards clients.
	mu sync.Mutex

	// queueMu guards stopped.
	queueMu sync.Mutex

	// workers is the number of record workers.
	workers int

	// hardLimitCount is the maximum number of requests allowed per IP address
	// within the hardLimitWin duration.
	hardLimitCount int

	// hardLimitWin is the time window duration for the hard rate limiter.
	hardLimitWin time.Duration

	// softLimitDur is the duration for which a status request is answered from
	// storage instead of a live probe.
	softLimitDur time.Duration

	// stopped is set by StopWorkers; later results are dropped.
	stopped bool

	// trustProxy indicates whether the server should trust headers like X-Forwarded-For
	// or CF-Connecting-IP when determining the client's real IP address.
	trustProxy bool
}

// recordJob is a successful status probe waiting to be written to storage.
type recordJob struct {
	// seen is the time the probe completed.
	seen time.Time

	// server is the probed endpoint after SRV resolution.
	server *minecraft.Server

	// status is the decoded status document with measured latency.
	status *minecraft.StatusResponse
}

// client is the hard rate limit state of one client IP.
type client struct {
	lastSeen time.Time
	limiter  *rate.Limiter
}
