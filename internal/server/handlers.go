package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcstatus/internal/minecraft"
	"github.com/woozymasta/mcstatus/internal/models"
	"github.com/woozymasta/mcstatus/internal/vars"
)

// handleStatus probes the server list status of ?address=.
// A repeated request within the soft limit window is answered from storage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	server, ok := s.lookup(w, r)
	if !ok {
		return
	}

	key := xxhash.Sum64String(server.Address())
	if s.recentlyProbed(key) {
		record, err := s.storage.GetServer(server.Host, int(server.Port))
		if err != nil {
			log.Error().Err(err).Str("server", server.Address()).Msg("Failed to fetch cached server")
		} else if record != nil {
			writeJSON(w, http.StatusOK, models.StatusResult{
				Address: server.Address(),
				Record:  record,
				Latency: float64(record.LatencyMs),
				Cached:  true,
			})
			return
		}
	}

	status, err := server.Status(r.Context(), s.probe)
	if err != nil {
		probeFailed(w, server, "status", err)
		return
	}

	now := time.Now()
	s.seenCache.Store(key, now)
	s.enqueue(recordJob{server: server, status: status, seen: now})

	writeJSON(w, http.StatusOK, models.StatusResult{
		Address: server.Address(),
		Status:  status,
		Latency: milliseconds(status.Latency),
	})
}

// handlePing measures the ping latency of ?address=.
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	server, ok := s.lookup(w, r)
	if !ok {
		return
	}

	latency, err := server.Ping(r.Context(), s.probe)
	if err != nil {
		probeFailed(w, server, "ping", err)
		return
	}

	writeJSON(w, http.StatusOK, models.PingResult{
		Address: server.Address(),
		Latency: milliseconds(latency),
	})
}

// handleQuery runs a full stat query against ?address=.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	server, ok := s.lookup(w, r)
	if !ok {
		return
	}

	query, err := server.Query(r.Context(), s.probe)
	if err != nil {
		probeFailed(w, server, "query", err)
		return
	}

	writeJSON(w, http.StatusOK, models.QueryResult{
		Address: server.Address(),
		Query:   query,
	})
}

// handleVersion returns the build information.
func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, vars.Info())
}

// handleServers returns a JSON list of all recorded servers.
// This endpoint is protected by AdminAuthMiddleware.
func (s *Server) handleServers(w http.ResponseWriter, _ *http.Request) {
	servers, err := s.storage.GetServers()
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch servers")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if servers == nil {
		servers = []models.ServerRecord{}
	}

	writeJSON(w, http.StatusOK, servers)
}

// handleGetServer returns details for a specific recorded server.
// Query params: ?host=mc.example.org&port=25565
func (s *Server) handleGetServer(w http.ResponseWriter, r *http.Request) {
	host, port, ok := hostPort(w, r)
	if !ok {
		return
	}

	server, err := s.storage.GetServer(host, port)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch server")
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	if server == nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}

	writeJSON(w, http.StatusOK, server)
}

// handleDeleteServer removes a specific server from the database.
// Query params: ?host=mc.example.org&port=25565
func (s *Server) handleDeleteServer(w http.ResponseWriter, r *http.Request) {
	host, port, ok := hostPort(w, r)
	if !ok {
		return
	}

	if err := s.storage.DeleteServer(host, port); err != nil {
		log.Error().Err(err).
			Str("host", host).
			Int("port", port).
			Msg("Failed to delete server")

		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	log.Info().
		Str("host", host).
		Int("port", port).
		Msg("Server deleted manually")

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "Server deleted"})
}

// lookup parses ?address=, checks it against the allowed hosts and follows its
// SRV record. It writes the error response and returns false on failure.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*minecraft.Server, bool) {
	address := r.URL.Query().Get("address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return nil, false
	}

	host, _, _, err := minecraft.ParseAddress(address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	if !s.hostAllowed(host) {
		log.Debug().
			Str("host", host).
			Str("ip", GetRealIP(r, s.trustProxy)).
			Msg("Probe to not allowed host")

		writeError(w, http.StatusForbidden, "host not allowed")
		return nil, false
	}

	server, err := minecraft.Lookup(r.Context(), address, s.probe.Resolver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	return server, true
}

// recentlyProbed reports whether the address hashed to key had a live status
// probe within the soft limit window.
func (s *Server) recentlyProbed(key uint64) bool {
	if s.softLimitDur <= 0 {
		return false
	}

	v, ok := s.seenCache.Load(key)
	if !ok {
		return false
	}
	t, ok := v.(time.Time)

	return ok && time.Since(t) < s.softLimitDur
}

// hostPort reads the ?host= and ?port= parameters of admin endpoints.
func hostPort(w http.ResponseWriter, r *http.Request) (string, int, bool) {
	host := r.URL.Query().Get("host")
	portStr := r.URL.Query().Get("port")

	if host == "" || portStr == "" {
		writeError(w, http.StatusBadRequest, "missing required params (host, port)")
		return "", 0, false
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port < 1 || port > 65535 {
		writeError(w, http.StatusBadRequest, "invalid port")
		return "", 0, false
	}

	return host, port, true
}

// probeFailed answers a failed live probe with 504 and the probe error.
func probeFailed(w http.ResponseWriter, server *minecraft.Server, kind string, err error) {
	log.Debug().
		Err(err).
		Str("server", server.Address()).
		Str("probe", kind).
		Msg("Probe failed")

	msg := err.Error()
	if errors.Is(err, context.Canceled) {
		msg = "request canceled"
	}
	writeError(w, http.StatusGatewayTimeout, msg)
}

func milliseconds(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
