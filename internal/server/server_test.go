package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/woozymasta/mcstatus/internal/config"
	"github.com/woozymasta/mcstatus/internal/minecraft"
	"github.com/woozymasta/mcstatus/internal/minecraft/mctest"
	"github.com/woozymasta/mcstatus/internal/models"
	"github.com/woozymasta/mcstatus/internal/storage"
)

const testToken = "secret"

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Probe.Timeout = 300 * time.Millisecond
	cfg.Probe.Tries = 1
	cfg.Serve.Server.AuthToken = testToken
	cfg.Serve.RateLimit.HardLimitCount = 100
	cfg.Serve.RateLimit.HardLimitWin = time.Minute
	cfg.Serve.RateLimit.SoftLimitDur = time.Minute

	return cfg
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *storage.Repository) {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return New(store, nil, cfg), store
}

func do(t *testing.T, h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}

	return v
}

type statusReply struct {
	Record  *models.ServerRecord `json:"record"`
	Status  json.RawMessage      `json:"status"`
	Address string               `json:"address"`
	Cached  bool                 `json:"cached"`
}

func TestStatusIsRecordedAndCached(t *testing.T) {
	mc := mctest.NewServer(t, "")
	addr := mc.Addr
	s, store := newTestServer(t, testConfig())
	h := s.Run()

	rec := do(t, h, http.MethodGet, "/api/status?address="+addr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", rec.Code, rec.Body)
	}
	live := decode[statusReply](t, rec)
	if live.Cached || live.Address != addr || len(live.Status) == 0 {
		t.Fatalf("live reply = %+v", live)
	}

	s.processJob(<-s.queue)

	stored, err := store.GetServer(mc.Host, mc.Port)
	if err != nil || stored == nil {
		t.Fatalf("stored = %v, %v", stored, err)
	}
	if stored.VersionName != "1.20.4" || stored.PlayersOnline != 3 || stored.MOTD != "Hello" || stored.IP != "127.0.0.1" {
		t.Errorf("stored = %+v", stored)
	}

	rec = do(t, h, http.MethodGet, "/api/status?address="+addr, "")
	cached := decode[statusReply](t, rec)
	if !cached.Cached || cached.Record == nil || cached.Record.PlayersMax != 20 {
		t.Errorf("cached reply = %+v", cached)
	}
	if n := mc.Connections(); n != 1 {
		t.Errorf("%d probe connections, want 1", n)
	}
}

func TestStatusWithoutSoftLimitAlwaysProbes(t *testing.T) {
	mc := mctest.NewServer(t, "")
	cfg := testConfig()
	cfg.Serve.RateLimit.SoftLimitDur = 0
	s, _ := newTestServer(t, cfg)
	h := s.Run()

	for i := 0; i < 2; i++ {
		rec := do(t, h, http.MethodGet, "/api/status?address="+mc.Addr, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status code = %d", rec.Code)
		}
		s.processJob(<-s.queue)
	}

	if n := mc.Connections(); n != 2 {
		t.Errorf("%d probe connections, want 2", n)
	}
}

func TestPing(t *testing.T) {
	addr := mctest.NewServer(t, "").Addr
	s, _ := newTestServer(t, testConfig())

	rec := do(t, s.Run(), http.MethodGet, "/api/ping?address="+addr, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status code = %d: %s", rec.Code, rec.Body)
	}
	reply := decode[models.PingResult](t, rec)
	if reply.Address != addr || reply.Latency < 0 {
		t.Errorf("reply = %+v", reply)
	}
}

func TestProbeErrors(t *testing.T) {
	cfg := testConfig()
	cfg.Serve.Server.AllowedHosts = []string{"127.0.0.1", " MC.Example.org "}
	s, _ := newTestServer(t, cfg)
	h := s.Run()
	down := mctest.ClosedAddr(t)

	tests := []struct {
		target string
		code   int
	}{
		{"/api/status", http.StatusBadRequest},
		{"/api/status?address=127.0.0.1:0", http.StatusBadRequest},
		{"/api/ping?address=127.0.0.1:notaport", http.StatusBadRequest},
		{"/api/status?address=203.0.113.1:25565", http.StatusForbidden},
		{"/api/status?address=" + down, http.StatusGatewayTimeout},
		{"/api/ping?address=" + down, http.StatusGatewayTimeout},
		{"/api/query?address=" + down, http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		rec := do(t, h, http.MethodGet, tt.target, "")
		if rec.Code != tt.code {
			t.Errorf("%s: code = %d, want %d", tt.target, rec.Code, tt.code)
			continue
		}
		if body := decode[map[string]string](t, rec); body["error"] == "" {
			t.Errorf("%s: no error message", tt.target)
		}
	}

	if !s.hostAllowed("mc.example.org") {
		t.Error("allowed host rejected")
	}
}

func TestAdminEndpoints(t *testing.T) {
	s, store := newTestServer(t, testConfig())
	h := s.Run()

	if rec := do(t, h, http.MethodGet, "/api/servers", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: code = %d", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/servers", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: code = %d", rec.Code)
	}

	rec := do(t, h, http.MethodGet, "/api/servers", testToken)
	if rec.Body.String() != "[]\n" {
		t.Errorf("empty list = %q", rec.Body)
	}

	now := time.Now()
	if err := store.UpsertServer(models.ServerRecord{Host: "mc.example.org", Port: 25565, FirstSeen: now, LastSeen: now}); err != nil {
		t.Fatal(err)
	}

	rec = do(t, h, http.MethodGet, "/api/servers", testToken)
	if list := decode[[]models.ServerRecord](t, rec); len(list) != 1 || list[0].Host != "mc.example.org" {
		t.Errorf("list = %+v", list)
	}

	if rec = do(t, h, http.MethodGet, "/api/server?host=mc.example.org&port=25565", testToken); rec.Code != http.StatusOK {
		t.Errorf("get: code = %d", rec.Code)
	}
	if rec = do(t, h, http.MethodGet, "/api/server?host=mc.example.org&port=70000", testToken); rec.Code != http.StatusBadRequest {
		t.Errorf("bad port: code = %d", rec.Code)
	}
	if rec = do(t, h, http.MethodDelete, "/api/server?host=mc.example.org&port=25565", testToken); rec.Code != http.StatusOK {
		t.Errorf("delete: code = %d", rec.Code)
	}
	if rec = do(t, h, http.MethodGet, "/api/server?host=mc.example.org&port=25565", testToken); rec.Code != http.StatusNotFound {
		t.Errorf("get deleted: code = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.Serve.RateLimit.HardLimitCount = 2
	s, _ := newTestServer(t, cfg)
	h := s.Run()

	for i, want := range []int{http.StatusBadRequest, http.StatusBadRequest, http.StatusTooManyRequests} {
		if rec := do(t, h, http.MethodGet, "/api/status", ""); rec.Code != want {
			t.Errorf("request %d: code = %d, want %d", i, rec.Code, want)
		}
	}

	// admin endpoints are not rate limited
	if rec := do(t, h, http.MethodGet, "/api/servers", testToken); rec.Code != http.StatusOK {
		t.Errorf("admin: code = %d", rec.Code)
	}
}

func TestVersionAndServerHeader(t *testing.T) {
	s, _ := newTestServer(t, testConfig())

	rec := do(t, s.Run(), http.MethodGet, "/api/version", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	if rec.Header().Get("Server") == "" {
		t.Error("Server header not set")
	}
	if info := decode[map[string]any](t, rec); info["name"] != "mcstatus" {
		t.Errorf("info = %v", info)
	}
}

func TestExpire(t *testing.T) {
	s, _ := newTestServer(t, testConfig())
	now := time.Now()

	s.seenCache.Store(uint64(1), now.Add(-2*time.Minute))
	s.seenCache.Store(uint64(2), now)
	s.limiter("192.0.2.1")
	s.clients["192.0.2.1"].lastSeen = now.Add(-time.Hour)
	s.limiter("192.0.2.2")

	s.expire(now)

	if _, ok := s.seenCache.Load(uint64(1)); ok {
		t.Error("expired cache entry kept")
	}
	if _, ok := s.seenCache.Load(uint64(2)); !ok {
		t.Error("fresh cache entry dropped")
	}
	if _, ok := s.clients["192.0.2.1"]; ok {
		t.Error("idle client kept")
	}
	if _, ok := s.clients["192.0.2.2"]; !ok {
		t.Error("active client dropped")
	}
}

func TestWorkersDrainQueueOnStop(t *testing.T) {
	addr := mctest.NewServer(t, "").Addr
	s, store := newTestServer(t, testConfig())
	s.StartWorkers()

	if rec := do(t, s.Run(), http.MethodGet, "/api/status?address="+addr, ""); rec.Code != http.StatusOK {
		t.Fatalf("code = %d", rec.Code)
	}
	s.StopWorkers()

	servers, err := store.GetServers()
	if err != nil || len(servers) != 1 {
		t.Errorf("servers = %+v, %v", servers, err)
	}
}

func TestGetRealIP(t *testing.T) {
	tests := []struct {
		headers map[string]string
		want    string
		trust   bool
	}{
		{want: "192.0.2.1"},
		{headers: map[string]string{"X-Forwarded-For": "198.51.100.1"}, want: "192.0.2.1"},
		{headers: map[string]string{"X-Forwarded-For": "198.51.100.1, 10.0.0.1"}, want: "198.51.100.1", trust: true},
		{headers: map[string]string{"CF-Connecting-IP": "203.0.113.5", "X-Forwarded-For": "198.51.100.1"}, want: "203.0.113.5", trust: true},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		for k, v := range tt.headers {
			req.Header.Set(k, v)
		}
		if got := GetRealIP(req, tt.trust); got != tt.want {
			t.Errorf("GetRealIP(%v, %v) = %q, want %q", tt.headers, tt.trust, got, tt.want)
		}
	}
}

func TestEnqueueAfterStopWorkersDrops(t *testing.T) {
	s, store := newTestServer(t, testConfig())
	s.StartWorkers()
	s.StopWorkers()

	job := recordJob{
		server: minecraft.NewServer("mc.example.org", 25565),
		status: &minecraft.StatusResponse{},
		seen:   time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("enqueue after StopWorkers panicked: %v", r)
		}
	}()
	if s.enqueue(job) {
		t.Error("job accepted after StopWorkers")
	}

	s.StopWorkers()

	if servers, _ := store.GetServers(); len(servers) != 0 {
		t.Errorf("record written after stop: %+v", servers)
	}
}
