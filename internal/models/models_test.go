package models

import (
	"testing"
	"time"

	"github.com/woozymasta/mcstatus/internal/minecraft"
)

func TestNewServerRecord(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	status := &minecraft.StatusResponse{
		Version:     minecraft.StatusVersion{Name: "1.20.4", Protocol: 765},
		Players:     minecraft.StatusPlayers{Online: 4, Max: 50},
		Description: minecraft.Description{Text: "Survival"},
		Latency:     42 * time.Millisecond,
	}

	rec := NewServerRecord(minecraft.NewServer("mc.example.org", 0), status, now)

	if rec.Host != "mc.example.org" || rec.Port != minecraft.DefaultPort {
		t.Errorf("endpoint = %s:%d", rec.Host, rec.Port)
	}
	if rec.VersionName != "1.20.4" || rec.Protocol != 765 || rec.MOTD != "Survival" {
		t.Errorf("record = %+v", rec)
	}
	if rec.PlayersOnline != 4 || rec.PlayersMax != 50 || rec.LatencyMs != 42 {
		t.Errorf("record = %+v", rec)
	}
	if !rec.FirstSeen.Equal(now) || !rec.LastSeen.Equal(now) {
		t.Errorf("seen = %v / %v", rec.FirstSeen, rec.LastSeen)
	}
}
