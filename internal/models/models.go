// Package models defines the data structures used for API responses and database persistence.
package models

import (
	"time"

	"github.com/woozymasta/mcstatus/internal/minecraft"
)

// ServerRecord is a probed Minecraft server stored in the database.
type ServerRecord struct {
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
	Host          string    `json:"host"`
	IP            string    `json:"ip"`
	CountryCode   string    `json:"country_code"`
	VersionName   string    `json:"version_name"`
	MOTD          string    `json:"motd"`
	Port          int       `json:"port"`
	Protocol      int       `json:"protocol"`
	PlayersOnline int       `json:"players_online"`
	PlayersMax    int       `json:"players_max"`
	LatencyMs     int64     `json:"latency_ms"`
	Count         int64     `json:"count"`
}

// NewServerRecord builds a record from a successful status probe seen at now.
func NewServerRecord(server *minecraft.Server, status *minecraft.StatusResponse, now time.Time) ServerRecord {
	return ServerRecord{
		FirstSeen:     now,
		LastSeen:      now,
		Host:          server.Host,
		Port:          int(server.Port),
		VersionName:   status.Version.Name,
		Protocol:      status.Version.Protocol,
		MOTD:          status.Description.Text,
		PlayersOnline: status.Players.Online,
		PlayersMax:    status.Players.Max,
		LatencyMs:     status.Latency.Milliseconds(),
	}
}

// StatusResult is the API reply of a status probe.
type StatusResult struct {
	Status  *minecraft.StatusResponse `json:"status,omitempty"`
	Record  *ServerRecord             `json:"record,omitempty"`
	Address string                    `json:"address"`
	Latency float64                   `json:"latency_ms"`
	Cached  bool                      `json:"cached"`
}

// PingResult is the API reply of a ping probe.
type PingResult struct {
	Address string  `json:"address"`
	Latency float64 `json:"latency_ms"`
}

// QueryResult is the API reply of a query probe.
type QueryResult struct {
	Query   *minecraft.QueryResponse `json:"query"`
	Address string                   `json:"address"`
}
