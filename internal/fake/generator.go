// Package fake provides utilities for generating random server records for testing and development purposes.
package fake

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mcstatus/internal/models"
	"github.com/woozymasta/mcstatus/internal/storage"
)

// GenerateData populates the storage with a specified number of randomized server records.
// It simulates various versions, MOTDs, countries, and player counts.
// It returns the number of records written.
func GenerateData(store *storage.Repository, count int) int {
	versions := []struct {
		Name     string
		Protocol int
	}{
		{"1.8.9", 47}, {"1.12.2", 340}, {"1.16.5", 754}, {"1.19.4", 762},
		{"1.20.1", 763}, {"1.20.4", 765}, {"1.21.1", 767}, {"Paper 1.21.4", 769},
	}
	motds := []string{
		"A Minecraft Server", "Survival SMP", "Skyblock | Factions", "Creative Build",
		"Hardcore Anarchy", "Minigames Network", "Vanilla+ Community",
	}
	domains := []string{"example.org", "example.net", "example.com"}

	// Countries list
	countriesHigh := []string{"US", "DE", "RU", "CN", "BR", "FR", "GB", "PL", "CZ", "KZ", "UA"}
	countriesMid := []string{"CA", "AU", "IT", "ES", "NL", "SE", "JP", "KR", "TR", "BE", "RO"}
	countriesLow := []string{"ZA", "AR", "MX", "IN", "ID", "VN", "CH", "NO", "FI", "DK", "PT"}

	written := 0
	for i := 0; i < count; i++ {
		// Random date-time in 30 days range
		daysAgo := rand.IntN(30)
		seenTime := time.Now().Add(-time.Duration(daysAgo) * 24 * time.Hour).
			Add(-time.Duration(rand.IntN(1440)) * time.Minute)

		// Select country
		var country string
		roll := rand.Float32()
		switch {
		case roll < 0.70:
			country = countriesHigh[rand.IntN(len(countriesHigh))]
		case roll < 0.90:
			country = countriesMid[rand.IntN(len(countriesMid))]
		default:
			country = countriesLow[rand.IntN(len(countriesLow))]
		}

		// 80% of servers listen on the default port
		port := 25565
		if rand.Float32() < 0.2 {
			port = 25566 + rand.IntN(100)
		}

		version := versions[rand.IntN(len(versions))]
		maxPlayers := []int{20, 50, 100, 500}[rand.IntN(4)]

		rec := models.ServerRecord{
			Host:          fmt.Sprintf("mc%d.%s", i, domains[rand.IntN(len(domains))]),
			Port:          port,
			IP:            fmt.Sprintf("%d.%d.%d.%d", rand.IntN(220)+1, rand.IntN(255), rand.IntN(255), rand.IntN(255)),
			CountryCode:   country,
			VersionName:   version.Name,
			Protocol:      version.Protocol,
			MOTD:          motds[rand.IntN(len(motds))],
			PlayersOnline: rand.IntN(maxPlayers + 1),
			PlayersMax:    maxPlayers,
			LatencyMs:     int64(5 + rand.IntN(250)),
			FirstSeen:     seenTime.Add(-time.Hour * 24 * 7),
			LastSeen:      seenTime,
		}

		if err := store.UpsertServer(rec); err != nil {
			log.Warn().Err(err).Msg("Failed to generate fake server")
			continue
		}
		written++

		if rand.Float32() < 0.3 { // 30% chance of repeated probes
			_ = store.UpsertServer(rec)
			_ = store.UpsertServer(rec)
		}
	}

	log.Info().Int("count", written).Msg("Fake servers generated")

	return written
}
