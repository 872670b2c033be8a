// Package storage handles database connections, schema migrations, and data operations using SQLite.
package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/woozymasta/mcstatus/assets"
	"github.com/woozymasta/mcstatus/internal/models"
	_ "modernc.org/sqlite" // Driver sqlite
)

const serverColumns = `
	host, port, ip, country_code, version_name, protocol, motd,
	players_online, players_max, latency_ms, count, first_seen, last_seen`

// Repository manages the SQLite database connection.
type Repository struct {
	db *sql.DB
}

// New initializes a new SQLite connection, sets connection pool parameters, and runs migrations.
func New(dbPath string) (*Repository, error) {
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := runMigrations(db, assets.FS()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// UpsertServer inserts a server or updates the stored one with the same host and port.
// The probe counter is incremented on update; IP and country are only replaced by non-empty values.
func (r *Repository) UpsertServer(s models.ServerRecord) error {
	query := `
	INSERT INTO servers (` + serverColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	ON CONFLICT(host, port) DO UPDATE SET
		count          = count + 1,
		last_seen      = excluded.last_seen,
		version_name   = excluded.version_name,
		protocol       = excluded.protocol,
		motd           = excluded.motd,
		players_online = excluded.players_online,
		players_max    = excluded.players_max,
		latency_ms     = excluded.latency_ms,

		-- Keep known address data when a probe could not resolve it
		ip           = CASE WHEN excluded.ip != '' THEN excluded.ip ELSE servers.ip END,
		country_code = CASE WHEN excluded.country_code != '' THEN excluded.country_code ELSE servers.country_code END;
	`

	// Use LastSeen and for FirstSeen when insert new record
	_, err := r.db.Exec(query,
		s.Host, s.Port, s.IP, s.CountryCode, s.VersionName, s.Protocol, s.MOTD,
		s.PlayersOnline, s.PlayersMax, s.LatencyMs,
		s.FirstSeen.UTC(), s.LastSeen.UTC(),
	)

	return err
}

// GetServers retrieves all servers, most recently seen first.
func (r *Repository) GetServers() ([]models.ServerRecord, error) {
	return r.GetServersSubset(time.Time{})
}

// GetServersSubset retrieves servers last seen before seenBefore, most recently
// seen first. A zero seenBefore selects all servers.
func (r *Repository) GetServersSubset(seenBefore time.Time) ([]models.ServerRecord, error) {
	query := `SELECT ` + serverColumns + ` FROM servers`
	var args []interface{}

	if !seenBefore.IsZero() {
		query += ` WHERE last_seen < ?`
		args = append(args, seenBefore.UTC())
	}
	query += ` ORDER BY last_seen DESC`

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var servers []models.ServerRecord
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, err
		}
		servers = append(servers, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return servers, nil
}

// GetServer retrieves a server by host and port. It returns nil when not found.
func (r *Repository) GetServer(host string, port int) (*models.ServerRecord, error) {
	row := r.db.QueryRow(`SELECT `+serverColumns+` FROM servers WHERE host = ? AND port = ?`, host, port)

	s, err := scanServer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, err
	}

	return &s, nil
}

// DeleteServer removes a server identified by host and port.
func (r *Repository) DeleteServer(host string, port int) error {
	_, err := r.db.Exec(`DELETE FROM servers WHERE host = ? AND port = ?`, host, port)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (models.ServerRecord, error) {
	var s models.ServerRecord
	err := row.Scan(
		&s.Host, &s.Port, &s.IP, &s.CountryCode, &s.VersionName, &s.Protocol, &s.MOTD,
		&s.PlayersOnline, &s.PlayersMax, &s.LatencyMs, &s.Count, &s.FirstSeen, &s.LastSeen,
	)

	return s, err
}
