// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ManuGH/camrelay/internal/auth"
	"github.com/ManuGH/camrelay/internal/persistence/sqlite"
)

const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS devices (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	allowed_roles TEXT NOT NULL DEFAULT '["admin"]',
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS registrations (
	id TEXT PRIMARY KEY,
	device_id TEXT NOT NULL REFERENCES devices(id),
	url TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_registrations_device_created ON registrations(device_id, created_at);
`

// Ties on created_at are broken by insertion order.
const latestQuery = `
WITH ranked AS (
	SELECT id, device_id, url, created_at,
		ROW_NUMBER() OVER (PARTITION BY device_id ORDER BY created_at DESC, rowid DESC) AS rn
	FROM registrations
)
SELECT d.id, d.name, d.allowed_roles, d.created_at, r.id, r.url, r.created_at
FROM devices d
LEFT JOIN ranked r ON r.device_id = d.id AND r.rn = 1
WHERE EXISTS (SELECT 1 FROM json_each(d.allowed_roles) WHERE json_each.value = ?)
ORDER BY d.name
`

// SqliteStore implements Store on SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens dbPath and applies the schema.
func NewSqliteStore(ctx context.Context, dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(ctx, dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.CheckIntegrity(ctx, db, false); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry store: %w", err)
	}
	if err := sqlite.Migrate(ctx, db, schemaVersion, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("registry store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) EnsureDevice(ctx context.Context, name string, roles []auth.Role, at time.Time) (Device, error) {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return Device{}, fmt.Errorf("encode roles: %w", err)
	}
	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO devices (id, name, allowed_roles, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO NOTHING`,
		uuid.NewString(), name, string(rolesJSON), at.UnixNano())
	if err != nil {
		return Device{}, fmt.Errorf("insert device %s: %w", name, err)
	}
	return s.Device(ctx, name)
}

func (s *SqliteStore) Device(ctx context.Context, name string) (Device, error) {
	var (
		d         Device
		rolesJSON string
		createdAt int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, allowed_roles, created_at FROM devices WHERE name = ?`, name,
	).Scan(&d.ID, &d.Name, &rolesJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Device{}, ErrNotRegistered
	}
	if err != nil {
		return Device{}, fmt.Errorf("query device %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(rolesJSON), &d.AllowedRoles); err != nil {
		return Device{}, fmt.Errorf("decode roles of %s: %w", name, err)
	}
	d.CreatedAt = time.Unix(0, createdAt).UTC()
	return d, nil
}

func (s *SqliteStore) AppendRegistration(ctx context.Context, reg Registration) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO registrations (id, device_id, url, created_at) VALUES (?, ?, ?, ?)`,
		reg.ID, reg.DeviceID, reg.URL, reg.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("insert registration: %w", err)
	}
	return nil
}

func (s *SqliteStore) Latest(ctx context.Context, deviceID string) (Registration, error) {
	var (
		reg       Registration
		createdAt int64
	)
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, device_id, url, created_at FROM registrations
		WHERE device_id = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`, deviceID,
	).Scan(&reg.ID, &reg.DeviceID, &reg.URL, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Registration{}, ErrNotRegistered
	}
	if err != nil {
		return Registration{}, fmt.Errorf("query latest registration: %w", err)
	}
	reg.CreatedAt = time.Unix(0, createdAt).UTC()
	return reg, nil
}

func (s *SqliteStore) ListLatest(ctx context.Context, role auth.Role) ([]Entry, error) {
	rows, err := s.DB.QueryContext(ctx, latestQuery, role.String())
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e             Entry
			rolesJSON     string
			deviceCreated int64
			regID, regURL sql.NullString
			regCreated    sql.NullInt64
		)
		if err := rows.Scan(&e.Device.ID, &e.Device.Name, &rolesJSON, &deviceCreated, &regID, &regURL, &regCreated); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		if err := json.Unmarshal([]byte(rolesJSON), &e.Device.AllowedRoles); err != nil {
			return nil, fmt.Errorf("decode roles of %s: %w", e.Device.Name, err)
		}
		e.Device.CreatedAt = time.Unix(0, deviceCreated).UTC()
		if regID.Valid {
			e.Latest = &Registration{
				ID:        regID.String,
				DeviceID:  e.Device.ID,
				URL:       regURL.String,
				CreatedAt: time.Unix(0, regCreated.Int64).UTC(),
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SqliteStore) SetAllowedRoles(ctx context.Context, name string, roles []auth.Role) error {
	rolesJSON, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `UPDATE devices SET allowed_roles = ? WHERE name = ?`, string(rolesJSON), name)
	if err != nil {
		return fmt.Errorf("update roles of %s: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotRegistered
	}
	return nil
}

// Ping checks that the database answers a trivial query.
func (s *SqliteStore) Ping(ctx context.Context) error {
	var one int
	return s.DB.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}
