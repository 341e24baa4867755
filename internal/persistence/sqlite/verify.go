// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrCorrupt is returned by CheckIntegrity when SQLite reports damage.
var ErrCorrupt = errors.New("sqlite: database corrupt")

// CheckIntegrity runs PRAGMA quick_check, or integrity_check when full is set.
// A damaged database yields an error wrapping ErrCorrupt with SQLite's findings.
func CheckIntegrity(ctx context.Context, db *sql.DB, full bool) error {
	pragma := "PRAGMA quick_check"
	if full {
		pragma = "PRAGMA integrity_check"
	}

	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return fmt.Errorf("%s: %w", pragma, err)
	}
	defer func() { _ = rows.Close() }()

	var findings []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return fmt.Errorf("%s: scan: %w", pragma, err)
		}
		findings = append(findings, line)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%s: %w", pragma, err)
	}

	switch {
	case len(findings) == 1 && strings.EqualFold(findings[0], "ok"):
		return nil
	case len(findings) == 0:
		return fmt.Errorf("%w: %s returned nothing", ErrCorrupt, pragma)
	default:
		return fmt.Errorf("%w: %s", ErrCorrupt, strings.Join(findings, "; "))
	}
}
