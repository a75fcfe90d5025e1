// Package migrate owns the schema: goose SQL files for Postgres and GORM
// auto-migration for SQLite.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
)

// DefaultDir is where new migration files are written, relative to the repo
// root.
const DefaultDir = "pkg/migrate/migrations"

// embeddedDir is the root of the SQL files inside embedded.
const embeddedDir = "migrations"

//go:embed migrations/*.sql
var embedded embed.FS

// Migrations exposes the SQL files compiled into the binary.
func Migrations() fs.FS { return embedded }

// Commands accepted by Apply.
const (
	CmdUp     = "up"
	CmdDown   = "down"
	CmdStatus = "status"
	CmdTo     = "to"
)

// Report describes one migration touched or inspected by a command.
type Report struct {
	Version int64
	File    string
	Applied bool
	Took    time.Duration
}

// Apply runs command against db using the embedded Postgres migrations.
// target is only read by CmdTo, which migrates up or down as needed.
func Apply(ctx context.Context, db *sql.DB, command string, target int64) ([]Report, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	migrations, err := fs.Sub(embedded, embeddedDir)
	if err != nil {
		return nil, err
	}
	p, err := goose.NewProvider(database.DialectPostgres, db, migrations)
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return apply(ctx, p, command, target)
}

func apply(ctx context.Context, p *goose.Provider, command string, target int64) ([]Report, error) {
	switch command {
	case CmdUp:
		return fromResults(p.Up(ctx))
	case CmdDown:
		res, err := p.Down(ctx)
		if res == nil {
			return nil, err
		}
		return fromResults([]*goose.MigrationResult{res}, err)
	case CmdStatus:
		statuses, err := p.Status(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]Report, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, Report{
				Version: s.Source.Version,
				File:    s.Source.Path,
				Applied: s.State == goose.StateApplied,
			})
		}
		return out, nil
	case CmdTo:
		if target < 0 {
			return nil, fmt.Errorf("invalid target version %d", target)
		}
		current, err := p.GetDBVersion(ctx)
		if err != nil {
			return nil, fmt.Errorf("current version: %w", err)
		}
		switch {
		case target > current:
			return fromResults(p.UpTo(ctx, target))
		case target < current:
			return fromResults(p.DownTo(ctx, target))
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown migrate command %q", command)
	}
}

func fromResults(results []*goose.MigrationResult, err error) ([]Report, error) {
	out := make([]Report, 0, len(results))
	for _, r := range results {
		if r == nil || r.Source == nil {
			continue
		}
		out = append(out, Report{
			Version: r.Source.Version,
			File:    r.Source.Path,
			Applied: r.Error == nil && r.Direction == "up",
			Took:    r.Duration,
		})
	}
	return out, err
}
