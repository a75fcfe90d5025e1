// Command migrate manages the database schema.
//
//	migrate [-dir DIR] up | down | status | to VERSION | create NAME | validate
//
// create and validate work on DIR and need no database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/angelmondragon/storefront-backend/pkg/bootstrap"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"go.uber.org/multierr"
)

func main() {
	dir := flag.String("dir", migrate.DefaultDir, "migrations directory for create and validate")
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		args = []string{migrate.CmdUp}
	}

	if err := run(args[0], args[1:], *dir); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run(cmd string, rest []string, dir string) error {
	switch cmd {
	case "create":
		if len(rest) != 1 {
			return errors.New("usage: create NAME")
		}
		path, err := migrate.CreateSQLMigration(dir, rest[0])
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	case "validate":
		return multierr.Combine(migrate.ValidateDir(dir), migrate.ValidateEmbedded())
	}

	var target int64
	if cmd == migrate.CmdTo {
		if len(rest) != 1 {
			return errors.New("usage: to VERSION")
		}
		v, err := strconv.ParseInt(rest[0], 10, 64)
		if err != nil {
			return fmt.Errorf("version %q: %w", rest[0], err)
		}
		target = v
	}

	cfg, logg, err := bootstrap.Load("migrate")
	if err != nil {
		return err
	}
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": cmd})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer client.Close()

	// The SQL files are Postgres dialect; SQLite schemas come from the models.
	if client.Driver() == db.DriverSQLite {
		if cmd != migrate.CmdUp {
			return fmt.Errorf("sqlite supports only %q", migrate.CmdUp)
		}
		return migrate.AutoMigrateSQLite(ctx, client.DB())
	}

	pool, err := client.DB().DB()
	if err != nil {
		return err
	}
	reports, err := migrate.Apply(ctx, pool, cmd, target)
	for _, r := range reports {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version": r.Version,
			"file":    r.File,
			"applied": r.Applied,
			"took_ms": r.Took.Milliseconds(),
		}), "migration")
	}
	return err
}
