package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
}

// offlineCommands work on the migrations directory alone.
var offlineCommands = map[string]func(options) (string, error){
	"create": func(opts options) (string, error) {
		if opts.name == "" {
			return "", fmt.Errorf("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return "", err
		}
		return "created migration: " + path, nil
	},
	"validate": func(opts options) (string, error) {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return "", err
		}
		return "migration validation passed", nil
	},
}

// databaseCommands run against the configured database.
var databaseCommands = map[string]func(context.Context, *migrate.Runner, options) error{
	"up": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Up(ctx)
	},
	"down": func(ctx context.Context, r *migrate.Runner, _ options) error {
		return r.Down(ctx)
	},
	"status": func(ctx context.Context, r *migrate.Runner, _ options) error {
		pending, err := r.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d pending migration(s)\n", pending)
		return nil
	},
	"version": func(ctx context.Context, r *migrate.Runner, opts options) error {
		if opts.version == "" {
			return fmt.Errorf("missing -version for version command")
		}
		return r.To(ctx, opts.version)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|version|create|validate")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	cfg, err := config.Load()
	exitOn(context.Background(), logg, "load config", err)

	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})

	if run, ok := offlineCommands[opts.cmd]; ok {
		msg, err := run(opts)
		exitOn(ctx, logg, opts.cmd, err)
		fmt.Println(msg)
		return
	}

	run, ok := databaseCommands[opts.cmd]
	if !ok {
		fmt.Fprintln(os.Stderr, "unknown -cmd value:", opts.cmd)
		os.Exit(1)
	}

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "open sql handle", err)
	runner, err := migrate.NewRunner(sqlDB, opts.dir, logg)
	exitOn(ctx, logg, "load migrations", err)

	logg.Info(ctx, "running migrations")
	if err := run(ctx, runner, opts); err != nil {
		_ = dbClient.Close()
		exitOn(ctx, logg, opts.cmd, err)
	}
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("migrate failed: %s", step), err)
	os.Exit(1)
}
