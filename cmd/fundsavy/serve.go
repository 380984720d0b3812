package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fundsavy/fundsavy"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		addr   string
		db     string
		source string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Long: `Start the fundsavy server.

Groups are served from the local database (db.json by default) unless a
remote source is configured. With --watch the database is reloaded when
it changes.

Examples:
  fundsavy serve
  fundsavy serve --addr=:8000 --db=./db.json --watch
  fundsavy serve --source=s3://my-bucket/groups`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if db != "" {
				cfg.Groups.DB = db
			}
			if source != "" {
				cfg.Groups.Source = source
			}
			if watch {
				cfg.Groups.Watch = true
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().StringVar(&db, "db", "", "Local groups database")
	cmd.Flags().StringVar(&source, "source", "", "Remote groups source (http(s):// or s3://)")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Reload the local database on change")

	return cmd
}

func runServe(ctx context.Context, cfg *fundsavy.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := newLogger(cfg.Log, os.Stderr)

	app, err := fundsavy.New(cfg, fundsavy.WithLogger(logger))
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	success(os.Stdout, "fundsavy %s", fundsavy.Version)
	info(os.Stdout, "Listening on %s", cfg.Server.Addr)
	if app.Groups() != nil {
		info(os.Stdout, "Groups from %s", app.Groups().Path())
	} else {
		info(os.Stdout, "Groups from %s", cfg.Groups.Source)
	}

	return app.Run(ctx)
}
