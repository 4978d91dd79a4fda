package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nerrad567/labeldash/internal/api"
	"github.com/nerrad567/labeldash/internal/history"
	"github.com/nerrad567/labeldash/internal/infrastructure/config"
	"github.com/nerrad567/labeldash/internal/infrastructure/database"
	"github.com/nerrad567/labeldash/internal/infrastructure/influxdb"
	"github.com/nerrad567/labeldash/internal/infrastructure/logging"
	"github.com/nerrad567/labeldash/internal/infrastructure/metrics"
	"github.com/nerrad567/labeldash/internal/labels"
	"github.com/nerrad567/labeldash/internal/session"
	"github.com/nerrad567/labeldash/migrations"
)

func newServeCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MQTT session, HTTP API and dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			log := logging.New(cfg.Logging, version)
			return serve(cmd.Context(), cfg, log)
		},
	}
}

// serve starts every component and blocks until ctx is cancelled.
// Components are closed in reverse order of startup.
func serve(ctx context.Context, cfg *config.Config, log *logging.Logger) error {
	log.Info("labeldash starting",
		"version", version,
		"commit", commit,
		"build_date", buildDate,
		"dashboard_id", cfg.Dashboard.ID,
	)

	// Job history
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	applied, err := db.Migrate(ctx, migrations.FS)
	if err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)
	jobs := history.NewRepository(db.DB)

	// Telemetry
	reg := metrics.New()
	observers := []session.Observer{reg}
	recorders := []labels.Recorder{jobs, reg}
	checks := map[string]api.HealthChecker{"database": db}

	influx, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Dashboard.ID)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("influxdb disabled")
	case err != nil:
		// Telemetry is optional; the dashboard runs without it.
		log.Warn("influxdb unavailable, continuing without telemetry", "error", err)
	default:
		defer func() {
			if closeErr := influx.Close(); closeErr != nil {
				log.Error("error closing influxdb", "error", closeErr)
			}
		}()
		influx.SetOnError(func(writeErr error) {
			log.Warn("influxdb write failed", "error", writeErr)
		})
		observers = append(observers, influx)
		recorders = append(recorders, influx)
		checks["influxdb"] = influx
		log.Info("influxdb connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// Session
	subscriptions := cfg.MQTT.Subscriptions
	if len(subscriptions) == 0 {
		subscriptions = defaultSubscriptions(cfg)
	}
	sess, err := newSession(cfg, log, sessionOptions{
		subscriptions: subscriptions,
		observer:      session.Observers(observers...),
	})
	if err != nil {
		return err
	}

	sessCtx, stopSession := context.WithCancel(context.Background())
	defer func() {
		stopSession()
		<-sess.Done()
	}()
	go func() {
		if runErr := sess.Run(sessCtx); runErr != nil {
			log.Error("session stopped with error", "error", runErr)
		}
	}()

	submitter := labels.NewSubmitter(sess, cfg.Dashboard.ID, cfg.MQTT.Prefix,
		log.With("component", "labels"), recorders...)

	// HTTP API
	srv, err := api.New(api.Deps{
		Config:    cfg,
		Logger:    log.With("component", "api"),
		Session:   sess,
		Submitter: submitter,
		History:   jobs,
		Database:  db,
		Metrics:   reg.Handler(),
		Checks:    checks,
		PanelDir:  cfg.API.PanelDir,
		Version:   version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	log.Info("labeldash started",
		"api", srv.Addr(),
		"identity", sess.Identity(),
		"subscriptions", len(subscriptions),
	)

	<-ctx.Done()
	log.Info("shutdown signal received")
	return nil
}
