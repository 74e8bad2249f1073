package app

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"heliotrack-server/internal/config"
	"heliotrack-server/internal/control"
	"heliotrack-server/internal/db"
	"heliotrack-server/internal/httpapi"
	"heliotrack-server/internal/mqtt"
	"heliotrack-server/internal/relay"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"sqlitePath", cfg.SQLitePath,
		"mqttBroker", cfg.MQTTBroker,
		"mqttTopic", cfg.MQTTTopic,
	)

	store := control.NewStore(control.DefaultConfig())

	dbConn, err := openSnapshotDB(cfg, store)
	if err != nil {
		return err
	}
	if dbConn != nil {
		defer func() {
			if closeErr := db.Close(dbConn); closeErr != nil {
				slog.Error("db close", "error", closeErr)
			}
		}()
	}

	hub := relay.NewHub(store, slog.Default())
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	var bridge *mqtt.Bridge
	if cfg.MQTTBroker != "" {
		bridge = mqtt.NewBridge(cfg, slog.Default(), hub)
		// Short timeout for the initial connect so a down broker does not
		// block startup; paho keeps retrying in the background.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err := bridge.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing without field telemetry)", "error", err)
		}
	}

	mux := httpapi.NewMux(hub, dbConn, cfg.StaticDir)
	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if bridge != nil {
		slog.Info("mqtt disconnecting")
		bridge.Disconnect()
	}

	slog.Info("relay stopping")
	stopHub()

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err = <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}

// openSnapshotDB opens the config snapshot store when persistence is
// configured, seeds the live store from the last snapshot, and persists
// every merge from then on.
func openSnapshotDB(cfg config.Config, store *control.Store) (*sql.DB, error) {
	if cfg.SQLitePath == "" && cfg.SQLiteDSN == "" {
		slog.Info("config persistence disabled (no SQLITE_PATH)")
		return nil, nil
	}

	dbConn, err := db.Open(cfg)
	if err != nil {
		return nil, err
	}

	repo, err := db.NewSnapshotRepository(dbConn)
	if err != nil {
		_ = db.Close(dbConn)
		return nil, err
	}

	if saved, found, loadErr := repo.Load(); loadErr != nil {
		_ = db.Close(dbConn)
		return nil, loadErr
	} else if found {
		store.Merge(control.ConfigUpdate{
			ControlMode:       &saved.ControlMode,
			ManualOrientation: &saved.ManualOrientation,
		})
		slog.Info("config restored from snapshot", "controlMode", saved.ControlMode)
	}

	store.OnChange(func(merged control.Config) {
		if saveErr := repo.Save(merged); saveErr != nil {
			slog.Error("config snapshot save failed", "error", saveErr)
		}
	})

	return dbConn, nil
}
