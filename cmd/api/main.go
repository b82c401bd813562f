package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/actions"
	"github.com/AaronLay10/ActionGraph/internal/api"
	"github.com/AaronLay10/ActionGraph/internal/config"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/mqtt"
	"github.com/AaronLay10/ActionGraph/internal/storage"
	"github.com/AaronLay10/ActionGraph/internal/storage/postgres"
	"github.com/AaronLay10/ActionGraph/internal/version"
)

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	configPath := flag.String("config", config.EnvOr("ACTIONGRAPH_PROJECT", "project.yaml"), "path to project.yaml")
	flag.Parse()

	cfg, err := config.LoadProjectConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *configPath, err)
	}

	if err := api.InitAuth(); err != nil {
		log.Fatalf("failed to load credentials: %v", err)
	}
	api.InitTLS()
	api.InitAlerts()
	api.InitMetrics()
	api.SetProjectName(cfg.ProjectID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Postgres holds the event log and, with the postgres driver, the scenes.
	pgRequired := cfg.Storage.DriverName() == "postgres"
	pg, err := postgres.New(cfg.ProjectID())
	if err != nil {
		if pgRequired {
			log.Fatalf("postgres: %v", err)
		}
		log.Printf("postgres unavailable, events stay in memory: %v", err)
		pg = nil
	} else {
		events.SetPostgresClient(pg)
		defer pg.Close()
	}
	api.SetPostgresState(pg != nil, !pgRequired)

	var db storage.SceneDB
	if pg != nil {
		db = pg
	}
	store, err := storage.Open(cfg.Storage, db)
	if err != nil {
		log.Fatalf("failed to open scene store: %v", err)
	}
	api.SetStoreReady(true)

	kinds := actions.Deps{Devices: mqtt.NewDeviceRegistryFromConfig(cfg)}
	var mqttUp func() bool
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(cfg.ClientID())
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		api.SetMQTTState(client.Start(), false)
		defer client.Disconnect()
		kinds.Publisher = client
		mqttUp = client.IsConnected
	}

	var pgPing func(context.Context) error
	if pg != nil {
		pgPing = pg.Ping
	}
	api.WatchDependencies(ctx, 5*time.Second, mqttUp, pgPing)
	api.StartAlertMonitor(10*time.Second, ctx.Done())

	srv, err := api.NewServer(api.Deps{Config: cfg, Store: store, Kinds: kinds})
	if err != nil {
		log.Fatalf("api: %v", err)
	}
	defer srv.Close()

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "api starting", map[string]interface{}{
		"service":  "api",
		"hostname": hostname,
		"pid":      os.Getpid(),
		"version":  version.Version,
		"project":  cfg.ProjectID(),
		"storage":  cfg.Storage.DriverName(),
	})

	if err := api.ListenAndServe(ctx, cfg.APIPort(), srv.Handler()); err != nil {
		events.Emit("error", "system.error", err.Error(), map[string]interface{}{"service": "api"})
		log.Fatalf("api server failed: %v", err)
	}
	events.Emit("info", "system.shutdown", "api stopping", map[string]interface{}{"service": "api"})
}
