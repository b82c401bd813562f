package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/actions"
	"github.com/AaronLay10/ActionGraph/internal/config"
	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/events"
	"github.com/AaronLay10/ActionGraph/internal/mqtt"
	"github.com/AaronLay10/ActionGraph/internal/storage"
	"github.com/AaronLay10/ActionGraph/internal/storage/postgres"
	"github.com/AaronLay10/ActionGraph/internal/version"
)

// printEvents writes every event as one JSON line on stdout until sub is closed.
func printEvents(sub events.Subscriber, done chan<- struct{}) {
	defer close(done)
	for e := range sub {
		b, err := json.Marshal(e)
		if err != nil {
			continue
		}
		fmt.Println(string(b))
	}
}

// autoAck acknowledges one pending dialogue line per interval, standing in for a reader.
func autoAck(ctx context.Context, mu sync.Locker, stage *actions.MemoryStage, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mu.Lock()
			stage.Acknowledge()
			mu.Unlock()
		}
	}
}

func main() {
	if err := config.LoadEnv(); err != nil {
		log.Fatalf("failed to load .env: %v", err)
	}
	configPath := flag.String("config", config.EnvOr("ACTIONGRAPH_PROJECT", "project.yaml"), "path to project.yaml")
	sceneFlag := flag.String("scene", "", "scene to run (defaults to runtime.scene)")
	ackAfter := flag.Duration("ack-after", 2*time.Second, "time each dialogue line stays up")
	timeout := flag.Duration("timeout", 0, "stop the run after this long (0 waits for the end)")
	flag.Parse()

	cfg, err := config.LoadProjectConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load %s: %v", *configPath, err)
	}
	sceneID := *sceneFlag
	if sceneID == "" {
		sceneID = cfg.Runtime.Scene
	}
	if sceneID == "" {
		log.Fatalf("no scene given: pass -scene or set runtime.scene")
	}

	sub := events.Subscribe()
	printed := make(chan struct{})
	go printEvents(sub, printed)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	var db storage.SceneDB
	if pg, err := postgres.New(cfg.ProjectID()); err != nil {
		if cfg.Storage.DriverName() == "postgres" {
			log.Fatalf("postgres: %v", err)
		}
		log.Printf("postgres unavailable, events are not persisted: %v", err)
	} else {
		events.SetPostgresClient(pg)
		defer pg.Close()
		db = pg
	}

	store, err := storage.Open(cfg.Storage, db)
	if err != nil {
		log.Fatalf("failed to open scene store: %v", err)
	}

	hostname, _ := os.Hostname()
	events.Emit("info", "system.startup", "runner starting", map[string]interface{}{
		"service":  "runner",
		"hostname": hostname,
		"pid":      os.Getpid(),
		"version":  version.Version,
		"scene_id": sceneID,
	})

	g, _, err := storage.LoadGraph(ctx, store, sceneID)
	if err != nil {
		log.Fatalf("failed to load scene %s: %v", sceneID, err)
	}

	stage := actions.NewMemoryStage()
	deps := actions.Deps{Stage: stage, Devices: mqtt.NewDeviceRegistryFromConfig(cfg)}
	if cfg.MQTT.Enabled {
		client, err := mqtt.NewClient(cfg.ClientID())
		if err != nil {
			log.Fatalf("mqtt: %v", err)
		}
		client.Start()
		defer client.Disconnect()
		deps.Publisher = client
	}
	reg, err := actions.NewRegistry(deps)
	if err != nil {
		log.Fatalf("failed to register kinds: %v", err)
	}

	loop := engine.NewLoop()
	eng := engine.New(loop, reg)
	if err := eng.StartScene(sceneID, g); err != nil {
		log.Fatalf("failed to start scene %s: %v", sceneID, err)
	}

	var mu sync.Mutex
	go autoAck(ctx, &mu, stage, *ackAfter)
	engine.Drive(ctx, loop, cfg.TickRate(), &mu, func() bool { return eng.State().Terminal() })

	mu.Lock()
	if eng.State() == engine.RunRunning {
		_ = eng.Stop()
	}
	state := eng.State()
	mu.Unlock()

	events.Emit("info", "system.shutdown", "runner stopping", map[string]interface{}{
		"service": "runner",
		"state":   string(state),
	})
	events.Unsubscribe(sub)
	<-printed

	if state == engine.RunHalted {
		os.Exit(1)
	}
}
