package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/marker.tracker/internal/app"
	"github.com/banshee-data/marker.tracker/internal/config"
	"github.com/banshee-data/marker.tracker/internal/control"
	"github.com/banshee-data/marker.tracker/internal/db"
	"github.com/banshee-data/marker.tracker/internal/health"
	"github.com/banshee-data/marker.tracker/internal/lifecycle"
	"github.com/banshee-data/marker.tracker/internal/monitor"
	"github.com/banshee-data/marker.tracker/internal/tracking"
	"github.com/banshee-data/marker.tracker/internal/transport"
	"github.com/banshee-data/marker.tracker/internal/version"
	"github.com/banshee-data/marker.tracker/internal/vision/opencv"
)

var (
	configPath  = flag.String("config", "", "Tracking config JSON used when the database holds none")
	envFile     = flag.String("env-file", ".env", "Optional dotenv file with TRACKER_* overrides")
	dbPath      = flag.String("db", "tracker.db", "SQLite database path")
	listen      = flag.String("listen", ":8080", "Monitor HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC health listen address (empty to disable)")
	panelPort   = flag.String("panel-port", "", "Serial port of the START/STOP control panel (empty to disable)")
	panelBaud   = flag.Int("panel-baud", control.DefaultBaudRate, "Control panel baud rate")
	autostart   = flag.Bool("autostart", false, "Start a tracking session immediately")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// fallbackConfig is the configuration used until one is saved through the
// API: the -config file (or the defaults) with environment overrides.
func fallbackConfig(path string, getenv func(string) string) (*config.TrackingConfig, error) {
	cfg := config.DefaultTrackingConfig()
	if path != "" {
		loaded, err := config.LoadTrackingConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}
	return cfg, nil
}

// logTransition is the controller listener that writes state changes to the
// log.
func logTransition(t lifecycle.Transition) {
	if t.Err != nil {
		log.Printf("tracking %s -> %s (session %s): %v", t.From, t.To, t.SessionID, t.Err)
		return
	}
	log.Printf("tracking %s -> %s (session %s)", t.From, t.To, t.SessionID)
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("tracker " + version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	if err := config.LoadEnvFile(*envFile); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}
	fallback, err := fallbackConfig(*configPath, os.Getenv)
	if err != nil {
		log.Fatalf("failed to load tracking config: %v", err)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	configs := &db.ConfigSource{DB: database, Fallback: fallback}

	trajectory := monitor.NewTrajectoryRecorder(monitor.DefaultTrajectorySize)
	hub := monitor.NewHub()

	var healthServer *health.Server
	if *grpcListen != "" {
		healthServer = health.NewServer(*grpcListen)
	}

	listeners := []func(lifecycle.Transition){
		logTransition,
		func(t lifecycle.Transition) {
			if t.To == lifecycle.Running {
				trajectory.Reset()
			}
		},
	}
	if healthServer != nil {
		listeners = append(listeners, healthServer.OnTransition)
	}

	// The panel needs the controller and the controller needs the panel's
	// listener, so the panel is attached through a late-bound hook.
	var panel *control.Panel
	listeners = append(listeners, func(t lifecycle.Transition) {
		if panel != nil {
			panel.OnTransition(t)
		}
	})

	ctrl, err := lifecycle.NewController(lifecycle.Options{
		Configs: configs,
		Builder: &app.Builder{
			Devices:   opencv.Devices{},
			Dialer:    transport.UDPDialer{},
			Observers: []tracking.Observer{trajectory, hub},
		},
		Recorder:  database,
		Listeners: listeners,
	})
	if err != nil {
		log.Fatalf("failed to create controller: %v", err)
	}

	if *panelPort != "" {
		panel, err = control.OpenSerialPanel(*panelPort, control.PortOptions{BaudRate: *panelBaud}, ctrl)
		if err != nil {
			log.Fatalf("failed to open control panel: %v", err)
		}
		defer panel.Close()
	}

	web, err := monitor.NewWebServer(monitor.WebServerConfig{
		Address:    *listen,
		Controller: ctrl,
		Configs:    configs,
		Store:      database,
		Trajectory: trajectory,
		Hub:        hub,
		Admin:      database.AttachAdminRoutes,
	})
	if err != nil {
		log.Fatalf("failed to create monitor server: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("controller stopped: %v", err)
		}
		log.Print("controller routine terminated")
	}()

	if healthServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := healthServer.Run(ctx); err != nil {
				log.Printf("health server error: %v", err)
			}
			log.Print("health routine terminated")
		}()
	}

	if panel != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := panel.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor control panel: %v", err)
			}
			log.Print("panel routine terminated")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.Start(ctx); err != nil {
			log.Printf("monitor server error: %v", err)
			stop()
		}
		log.Print("monitor routine terminated")
	}()

	if *autostart {
		ctrl.Start()
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
