package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"github.com/teslashibe/go-facecast/internal/config"
	"github.com/teslashibe/go-facecast/internal/log"
	"github.com/teslashibe/go-facecast/pkg/sensor"
	"github.com/teslashibe/go-facecast/pkg/session"
	"github.com/teslashibe/go-facecast/pkg/transport"
	"github.com/teslashibe/go-facecast/pkg/web"
)

var serveOpts struct {
	addr   string
	token  string
	debug  bool
	config transport.Config
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept sensor devices and stream face records to the configured endpoint",
	RunE:  runServe,
}

func init() {
	defaults := transport.DefaultConfig()
	f := serveCmd.Flags()
	f.StringVar(&serveOpts.addr, "addr", "", "HTTP listen address (default: $FACECAST_LISTEN or "+config.DefaultListenAddr+")")
	f.StringVar(&serveOpts.token, "token", "", "token devices must present (default: $FACECAST_SENSOR_TOKEN)")
	f.BoolVar(&serveOpts.debug, "debug", false, "log HTTP requests and device traffic")
	f.DurationVar(&serveOpts.config.SendTimeout, "send-timeout", defaults.SendTimeout, "UDP write deadline")
	f.DurationVar(&serveOpts.config.DialTimeout, "dial-timeout", defaults.DialTimeout, "UDP socket setup deadline")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	addr := serveOpts.addr
	if addr == "" {
		addr = config.ListenAddr(config.DefaultListenAddr)
	}
	token := serveOpts.token
	if token == "" {
		token = config.SensorToken()
	}

	store := config.NewStore(configPath)
	settings, err := store.Load()
	if err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("📡 facecast v" + Version)
	fmt.Println("   Face tracking → UDP face records")
	fmt.Println()

	sender := transport.NewSender(serveOpts.config)
	sensors := sensor.NewHub(sensor.Config{Token: token, Debug: serveOpts.debug})
	ctrl := session.New(sensors, sender)

	srv := web.NewServer(ctrl, web.Options{
		Version:     Version,
		Debug:       serveOpts.debug,
		SenderStats: sender.GetStats,
		SensorStats: sensors.GetStats,
	})
	sensors.RegisterRoutes(srv.App())
	sensors.RegisterAPIRoutes(srv.App().Group("/api"))

	ctrl.OnChange(srv.PublishSnapshot)
	ctrl.OnChange(sensors.PublishStatus)
	ctrl.OnChange(dashboardEvents(srv))

	sensors.OnAuthorizedChange(func(authorized bool) {
		if authorized {
			srv.AddLog("sensor", "device accepted")
		} else {
			srv.AddLog("sensor", "no devices connected")
		}
		if err := ctrl.Reconcile(); err != nil && ctrl.Settings().FaceTracking {
			log.Debug("tracking still waiting", "reason", err)
		}
	})

	srv.OnSettingsChanged = func(s session.Settings) {
		if err := store.Save(s); err != nil {
			log.Warn("settings not saved", "path", store.Path(), "error", err)
		}
	}

	// Guard failures are expected here: no device has connected yet.
	if err := ctrl.Apply(settings); err != nil {
		log.Info("settings applied with pending guards", "error", err)
	}

	host := addr
	if strings.HasPrefix(host, ":") {
		host = "localhost" + host
	}
	fmt.Printf("🚀 Starting server on %s\n", addr)
	fmt.Printf("   Settings:  %s\n", store.Path())
	fmt.Printf("   Sensor:    ws://%s/ws/sensor\n", host)
	fmt.Printf("   Status:    http://%s/api/status\n", host)
	fmt.Printf("   Metrics:   http://%s/metrics\n", host)
	if ep, ok := settings.Transport.Endpoint.Endpoint(); ok {
		fmt.Printf("   Endpoint:  udp://%s (enabled: %v)\n", ep, settings.Transport.Enabled)
	} else {
		fmt.Printf("   Endpoint:  not configured (default port %d)\n", transport.DefaultPort)
	}
	fmt.Println()

	err = srv.Run(ctx, addr)
	fmt.Println("👋 Shutting down...")
	return err
}

// dashboardEvents turns snapshot transitions into dashboard log lines.
func dashboardEvents(srv *web.Server) func(session.Snapshot) {
	var (
		mu   sync.Mutex
		last session.Snapshot
	)
	return func(s session.Snapshot) {
		mu.Lock()
		prev := last
		last = s
		mu.Unlock()

		if s.TrackingActive() != prev.TrackingActive() {
			if s.TrackingActive() {
				srv.AddLog("sensor", "face tracking active")
			} else {
				srv.AddLog("sensor", "face tracking inactive")
			}
		}
		switch {
		case s.Transport.Failed && !prev.Transport.Failed:
			srv.AddLog("transport", "send failed, retrying next update")
		case !s.Transport.Failed && prev.Transport.Failed:
			srv.AddLog("transport", "send recovered")
		}
	}
}
