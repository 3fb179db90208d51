// ABOUTME: The watch command: a live synchronized clock
// ABOUTME: Wires the client to the TUI or streaming logs, mDNS discovery and Prometheus
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/netclock-go/internal/discovery"
	"github.com/Resonate-Protocol/netclock-go/internal/metrics"
	"github.com/Resonate-Protocol/netclock-go/internal/ui"
	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/Resonate-Protocol/netclock-go/pkg/netclock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

func runWatch(c *cli.Context) error {
	cfg, err := loadConfig(c, afero.NewOsFs())
	if err != nil {
		return err
	}

	useTUI := !c.Bool("no-tui")
	out, closeLog, err := openLogOutput(c.String("log-file"), useTUI)
	if err != nil {
		return err
	}
	defer closeLog()

	log := newLogger(cfg.Log.Format, out, "netclock", cfg.Log.Debug)

	if cfg.Sources.Discover {
		found := discovery.NewManager(discovery.Config{Logger: log}).Discover(c.Duration("discover-timeout"))
		if len(found) == 0 && cfg.Sources.URL == "" && len(cfg.Sources.URLs) == 0 {
			return errors.New("no time servers discovered")
		}
		log.Info("Discovered %d time server(s)", len(found))
		if cfg.Sources.URL != "" && len(cfg.Sources.URLs) == 0 {
			cfg.Sources.URLs = []string{cfg.Sources.URL}
		}
		cfg.Sources.URLs = append(cfg.Sources.URLs, found...)
	}

	clientCfg := cfg.ToClientConfig()
	clientCfg.Logger = log

	if cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		clientCfg.Observer = m
		go serveMetrics(cfg.Metrics.Addr, reg, log)
	}

	// TUI setup
	var tuiProg *tea.Program
	var control *ui.Control

	if useTUI {
		control = ui.NewControl()
		tuiProg, err = ui.Run(uiInfo(clientCfg), control)
		if err != nil {
			return fmt.Errorf("failed to start TUI: %w", err)
		}
		go tuiProg.Run()
	}

	updateTUI := func(msg ui.StatusMsg) {
		if tuiProg != nil {
			tuiProg.Send(msg)
		}
	}

	var client *netclock.Client
	clientCfg.OnSync = func(serverTime int64) {
		st := client.State()
		updateTUI(ui.StatusMsg{Synced: true, LastSync: time.Now().UnixMilli(), AverageRTT: st.AverageRTT})
		if tuiProg == nil {
			log.Info("Synced: offset %+.1fms, server time %d", st.Offset, serverTime)
		}
	}
	clientCfg.OnError = func(err error) {
		updateTUI(ui.StatusMsg{Err: err})
	}

	client, err = netclock.NewClient(clientCfg)
	if err != nil {
		if tuiProg != nil {
			tuiProg.Quit()
		}
		return err
	}
	defer client.Close()

	client.OnUpdate(netclock.Callbacks{
		OnTime: func(ms int64) {
			updateTUI(ui.StatusMsg{Now: ms})
			if tuiProg == nil {
				log.Info("%s (offset %+.1fms)", time.UnixMilli(ms).UTC().Format("15:04:05.000"), client.Offset())
			}
		},
		OnFormatted: func(formatted string) {
			updateTUI(ui.StatusMsg{Formatted: formatted})
		},
		OnOffset: func(offset float64) {
			updateTUI(ui.StatusMsg{Offset: &offset})
		},
		OnRunning: func(running bool) {
			updateTUI(ui.StatusMsg{Running: &running})
		},
	})

	log.Info("Starting %s", client)
	if err := client.Start(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan struct{})
	if control != nil {
		go handleControl(ctx, client, control, quit, log)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("Received quit signal from TUI")
	case <-sigChan:
		log.Info("Shutdown signal received")
		if tuiProg != nil {
			tuiProg.Quit()
		}
	}

	if err := client.Close(); err != nil {
		log.Error("Error closing client: %v", err)
	}
	log.Info("Client stopped")
	return nil
}

// handleControl applies TUI key actions to the client
func handleControl(ctx context.Context, client *netclock.Client, control *ui.Control, quit chan<- struct{}, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case action := <-control.Actions:
			switch action {
			case ui.ActionSync:
				go func() {
					if err := client.SyncNow(ctx); err != nil {
						log.Warning("Manual sync: %v", err)
					}
				}()
			case ui.ActionToggle:
				var err error
				if client.State().Running {
					err = client.Stop()
				} else {
					err = client.Start()
				}
				if err != nil {
					log.Warning("Toggle failed: %v", err)
				}
			case ui.ActionQuit:
				close(quit)
				return
			}
		}
	}
}

func uiInfo(cfg netclock.Config) ui.Info {
	mode := "main"
	switch {
	case cfg.ExecutorURL != "":
		mode = "remote"
	case cfg.UseWorker:
		mode = "worker"
	}

	sources := cfg.URLs
	if len(sources) == 0 && cfg.URL != "" {
		sources = []string{cfg.URL}
	}
	if len(sources) == 0 {
		sources = []string{"built-in trace endpoints"}
	}

	strategy := string(cfg.Strategy)
	if strategy == "" {
		strategy = string(netclock.FirstSuccess)
	}

	return ui.Info{
		Sources:  sources,
		Strategy: strategy,
		Mode:     mode,
		Timezone: cfg.Timezone,
	}
}

func serveMetrics(addr string, reg *prometheus.Registry, log logger.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	log.Info("Metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("Metrics server failed: %v", err)
	}
}
