// ABOUTME: The serve command: a reference time server
// ABOUTME: Starts the gin time server with optional skew, mDNS, metrics and TUI
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Resonate-Protocol/netclock-go/internal/metrics"
	"github.com/Resonate-Protocol/netclock-go/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

func runServe(c *cli.Context) error {
	cfg, err := loadConfig(c, afero.NewOsFs())
	if err != nil {
		return err
	}

	useTUI := c.Bool("tui")
	out, closeLog, err := openLogOutput(c.String("log-file"), useTUI)
	if err != nil {
		return err
	}
	defer closeLog()
	log := newLogger(cfg.Log.Format, out, "server", cfg.Log.Debug)

	srvConfig := server.Config{
		Port:       cfg.Server.Port,
		Name:       cfg.Server.Name,
		EnableMDNS: cfg.Server.MDNS,
		Debug:      cfg.Log.Debug,
		UseTUI:     useTUI,
		Skew:       cfg.Server.Skew.Duration,
		Logger:     log,
	}

	if c.Bool("metrics") {
		reg := prometheus.NewRegistry()
		m, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		srvConfig.Metrics = m
		srvConfig.Gatherer = reg
	}

	srv := server.New(srvConfig)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info("Received %v signal, shutting down gracefully...", sig)
		srv.Stop()
	}()

	log.Info("Starting time server %s on port %d", cfg.Server.Name, cfg.Server.Port)
	return srv.Start()
}
