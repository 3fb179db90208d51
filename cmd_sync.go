// ABOUTME: The sync command: one round, printed
// ABOUTME: Runs a single synchronization under the error offline policy
package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/Resonate-Protocol/netclock-go/pkg/netclock"
	"github.com/Resonate-Protocol/netclock-go/pkg/timezone"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

// roundRTTs collects the RTT of every successful fetch in a round. The
// average strategy keeps no RTT history, so the corrector cannot report it.
type roundRTTs struct {
	engine.NopObserver

	mu   sync.Mutex
	rtts []time.Duration
}

func (r *roundRTTs) ObserveFetch(url string, rtt time.Duration, err error) {
	if err != nil {
		return
	}
	r.mu.Lock()
	r.rtts = append(r.rtts, rtt)
	r.mu.Unlock()
}

// mean returns the mean RTT in milliseconds and the sample count
func (r *roundRTTs) mean() (float64, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rtts) == 0 {
		return 0, 0
	}
	var sum time.Duration
	for _, d := range r.rtts {
		sum += d
	}
	return float64(sum.Milliseconds()) / float64(len(r.rtts)), len(r.rtts)
}

func runSync(c *cli.Context) error {
	cfg, err := loadConfig(c, afero.NewOsFs())
	if err != nil {
		return err
	}

	out, closeLog, err := openLogOutput(c.String("log-file"), false)
	if err != nil {
		return err
	}
	defer closeLog()
	log := newLogger(cfg.Log.Format, out, "netclock", cfg.Log.Debug)

	clientCfg := cfg.ToClientConfig()
	clientCfg.Logger = log
	clientCfg.OfflineMode = netclock.OfflineError
	clientCfg.SyncInterval = -1
	clientCfg.TickInterval = -1
	clientCfg.UseWorker = false
	clientCfg.ExecutorURL = ""

	rtts := &roundRTTs{}
	clientCfg.Observer = rtts

	var serverTime int64
	clientCfg.OnSync = func(st int64) {
		serverTime = st
	}

	client, err := netclock.NewClient(clientCfg)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	if err := client.SyncNow(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	st := client.State()
	w := c.App.Writer
	fmt.Fprintf(w, "offset:      %+.3f ms\n", st.Offset)
	rtt, n := rtts.mean()
	if n > 1 {
		fmt.Fprintf(w, "rtt:         %.1f ms (mean of %d sources)\n", rtt, n)
	} else {
		fmt.Fprintf(w, "rtt:         %.1f ms\n", rtt)
	}
	fmt.Fprintf(w, "server time: %s\n", time.UnixMilli(serverTime).UTC().Format(time.RFC3339Nano))
	if cfg.Display.Timezone != "" {
		zone := timezone.New(cfg.Display.Timezone, log)
		fmt.Fprintf(w, "local time:  %s (%s)\n", zone.Format(serverTime), zone.Name())
	}
	return nil
}
