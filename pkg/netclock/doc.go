// ABOUTME: Network clock client package
// ABOUTME: High-level API for keeping a corrected clock against remote time sources
// Package netclock keeps a corrected clock in step with one or more remote
// time sources.
//
// A Client runs periodic synchronization rounds (RTT-compensated offset
// estimation with retry and multi-source aggregation) and publishes the
// corrected time on every tick. With UseWorker set, the same pipeline runs in
// an isolated executor and the client only relays commands and events.
//
// Example:
//
//	client, err := netclock.NewClient(netclock.Config{
//		URLs:     []string{"https://example.com/api/time"},
//		Timezone: "Europe/Berlin",
//	})
//	client.OnUpdate(netclock.Callbacks{
//		OnFormatted: func(s string) { fmt.Println(s) },
//	})
//	client.Start()
//	defer client.Close()
//
// Clients shared between consumers come from a Registry:
//
//	reg := netclock.NewRegistry()
//	h, err := reg.AcquireConfig(cfg)
//	defer reg.Release(h)
package netclock
