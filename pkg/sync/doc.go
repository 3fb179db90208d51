// ABOUTME: Clock offset estimation package
// ABOUTME: Turns round-trip samples into a corrected clock
// Package sync estimates the offset between the local clock and a remote
// time source.
//
// Offsets are computed from a single HTTP round trip under the symmetric
// latency assumption: the server stamped its time halfway through the
// exchange.
//
// Example:
//
//	dc := sync.NewDriftCorrector(nil)
//	offset, err := dc.ComputeOffset(sync.Sample{
//	    ServerTime:   1706500000123,
//	    RTT:          40,
//	    RequestStart: time.Now().UnixMilli() - 40,
//	})
//	now := dc.CorrectedNow()
package sync
