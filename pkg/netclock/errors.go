// ABOUTME: Error and enum re-exports for netclock callers
// ABOUTME: Lets callers match failures without importing the internal pipeline packages
package netclock

import (
	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/Resonate-Protocol/netclock-go/pkg/retry"
	"github.com/Resonate-Protocol/netclock-go/pkg/source"
	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
	"github.com/Resonate-Protocol/netclock-go/pkg/timeparse"
)

var (
	ErrInvalidInput      = clocksync.ErrInvalidInput
	ErrUnparseableTime   = timeparse.ErrUnparseableTime
	ErrInvalidServerTime = source.ErrInvalidServerTime
	ErrSourceUnavailable = source.ErrSourceUnavailable
	ErrRetryExhausted    = retry.ErrRetryExhausted
	ErrAllSourcesFailed  = engine.ErrAllSourcesFailed
	ErrNoSources         = engine.ErrNoSources
)

// Strategy selects how multiple sources are combined
type Strategy = engine.Strategy

const (
	FirstSuccess = engine.StrategyFirstSuccess
	Average      = engine.StrategyAverage
)

// OfflineMode selects behavior when every source fails
type OfflineMode = engine.OfflineMode

const (
	OfflineLocal  = engine.OfflineLocal
	OfflineFreeze = engine.OfflineFreeze
	OfflineError  = engine.OfflineError
)
