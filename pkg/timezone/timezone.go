// ABOUTME: Timezone-aware formatting of corrected timestamps
// ABOUTME: Falls back to UTC when the zone name cannot be loaded
package timezone

import (
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
)

// DefaultLayout renders 24-hour date and time, e.g. 2024/01/29 11:46:40
const DefaultLayout = "2006/01/02 15:04:05"

// Zone formats Unix millisecond timestamps in one location
type Zone struct {
	name   string
	loc    *time.Location
	layout string
}

// New loads the named zone. An empty or unknown name yields UTC and, for an
// unknown name, a warning.
func New(name string, log logger.Logger) *Zone {
	log = logger.OrNop(log)

	if name == "" {
		return &Zone{name: "UTC", loc: time.UTC, layout: DefaultLayout}
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		log.Warning("Timezone %q is not supported, falling back to UTC: %v", name, err)
		return &Zone{name: "UTC", loc: time.UTC, layout: DefaultLayout}
	}

	return &Zone{name: name, loc: loc, layout: DefaultLayout}
}

// WithLayout returns a copy using layout instead of DefaultLayout
func (z *Zone) WithLayout(layout string) *Zone {
	c := *z
	if layout != "" {
		c.layout = layout
	}
	return &c
}

// Format renders ms in the zone
func (z *Zone) Format(ms int64) string {
	return time.UnixMilli(ms).In(z.loc).Format(z.layout)
}

// FormatLayout renders ms with a one-off layout
func (z *Zone) FormatLayout(ms int64, layout string) string {
	return time.UnixMilli(ms).In(z.loc).Format(layout)
}

// Name returns the effective zone name, "UTC" after a fallback
func (z *Zone) Name() string {
	return z.name
}

// IsValid reports whether name can be loaded
func IsValid(name string) bool {
	if name == "" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
