// Package logging builds the structured loggers used by the binaries.
package logging

import (
	"io"
	"time"

	"github.com/charmbracelet/log"

	"foobartory.ai/internal/sim/factory"
)

// New returns a logger writing to w at the named level ("debug", "info",
// "warn", "error").
func New(w io.Writer, prefix, level string) (*log.Logger, error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{
		Prefix:          prefix,
		Level:           lvl,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	}), nil
}

// Reporter is a factory.TickLogger that logs the tick report every Every
// ticks and the end-of-run summary, at info.
type Reporter struct {
	Log   *log.Logger
	Every uint64
}

func (r Reporter) WriteTick(e factory.TickLogEntry) error {
	rep := e.Report
	if e.Final {
		r.Log.Info("run finished",
			"tick", rep.Tick,
			"total_ore", rep.TotalOre,
			"foo", rep.Foo,
			"bar", rep.Bar,
			"foobars", rep.FooBars,
			"money", rep.Money,
			"robots", rep.Robots,
			"digest", e.Digest,
		)
		return nil
	}
	if r.Every == 0 || e.Tick%r.Every != 0 {
		return nil
	}
	r.Log.Info("report",
		"tick", rep.Tick,
		"foo", rep.Foo,
		"bar", rep.Bar,
		"foobars", rep.FooBars,
		"money", rep.Money,
		"robots", rep.Robots,
	)
	return nil
}
