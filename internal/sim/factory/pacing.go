package factory

import (
	"context"
	"time"
)

// Pacer paces ticks against wall-clock time.
type Pacer interface {
	Wait(ctx context.Context) error
}

// NoPacer runs ticks back to back.
type NoPacer struct{}

func (NoPacer) Wait(ctx context.Context) error { return ctx.Err() }

type TickerPacer struct {
	t *time.Ticker
}

func NewTickerPacer(interval time.Duration) *TickerPacer {
	return &TickerPacer{t: time.NewTicker(interval)}
}

func (p *TickerPacer) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.t.C:
		return nil
	}
}

func (p *TickerPacer) Stop() { p.t.Stop() }
