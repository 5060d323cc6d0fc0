// Package replay re-simulates a recorded run and checks its digests.
package replay

import (
	"errors"

	"github.com/samber/oops"

	persistlog "foobartory.ai/internal/persistence/log"
	"foobartory.ai/internal/sim/factory"
)

var ErrDigestMismatch = errors.New("digest mismatch")

type Options struct {
	// FromTick is the first tick whose digest is checked. Zero means the
	// factory's current tick plus one.
	FromTick uint64
	// ToTick stops the replay after this tick. Zero means the whole log.
	ToTick uint64
}

type Result struct {
	StartTick uint64
	LastTick  uint64
	Checked   uint64
	// FinalChecked is set when the log's terminal summary matched.
	FinalChecked bool
}

// Verify steps f through the ticks recorded in eventsDir and compares every
// digest. f must already hold the state the log starts from: a fresh factory
// for a full log, or one restored from a snapshot. Entries before f's
// current tick are skipped.
func Verify(f *factory.Factory, eventsDir string, opts Options) (Result, error) {
	res := Result{StartTick: f.CurrentTick()}
	verifyFrom := opts.FromTick
	if verifyFrom == 0 {
		verifyFrom = res.StartTick + 1
	}
	errb := oops.In("replay")

	stop := errors.New("stop")
	err := persistlog.ReadTicks(eventsDir, func(e factory.TickLogEntry) error {
		if e.Final {
			if e.Tick != f.CurrentTick() {
				return nil
			}
			if e.Digest != f.Digest() {
				return errb.
					Code("final_digest_mismatch").
					With("tick", e.Tick, "got", f.Digest(), "want", e.Digest).
					Wrap(ErrDigestMismatch)
			}
			res.FinalChecked = true
			return nil
		}
		if e.Tick <= res.StartTick {
			return nil
		}
		if opts.ToTick != 0 && e.Tick > opts.ToTick {
			return stop
		}
		if want := f.CurrentTick() + 1; e.Tick != want {
			return errb.
				Code("tick_gap").
				With("want", want, "got", e.Tick).
				Errorf("tick mismatch: want=%d got=%d", want, e.Tick)
		}

		entry, err := f.Step()
		if err != nil {
			return errb.With("tick", e.Tick).Wrap(err)
		}
		res.LastTick = entry.Tick
		if entry.Tick >= verifyFrom {
			res.Checked++
			if entry.Digest != e.Digest {
				return errb.
					Code("digest_mismatch").
					With("tick", entry.Tick, "got", entry.Digest, "want", e.Digest).
					Wrap(ErrDigestMismatch)
			}
		}
		return nil
	})
	if err != nil && !errors.Is(err, stop) {
		return res, err
	}
	return res, nil
}
