package operation

import (
	"context"
	"fmt"
	"time"

	"github.com/c360/visionflow/errors"
	"github.com/c360/visionflow/socket"
	"github.com/c360/visionflow/variant"
)

func (b *Base) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	err := b.loop(ctx)

	b.mu.Lock()
	cancel := b.cancel
	metrics := b.metrics
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if err != nil {
		b.logger.Error("Operation failed", "error", err, "class", errors.Classify(err).String())
		metrics.recordFailure(b.name, err)
		b.setState(Stopped, err)
		return
	}

	b.setState(Stopping, nil, Starting, Running, Pausing, Paused)
	b.setState(Stopped, nil)
	b.logger.Debug("Operation stopped", "cycles", b.cycles.Load())
}

func (b *Base) loop(ctx context.Context) error {
	for {
		if !b.checkpoint() {
			return nil
		}

		taken, ok := b.collect()
		if !ok {
			continue
		}

		err := b.cycle(ctx, taken)
		switch {
		case err == nil:
		case errors.Is(err, ErrFinished):
			b.logger.Info("Operation finished", "cycles", b.cycles.Load())
			return nil
		case b.stopRequested() && (errors.Is(err, socket.ErrInterrupted) || errors.Is(err, context.Canceled)):
			return nil
		default:
			return err
		}
	}
}

func (b *Base) stopRequested() bool {
	st := b.State()
	return st == Stopping || st == Stopped
}

// checkpoint parks the worker while paused. It returns false when the worker
// must exit.
func (b *Base) checkpoint() bool {
	parked := false
	for {
		switch b.State() {
		case Starting, Running:
			if parked {
				b.mu.Lock()
				b.groups = b.connectedGroups()
				b.mu.Unlock()
			}
			return true
		case Pausing:
			b.setState(Paused, nil, Pausing)
		case Paused:
			parked = true
			b.resume.Wait(-1)
		default:
			return false
		}
	}
}

// collect waits until a sync group has a value queued on every member and
// fetches one value per member. When several groups are ready, the group
// that became complete first wins. Operations without connected inputs are
// never blocked.
func (b *Base) collect() ([]*socket.InputSocket, bool) {
	b.mu.Lock()
	groups := b.groups
	b.mu.Unlock()

	if len(groups) == 0 {
		return nil, true
	}

	for {
		if st := b.State(); st != Running && st != Starting {
			return nil, false
		}
		if g := readyGroup(groups); g != nil {
			for _, in := range g {
				in.Fetch()
			}
			return g, true
		}
		b.wake.Wait(-1)
	}
}

func readyGroup(groups [][]*socket.InputSocket) []*socket.InputSocket {
	var best []*socket.InputSocket
	var bestSeq uint64
	for _, g := range groups {
		var completed uint64
		ready := true
		for _, in := range g {
			seq, ok := in.HeadSeq()
			if !ok {
				ready = false
				break
			}
			completed = max(completed, seq)
		}
		if ready && (best == nil || completed < bestSeq) {
			best, bestSeq = g, completed
		}
	}
	return best
}

func (b *Base) cycle(ctx context.Context, taken []*socket.InputSocket) (err error) {
	b.busy.Store(true)
	defer b.busy.Store(false)
	defer func() {
		for _, in := range taken {
			in.Release()
		}
	}()

	if len(taken) > 0 && !b.acceptsMarkers() {
		if handled, err := b.forwardMarkers(taken); handled || err != nil {
			return err
		}
	}

	b.cfgMu.RLock()
	defer b.cfgMu.RUnlock()
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("%w: panic: %v", errors.ErrProcessingFailed, r),
				b.name, "Process", "process cycle")
		}
	}()

	start := time.Now()
	err = b.impl.Process(ctx)
	if err == nil {
		b.cycles.Add(1)
		b.mu.Lock()
		metrics := b.metrics
		b.mu.Unlock()
		metrics.recordCycle(b.name, time.Since(start))
	}
	return err
}

func (b *Base) acceptsMarkers() bool {
	m, ok := b.impl.(MarkerAware)
	return ok && m.AcceptsMarkers()
}

// forwardMarkers emits a round marker to every output when all taken inputs
// hold the same marker. A mix of markers and data in one group is fatal.
func (b *Base) forwardMarkers(taken []*socket.InputSocket) (bool, error) {
	markers := 0
	var tag variant.Tag
	for _, in := range taken {
		v := in.Value()
		if !v.IsMarker() {
			continue
		}
		markers++
		if markers == 1 {
			tag = v.Tag()
		} else if tag != v.Tag() {
			return true, errors.WrapFatal(
				fmt.Errorf("%w: %s and %s markers in one group", errors.ErrProtocolViolation, tag, v.Tag()),
				b.name, "Process", "marker check")
		}
	}

	switch {
	case markers == 0:
		return false, nil
	case markers < len(taken):
		return true, errors.WrapFatal(
			fmt.Errorf("%w: %s marker mixed with data", errors.ErrProtocolViolation, tag),
			b.name, "Process", "marker check")
	}

	marker := taken[0].Value()
	for _, out := range b.outputs {
		if err := out.Emit(marker); err != nil {
			return true, err
		}
	}
	return true, nil
}
