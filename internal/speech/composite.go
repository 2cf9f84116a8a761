package speech

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Ordering selects the playback order of composite announcement parts.
type Ordering int

const (
	// OrderSubmission plays parts in the order they were given.
	OrderSubmission Ordering = iota
	// OrderCompletion plays parts as soon as their generation finishes.
	OrderCompletion
)

// String returns the string representation of the ordering.
func (o Ordering) String() string {
	switch o {
	case OrderSubmission:
		return "submission"
	case OrderCompletion:
		return "completion"
	default:
		return "unknown"
	}
}

// ParseOrdering parses "submission" or "completion".
func ParseOrdering(s string) (Ordering, bool) {
	switch s {
	case "", "submission":
		return OrderSubmission, true
	case "completion":
		return OrderCompletion, true
	}
	return OrderSubmission, false
}

// job is one generated part. A failed or empty generation is published as a
// zero-length placeholder so the consumer never waits for it.
type job struct {
	index int
	pcm   []byte
}

// Announcement tracks a composite request.
type Announcement struct {
	parts int
	done  chan struct{}

	mu      sync.Mutex
	drained int
	played  int
	order   []int
}

func newAnnouncement(parts int) *Announcement {
	return &Announcement{parts: parts, done: make(chan struct{})}
}

// Parts returns the number of requested parts.
func (a *Announcement) Parts() int { return a.parts }

// Done is closed once every part has been drained.
func (a *Announcement) Done() <-chan struct{} { return a.done }

// Wait blocks until the announcement is done or ctx ends.
func (a *Announcement) Wait(ctx context.Context) error {
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drained returns how many parts the consumer has taken off the queue,
// placeholders included.
func (a *Announcement) Drained() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drained
}

// Played returns how many parts were played to completion.
func (a *Announcement) Played() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.played
}

// PlayOrder returns the part indexes in the order they were played.
func (a *Announcement) PlayOrder() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int, len(a.order))
	copy(out, a.order)
	return out
}

func (a *Announcement) markDrained() {
	a.mu.Lock()
	a.drained++
	a.mu.Unlock()
}

func (a *Announcement) markPlayed(index int) {
	a.mu.Lock()
	a.played++
	a.order = append(a.order, index)
	a.mu.Unlock()
}

// SpeakCompositeStatus generates every part concurrently and plays them as
// one announcement after all earlier requests. Exactly len(parts) items are
// drained before the returned announcement is done, whether or not their
// generation succeeded. If the pipeline is not ready the announcement is
// returned already done with nothing drained.
func (p *Pipeline) SpeakCompositeStatus(parts []string) *Announcement {
	ann := newAnnouncement(len(parts))

	p.stateMu.Lock()
	if st := p.sm.Current(); st != StateReady || len(parts) == 0 {
		p.stateMu.Unlock()
		if st != StateReady {
			p.logger.Warn("composite speak ignored", "state", st)
		}
		close(ann.done)
		return ann
	}
	epoch := p.epoch
	ticket := p.seq.issue()
	p.addPendingLocked()
	p.stateMu.Unlock()

	p.requests.Add(1)
	results := make(chan job, len(parts))

	go func() {
		var g errgroup.Group
		g.SetLimit(p.cfg.Workers)
		for i, text := range parts {
			g.Go(func() error {
				pcm, err := p.generateBounded(text)
				if err != nil {
					pcm = nil
				}
				results <- job{index: i, pcm: pcm}
				return nil
			})
		}
		_ = g.Wait()
	}()

	go p.consume(ann, ticket, epoch, results)
	return ann
}

// consume is the single consumer of a composite request.
func (p *Pipeline) consume(ann *Announcement, ticket, epoch uint64, results <-chan job) {
	defer p.donePending()
	defer close(ann.done)

	waited, turn := false, false
	emit := func(j job) {
		if len(j.pcm) == 0 {
			return
		}
		if !waited {
			waited = true
			turn = p.seq.wait(ticket)
		}
		if !turn {
			p.discarded.Add(1)
			p.metrics.LogDiscarded("superseded before playback")
			return
		}
		if p.play(epoch, j.pcm) {
			ann.markPlayed(j.index)
		}
	}

	pending := make(map[int]job)
	next := 0
	for range ann.parts {
		j := <-results
		ann.markDrained()

		if p.cfg.Ordering == OrderCompletion {
			emit(j)
			continue
		}
		pending[j.index] = j
		for {
			nj, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			emit(nj)
		}
	}
	p.seq.finish(ticket)
}

// StatusReporter produces the parts of a status announcement.
type StatusReporter interface {
	Parts(ctx context.Context) []string
}

// SpeakStatus announces the parts produced by reporter.
func (p *Pipeline) SpeakStatus(ctx context.Context, reporter StatusReporter) *Announcement {
	return p.SpeakCompositeStatus(reporter.Parts(ctx))
}
