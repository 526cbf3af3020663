package replication

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mohammed-shakir/osm-tile-cache/internal/core/observability"
	mylog "github.com/mohammed-shakir/osm-tile-cache/internal/logger"
	"github.com/mohammed-shakir/osm-tile-cache/internal/mercator"
	"github.com/mohammed-shakir/osm-tile-cache/internal/osmchange"
)

// ErrNotPublished marks a diff or state the feed has not produced yet.
var ErrNotPublished = errors.New("replication: sequence not published yet")

// Source is the replication feed.
type Source interface {
	Diff(ctx context.Context, seq int64) (io.ReadCloser, error)
	State(ctx context.Context, seq int64) (State, error)
}

// Batch is what a cycle invalidated, handed to the notifier after APPLY.
type Batch struct {
	Sequence int64
	Mode     string
	Tiles    []mercator.Tile
}

type Notifier interface {
	Notify(ctx context.Context, b Batch) error
}

type Config struct {
	Zoom int
	// Interval is the feed's publication cadence; Margin is added so the next diff
	// is reliably there when the loop wakes up.
	Interval       time.Duration
	Margin         time.Duration
	FetchBackoff   time.Duration
	AdvanceBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		Zoom:           17,
		Interval:       time.Minute,
		Margin:         13 * time.Second,
		FetchBackoff:   15 * time.Second,
		AdvanceBackoff: 15 * time.Second,
	}
}

const (
	OutcomeApplied      = "applied"
	OutcomeFetchError   = "fetch_error"
	OutcomeDecodeError  = "decode_error"
	OutcomeApplyError   = "apply_error"
	OutcomeAdvanceError = "advance_error"
)

// CycleResult describes one pass through the state machine and how long to wait
// before the next one.
type CycleResult struct {
	Sequence int64
	Outcome  string
	Tiles    int
	Failed   int
	Skipped  int
	Sleep    time.Duration
	Err      error
}

type Status struct {
	Ready       bool      `json:"ready"`
	Sequence    int64     `json:"sequence"`
	Timestamp   time.Time `json:"timestamp"`
	LastOutcome string    `json:"last_outcome,omitempty"`
	LastCycle   time.Time `json:"last_cycle"`
	Mode        string    `json:"mode"`
}

type Loop struct {
	logger   *slog.Logger
	merc     mercator.Mercator
	cfg      Config
	source   Source
	cursor   Cursor
	applier  Applier
	notifier Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	status atomic.Pointer[Status]
}

type Option func(*Loop)

func WithNotifier(n Notifier) Option {
	return func(l *Loop) { l.notifier = n }
}

// WithClock replaces the wall clock and the sleep used between cycles.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(l *Loop) {
		if now != nil {
			l.now = now
		}
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

func New(logger *slog.Logger, m mercator.Mercator, src Source, cur Cursor, app Applier, cfg Config, opts ...Option) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Margin < 0 {
		cfg.Margin = def.Margin
	}
	if cfg.FetchBackoff <= 0 {
		cfg.FetchBackoff = def.FetchBackoff
	}
	if cfg.AdvanceBackoff <= 0 {
		cfg.AdvanceBackoff = def.AdvanceBackoff
	}
	l := &Loop{
		logger:  logger,
		merc:    m,
		cfg:     cfg,
		source:  src,
		cursor:  cur,
		applier: app,
		now:     time.Now,
		sleep:   sleepCtx,
	}
	for _, o := range opts {
		o(l)
	}
	l.status.Store(&Status{Mode: app.Mode()})
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run cycles until ctx is cancelled, which is a clean stop. A cursor that cannot be
// loaded stops the loop with an error wrapping ErrInvalidState.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("replication loop starting", "zoom", l.cfg.Zoom, "mode", l.applier.Mode())
	for {
		res, err := l.Cycle(ctx)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("replication loop stopped")
				return nil
			}
			return err
		}
		if err := l.sleep(ctx, res.Sleep); err != nil {
			l.logger.Info("replication loop stopped")
			return nil
		}
	}
}

// Cycle runs LOAD_STATE through ADVANCE_STATE once. The returned error is either
// fatal (invalid cursor) or ctx's; recoverable failures are reported in the result
// with a backoff and leave the cursor untouched.
func (l *Loop) Cycle(ctx context.Context) (CycleResult, error) {
	start := l.now()

	// LOAD_STATE
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}
	cur, err := l.cursor.Load()
	if err != nil {
		return CycleResult{}, fmt.Errorf("load cursor: %w", err)
	}
	l.markLoaded(cur)
	seq := cur.SequenceNumber + 1
	log := l.logger.With("seq", seq)
	ctx = mylog.WithSequence(ctx, seq)

	// FETCH_DIFF
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}
	rc, err := l.source.Diff(ctx, seq)
	if err != nil {
		if ctx.Err() != nil {
			return CycleResult{}, ctx.Err()
		}
		if errors.Is(err, ErrNotPublished) {
			log.Debug("diff not published yet")
		} else {
			log.Warn("fetch diff failed", "err", err)
		}
		return l.finish(start, CycleResult{Sequence: seq, Outcome: OutcomeFetchError, Sleep: l.cfg.FetchBackoff, Err: err}), nil
	}
	defer func() { _ = rc.Close() }()

	// DECODE + COMPUTE_TILESET
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}
	set := NewTileSet(l.merc, l.cfg.Zoom)
	for tp, err := range osmchange.Decode(rc) {
		if err != nil {
			if ctx.Err() != nil {
				return CycleResult{}, ctx.Err()
			}
			log.Warn("decode diff failed", "err", err)
			return l.finish(start, CycleResult{Sequence: seq, Outcome: OutcomeDecodeError, Sleep: l.cfg.FetchBackoff, Err: err}), nil
		}
		if err := set.Add(tp.Point); err != nil {
			observability.IncSkippedPoint("out_of_domain")
			log.Debug("point skipped", "entity", tp.EntityType, "id", tp.EntityID, "err", err)
		}
	}
	tiles := set.Sorted()

	// APPLY
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}
	rep, err := l.applier.Apply(ctx, tiles)
	observability.AddReplicationTiles(l.applier.Mode(), rep.Applied, len(rep.Failed))
	if err != nil {
		if ctx.Err() != nil {
			return CycleResult{}, ctx.Err()
		}
		log.Warn("apply failed", "tiles", len(tiles), "err", err)
		return l.finish(start, CycleResult{Sequence: seq, Outcome: OutcomeApplyError, Tiles: len(tiles), Failed: len(rep.Failed), Sleep: l.cfg.FetchBackoff, Err: err}), nil
	}
	for key, ferr := range rep.Failed {
		log.Warn("tile left stale", "key", key, "err", ferr)
	}
	if l.notifier != nil && len(tiles) > 0 {
		if err := l.notifier.Notify(ctx, Batch{Sequence: seq, Mode: l.applier.Mode(), Tiles: tiles}); err != nil {
			log.Warn("notify failed", "tiles", len(tiles), "err", err)
		}
	}

	// ADVANCE_STATE
	if err := ctx.Err(); err != nil {
		return CycleResult{}, err
	}
	res := CycleResult{Sequence: seq, Tiles: len(tiles), Failed: len(rep.Failed), Skipped: set.Skipped()}
	next, err := l.source.State(ctx, seq)
	if err == nil && next.SequenceNumber != seq {
		err = fmt.Errorf("state file reports sequence %d", next.SequenceNumber)
	}
	if err == nil {
		err = l.cursor.Save(next)
	}
	if err != nil {
		if ctx.Err() != nil {
			return CycleResult{}, ctx.Err()
		}
		log.Warn("advance state failed, cursor unchanged", "err", err)
		res.Outcome, res.Sleep, res.Err = OutcomeAdvanceError, l.cfg.AdvanceBackoff, err
		return l.finish(start, res), nil
	}
	l.markLoaded(next)

	// SLEEP target
	wake := next.Timestamp.Add(l.cfg.Interval + l.cfg.Margin)
	res.Outcome = OutcomeApplied
	res.Sleep = max(wake.Sub(l.now()), 0)
	log.Info("diff applied",
		"tiles", res.Tiles, "failed", res.Failed, "skipped", res.Skipped,
		"mode", l.applier.Mode(), "state_ts", next.Timestamp, "sleep", res.Sleep)
	return l.finish(start, res), nil
}

func (l *Loop) finish(start time.Time, res CycleResult) CycleResult {
	observability.ObserveReplicationCycle(res.Outcome, l.now().Sub(start))
	st := *l.status.Load()
	st.LastOutcome = res.Outcome
	st.LastCycle = l.now()
	l.status.Store(&st)
	return res
}

func (l *Loop) markLoaded(s State) {
	st := *l.status.Load()
	st.Ready = true
	st.Sequence = s.SequenceNumber
	st.Timestamp = s.Timestamp
	l.status.Store(&st)
	observability.SetReplicationState(s.SequenceNumber, s.Timestamp)
}

func (l *Loop) Status() Status {
	return *l.status.Load()
}

// Readiness reports ready once a cursor has been loaded.
func (l *Loop) Readiness() (bool, []int32) {
	return l.Status().Ready, nil
}
