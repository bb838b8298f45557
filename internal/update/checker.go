package update

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	apperrors "upcheck/internal/errors"
)

// State is an immutable snapshot of the checker. Every change publishes a new
// State; readers never observe a partially updated one.
type State struct {
	Latest        *Descriptor
	Checking      bool
	Channel       ChannelID
	Outdated      bool
	LastError     error
	LastCheckedAt time.Time
}

// Attempt summarizes one finished check for a Recorder.
type Attempt struct {
	Channel    ChannelID
	Running    Running
	StartedAt  time.Time
	FinishedAt time.Time
	Latest     *Descriptor
	Outdated   bool
	Err        error
}

// Recorder persists finished check attempts.
type Recorder interface {
	RecordCheck(ctx context.Context, a Attempt) error
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithLogger sets the logger used for check outcomes.
func WithLogger(logger zerolog.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithRecorder stores every finished attempt in r.
func WithRecorder(r Recorder) CheckerOption {
	return func(c *Checker) {
		c.recorder = r
	}
}

// WithCheckerClock overrides the clock used for LastCheckedAt.
func WithCheckerClock(now func() time.Time) CheckerOption {
	return func(c *Checker) {
		c.now = now
	}
}

// Checker coordinates asynchronous release checks. At most one check runs at a
// time; results are published as State snapshots.
type Checker struct {
	registry *Registry
	fetchers map[Family]Fetcher
	running  Running
	logger   zerolog.Logger
	recorder Recorder
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// mu serializes state writers and guards subs.
	mu      sync.Mutex
	state   atomic.Pointer[State]
	subs    map[int]chan State
	nextSub int
}

// NewChecker creates a checker for the channels in reg, using one fetcher per family.
func NewChecker(reg *Registry, fetchers map[Family]Fetcher, running Running, opts ...CheckerOption) *Checker {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Checker{
		registry: reg,
		fetchers: fetchers,
		running:  running,
		logger:   zerolog.Nop(),
		now:      time.Now,
		ctx:      ctx,
		cancel:   cancel,
		subs:     make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Store(&State{Channel: reg.Active().ID})
	return c
}

// DefaultFetchers returns a fetcher for every family sharing opts.
func DefaultFetchers(opts ...FetcherOption) map[Family]Fetcher {
	return map[Family]Fetcher{
		FamilyGitHub: NewGitHubFetcher(opts...),
		FamilyMirror: NewMirrorFetcher(opts...),
		FamilyIndex:  NewIndexFetcher(opts...),
	}
}

// Running returns the build the checker compares against.
func (c *Checker) Running() Running {
	return c.running
}

// Registry returns the channel registry.
func (c *Checker) Registry() *Registry {
	return c.registry
}

// RequestCheck starts a check of channel id in the background. It returns
// false without doing anything when a check is already running.
func (c *Checker) RequestCheck(id ChannelID) bool {
	c.mu.Lock()
	cur := c.state.Load()
	if cur.Checking {
		c.mu.Unlock()
		c.logger.Debug().Str("channel", string(id)).Msg("check already in progress")
		return false
	}
	next := *cur
	next.Checking = true
	next.Channel = id
	c.publishLocked(&next)
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(id)
	return true
}

// RequestActiveCheck checks the registry's active channel.
func (c *Checker) RequestActiveCheck() bool {
	return c.RequestCheck(c.registry.Active().ID)
}

func (c *Checker) run(id ChannelID) {
	defer c.wg.Done()

	started := c.now()
	desc, err := c.fetch(c.ctx, id)
	if err == nil && desc == nil {
		err = apperrors.New(apperrors.CodeSchema,
			fmt.Sprintf("fetcher for channel %q returned no descriptor", id), nil)
	}

	c.mu.Lock()
	prev := c.state.Load()
	next := State{
		Latest:        prev.Latest,
		Channel:       id,
		LastError:     err,
		LastCheckedAt: c.now(),
	}
	if err == nil {
		next.Latest = desc
	}
	next.Outdated = Outdated(next.Latest, c.running)
	c.publishLocked(&next)
	c.mu.Unlock()

	c.report(Attempt{
		Channel:    id,
		Running:    c.running,
		StartedAt:  started,
		FinishedAt: next.LastCheckedAt,
		Latest:     desc,
		Outdated:   next.Outdated,
		Err:        err,
	})
}

func (c *Checker) fetch(ctx context.Context, id ChannelID) (*Descriptor, error) {
	ch, ok := c.registry.Lookup(id)
	if !ok {
		return nil, apperrors.New(apperrors.CodeConfigurationError,
			fmt.Sprintf("unknown channel %q", id), nil)
	}
	f, ok := c.fetchers[ch.Family]
	if !ok {
		return nil, apperrors.New(apperrors.CodeConfigurationError,
			fmt.Sprintf("no fetcher for family %q", ch.Family), nil)
	}
	return f.Fetch(ctx, ch)
}

func (c *Checker) report(a Attempt) {
	if a.Err != nil || a.Latest == nil {
		c.logger.Warn().
			Err(a.Err).
			Str("channel", string(a.Channel)).
			Str("code", string(apperrors.CodeOf(a.Err))).
			Dur("elapsed", a.FinishedAt.Sub(a.StartedAt)).
			Msg("update check failed")
	} else {
		c.logger.Info().
			Str("channel", string(a.Channel)).
			Str("running", a.Running.Version).
			Str("latest", a.Latest.Version).
			Bool("outdated", a.Outdated).
			Bool("hash", a.Latest.ContentHash != nil).
			Dur("elapsed", a.FinishedAt.Sub(a.StartedAt)).
			Msg("update check finished")
	}

	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordCheck(context.Background(), a); err != nil {
		c.logger.Warn().Err(err).Msg("record update check")
	}
}

// publishLocked stores s and notifies subscribers. c.mu must be held.
func (c *Checker) publishLocked(s *State) {
	c.state.Store(s)
	for _, ch := range c.subs {
		select {
		case ch <- *s:
		default:
			// Drop the stale snapshot so the subscriber sees the newest one.
			select {
			case <-ch:
			default:
			}
			ch <- *s
		}
	}
}

// Snapshot returns the current state.
func (c *Checker) Snapshot() State {
	return *c.state.Load()
}

// LatestKnown returns the last descriptor fetched successfully, or nil.
func (c *Checker) LatestKnown() *Descriptor {
	return c.state.Load().Latest
}

// IsChecking reports whether a check is in flight.
func (c *Checker) IsChecking() bool {
	return c.state.Load().Checking
}

// IsOutdated reports whether LatestKnown is newer than the running build.
func (c *Checker) IsOutdated() bool {
	return c.state.Load().Outdated
}

// Subscribe returns a channel that receives every published snapshot. Only the
// newest pending snapshot is kept for a slow reader. The returned func
// unsubscribes and closes the channel.
func (c *Checker) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

// WaitIdle blocks until no check is running and returns that snapshot.
func (c *Checker) WaitIdle(ctx context.Context) (State, error) {
	updates, cancel := c.Subscribe()
	defer cancel()

	if s := c.Snapshot(); !s.Checking {
		return s, nil
	}
	for {
		select {
		case s := <-updates:
			if !s.Checking {
				return s, nil
			}
		case <-ctx.Done():
			return c.Snapshot(), ctx.Err()
		}
	}
}

// Close cancels an in-flight check and waits for it to publish its result.
func (c *Checker) Close() {
	c.cancel()
	c.wg.Wait()
}
