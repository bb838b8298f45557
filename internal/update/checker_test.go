package update

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "upcheck/internal/errors"
)

// fakeFetcher returns queued results, optionally blocking until released.
type fakeFetcher struct {
	mu      sync.Mutex
	results []fakeResult
	gate    chan struct{}
	calls   atomic.Int32
}

type fakeResult struct {
	desc *Descriptor
	err  error
}

func (f *fakeFetcher) Fetch(ctx context.Context, ch Channel) (*Descriptor, error) {
	f.calls.Add(1)
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, apperrors.New(apperrors.CodeTransport, "canceled", ctx.Err())
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return nil, errors.New("no result queued")
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r.desc, r.err
}

func (f *fakeFetcher) push(desc *Descriptor, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, fakeResult{desc: desc, err: err})
}

func mustDescriptor(t *testing.T, ch ChannelID, version string) *Descriptor {
	t.Helper()
	d, err := NewDescriptor(DescriptorSpec{
		Channel:     ch,
		Version:     version,
		DownloadURL: "https://example.com/CCL-" + version + ".jar",
		ContentHash: testHash,
	})
	if err != nil {
		t.Fatalf("NewDescriptor() error: %v", err)
	}
	return d
}

func newTestChecker(t *testing.T, f Fetcher, running Running, opts ...CheckerOption) *Checker {
	t.Helper()
	reg, err := NewRegistry(ChannelGitHub, DefaultChannels()...)
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	c := NewChecker(reg, map[Family]Fetcher{
		FamilyGitHub: f,
		FamilyMirror: f,
		FamilyIndex:  f,
	}, running, opts...)
	t.Cleanup(c.Close)
	return c
}

func waitIdle(t *testing.T, c *Checker) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := c.WaitIdle(ctx)
	if err != nil {
		t.Fatalf("WaitIdle() error: %v", err)
	}
	return s
}

func TestCheckerInitialState(t *testing.T) {
	c := newTestChecker(t, &fakeFetcher{}, Running{Version: "1.0.0", Channel: ChannelGitHub})

	s := c.Snapshot()
	if s.Latest != nil || s.Checking || s.Outdated || s.LastError != nil {
		t.Errorf("initial state = %+v, want zero", s)
	}
	if s.Channel != ChannelGitHub {
		t.Errorf("Channel = %q, want %q", s.Channel, ChannelGitHub)
	}
}

func TestCheckerRequestCheckSingleFlight(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	f.push(mustDescriptor(t, ChannelGitHub, "2.0.0"), nil)
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	if !c.RequestCheck(ChannelGitHub) {
		t.Fatal("first RequestCheck() = false, want true")
	}
	if c.RequestCheck(ChannelGitHub) {
		t.Error("second RequestCheck() = true while a check is in flight")
	}
	if c.RequestActiveCheck() {
		t.Error("RequestActiveCheck() = true while a check is in flight")
	}
	if !c.IsChecking() {
		t.Error("IsChecking() = false during a check")
	}

	close(f.gate)
	s := waitIdle(t, c)

	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
	if s.Latest == nil || s.Latest.Version != "2.0.0" {
		t.Fatalf("Latest = %v, want 2.0.0", s.Latest)
	}
	if !c.IsOutdated() {
		t.Error("IsOutdated() = false, want true for 1.0.0 -> 2.0.0")
	}
	if c.LatestKnown() != s.Latest {
		t.Error("LatestKnown() differs from snapshot")
	}
}

func TestCheckerConcurrentRequests(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	f.push(mustDescriptor(t, ChannelGitHub, "2.0.0"), nil)
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	var started atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if c.RequestCheck(ChannelGitHub) {
				started.Add(1)
			}
		}()
	}
	wg.Wait()
	close(f.gate)
	waitIdle(t, c)

	if n := started.Load(); n != 1 {
		t.Errorf("accepted requests = %d, want 1", n)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("fetch calls = %d, want 1", n)
	}
}

func TestCheckerFailureKeepsLatest(t *testing.T) {
	f := &fakeFetcher{}
	first := mustDescriptor(t, ChannelGitHub, "1.5.0")
	f.push(first, nil)
	f.push(nil, apperrors.New(apperrors.CodeAssetNotFound, "no .jar asset in release", nil))
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	c.RequestCheck(ChannelGitHub)
	waitIdle(t, c)

	c.RequestCheck(ChannelGitHub)
	s := waitIdle(t, c)

	if c.LatestKnown() != first {
		t.Errorf("LatestKnown() = %v, want %v", c.LatestKnown(), first)
	}
	if !apperrors.IsCode(s.LastError, apperrors.CodeAssetNotFound) {
		t.Errorf("LastError = %v, want asset_not_found", s.LastError)
	}
	if !s.Outdated {
		t.Error("Outdated should still reflect the retained descriptor")
	}
	if s.Checking {
		t.Error("Checking should be false after a failed check")
	}
}

func TestCheckerNilDescriptorKeepsLatest(t *testing.T) {
	f := &fakeFetcher{}
	first := mustDescriptor(t, ChannelGitHub, "1.5.0")
	f.push(first, nil)
	f.push(nil, nil)
	rec := &memRecorder{}
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub}, WithRecorder(rec))

	c.RequestCheck(ChannelGitHub)
	waitIdle(t, c)
	c.RequestCheck(ChannelGitHub)
	s := waitIdle(t, c)

	if s.Latest != first {
		t.Errorf("Latest = %v, want %v", s.Latest, first)
	}
	if !apperrors.IsCode(s.LastError, apperrors.CodeSchema) {
		t.Errorf("LastError = %v, want schema", s.LastError)
	}
	if !s.Outdated {
		t.Error("Outdated should still reflect the retained descriptor")
	}
}

func TestCheckerReportWithoutDescriptor(t *testing.T) {
	rec := &memRecorder{}
	c := newTestChecker(t, &fakeFetcher{}, Running{Version: "1.0.0", Channel: ChannelGitHub}, WithRecorder(rec))

	c.report(Attempt{Channel: ChannelGitHub, Running: Running{Version: "1.0.0"}})

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.attempts) != 1 {
		t.Fatalf("recorded %d attempts, want 1", len(rec.attempts))
	}
}

func TestCheckerUnknownChannel(t *testing.T) {
	f := &fakeFetcher{}
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	if !c.RequestCheck("nightly") {
		t.Fatal("RequestCheck() = false, want true")
	}
	s := waitIdle(t, c)

	if !apperrors.IsCode(s.LastError, apperrors.CodeConfigurationError) {
		t.Errorf("LastError = %v, want configuration_error", s.LastError)
	}
	if n := f.calls.Load(); n != 0 {
		t.Errorf("fetch calls = %d, want 0", n)
	}
}

func TestCheckerSubscribe(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	f.push(mustDescriptor(t, ChannelGitee, "1.0.0"), nil)
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	updates, cancel := c.Subscribe()
	defer cancel()

	c.RequestCheck(ChannelGitee)
	select {
	case s := <-updates:
		if !s.Checking || s.Channel != ChannelGitee {
			t.Errorf("first update = %+v, want checking on gitee", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for checking update")
	}

	close(f.gate)
	select {
	case s := <-updates:
		if s.Checking {
			t.Errorf("second update still checking")
		}
		if s.Outdated {
			t.Error("Outdated = true for equal versions on another channel")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final update")
	}
}

func TestCheckerSubscribeLatestWins(t *testing.T) {
	f := &fakeFetcher{}
	f.push(mustDescriptor(t, ChannelGitHub, "1.1.0"), nil)
	f.push(mustDescriptor(t, ChannelGitHub, "1.2.0"), nil)
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	updates, cancel := c.Subscribe()
	defer cancel()

	c.RequestCheck(ChannelGitHub)
	waitIdle(t, c)
	c.RequestCheck(ChannelGitHub)
	waitIdle(t, c)

	s := <-updates
	if s.Latest == nil || s.Latest.Version != "1.2.0" {
		t.Errorf("pending update = %v, want newest snapshot 1.2.0", s.Latest)
	}
	select {
	case extra := <-updates:
		t.Errorf("unexpected extra update %+v", extra)
	default:
	}
}

func TestCheckerUnsubscribeClosesChannel(t *testing.T) {
	c := newTestChecker(t, &fakeFetcher{}, Running{Version: "1.0.0", Channel: ChannelGitHub})

	updates, cancel := c.Subscribe()
	cancel()
	cancel()

	if _, ok := <-updates; ok {
		t.Error("channel should be closed after unsubscribe")
	}
}

func TestCheckerWaitIdleContext(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	f.push(mustDescriptor(t, ChannelGitHub, "2.0.0"), nil)
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	c.RequestCheck(ChannelGitHub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	s, err := c.WaitIdle(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitIdle() error = %v, want deadline exceeded", err)
	}
	if !s.Checking {
		t.Error("snapshot should still be checking")
	}

	close(f.gate)
	waitIdle(t, c)
}

func TestCheckerCloseCancelsFetch(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub})

	c.RequestCheck(ChannelGitHub)
	c.Close()

	s := c.Snapshot()
	if s.Checking {
		t.Error("Checking should be false after Close")
	}
	if !apperrors.IsCode(s.LastError, apperrors.CodeTransport) {
		t.Errorf("LastError = %v, want transport", s.LastError)
	}
}

type memRecorder struct {
	mu       sync.Mutex
	attempts []Attempt
}

func (r *memRecorder) RecordCheck(ctx context.Context, a Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, a)
	return nil
}

func TestCheckerRecorder(t *testing.T) {
	f := &fakeFetcher{}
	f.push(mustDescriptor(t, ChannelGitHub, "2.0.0"), nil)
	f.push(nil, apperrors.New(apperrors.CodeProtocol, "status 500", nil))
	rec := &memRecorder{}
	c := newTestChecker(t, f, Running{Version: "1.0.0", Channel: ChannelGitHub},
		WithRecorder(rec), WithCheckerClock(fixedClock))

	c.RequestCheck(ChannelGitHub)
	waitIdle(t, c)
	c.RequestCheck(ChannelGitHub)
	s := waitIdle(t, c)

	if !s.LastCheckedAt.Equal(fixedNow) {
		t.Errorf("LastCheckedAt = %v, want %v", s.LastCheckedAt, fixedNow)
	}

	// The recorder runs after publication, so allow it to catch up.
	deadline := time.Now().Add(5 * time.Second)
	for {
		rec.mu.Lock()
		n := len(rec.attempts)
		rec.mu.Unlock()
		if n == 2 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.attempts) != 2 {
		t.Fatalf("recorded %d attempts, want 2", len(rec.attempts))
	}
	if rec.attempts[0].Err != nil || !rec.attempts[0].Outdated {
		t.Errorf("first attempt = %+v, want success and outdated", rec.attempts[0])
	}
	if !apperrors.IsCode(rec.attempts[1].Err, apperrors.CodeProtocol) {
		t.Errorf("second attempt error = %v, want protocol", rec.attempts[1].Err)
	}
	if rec.attempts[1].Latest != nil {
		t.Error("failed attempt should not carry a descriptor")
	}
}
