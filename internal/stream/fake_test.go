package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"hls-live/internal/session"
	"hls-live/internal/transcoder"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeTranscoder stands in for an ffmpeg process. Stop reports an exit from
// its own goroutine, like the real process does. When hold is set, the exit
// is delayed until release is called.
type fakeTranscoder struct {
	opts  transcoder.Options
	hooks transcoder.Hooks

	mu            sync.Mutex
	stopped       bool
	othersRunning int

	hold    chan struct{}
	done    chan struct{}
	exitOne sync.Once
}

func (f *fakeTranscoder) Stop() {
	f.mu.Lock()
	already := f.stopped
	f.stopped = true
	f.mu.Unlock()
	if !already {
		go f.exit(transcoder.ExitStatus{Started: true, Code: -1, Err: errors.New("signal: terminated")})
	}
}

func (f *fakeTranscoder) Done() <-chan struct{} { return f.done }

func (f *fakeTranscoder) Usage() (transcoder.Usage, error) {
	return transcoder.Usage{PID: 4242, CPUPercent: 12.5, RSSBytes: 1 << 20}, nil
}

func (f *fakeTranscoder) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// exit delivers OnExit once and closes Done.
func (f *fakeTranscoder) exit(st transcoder.ExitStatus) {
	f.exitOne.Do(func() {
		if f.hold != nil {
			<-f.hold
		}
		if f.hooks.OnExit != nil {
			f.hooks.OnExit(st)
		}
		close(f.done)
	})
}

func (f *fakeTranscoder) release() {
	close(f.hold)
}

type fakeLauncher struct {
	mu       sync.Mutex
	launched []*fakeTranscoder
	err      error
	hold     bool
}

func (l *fakeLauncher) Launch(_ context.Context, opts transcoder.Options, hooks transcoder.Hooks) (Transcoder, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	f := &fakeTranscoder{opts: opts, hooks: hooks, done: make(chan struct{})}
	if l.hold {
		f.hold = make(chan struct{})
	}
	for _, prev := range l.launched {
		if !prev.Stopped() {
			f.othersRunning++
		}
	}
	l.launched = append(l.launched, f)
	return f, nil
}

func (l *fakeLauncher) All() []*fakeTranscoder {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*fakeTranscoder(nil), l.launched...)
}

func (l *fakeLauncher) Last(t *testing.T) *fakeTranscoder {
	t.Helper()
	all := l.All()
	if len(all) == 0 {
		t.Fatal("no transcoder launched")
	}
	return all[len(all)-1]
}

type fakeKicker struct {
	mu     sync.Mutex
	kicked []session.ID
	err    error
}

func (k *fakeKicker) Kick(_ context.Context, id session.ID) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.kicked = append(k.kicked, id)
	return k.err
}

func (k *fakeKicker) Kicked() []session.ID {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]session.ID(nil), k.kicked...)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
