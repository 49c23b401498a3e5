// Package transcoder supervises the ffmpeg process that turns the ingest
// stream into an HLS playlist and segments.
package transcoder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

const (
	// DefaultBinPath is used when no ffmpeg path is configured.
	DefaultBinPath = "ffmpeg"

	// DefaultKillTimeout is how long a stopped process may take to exit after
	// SIGTERM before it is killed.
	DefaultKillTimeout = 5 * time.Second

	tailLines   = 20
	maxLineSize = 1024 * 1024
)

// ExitStatus describes how a process ended. Started is false when ffmpeg
// could not be spawned at all, in which case Err holds the reason.
type ExitStatus struct {
	Started   bool
	Code      int
	Err       error
	StartedAt time.Time
	EndedAt   time.Time
	Tail      []string
}

// Hooks receive the process's output and termination. They are called from
// the process's own goroutines, never from Start.
type Hooks struct {
	// OnLine receives every stderr line.
	OnLine func(line string)
	// OnPlaylist receives the parsed playlist after each rewrite.
	OnPlaylist func(info PlaylistInfo)
	// OnExit is called exactly once.
	OnExit func(status ExitStatus)
}

// Spawner starts ffmpeg processes.
type Spawner struct {
	BinPath     string
	KillTimeout time.Duration
	Logger      *slog.Logger
}

// NewSpawner returns a Spawner for the ffmpeg binary at binPath.
func NewSpawner(binPath string, killTimeout time.Duration, log *slog.Logger) *Spawner {
	if binPath == "" {
		binPath = DefaultBinPath
	}
	if killTimeout <= 0 {
		killTimeout = DefaultKillTimeout
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Spawner{BinPath: binPath, KillTimeout: killTimeout, Logger: log}
}

// Process is one supervised ffmpeg invocation.
type Process struct {
	bin         string
	args        []string
	opts        Options
	killTimeout time.Duration
	log         *slog.Logger
	ring        *LineRing

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	pid int
}

// Start validates opts and launches ffmpeg in the background. It returns
// before the process is running; spawn failures are reported through
// hooks.OnExit. ctx bounds the process lifetime.
func (s *Spawner) Start(ctx context.Context, opts Options, hooks Hooks) (*Process, error) {
	args, err := BuildArgs(opts)
	if err != nil {
		return nil, err
	}

	pctx, cancel := context.WithCancel(ctx)
	p := &Process{
		bin:         s.BinPath,
		args:        args,
		opts:        opts.withDefaults(),
		killTimeout: s.KillTimeout,
		log:         s.Logger.With(slog.String("component", "ffmpeg")),
		ring:        NewLineRing(256),
		ctx:         pctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
	go p.run(hooks)
	return p, nil
}

// Stop asks ffmpeg to terminate. It does not wait for the exit; Done is
// closed once the process is gone. Calling Stop more than once is harmless.
func (p *Process) Stop() {
	p.cancel()
}

// Done is closed after the process has exited and OnExit has returned.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// PID returns the operating system process id, or 0 before the process started.
func (p *Process) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

// OutputDir is the directory the process writes its playlist into.
func (p *Process) OutputDir() string {
	return p.opts.OutputDir
}

// LastLines returns up to n of the latest stderr lines.
func (p *Process) LastLines(n int) []string {
	return p.ring.LastN(n)
}

// Usage samples CPU and memory use of the running process.
func (p *Process) Usage() (Usage, error) {
	pid := p.PID()
	if pid == 0 {
		return Usage{}, errors.New("process not running")
	}
	return sampleUsage(pid)
}

func (p *Process) run(hooks Hooks) {
	defer close(p.done)
	defer p.cancel()

	status := p.exec(hooks)
	status.EndedAt = time.Now()
	status.Tail = p.ring.LastN(tailLines)

	if hooks.OnExit != nil {
		hooks.OnExit(status)
	}
}

func (p *Process) exec(hooks Hooks) ExitStatus {
	if err := os.MkdirAll(p.opts.OutputDir, 0o755); err != nil {
		return ExitStatus{Err: fmt.Errorf("create output directory: %w", err)}
	}

	cmd := exec.CommandContext(p.ctx, p.bin, p.args...) // #nosec G204 -- arguments are built by BuildArgs
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	cmd.WaitDelay = p.killTimeout

	// exec copies stderr into pw from its own goroutine and Wait waits for
	// that copy, bounded by WaitDelay.
	pr, pw := io.Pipe()
	cmd.Stderr = pw
	scanned := make(chan struct{})
	go func() {
		defer close(scanned)
		p.scan(pr, hooks.OnLine)
	}()

	p.log.Debug("starting ffmpeg", slog.String("command", cmd.String()))
	if err := cmd.Start(); err != nil {
		_ = pw.Close()
		<-scanned
		return ExitStatus{Err: fmt.Errorf("start %s: %w", p.bin, err)}
	}
	started := time.Now()

	p.mu.Lock()
	p.pid = cmd.Process.Pid
	p.mu.Unlock()

	watched := make(chan struct{})
	go func() {
		defer close(watched)
		if hooks.OnPlaylist == nil {
			return
		}
		if err := WatchPlaylist(p.ctx, p.log, p.opts.OutputDir, hooks.OnPlaylist); err != nil {
			p.log.Warn("playlist watch failed", slog.String("error", err.Error()))
		}
	}()

	waitErr := cmd.Wait()
	_ = pw.Close()
	<-scanned
	p.cancel()
	<-watched

	p.mu.Lock()
	p.pid = 0
	p.mu.Unlock()

	status := ExitStatus{Started: true, StartedAt: started}
	if waitErr != nil {
		status.Err = waitErr
		status.Code = -1
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			status.Code = exitErr.ExitCode()
		}
	}
	return status
}

// scan forwards stderr line by line. Whatever cannot be scanned is drained so
// that ffmpeg never blocks on a full pipe.
func (p *Process) scan(r io.Reader, onLine func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	scanner.Split(scanLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		p.ring.Add(line)
		if onLine != nil {
			onLine(line)
		}
	}
	if err := scanner.Err(); err != nil {
		p.log.Debug("stderr scan stopped", slog.String("error", err.Error()))
	}
	_, _ = io.Copy(io.Discard, r)
}
