// Package stream drives the lifecycle of the live stream: it reacts to the
// ingest server's hooks, supervises the transcoder and keeps the state the
// REST layer reports.
package stream

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"hls-live/internal/media"
	"hls-live/internal/platform/metrics"
	"hls-live/internal/session"
	"hls-live/internal/transcoder"
)

const kickTimeout = 10 * time.Second

// ErrNoTranscoder is returned by TranscoderUsage when no transcoder is running.
var ErrNoTranscoder = errors.New("transcoder not running")

// Config holds what the controller needs to authorize publishers and place
// transcoder output.
type Config struct {
	StreamKey      string
	IngestHost     string
	IngestPort     int
	OutputRoot     string
	SegmentSeconds int
	ListSize       int
	AudioBitrate   string
}

// IngestURL is the URL the transcoder pulls a published path from.
func (c Config) IngestURL(p string) string {
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "rtmp://" + net.JoinHostPort(c.IngestHost, strconv.Itoa(c.IngestPort)) + p
}

// OutputDir is where the playlist and segments for key are written.
func (c Config) OutputDir(key string) string {
	return filepath.Join(c.OutputRoot, "live", key)
}

type running struct {
	gen       uint64
	sessionID session.ID
	dir       string
	handle    Transcoder
}

// Controller owns the session registry, the single transcoder and the live
// state. All of them are guarded by mu; transcoder callbacks re-enter
// through it and are dropped once their transcoder has been replaced.
type Controller struct {
	cfg      Config
	launcher Launcher
	kicker   Kicker
	log      *slog.Logger
	metrics  *metrics.Metrics

	now       func() time.Time
	removeAll func(string) error

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	mu       sync.Mutex
	sessions *session.Registry
	state    State
	tc       *running
	procs    map[uint64]Transcoder
	gen      uint64
	closed   bool
}

// New returns a Controller. kicker, log and m may be nil.
func New(cfg Config, launcher Launcher, kicker Kicker, log *slog.Logger, m *metrics.Metrics) *Controller {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		cfg:       cfg,
		launcher:  launcher,
		kicker:    kicker,
		log:       log.With(slog.String("component", "stream")),
		metrics:   m,
		now:       time.Now,
		removeAll: os.RemoveAll,
		ctx:       ctx,
		cancel:    cancel,
		sessions:  session.NewRegistry(),
		state:     State{Stats: media.DefaultStats()},
		procs:     make(map[uint64]Transcoder),
	}
}

// PrePublish authorizes a publisher by the stream key at the end of its path.
// A wrong key returns ErrUnauthorized and the ingest server is asked to drop
// the connection.
func (c *Controller) PrePublish(ctx context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.eventLogger(ev)
	if s, ok := c.sessions.Get(ev.SessionID); ok && !s.State.CanTransition(session.StateAuthorizing) {
		log.Warn("pre_publish out of order", slog.String("state", string(s.State)))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, session.StateAuthorizing)
	}
	if !c.authorized(ev.StreamKey()) {
		c.rejectLocked(ctx, ev, log)
		return ErrUnauthorized
	}

	if _, ok := c.sessions.Get(ev.SessionID); !ok {
		c.sessions.Add(newSession(ev))
	}
	if _, err := c.sessions.Transition(ev.SessionID, session.StateAuthorizing); err != nil {
		return err
	}
	c.syncGaugesLocked()
	log.Info("publish authorized")
	return nil
}

// PostPublish marks the session live and starts the transcoder for it,
// replacing any transcoder still running. Sessions that skipped PrePublish
// are authorized here.
func (c *Controller) PostPublish(ctx context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.eventLogger(ev)
	prev, ok := c.sessions.Get(ev.SessionID)
	if ok && !prev.State.CanTransition(session.StatePublishing) {
		log.Warn("post_publish out of order", slog.String("state", string(prev.State)))
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.State, session.StatePublishing)
	}
	if !ok || prev.State == session.StateIdle {
		if !c.authorized(ev.StreamKey()) {
			c.rejectLocked(ctx, ev, log)
			return ErrUnauthorized
		}
	}

	s := newSession(ev)
	s.State = session.StateIdle
	if ok {
		s.State = prev.State
	}
	s.StartTime = c.now()
	c.sessions.Add(s)
	s, err := c.sessions.Transition(s.ID, session.StatePublishing)
	if err != nil {
		return err
	}

	c.state.Stats = media.DefaultStats()
	c.state.Output = transcoder.PlaylistInfo{}
	c.deriveLocked()
	c.startTranscoderLocked(s, log)

	if c.metrics != nil {
		c.metrics.IncPublishes()
	}
	log.Info("stream live", slog.Time("start_time", s.StartTime))
	return nil
}

// DonePublish ends the session, stops its transcoder and removes its output
// in the background. Unknown sessions are ignored.
func (c *Controller) DonePublish(_ context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	log := c.eventLogger(ev)
	s, ok := c.sessions.Get(ev.SessionID)
	if !ok {
		log.Debug("done_publish for unknown session")
		return nil
	}
	if _, err := c.sessions.Transition(s.ID, session.StateEnded); err != nil {
		log.Debug("session already ended", slog.String("error", err.Error()))
	}
	c.sessions.Remove(s.ID)
	c.deriveLocked()

	var h Transcoder
	if c.tc != nil && c.tc.sessionID == s.ID {
		h = c.stopTranscoderLocked()
	}
	if s.State == session.StatePublishing {
		c.scheduleCleanupLocked(c.cfg.OutputDir(s.StreamKey), h)
		log.Info("stream ended", slog.Duration("duration", c.now().Sub(s.StartTime)))
	}
	return nil
}

// PrePlay counts a new viewer.
func (c *Controller) PrePlay(_ context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Viewers++
	c.syncGaugesLocked()
	c.eventLogger(ev).Debug("viewer joined", slog.Int("viewers", c.state.Viewers))
	return nil
}

// DonePlay counts a viewer leaving. The count never drops below zero.
func (c *Controller) DonePlay(_ context.Context, ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state.Viewers = max(0, c.state.Viewers-1)
	c.syncGaugesLocked()
	c.eventLogger(ev).Debug("viewer left", slog.Int("viewers", c.state.Viewers))
	return nil
}

// Stop ends every registered session: the ingest server is asked to drop
// each connection, the registry is cleared and the transcoder is told to
// stop. It does not wait for the transcoder to exit. While nothing is live
// it returns ErrNoActiveSession and changes nothing, even if publishers are
// still waiting for authorization.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	c.mu.Lock()
	if !c.state.IsLive {
		c.mu.Unlock()
		return StopResult{}, ErrNoActiveSession
	}

	all := c.sessions.Clear()
	h := c.stopTranscoderLocked()
	c.deriveLocked()

	dirs := make(map[string]struct{})
	for _, s := range all {
		if s.State != session.StatePublishing {
			continue
		}
		dir := c.cfg.OutputDir(s.StreamKey)
		if _, seen := dirs[dir]; seen {
			continue
		}
		dirs[dir] = struct{}{}
		c.scheduleCleanupLocked(dir, h)
	}
	res := StopResult{StoppedAt: c.now().UTC()}
	c.mu.Unlock()

	for _, s := range all {
		res.Sessions = append(res.Sessions, s.ID)
		if err := c.kick(ctx, s.ID); err != nil {
			res.KickFailures++
		}
	}
	c.log.Info("stream stopped",
		slog.Int("sessions", len(res.Sessions)),
		slog.Int("kick_failures", res.KickFailures))
	return res, nil
}

// State returns liveness, viewers and start time.
func (c *Controller) State() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.status()
}

// Stats returns the current media statistics, or ErrOffline while nothing is live.
func (c *Controller) Stats() (media.Stats, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.IsLive {
		return media.DefaultStats(), ErrOffline
	}
	return c.state.Stats, nil
}

// Sessions lists the registered sessions.
func (c *Controller) Sessions() []session.Session {
	return c.sessions.List()
}

// Snapshot returns a consistent copy of the whole state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := c.state.Output
	out.Segments = append([]transcoder.Segment(nil), out.Segments...)
	return Snapshot{
		Status:            c.state.status(),
		Stats:             c.state.Stats,
		Output:            out,
		Sessions:          c.sessions.List(),
		TranscoderRunning: c.tc != nil,
	}
}

// TranscoderUsage samples the resource use of the running transcoder.
func (c *Controller) TranscoderUsage() (transcoder.Usage, error) {
	c.mu.Lock()
	tc := c.tc
	c.mu.Unlock()
	if tc == nil {
		return transcoder.Usage{}, ErrNoTranscoder
	}
	return tc.handle.Usage()
}

// Shutdown stops every transcoder and waits, bounded by ctx, for them and
// for pending background work to finish. Hooks received afterwards no
// longer start transcoders.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.stopTranscoderLocked()
	procs := make([]Transcoder, 0, len(c.procs))
	for _, p := range c.procs {
		procs = append(procs, p)
	}
	c.cancel()
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for _, p := range procs {
			<-p.Done()
		}
		c.bg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newSession(ev session.Event) session.Session {
	return session.Session{
		ID:        ev.SessionID,
		Path:      ev.Path,
		StreamKey: ev.StreamKey(),
		Args:      ev.Args,
	}
}

func (c *Controller) eventLogger(ev session.Event) *slog.Logger {
	return c.log.With(slog.String("session_id", string(ev.SessionID)), slog.String("path", ev.Path))
}

func (c *Controller) authorized(key string) bool {
	if key == "" || key == "." || key == ".." || c.cfg.StreamKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(c.cfg.StreamKey)) == 1
}

// rejectLocked forgets an unauthorized session and asks the ingest server to
// drop it. Caller must hold c.mu.
func (c *Controller) rejectLocked(ctx context.Context, ev session.Event, log *slog.Logger) {
	log.Warn("publish rejected: invalid stream key", slog.String("stream_key", ev.StreamKey()))
	if c.metrics != nil {
		c.metrics.IncPublishRejected()
	}
	if _, ok := c.sessions.Get(ev.SessionID); ok {
		_, _ = c.sessions.Transition(ev.SessionID, session.StateEnded)
		c.sessions.Remove(ev.SessionID)
		c.syncGaugesLocked()
	}
	if c.closed {
		return
	}
	kctx := context.WithoutCancel(ctx)
	c.bg.Go(func() {
		_ = c.kick(kctx, ev.SessionID)
	})
}

func (c *Controller) kick(ctx context.Context, id session.ID) error {
	if c.kicker == nil {
		c.log.Warn("no ingest API configured, cannot drop session", slog.String("session_id", string(id)))
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, kickTimeout)
	defer cancel()

	err := c.kicker.Kick(ctx, id)
	if c.metrics != nil {
		c.metrics.IncKicks(err == nil)
	}
	if err != nil {
		c.log.Warn("kick session failed", slog.String("session_id", string(id)), slog.String("error", err.Error()))
		return err
	}
	c.log.Info("session kicked", slog.String("session_id", string(id)))
	return nil
}

// deriveLocked recomputes IsLive and StartTime from the publishing sessions.
// The newest publishing session owns StartTime. Caller must hold c.mu.
func (c *Controller) deriveLocked() {
	pub := c.sessions.InState(session.StatePublishing)
	c.state.IsLive = len(pub) > 0
	c.state.StartTime = nil
	if c.state.IsLive {
		t := pub[len(pub)-1].StartTime
		c.state.StartTime = &t
	}
	c.syncGaugesLocked()
}

func (c *Controller) syncGaugesLocked() {
	if c.metrics == nil {
		return
	}
	c.metrics.SetLive(c.state.IsLive)
	c.metrics.SetViewers(c.state.Viewers)
	c.metrics.SetActiveSessions(len(c.sessions.List()))
}

// startTranscoderLocked replaces the running transcoder with one for s.
// Caller must hold c.mu.
func (c *Controller) startTranscoderLocked(s session.Session, log *slog.Logger) {
	if c.tc != nil {
		log.Info("stopping previous transcoder", slog.String("previous_session_id", string(c.tc.sessionID)))
		c.stopTranscoderLocked()
	}
	if c.closed {
		log.Warn("shutting down, transcoder not started")
		return
	}

	c.gen++
	gen := c.gen
	dir := c.cfg.OutputDir(s.StreamKey)
	opts := transcoder.Options{
		InputURL:       c.cfg.IngestURL(s.Path),
		OutputDir:      dir,
		SegmentSeconds: c.cfg.SegmentSeconds,
		ListSize:       c.cfg.ListSize,
		AudioBitrate:   c.cfg.AudioBitrate,
	}
	hooks := transcoder.Hooks{
		OnLine:     func(line string) { c.onLine(gen, line) },
		OnPlaylist: func(info transcoder.PlaylistInfo) { c.onPlaylist(gen, info) },
		OnExit:     func(st transcoder.ExitStatus) { c.onExit(gen, s.ID, st) },
	}

	h, err := c.launcher.Launch(c.ctx, opts, hooks)
	if err != nil {
		log.Error("transcoder launch failed", slog.String("error", err.Error()))
		if c.metrics != nil {
			c.metrics.IncTranscoderExits(metrics.ExitSpawnFailed)
		}
		return
	}
	c.tc = &running{gen: gen, sessionID: s.ID, dir: dir, handle: h}
	c.procs[gen] = h
	if c.metrics != nil {
		c.metrics.IncTranscoderStarts()
	}
	log.Info("transcoder started",
		slog.String("input", opts.InputURL),
		slog.String("output", transcoder.PlaylistPath(dir)))
}

// stopTranscoderLocked tells the current transcoder to stop and forgets it.
// It returns the stopped handle, or nil. Caller must hold c.mu.
func (c *Controller) stopTranscoderLocked() Transcoder {
	if c.tc == nil {
		return nil
	}
	h := c.tc.handle
	h.Stop()
	c.tc = nil
	c.state.Output = transcoder.PlaylistInfo{}
	return h
}

// scheduleCleanupLocked removes dir once h has exited, unless a live session
// writes there again by then. Caller must hold c.mu.
func (c *Controller) scheduleCleanupLocked(dir string, h Transcoder) {
	if c.closed {
		return
	}
	c.bg.Go(func() {
		if h != nil {
			<-h.Done()
		}

		c.mu.Lock()
		inUse := c.dirInUseLocked(dir)
		c.mu.Unlock()
		if inUse {
			c.log.Debug("output directory reused, keeping it", slog.String("dir", dir))
			return
		}

		if err := c.removeAll(dir); err != nil {
			c.log.Error("remove output directory failed", slog.String("dir", dir), slog.String("error", err.Error()))
			return
		}
		c.log.Info("output directory removed", slog.String("dir", dir))
	})
}

func (c *Controller) dirInUseLocked(dir string) bool {
	if c.tc != nil && c.tc.dir == dir {
		return true
	}
	for _, s := range c.sessions.InState(session.StatePublishing) {
		if c.cfg.OutputDir(s.StreamKey) == dir {
			return true
		}
	}
	return false
}

func (c *Controller) currentLocked(gen uint64) bool {
	return c.tc != nil && c.tc.gen == gen
}

func (c *Controller) onLine(gen uint64, line string) {
	u := media.ParseLine(line)
	if u.Empty() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		return
	}
	c.state.Stats = u.Apply(c.state.Stats)
}

func (c *Controller) onPlaylist(gen uint64, info transcoder.PlaylistInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.currentLocked(gen) {
		return
	}
	wasReady := c.state.Output.Ready
	c.state.Output = info
	if info.Ready && !wasReady {
		c.log.Info("playlist ready",
			slog.String("dir", c.tc.dir),
			slog.Int("segments", len(info.Segments)),
			slog.Int64("media_sequence", info.MediaSequence))
	}
}

func (c *Controller) onExit(gen uint64, id session.ID, st transcoder.ExitStatus) {
	c.mu.Lock()
	current := c.currentLocked(gen)
	if current {
		c.tc = nil
		c.state.Output = transcoder.PlaylistInfo{}
	}
	delete(c.procs, gen)
	c.mu.Unlock()

	log := c.log.With(slog.String("session_id", string(id)))
	result := metrics.ExitClean
	switch {
	case !st.Started:
		result = metrics.ExitSpawnFailed
		log.Error("transcoder failed to start", slog.String("error", errString(st.Err)))
	case !current:
		result = metrics.ExitStopped
		log.Info("transcoder stopped", slog.Int("code", st.Code))
	case st.Err != nil:
		result = metrics.ExitError
		log.Warn("transcoder exited unexpectedly",
			slog.Int("code", st.Code),
			slog.String("error", st.Err.Error()),
			slog.Any("stderr_tail", st.Tail))
	default:
		log.Info("transcoder exited", slog.Duration("ran", st.EndedAt.Sub(st.StartedAt)))
	}
	if c.metrics != nil {
		c.metrics.IncTranscoderExits(result)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
