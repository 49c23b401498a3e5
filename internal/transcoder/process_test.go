package transcoder

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu    sync.Mutex
	lines []string
	exit  chan ExitStatus
}

func newRecorder() *recorder {
	return &recorder{exit: make(chan ExitStatus, 1)}
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnLine: func(line string) {
			r.mu.Lock()
			r.lines = append(r.lines, line)
			r.mu.Unlock()
		},
		OnExit: func(st ExitStatus) { r.exit <- st },
	}
}

func (r *recorder) waitExit(t *testing.T) ExitStatus {
	t.Helper()
	select {
	case st := <-r.exit:
		return st
	case <-time.After(10 * time.Second):
		t.Fatal("process did not exit")
		return ExitStatus{}
	}
}

func (r *recorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

func TestProcess_streams_stderr_and_reports_exit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bin := fakeFFmpeg(t, `printf 'Stream #0:0: Video: h264, 1280x720, 30 fps\n' >&2
printf 'frame=1 bitrate=100.0kbits/s\rframe=2 bitrate=200.0kbits/s\r' >&2
exit 0`)
	out := filepath.Join(t.TempDir(), "live", "key")

	sp := NewSpawner(bin, time.Second, quietLogger())
	rec := newRecorder()
	p, err := sp.Start(context.Background(), Options{InputURL: "rtmp://localhost/live/key", OutputDir: out}, rec.hooks())
	require.NoError(t, err)

	st := rec.waitExit(t)
	<-p.Done()

	assert.True(t, st.Started)
	assert.NoError(t, st.Err)
	assert.Equal(t, 0, st.Code)
	assert.Equal(t, []string{
		"Stream #0:0: Video: h264, 1280x720, 30 fps",
		"frame=1 bitrate=100.0kbits/s",
		"frame=2 bitrate=200.0kbits/s",
	}, rec.Lines())
	assert.Equal(t, rec.Lines(), st.Tail)
	assert.DirExists(t, out, "output directory is created before spawning")
	assert.Equal(t, 0, p.PID())
}

func TestProcess_nonzero_exit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bin := fakeFFmpeg(t, `echo "rtmp://localhost/live/key: Connection refused" >&2
exit 1`)
	sp := NewSpawner(bin, time.Second, quietLogger())
	rec := newRecorder()
	_, err := sp.Start(context.Background(), Options{InputURL: "rtmp://localhost/live/key", OutputDir: t.TempDir()}, rec.hooks())
	require.NoError(t, err)

	st := rec.waitExit(t)
	assert.True(t, st.Started)
	assert.Error(t, st.Err)
	assert.Equal(t, 1, st.Code)
	assert.Equal(t, []string{"rtmp://localhost/live/key: Connection refused"}, st.Tail)
}

func TestProcess_missing_binary(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	sp := NewSpawner(filepath.Join(t.TempDir(), "no-such-ffmpeg"), time.Second, quietLogger())
	rec := newRecorder()
	p, err := sp.Start(context.Background(), Options{InputURL: "rtmp://localhost/live/key", OutputDir: t.TempDir()}, rec.hooks())
	require.NoError(t, err, "spawn failures are reported asynchronously")

	st := rec.waitExit(t)
	<-p.Done()
	assert.False(t, st.Started)
	assert.Error(t, st.Err)
}

func TestProcess_invalid_options(t *testing.T) {
	sp := NewSpawner("", 0, nil)
	_, err := sp.Start(context.Background(), Options{}, Hooks{})
	assert.Error(t, err)
	assert.Equal(t, DefaultBinPath, sp.BinPath)
	assert.Equal(t, DefaultKillTimeout, sp.KillTimeout)
}

func TestProcess_Stop_terminates(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bin := fakeFFmpeg(t, `echo started >&2
exec sleep 30`)
	sp := NewSpawner(bin, 2*time.Second, quietLogger())
	rec := newRecorder()
	p, err := sp.Start(context.Background(), Options{InputURL: "rtmp://localhost/live/key", OutputDir: t.TempDir()}, rec.hooks())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.PID() != 0 && len(rec.Lines()) > 0 }, 5*time.Second, 10*time.Millisecond)

	p.Stop()
	p.Stop()

	st := rec.waitExit(t)
	assert.True(t, st.Started)
	assert.NotEqual(t, 0, st.Code)
	assert.Less(t, st.EndedAt.Sub(st.StartedAt), 10*time.Second)
}

func TestProcess_Stop_escalates_to_kill(t *testing.T) {
	bin := fakeFFmpeg(t, `trap '' TERM
echo started >&2
while true; do sleep 1; done`)
	sp := NewSpawner(bin, 200*time.Millisecond, quietLogger())
	rec := newRecorder()
	p, err := sp.Start(context.Background(), Options{InputURL: "rtmp://localhost/live/key", OutputDir: t.TempDir()}, rec.hooks())
	require.NoError(t, err)

	require.Eventually(t, func() bool { return len(rec.Lines()) > 0 }, 5*time.Second, 10*time.Millisecond)

	p.Stop()
	st := rec.waitExit(t)
	assert.True(t, st.Started)
	assert.Error(t, st.Err)
}

func TestProcess_Stop_before_spawn(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	bin := fakeFFmpeg(t, `exec sleep 30`)
	sp := NewSpawner(bin, time.Second, quietLogger())
	rec := newRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p, err := sp.Start(ctx, Options{InputURL: "rtmp://localhost/live/key", OutputDir: t.TempDir()}, rec.hooks())
	require.NoError(t, err)

	st := rec.waitExit(t)
	<-p.Done()
	assert.False(t, st.Started)
	assert.ErrorIs(t, st.Err, context.Canceled)
}
