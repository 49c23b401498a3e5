package stream

import (
	"context"

	"hls-live/internal/session"
	"hls-live/internal/transcoder"
)

// Transcoder is a running transcoding process.
type Transcoder interface {
	// Stop requests termination without waiting for it.
	Stop()
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	Usage() (transcoder.Usage, error)
}

// Launcher starts transcoders. Launch must not block on the process itself
// and must not call hooks before it returns; failures to spawn are reported
// through hooks.OnExit.
type Launcher interface {
	Launch(ctx context.Context, opts transcoder.Options, hooks transcoder.Hooks) (Transcoder, error)
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, opts transcoder.Options, hooks transcoder.Hooks) (Transcoder, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, opts transcoder.Options, hooks transcoder.Hooks) (Transcoder, error) {
	return f(ctx, opts, hooks)
}

// SpawnerLauncher launches ffmpeg through sp.
func SpawnerLauncher(sp *transcoder.Spawner) Launcher {
	return LauncherFunc(func(ctx context.Context, opts transcoder.Options, hooks transcoder.Hooks) (Transcoder, error) {
		p, err := sp.Start(ctx, opts, hooks)
		if err != nil {
			return nil, err
		}
		return p, nil
	})
}

// Kicker asks the ingest server to drop a connection.
type Kicker interface {
	Kick(ctx context.Context, id session.ID) error
}
