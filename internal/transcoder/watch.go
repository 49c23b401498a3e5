package transcoder

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchPlaylist reports the parsed playlist each time ffmpeg rewrites it in dir.
// It blocks until ctx is done. dir must exist.
func WatchPlaylist(ctx context.Context, log *slog.Logger, dir string, fn func(PlaylistInfo)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}

	// The playlist may have been written before the watch was installed.
	if info, err := ReadPlaylist(dir); err == nil {
		fn(info)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != PlaylistName {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			info, err := ReadPlaylist(dir)
			if err != nil {
				// ffmpeg may still be writing; the next event carries the full file.
				log.Debug("playlist not readable yet", slog.String("dir", dir), slog.String("error", err.Error()))
				continue
			}
			fn(info)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("playlist watcher error", slog.String("dir", dir), slog.String("error", err.Error()))
		}
	}
}
