package transcoder

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildArgs_defaults(t *testing.T) {
	dir := filepath.Join("streams", "live", "key")
	args, err := BuildArgs(Options{InputURL: "rtmp://localhost:1935/live/key", OutputDir: dir})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"-hide_banner",
		"-nostdin",
		"-i", "rtmp://localhost:1935/live/key",
		"-c:v", "copy",
		"-c:a", "aac",
		"-b:a", "128k",
		"-f", "hls",
		"-hls_time", "2",
		"-hls_list_size", "3",
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", filepath.Join(dir, "segment%03d.ts"),
		filepath.Join(dir, "index.m3u8"),
	}, args)
}

func TestBuildArgs_overrides(t *testing.T) {
	args, err := BuildArgs(Options{
		InputURL:       "rtmp://ingest:1936/app/k",
		OutputDir:      "/tmp/out",
		SegmentSeconds: 4,
		ListSize:       6,
		AudioBitrate:   "96k",
	})
	require.NoError(t, err)

	assert.Equal(t, "4", valueAfter(args, "-hls_time"))
	assert.Equal(t, "6", valueAfter(args, "-hls_list_size"))
	assert.Equal(t, "96k", valueAfter(args, "-b:a"))
	assert.Equal(t, "/tmp/out/index.m3u8", args[len(args)-1])
}

func TestBuildArgs_validation(t *testing.T) {
	_, err := BuildArgs(Options{OutputDir: "/tmp/out"})
	assert.Error(t, err)

	_, err = BuildArgs(Options{InputURL: "rtmp://x/live/k"})
	assert.Error(t, err)
}

func valueAfter(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}
