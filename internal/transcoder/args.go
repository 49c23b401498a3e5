package transcoder

import (
	"errors"
	"path/filepath"
	"strconv"
)

// Output file names inside a session's output directory.
const (
	PlaylistName   = "index.m3u8"
	SegmentPattern = "segment%03d.ts"
)

// Defaults applied by BuildArgs when Options leave a field zero.
const (
	DefaultSegmentSeconds = 2
	DefaultListSize       = 3
	DefaultAudioCodec     = "aac"
	DefaultAudioBitrate   = "128k"
)

// Options describes one ffmpeg invocation: pull the ingest URL, copy video,
// re-encode audio and write a rolling HLS playlist into OutputDir.
type Options struct {
	InputURL       string
	OutputDir      string
	SegmentSeconds int
	ListSize       int
	AudioCodec     string
	AudioBitrate   string
}

// PlaylistPath returns the manifest path for an output directory.
func PlaylistPath(dir string) string {
	return filepath.Join(dir, PlaylistName)
}

func (o Options) withDefaults() Options {
	if o.SegmentSeconds <= 0 {
		o.SegmentSeconds = DefaultSegmentSeconds
	}
	if o.ListSize <= 0 {
		o.ListSize = DefaultListSize
	}
	if o.AudioCodec == "" {
		o.AudioCodec = DefaultAudioCodec
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = DefaultAudioBitrate
	}
	return o
}

// BuildArgs returns the ffmpeg argument list for o. No shell is involved, so
// paths and URLs are passed through verbatim.
func BuildArgs(o Options) ([]string, error) {
	if o.InputURL == "" {
		return nil, errors.New("missing input URL")
	}
	if o.OutputDir == "" {
		return nil, errors.New("missing output directory")
	}
	o = o.withDefaults()

	return []string{
		"-hide_banner",
		"-nostdin",
		"-i", o.InputURL,
		"-c:v", "copy",
		"-c:a", o.AudioCodec,
		"-b:a", o.AudioBitrate,
		"-f", "hls",
		"-hls_time", strconv.Itoa(o.SegmentSeconds),
		"-hls_list_size", strconv.Itoa(o.ListSize),
		"-hls_flags", "delete_segments",
		"-hls_segment_filename", filepath.Join(o.OutputDir, SegmentPattern),
		PlaylistPath(o.OutputDir),
	}, nil
}
