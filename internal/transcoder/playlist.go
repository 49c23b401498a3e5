package transcoder

import (
	"fmt"
	"os"
	"time"

	"github.com/bluenviron/gohlslib/v2/pkg/playlist"
)

// Segment is one media segment listed in the live playlist.
type Segment struct {
	Sequence int64   `json:"sequence"`
	Duration float64 `json:"duration"`
	Path     string  `json:"path"`
}

// PlaylistInfo summarizes the playlist ffmpeg last wrote.
type PlaylistInfo struct {
	Ready          bool      `json:"ready"`
	MediaSequence  int64     `json:"mediaSequence"`
	TargetDuration int       `json:"targetDuration"`
	Segments       []Segment `json:"segments"`
	Ended          bool      `json:"ended"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ParsePlaylist decodes an HLS media playlist.
func ParsePlaylist(data []byte) (PlaylistInfo, error) {
	pl, err := playlist.Unmarshal(data)
	if err != nil {
		return PlaylistInfo{}, fmt.Errorf("parse playlist: %w", err)
	}
	media, ok := pl.(*playlist.Media)
	if !ok {
		return PlaylistInfo{}, fmt.Errorf("expected media playlist, got %T", pl)
	}

	info := PlaylistInfo{
		MediaSequence:  int64(media.MediaSequence),
		TargetDuration: media.TargetDuration,
		Ended:          media.Endlist,
		Segments:       make([]Segment, 0, len(media.Segments)),
	}
	for i, seg := range media.Segments {
		if seg == nil {
			continue
		}
		info.Segments = append(info.Segments, Segment{
			Sequence: info.MediaSequence + int64(i),
			Duration: seg.Duration.Seconds(),
			Path:     seg.URI,
		})
	}
	info.Ready = len(info.Segments) > 0
	return info, nil
}

// ReadPlaylist loads and parses the playlist in dir.
func ReadPlaylist(dir string) (PlaylistInfo, error) {
	data, err := os.ReadFile(PlaylistPath(dir)) // #nosec G304 -- path is built from the configured output root
	if err != nil {
		return PlaylistInfo{}, err
	}
	info, err := ParsePlaylist(data)
	if err != nil {
		return PlaylistInfo{}, err
	}
	info.UpdatedAt = time.Now().UTC()
	return info, nil
}
