package media

// Unknown values reported before ffmpeg has described the stream.
const (
	UnknownCodec      = "unknown"
	UnknownResolution = "N/A"
)

// Audio describes the audio track of the incoming stream.
type Audio struct {
	Codec      string `json:"codec"`
	SampleRate int    `json:"samplerate"`
	Channels   int    `json:"channels"`
}

// Stats holds the media facts scraped from transcoder diagnostics.
type Stats struct {
	Bitrate    int     `json:"bitrate"` // kbps
	Resolution string  `json:"resolution"`
	FPS        float64 `json:"fps"`
	VideoCodec string  `json:"codec"`
	Audio      Audio   `json:"audio"`
}

// DefaultStats returns the values reported while nothing is known about the stream.
func DefaultStats() Stats {
	return Stats{
		Resolution: UnknownResolution,
		VideoCodec: UnknownCodec,
		Audio:      Audio{Codec: UnknownCodec},
	}
}
