// Package media extracts stream statistics from ffmpeg's diagnostic output.
//
// ffmpeg reports input stream descriptors once at startup and progress lines
// periodically, all on stderr and in free-form text. Parsing is best effort:
// a line that matches nothing yields an empty Update.
package media

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	// Stream #0:0: Video: h264 (High), yuv420p(progressive), 1280x720 [SAR 1:1 DAR 16:9], 30 fps, 30 tbr
	videoCodecRe = regexp.MustCompile(`Video: (\w+)`)
	resolutionRe = regexp.MustCompile(`\b(\d{2,5})x(\d{2,5})\b`)
	fpsRe        = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*fps\b`)

	// Stream #0:1: Audio: aac (LC), 44100 Hz, stereo, fltp, 128 kb/s
	audioRe = regexp.MustCompile(`Audio: (\w+)[^,]*, (\d+) Hz, ([^,\s]+)`)

	// frame=  300 fps= 30 q=-1.0 size=    2048kB time=00:00:10.00 bitrate=2500.3kbits/s speed=1.00x
	bitrateRe = regexp.MustCompile(`bitrate=\s*(\d+(?:\.\d+)?)\s*kbits/s`)
)

// VideoInfo is the video stream descriptor found on a line.
type VideoInfo struct {
	Codec  string
	Width  int
	Height int
	FPS    float64
}

// Update is the set of facts found on a single line. Nil fields were not present.
type Update struct {
	Video   *VideoInfo
	Audio   *Audio
	Bitrate *int
}

// Empty reports whether the update carries no facts.
func (u Update) Empty() bool {
	return u.Video == nil && u.Audio == nil && u.Bitrate == nil
}

// Apply folds the update into prev and returns the result.
func (u Update) Apply(prev Stats) Stats {
	next := prev
	if u.Video != nil {
		next.VideoCodec = u.Video.Codec
		next.Resolution = strconv.Itoa(u.Video.Width) + "x" + strconv.Itoa(u.Video.Height)
		next.FPS = u.Video.FPS
	}
	if u.Audio != nil {
		next.Audio = *u.Audio
	}
	if u.Bitrate != nil {
		next.Bitrate = *u.Bitrate
	}
	return next
}

// ParseLine extracts the statistics present on one line of ffmpeg output.
func ParseLine(line string) Update {
	var u Update
	if v, ok := parseVideo(line); ok {
		u.Video = &v
	}
	if a, ok := parseAudio(line); ok {
		u.Audio = &a
	}
	if m := bitrateRe.FindStringSubmatch(line); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			kbps := int(math.Round(f))
			u.Bitrate = &kbps
		}
	}
	return u
}

// Fold applies every line of chunk to prev. The chunk may hold several lines
// separated by '\n' or '\r', and may end in a partial line.
func Fold(chunk string, prev Stats) Stats {
	next := prev
	for _, line := range strings.FieldsFunc(chunk, isLineBreak) {
		next = ParseLine(line).Apply(next)
	}
	return next
}

// Channels maps an ffmpeg channel layout to a channel count. Only "stereo" is
// recognised as two channels.
func Channels(layout string) int {
	if layout == "stereo" {
		return 2
	}
	return 1
}

func parseVideo(line string) (VideoInfo, bool) {
	loc := videoCodecRe.FindStringSubmatchIndex(line)
	if loc == nil {
		return VideoInfo{}, false
	}
	codec := line[loc[2]:loc[3]]
	rest := line[loc[1]:]

	res := resolutionRe.FindStringSubmatchIndex(rest)
	if res == nil {
		return VideoInfo{}, false
	}
	w, errW := strconv.Atoi(rest[res[2]:res[3]])
	h, errH := strconv.Atoi(rest[res[4]:res[5]])
	if errW != nil || errH != nil {
		return VideoInfo{}, false
	}

	m := fpsRe.FindStringSubmatch(rest[res[1]:])
	if m == nil {
		return VideoInfo{}, false
	}
	fps, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return VideoInfo{}, false
	}
	return VideoInfo{Codec: codec, Width: w, Height: h, FPS: fps}, true
}

func parseAudio(line string) (Audio, bool) {
	m := audioRe.FindStringSubmatch(line)
	if m == nil {
		return Audio{}, false
	}
	rate, err := strconv.Atoi(m[2])
	if err != nil {
		return Audio{}, false
	}
	return Audio{Codec: m[1], SampleRate: rate, Channels: Channels(m[3])}, true
}

func isLineBreak(r rune) bool {
	return r == '\n' || r == '\r'
}
