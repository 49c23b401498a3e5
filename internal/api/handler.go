// Package api serves the REST API over the live stream state and the HLS
// media files.
package api

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"hls-live/internal/media"
	"hls-live/internal/stream"
	"hls-live/internal/transcoder"
)

// StreamController is the read and control surface the API needs.
type StreamController interface {
	State() stream.Status
	Snapshot() stream.Snapshot
	Stop(ctx context.Context) (stream.StopResult, error)
	TranscoderUsage() (transcoder.Usage, error)
}

// Info describes how publishers and players reach this service.
type Info struct {
	Name       string
	Version    string
	StreamKey  string
	PublicHost string
	RTMPPort   int
	HTTPPort   int
	APIPort    int
}

// RTMPURL is the server URL publishers configure in OBS.
func (i Info) RTMPURL() string {
	return "rtmp://" + net.JoinHostPort(i.PublicHost, strconv.Itoa(i.RTMPPort)) + "/live"
}

// HLSURL is the playlist URL players load.
func (i Info) HLSURL() string {
	return "http://" + net.JoinHostPort(i.PublicHost, strconv.Itoa(i.HTTPPort)) + "/live/" + i.StreamKey + "/" + transcoder.PlaylistName
}

// Handler exposes the stream API using go-chi.
type Handler struct {
	ctrl StreamController
	info Info
	log  *slog.Logger
	now  func() time.Time
}

// NewHandler returns a Handler that reads from and controls ctrl.
func NewHandler(ctrl StreamController, info Info, log *slog.Logger) *Handler {
	return &Handler{ctrl: ctrl, info: info, log: log, now: time.Now}
}

type statusResponse struct {
	Status    string     `json:"status"`
	IsLive    bool       `json:"isLive"`
	IsPaused  bool       `json:"isPaused"`
	StartTime *time.Time `json:"startTime"`
	Viewers   int        `json:"viewers"`
}

// Status handles GET /api/stream/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st := h.ctrl.State()
	ok(w, "stream is "+st.Label(), statusResponse{
		Status:    st.Label(),
		IsLive:    st.IsLive,
		IsPaused:  st.IsPaused,
		StartTime: st.StartTime,
		Viewers:   st.Viewers,
	})
}

type urlResponse struct {
	HLSURL    string `json:"hlsUrl"`
	StreamKey string `json:"streamKey"`
	HTTPPort  int    `json:"httpPort"`
	Ready     bool   `json:"ready"`
}

// URL handles GET /api/stream/url.
func (h *Handler) URL(w http.ResponseWriter, r *http.Request) {
	snap := h.ctrl.Snapshot()
	if !snap.IsLive {
		fail(w, "stream is not live")
		return
	}
	ok(w, "HLS stream URL", urlResponse{
		HLSURL:    h.info.HLSURL(),
		StreamKey: h.info.StreamKey,
		HTTPPort:  h.info.HTTPPort,
		Ready:     snap.Output.Ready,
	})
}

type playlistSummary struct {
	Ready         bool  `json:"ready"`
	MediaSequence int64 `json:"mediaSequence"`
	Segments      int   `json:"segments"`
}

type statsResponse struct {
	media.Stats
	StartTime  *time.Time        `json:"startTime"`
	Viewers    int               `json:"viewers"`
	Uptime     int64             `json:"uptime"` // seconds
	Playlist   playlistSummary   `json:"playlist"`
	Transcoder *transcoder.Usage `json:"transcoder,omitempty"`
}

// Stats handles GET /api/stream/stats. Everything in the response comes from
// one snapshot, so stats and start time always describe the same stream.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	snap := h.ctrl.Snapshot()
	if !snap.IsLive {
		fail(w, "stream is not live")
		return
	}

	resp := statsResponse{
		Stats:     snap.Stats,
		StartTime: snap.StartTime,
		Viewers:   snap.Viewers,
		Uptime:    int64(math.Round(snap.Uptime(h.now()).Seconds())),
		Playlist: playlistSummary{
			Ready:         snap.Output.Ready,
			MediaSequence: snap.Output.MediaSequence,
			Segments:      len(snap.Output.Segments),
		},
	}
	if usage, err := h.ctrl.TranscoderUsage(); err == nil {
		resp.Transcoder = &usage
	} else if !errors.Is(err, stream.ErrNoTranscoder) {
		h.log.Debug("transcoder usage unavailable", slog.String("error", err.Error()))
	}
	ok(w, "stream statistics", resp)
}

type startResponse struct {
	RTMPURL      string `json:"rtmpUrl"`
	StreamKey    string `json:"streamKey"`
	FullURL      string `json:"fullUrl"`
	Instructions string `json:"instructions"`
}

// Start handles POST /api/stream/start. Publishing is started by the
// encoder connecting, so this only returns the publisher settings.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	ok(w, "server ready to receive streams", startResponse{
		RTMPURL:      h.info.RTMPURL(),
		StreamKey:    h.info.StreamKey,
		FullURL:      h.info.RTMPURL() + "/" + h.info.StreamKey,
		Instructions: "Configure OBS with this server URL and stream key",
	})
}

// Stop handles POST /api/stream/stop.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	res, err := h.ctrl.Stop(r.Context())
	if errors.Is(err, stream.ErrNoActiveSession) {
		fail(w, "no active stream")
		return
	}
	if err != nil {
		h.log.Error("stop stream failed", slog.String("error", err.Error()))
		httpError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.log.Info("stream stopped via API", slog.Int("sessions", len(res.Sessions)))
	ok(w, "stream stopped", res)
}

type infoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	RTMPPort  int    `json:"rtmpPort"`
	HTTPPort  int    `json:"httpPort"`
	APIPort   int    `json:"apiPort"`
	StreamKey string `json:"streamKey"`
	RTMPURL   string `json:"rtmpUrl"`
	HLSURL    string `json:"hlsUrl"`
}

// Info handles GET /api/info.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	ok(w, "server information", infoResponse{
		Name:      h.info.Name,
		Version:   h.info.Version,
		RTMPPort:  h.info.RTMPPort,
		HTTPPort:  h.info.HTTPPort,
		APIPort:   h.info.APIPort,
		StreamKey: h.info.StreamKey,
		RTMPURL:   h.info.RTMPURL(),
		HLSURL:    h.info.HLSURL(),
	})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
  <title>{{.Name}}</title>
  <style>
    body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; background: #f5f5f5; }
    .container { background: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
    .endpoint { background: #f8f8f8; padding: 10px; margin: 10px 0; border-left: 4px solid #007bff; font-family: monospace; }
  </style>
</head>
<body>
  <div class="container">
    <h1>{{.Name}}</h1>
    <p>RTMP to HLS server is running.</p>
    <h2>OBS settings</h2>
    <div class="endpoint">
      <strong>Server:</strong> {{.RTMPURL}}<br>
      <strong>Stream key:</strong> {{.StreamKey}}
    </div>
    <h2>Playback</h2>
    <div class="endpoint">{{.HLSURL}}</div>
    <h2>API endpoints</h2>
    <div class="endpoint">GET /api/stream/status - stream status</div>
    <div class="endpoint">GET /api/stream/url - HLS manifest URL</div>
    <div class="endpoint">GET /api/stream/stats - stream statistics</div>
    <div class="endpoint">POST /api/stream/start - publisher settings</div>
    <div class="endpoint">POST /api/stream/stop - stop the stream</div>
    <div class="endpoint">GET /api/info - server information</div>
  </div>
</body>
</html>
`))

// Index handles GET /.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, struct {
		Name, RTMPURL, StreamKey, HLSURL string
	}{h.info.Name, h.info.RTMPURL(), h.info.StreamKey, h.info.HLSURL()})
	if err != nil {
		h.log.Error("render index failed", slog.String("error", err.Error()))
	}
}
