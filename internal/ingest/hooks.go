// Package ingest connects the RTMP ingest server to the stream controller:
// it receives the server's lifecycle hooks over HTTP and asks the server to
// drop connections through its HTTP API.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"hls-live/internal/platform/metrics"
	"hls-live/internal/session"
	"hls-live/internal/stream"
)

const maxHookBody = 64 * 1024

// Hook event names accepted on /hooks/{event}.
const (
	EventPrePublish  = "pre_publish"
	EventPostPublish = "post_publish"
	EventDonePublish = "done_publish"
	EventPrePlay     = "pre_play"
	EventDonePlay    = "done_play"
)

// Lifecycle is the controller surface driven by hooks.
type Lifecycle interface {
	PrePublish(ctx context.Context, ev session.Event) error
	PostPublish(ctx context.Context, ev session.Event) error
	DonePublish(ctx context.Context, ev session.Event) error
	PrePlay(ctx context.Context, ev session.Event) error
	DonePlay(ctx context.Context, ev session.Event) error
}

// HookHandler receives ingest server callbacks. A non-2xx reply makes the
// ingest server refuse the connection.
type HookHandler struct {
	ctrl    Lifecycle
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHookHandler returns a HookHandler. m may be nil.
func NewHookHandler(ctrl Lifecycle, log *slog.Logger, m *metrics.Metrics) *HookHandler {
	return &HookHandler{ctrl: ctrl, log: log, metrics: m}
}

// Routes returns the hook router, meant to be mounted under /hooks.
func (h *HookHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/srs", h.SRS)
	r.Post("/{event}", h.Event)
	return r
}

type hookReply struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

func (h *HookHandler) handlerFor(event string) (func(context.Context, session.Event) error, bool) {
	switch event {
	case EventPrePublish:
		return h.ctrl.PrePublish, true
	case EventPostPublish:
		return h.ctrl.PostPublish, true
	case EventDonePublish:
		return h.ctrl.DonePublish, true
	case EventPrePlay:
		return h.ctrl.PrePlay, true
	case EventDonePlay:
		return h.ctrl.DonePlay, true
	default:
		return nil, false
	}
}

// Event handles POST /hooks/{event}.
// Body: { "id": "SESSION", "path": "/live/key", "args": { "token": "..." } }.
func (h *HookHandler) Event(w http.ResponseWriter, r *http.Request) {
	event := chi.URLParam(r, "event")
	fn, ok := h.handlerFor(event)
	if !ok {
		writeReply(w, http.StatusNotFound, "unknown event "+event)
		return
	}

	var ev session.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHookBody)).Decode(&ev); err != nil {
		h.log.Debug("invalid hook body", slog.String("event", event), slog.String("error", err.Error()))
		writeReply(w, http.StatusBadRequest, "invalid body")
		return
	}
	if ev.SessionID == "" {
		writeReply(w, http.StatusBadRequest, "id is required")
		return
	}

	h.dispatch(w, r, event, fn, ev)
}

type srsHookRequest struct {
	Action   string `json:"action"`
	ClientID string `json:"client_id"`
	IP       string `json:"ip"`
	Vhost    string `json:"vhost"`
	App      string `json:"app"`
	Stream   string `json:"stream"`
	Param    string `json:"param"`
}

func (req srsHookRequest) event() session.Event {
	p := "/" + strings.Trim(req.App, "/") + "/" + req.Stream
	if strings.Trim(req.App, "/") == "" {
		p = "/" + req.Stream
	}
	var args map[string]string
	if q, err := url.ParseQuery(strings.TrimPrefix(req.Param, "?")); err == nil && len(q) > 0 {
		args = make(map[string]string, len(q))
		for k := range q {
			args[k] = q.Get(k)
		}
	}
	return session.Event{SessionID: session.ID(req.ClientID), Path: p, Args: args}
}

// SRS handles POST /hooks/srs, the SRS http_hooks callback. on_publish runs
// both the pre- and post-publish steps.
func (h *HookHandler) SRS(w http.ResponseWriter, r *http.Request) {
	var req srsHookRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxHookBody)).Decode(&req); err != nil {
		h.log.Debug("invalid srs hook body", slog.String("error", err.Error()))
		writeReply(w, http.StatusBadRequest, "invalid body")
		return
	}
	ev := req.event()
	if ev.SessionID == "" {
		writeReply(w, http.StatusBadRequest, "client_id is required")
		return
	}

	action := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(req.Action)), "on_")
	switch action {
	case "publish":
		h.dispatch(w, r, "srs_publish", func(ctx context.Context, ev session.Event) error {
			if err := h.ctrl.PrePublish(ctx, ev); err != nil {
				return err
			}
			return h.ctrl.PostPublish(ctx, ev)
		}, ev)
	case "unpublish":
		h.dispatch(w, r, EventDonePublish, h.ctrl.DonePublish, ev)
	case "play":
		h.dispatch(w, r, EventPrePlay, h.ctrl.PrePlay, ev)
	case "stop":
		h.dispatch(w, r, EventDonePlay, h.ctrl.DonePlay, ev)
	default:
		writeReply(w, http.StatusBadRequest, "unknown action "+req.Action)
	}
}

func (h *HookHandler) dispatch(w http.ResponseWriter, r *http.Request, event string, fn func(context.Context, session.Event) error, ev session.Event) {
	if h.metrics != nil {
		h.metrics.IncHookEvent(event)
	}
	h.log.Debug("hook received",
		slog.String("event", event),
		slog.String("session_id", string(ev.SessionID)),
		slog.String("path", ev.Path))

	err := fn(r.Context(), ev)
	switch {
	case err == nil:
		writeReply(w, http.StatusOK, "")
	case errors.Is(err, stream.ErrUnauthorized):
		writeReply(w, http.StatusForbidden, err.Error())
	case errors.Is(err, stream.ErrInvalidTransition):
		writeReply(w, http.StatusConflict, err.Error())
	default:
		h.log.Error("hook failed", slog.String("event", event), slog.String("error", err.Error()))
		writeReply(w, http.StatusInternalServerError, "internal error")
	}
}

func writeReply(w http.ResponseWriter, status int, message string) {
	code := 0
	if status >= 300 {
		code = status
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(hookReply{Code: code, Message: message})
}
