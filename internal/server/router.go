package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/metrics"
	"github.com/loykin/drowsy/internal/session"
)

// Router provides embeddable HTTP handlers for one detection session.
// Endpoints:
//
//	POST {basePath}/frames     body: one frame or an array of frames
//	POST {basePath}/presence   body: {"present": bool}
//	GET  {basePath}/status     session snapshot
//	GET  {basePath}/events     websocket event stream (when a hub is attached)
//	GET  {basePath}/metrics    Prometheus exposition (when enabled)
//
// Frames carrying both eyes also mark the face present; /presence reports a face
// that appeared or went away between frames.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sess     *session.Session
	basePath string
	hub      *Hub
	metrics  bool
	log      *slog.Logger
}

type Option func(*Router)

// WithHub serves the hub's stream on /events. The hub must also be subscribed to the session.
func WithHub(h *Hub) Option { return func(r *Router) { r.hub = h } }

func WithMetrics() Option { return func(r *Router) { r.metrics = true } }

func WithLogger(l *slog.Logger) Option { return func(r *Router) { r.log = l } }

// NewRouter constructs a new Router with configurable basePath.
// Example basePath: "/api" results in /api/frames, /api/status, ...
func NewRouter(sess *session.Session, basePath string, opts ...Option) *Router {
	r := &Router{sess: sess, basePath: sanitizeBase(basePath), log: slog.Default()}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/frames", r.handleFrames)
	group.POST("/presence", r.handlePresence)
	group.GET("/status", r.handleStatus)
	if r.hub != nil {
		group.GET("/events", gin.WrapH(r.hub))
	}
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer starts a standalone HTTP server on addr using a new Router.
// Shut it down with http.Server's Shutdown or Close.
func NewServer(addr, basePath string, sess *session.Session, opts ...Option) (*http.Server, error) {
	r := NewRouter(sess, basePath, opts...)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("http server stopped", "addr", addr, "err", err)
		}
	}()
	return server, nil
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type framesResp struct {
	Accepted int              `json:"accepted"`
	Events   []event.Envelope `json:"events"`
	Error    string           `json:"error,omitempty"`
}

type presenceReq struct {
	Present *bool `json:"present"`
}

func (r *Router) handleFrames(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return
	}
	frames, err := decodeFrames(body)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	resp := framesResp{Events: []event.Envelope{}}
	for _, f := range frames {
		sample, err := f.Sample()
		if err != nil {
			resp.Error = err.Error()
			writeJSON(c, http.StatusBadRequest, resp)
			return
		}
		evs, err := r.sess.Process(sample)
		for _, e := range evs {
			resp.Events = append(resp.Events, event.Wrap(e))
		}
		if err != nil {
			resp.Error = err.Error()
			writeJSON(c, statusFor(err), resp)
			return
		}
		resp.Accepted++
	}
	writeJSON(c, http.StatusOK, resp)
}

func (r *Router) handlePresence(c *gin.Context) {
	var req presenceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Present == nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "present required"})
		return
	}
	var err error
	if *req.Present {
		err = r.sess.FaceDetected()
	} else {
		err = r.sess.FaceLost()
	}
	if err != nil {
		writeJSON(c, statusFor(err), errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sess.Status())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrStaleFrame):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
