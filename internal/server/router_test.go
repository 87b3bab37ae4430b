package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/drowsy/internal/clockalign"
	"github.com/loykin/drowsy/internal/config"
	"github.com/loykin/drowsy/internal/event"
	"github.com/loykin/drowsy/internal/face"
	"github.com/loykin/drowsy/internal/session"
)

func newSession(t *testing.T, opts ...session.Option) *session.Session {
	t.Helper()
	clock := clockalign.ClockFunc(func() time.Time { return time.UnixMilli(1_000_000) })
	opts = append([]session.Option{session.WithClock(clock)}, opts...)
	s, err := session.New(config.DefaultDetector(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func setupRouter(t *testing.T, base string, opts ...session.Option) (http.Handler, *session.Session) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	s := newSession(t, opts...)
	return NewRouter(s, base).Handler(), s
}

func doReq(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		raw, _ := json.Marshal(b)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func frame(ts int64, left, right float64) face.Frame {
	return face.FrameOf(face.NewSample(time.UnixMilli(ts), left, right))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// wireResp mirrors framesResp with undecoded event payloads.
type wireResp struct {
	Accepted int `json:"accepted"`
	Events   []struct {
		Kind event.Kind      `json:"kind"`
		Time time.Time       `json:"time"`
		Data json.RawMessage `json:"data"`
	} `json:"events"`
	Error string `json:"error"`
}

func (w wireResp) kinds() []event.Kind {
	out := make([]event.Kind, len(w.Events))
	for i, e := range w.Events {
		out[i] = e.Kind
	}
	return out
}

func TestFramesSingle(t *testing.T) {
	h, _ := setupRouter(t, "/api")
	rec := doReq(t, h, http.MethodPost, "/api/frames", frame(0, 0.9, 0.9))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[wireResp](t, rec)
	assert.Equal(t, 1, resp.Accepted)
	assert.Equal(t, []event.Kind{event.KindAppActive, event.KindUpdate, event.KindEyesOpened, event.KindAwake}, resp.kinds())
	assert.Empty(t, resp.Error)
}

func TestFramesBatchProducesSlowClosure(t *testing.T) {
	h, _ := setupRouter(t, "")
	batch := []face.Frame{frame(0, 0.9, 0.9), frame(100, 0.1, 0.1), frame(650, 0.1, 0.1), frame(700, 0.9, 0.9)}
	rec := doReq(t, h, http.MethodPost, "/frames", batch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[wireResp](t, rec)
	assert.Equal(t, 4, resp.Accepted)
	assert.Contains(t, resp.kinds(), event.KindSlowEyelidClosure)
	assert.Contains(t, resp.kinds(), event.KindPendingSlowEyelidClosure)
}

func TestFramesStaleReturnsConflict(t *testing.T) {
	h, s := setupRouter(t, "")
	rec := doReq(t, h, http.MethodPost, "/frames", []face.Frame{frame(10, 0.9, 0.9), frame(10, 0.9, 0.9)})
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	resp := decode[wireResp](t, rec)
	assert.Equal(t, 1, resp.Accepted)
	assert.Contains(t, resp.Error, "stale frame")
	assert.NotEmpty(t, resp.Events)

	// the session stays usable
	rec = doReq(t, h, http.MethodPost, "/frames", frame(20, 0.9, 0.9))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, s.Status().FramesStale)
}

func TestFramesInvalidInput(t *testing.T) {
	h, _ := setupRouter(t, "")
	cases := map[string]string{
		"not json":           "{",
		"wrong type":         `{"timestamp_ms": "soon"}`,
		"negative timestamp": `{"timestamp_ms": -5, "landmarks": ["left_eye", "right_eye"]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := doReq(t, h, http.MethodPost, "/frames", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestFramesWithoutEyesAreAcceptedSilently(t *testing.T) {
	h, s := setupRouter(t, "")
	body := `{"timestamp_ms": 5, "left_eye_open_probability": 0.9, "right_eye_open_probability": 0.9, "landmarks": ["nose_base"]}`
	rec := doReq(t, h, http.MethodPost, "/frames", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[wireResp](t, rec).Events)
	assert.EqualValues(t, 1, s.Status().FramesDropped)
}

func TestFramesHandlerFailure(t *testing.T) {
	boom := errors.New("sink exploded")
	failing := event.SubscriberFunc(func(e event.Event) error {
		if e.Kind() == event.KindAwake {
			return boom
		}
		return nil
	})
	h, s := setupRouter(t, "", session.WithSubscribers(failing))

	rec := doReq(t, h, http.MethodPost, "/frames", frame(0, 0.9, 0.9))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, decode[wireResp](t, rec).Error, "sink exploded")
	assert.ErrorIs(t, s.Err(), boom)

	rec = doReq(t, h, http.MethodPost, "/frames", frame(10, 0.9, 0.9))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	st := decode[session.Status](t, doReq(t, h, http.MethodGet, "/status", nil))
	assert.True(t, st.Failed)
}

func TestFramesClosedSession(t *testing.T) {
	h, s := setupRouter(t, "")
	require.NoError(t, s.Close())
	rec := doReq(t, h, http.MethodPost, "/frames", frame(0, 0.9, 0.9))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPresence(t *testing.T) {
	h, s := setupRouter(t, "/api")

	rec := doReq(t, h, http.MethodPost, "/api/presence", map[string]bool{"present": true})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "active", s.Status().Presence)

	rec = doReq(t, h, http.MethodPost, "/api/presence", map[string]bool{"present": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", s.Status().Presence)

	// an accepted frame counts as a face update
	rec = doReq(t, h, http.MethodPost, "/api/frames", frame(0, 0.9, 0.9))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", s.Status().Presence)

	rec = doReq(t, h, http.MethodPost, "/api/presence", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = doReq(t, h, http.MethodPost, "/api/presence", "nope")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus(t *testing.T) {
	h, s := setupRouter(t, "/base")
	doReq(t, h, http.MethodPost, "/base/frames", frame(0, 0.1, 0.1))

	rec := doReq(t, h, http.MethodGet, "/base/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	st := decode[session.Status](t, rec)
	assert.Equal(t, s.ID(), st.ID)
	assert.Equal(t, event.KindAwake, st.State)
	assert.Equal(t, "closed", st.Eyes)
	assert.NotNil(t, st.ClosedSince)
	assert.EqualValues(t, 1, st.FramesProcessed)
}

func TestOptionalRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newSession(t)

	bare := NewRouter(s, "").Handler()
	assert.Equal(t, http.StatusNotFound, doReq(t, bare, http.MethodGet, "/metrics", nil).Code)
	assert.Equal(t, http.StatusNotFound, doReq(t, bare, http.MethodGet, "/events", nil).Code)

	full := NewRouter(s, "", WithMetrics(), WithHub(NewHub(nil))).Handler()
	rec := doReq(t, full, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	// plain GET without upgrade headers is rejected by the upgrader
	assert.Equal(t, http.StatusBadRequest, doReq(t, full, http.MethodGet, "/events", nil).Code)
}

func TestEventStream(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub(nil)
	s := newSession(t, session.WithSubscribers(hub))
	srv := httptest.NewServer(NewRouter(s, "/api", WithHub(hub)).Handler())
	defer srv.Close()
	defer hub.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	_, err = s.Process(face.NewSample(time.UnixMilli(0), 0.9, 0.9))
	require.NoError(t, err)

	var got []event.Kind
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for len(got) < 4 {
		_, msg, err := conn.ReadMessage()
		require.NoError(t, err)
		var env struct {
			Kind event.Kind      `json:"kind"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, json.Unmarshal(msg, &env))
		got = append(got, env.Kind)
	}
	assert.Equal(t, []event.Kind{event.KindAppActive, event.KindUpdate, event.KindEyesOpened, event.KindAwake}, got)
	sent, dropped := hub.Stats()
	assert.EqualValues(t, 4, sent)
	assert.Zero(t, dropped)
}

func TestHubDropsWhenClientBufferFull(t *testing.T) {
	hub := NewHub(nil)
	c := &wsClient{send: make(chan []byte, 1)}
	hub.clients[c] = struct{}{}

	e := event.AwakeEvent{At: time.UnixMilli(0)}
	require.NoError(t, hub.broadcast(e))
	require.NoError(t, hub.broadcast(e))

	sent, dropped := hub.Stats()
	assert.EqualValues(t, 1, sent)
	assert.EqualValues(t, 1, dropped)

	hub.Close()
	assert.Zero(t, hub.Clients())
	_, ok := <-c.send
	assert.True(t, ok, "buffered event still readable")
	_, ok = <-c.send
	assert.False(t, ok, "channel closed")
}

func TestNewServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := newSession(t)
	srv, err := NewServer("127.0.0.1:0", "/api", s)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, srv.ReadHeaderTimeout)
	assert.NoError(t, srv.Close())
}
