package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/grimoire/internal/middleware"
	"github.com/mcoot/grimoire/internal/testutil"
)

func TestLoggingCapturesStatusAndSize(t *testing.T) {
	logger, logs := testutil.CaptureLogger()

	h := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusTeapot, rr.Code)
	entry := logs.Find("http request")
	require.NotNil(t, entry)
	assert.EqualValues(t, 418, entry["status"])
	assert.EqualValues(t, 15, entry["size"])
	assert.Equal(t, "/api/v1/health", entry["path"])
}

func TestLoggingAllowsWebsocketUpgrade(t *testing.T) {
	logger, logs := testutil.CaptureLogger()
	upgrader := websocket.Upgrader{}

	h := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte("hello"))
	}))
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+srv.URL[len("http"):], nil)
	require.NoError(t, err)
	defer conn.Close()

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// The record is written once the handler returns
	assert.Eventually(t, func() bool {
		return logs.Find("connection upgraded") != nil
	}, time.Second, 10*time.Millisecond)
	assert.EqualValues(t, http.StatusSwitchingProtocols, logs.Find("connection upgraded")["status"])
}

func TestHijackUnsupported(t *testing.T) {
	rw := &middleware.ResponseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	assert.Error(t, err)
	assert.False(t, rw.Hijacked())
}

func TestRecoveryWritesResponse(t *testing.T) {
	h := middleware.Recovery(testutil.NopLogger(), middleware.DefaultPanicHandler)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}),
	)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestRecoveryReraisesAbort(t *testing.T) {
	h := middleware.Recovery(testutil.NopLogger(), middleware.DefaultPanicHandler)(
		http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}),
	)

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
