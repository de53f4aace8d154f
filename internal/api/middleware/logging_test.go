package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/grimoire/internal/api/middleware"
	"github.com/mcoot/grimoire/internal/testutil"
)

func TestLoggingTagsComponent(t *testing.T) {
	logger, logs := testutil.CaptureLogger()

	h := middleware.Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/scripts", nil))

	entry := logs.Find("http request")
	require.NotNil(t, entry)
	assert.Equal(t, "http", entry["component"])
	assert.EqualValues(t, http.StatusNoContent, entry["status"])
}
