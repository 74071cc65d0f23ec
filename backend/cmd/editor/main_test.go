package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"prompt-studio/backend/internal/httpapi"
	"prompt-studio/backend/internal/prompt"
	"prompt-studio/backend/pkg/config"
)

func testConfig(apiURL string) *config.Config {
	return &config.Config{
		CORSOrigin:              "*",
		PromptAPIURL:            apiURL,
		PromptAPITimeout:        time.Second,
		VerticalSpacing:         100,
		HorizontalSpacing:       50,
		RootDefaultX:            10,
		RootDefaultY:            20,
		BreakerFailureThreshold: 0.8,
		BreakerMinRequests:      5,
		BreakerTimeout:          time.Second,
	}
}

func TestHealthAndMetrics(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig("http://127.0.0.1:0")
	sessions := httpapi.NewRegistry(newClient(cfg, zap.NewNop()), sessionOptions(cfg), zap.NewNop())
	router := newRouter(cfg, sessions, zap.NewNop())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOpenSession_UsesConfiguredLayout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/children"):
			_, _ = w.Write([]byte(`[{"name":"a","version":"1"},{"name":"b","version":"1"}]`))
		default:
			_, _ = w.Write([]byte(`{"name":"root","version":"1.0"}`))
		}
	}))
	defer store.Close()

	cfg := testConfig(store.URL)
	sessions := httpapi.NewRegistry(newClient(cfg, zap.NewNop()), sessionOptions(cfg), zap.NewNop())
	defer sessions.Shutdown()
	router := newRouter(cfg, sessions, zap.NewNop())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/sessions", bytes.NewBufferString(`{"name":"root","version":"1.0"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		View struct {
			Nodes []struct {
				ID       string          `json:"id"`
				Position prompt.Position `json:"position"`
			} `json:"nodes"`
		} `json:"view"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.View.Nodes, 3)
	assert.Equal(t, prompt.Position{X: 10, Y: 20}, resp.View.Nodes[0].Position)
	assert.Equal(t, prompt.Position{X: -15, Y: 120}, resp.View.Nodes[1].Position)
	assert.Equal(t, prompt.Position{X: 35, Y: 120}, resp.View.Nodes[2].Position)
}

func TestOpenSession_InvalidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := testConfig("http://127.0.0.1:0")
	sessions := httpapi.NewRegistry(newClient(cfg, zap.NewNop()), sessionOptions(cfg), zap.NewNop())
	router := newRouter(cfg, sessions, zap.NewNop())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/sessions", bytes.NewBuffer([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
