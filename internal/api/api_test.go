package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/nearhome/streamgate/internal/apierr"
	"github.com/nearhome/streamgate/internal/assets"
	"github.com/nearhome/streamgate/internal/obs"
	"github.com/nearhome/streamgate/internal/registry"
	"github.com/nearhome/streamgate/internal/session"
	"github.com/nearhome/streamgate/internal/token"
)

const testSecret = "test-shared-secret"

// testMetrics is built once per test binary: obs.NewMetrics registers its
// collectors on the default Prometheus registry, which rejects a second
// registration of the same names.
var testMetrics = obs.NewMetrics("test", "test")

type testHarness struct {
	engine   *gin.Engine
	registry *registry.Registry
	sessions *session.Manager
	verifier *token.Verifier
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	producer := assets.NewProducer(root)
	reg := registry.New(producer)
	sessions := session.New()
	verifier := token.New([]byte(testSecret))
	reader := assets.NewReader(root, assets.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil, 1000, 1000)

	srv := &Server{
		Registry: reg,
		Sessions: sessions,
		Verifier: verifier,
		Reader:   reader,
		Metrics:  testMetrics,
		DoSweep: func() session.SweepResult {
			return sessions.Sweep(time.Second)
		},
	}

	engine := gin.New()
	health := obs.NewHealthChecker("streamgate", "test")
	srv.Register(engine, health)
	engine.NoRoute(func(c *gin.Context) {
		status, envelope := apierr.Render(apierr.NotFound())
		c.JSON(status, envelope)
	})

	return &testHarness{engine: engine, registry: reg, sessions: sessions, verifier: verifier}
}

func (h *testHarness) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.engine.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) mintToken(t *testing.T, tenantID, cameraID, sid string, exp time.Time) string {
	t.Helper()
	tok, err := h.verifier.Mint(token.Payload{
		Sub: "user-1",
		Tid: tenantID,
		Cid: cameraID,
		Sid: sid,
		Exp: exp.Unix(),
		Iat: time.Now().Unix(),
		V:   1,
	})
	require.NoError(t, err)
	return tok
}

func TestS1HappyPath(t *testing.T) {
	h := newHarness(t)

	rec := h.do(http.MethodPost, "/provision", gin.H{
		"tenantId": "tenant-a", "cameraId": "camera-a", "rtspUrl": "rtsp://demo/camera-a",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var provisioned struct {
		Data struct {
			Version       int  `json:"version"`
			Reprovisioned bool `json:"reprovisioned"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &provisioned))
	require.Equal(t, 1, provisioned.Data.Version)
	require.True(t, provisioned.Data.Reprovisioned)

	tok := h.mintToken(t, "tenant-a", "camera-a", "sid-s1", time.Now().Add(time.Minute))
	rec = h.do(http.MethodGet, "/playback/tenant-a/camera-a/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "#EXTM3U")
	require.Contains(t, rec.Body.String(), "/playback/tenant-a/camera-a/segment0.ts")
}

func TestS2ExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/provision", gin.H{"tenantId": "tenant-a", "cameraId": "camera-a", "rtspUrl": "rtsp://demo/camera-a"})

	tok := h.mintToken(t, "tenant-a", "camera-a", "sid-expired", time.Now().Add(-60*time.Second))
	rec := h.do(http.MethodGet, "/playback/tenant-a/camera-a/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "PLAYBACK_TOKEN_EXPIRED")
}

func TestS3ScopeMismatch(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/provision", gin.H{"tenantId": "tenant-d", "cameraId": "camera-d", "rtspUrl": "rtsp://demo/camera-d"})

	tok := h.mintToken(t, "tenant-other", "camera-d", "sid-scope", time.Now().Add(time.Minute))
	rec := h.do(http.MethodGet, "/playback/tenant-d/camera-d/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Body.String(), "PLAYBACK_TOKEN_SCOPE_MISMATCH")
}

func TestS4Deprovision(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/provision", gin.H{"tenantId": "tenant-c", "cameraId": "camera-c", "rtspUrl": "rtsp://demo/camera-c"})
	h.do(http.MethodPost, "/deprovision", gin.H{"tenantId": "tenant-c", "cameraId": "camera-c"})

	tok := h.mintToken(t, "tenant-c", "camera-c", "sid-deprov", time.Now().Add(time.Minute))
	rec := h.do(http.MethodGet, "/playback/tenant-c/camera-c/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusGone, rec.Code)
	require.Contains(t, rec.Body.String(), "PLAYBACK_STREAM_STOPPED")
}

func TestS5SessionClosedAfterSweep(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/provision", gin.H{
		"tenantId": "tenant-session-ended", "cameraId": "camera-session-ended", "rtspUrl": "rtsp://demo/session-ended",
	})

	tok := h.mintToken(t, "tenant-session-ended", "camera-session-ended", "sid-ended-1", time.Now().Add(time.Minute))
	rec := h.do(http.MethodGet, "/playback/tenant-session-ended/camera-session-ended/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	h.sessions.Sweep(0) // force idle timeout to fire regardless of elapsed wall time

	rec = h.do(http.MethodGet, "/playback/tenant-session-ended/camera-session-ended/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, rec.Body.String(), "PLAYBACK_SESSION_CLOSED")
}

func TestS6ReprovisionVersionBump(t *testing.T) {
	h := newHarness(t)
	body := gin.H{
		"tenantId": "tenant-reprovision", "cameraId": "camera-reprovision",
		"rtspUrl": "rtsp://demo/reprovision", "transport": "tcp", "codecHint": "h264",
		"targetProfiles": []string{"main", "sub"},
	}

	first := h.do(http.MethodPost, "/provision", body)
	second := h.do(http.MethodPost, "/provision", body)

	var firstResp, secondResp struct {
		Data struct {
			Version       int  `json:"version"`
			Reprovisioned bool `json:"reprovisioned"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResp))
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResp))
	require.Equal(t, 1, firstResp.Data.Version)
	require.Equal(t, 1, secondResp.Data.Version)
	require.False(t, secondResp.Data.Reprovisioned)

	body["rtspUrl"] = "rtsp://demo/reprovision-changed"
	third := h.do(http.MethodPost, "/provision", body)
	var thirdResp struct {
		Data struct {
			Version       int  `json:"version"`
			Reprovisioned bool `json:"reprovisioned"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(third.Body.Bytes(), &thirdResp))
	require.Equal(t, 2, thirdResp.Data.Version)
	require.True(t, thirdResp.Data.Reprovisioned)
}

func TestPlaybackAgainstUnprovisionedStreamIs404(t *testing.T) {
	h := newHarness(t)
	tok := h.mintToken(t, "tenant-z", "camera-z", "sid-z", time.Now().Add(time.Minute))
	rec := h.do(http.MethodGet, "/playback/tenant-z/camera-z/index.m3u8?token="+tok, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "PLAYBACK_STREAM_NOT_FOUND")
}

func TestProvisionValidationError(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/provision", gin.H{"tenantId": "t", "cameraId": "c", "rtspUrl": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}

func TestUnknownRouteIs404(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodGet, "/nope", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "Route not found")
}

func TestSweepEndpointForcesPass(t *testing.T) {
	h := newHarness(t)
	rec := h.do(http.MethodPost, "/sessions/sweep", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestListSessionsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.do(http.MethodPost, "/provision", gin.H{"tenantId": "tenant-a", "cameraId": "camera-a", "rtspUrl": "rtsp://demo/camera-a"})
	tok := h.mintToken(t, "tenant-a", "camera-a", "sid-list", time.Now().Add(time.Minute))
	h.do(http.MethodGet, "/playback/tenant-a/camera-a/index.m3u8?token="+tok, nil)

	rec := h.do(http.MethodGet, "/sessions?tenantId=tenant-a", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "sid-list")
}
