package api

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/nearhome/streamgate/internal/apierr"
	"github.com/nearhome/streamgate/internal/assets"
	"github.com/nearhome/streamgate/internal/registry"
	"github.com/nearhome/streamgate/internal/session"
	"github.com/nearhome/streamgate/internal/token"
)

// playbackManifest serves GET /playback/:tenantId/:cameraId/index.m3u8.
func (s *Server) playbackManifest(c *gin.Context) {
	s.servePlayback(c, assets.AssetManifest)
}

// playbackSegment serves GET /playback/:tenantId/:cameraId/segment0.ts.
func (s *Server) playbackSegment(c *gin.Context) {
	s.servePlayback(c, assets.AssetSegment)
}

// servePlayback implements the playback request handling order from
// spec §4.6: token verification, scope check, stream presence/status,
// session observation, then asset read with retry. Metrics are recorded in
// a finally-style wrapper so result and, on error, code are always
// recorded regardless of where the handler exits.
func (s *Server) servePlayback(c *gin.Context, asset assets.Asset) {
	tenantID, cameraID := c.Param("tenantId"), c.Param("cameraId")
	rawToken := c.Query("token")

	var apiErr *apierr.Error
	defer func() {
		s.recordPlaybackMetric(tenantID, cameraID, asset, apiErr)
	}()

	payload, err := s.Verifier.Verify(rawToken)
	if err != nil {
		apiErr = tokenAPIErr(err)
		renderError(c, apiErr)
		return
	}

	if payload.Tid != tenantID || payload.Cid != cameraID {
		apiErr = apierr.TokenScopeMismatch()
		renderError(c, apiErr)
		return
	}

	entry, ok := s.Registry.Get(tenantID, cameraID)
	if !ok {
		apiErr = apierr.StreamNotFound()
		renderError(c, apiErr)
		return
	}
	switch entry.Status {
	case registry.StatusProvisioning:
		apiErr = apierr.StreamNotReady()
		renderError(c, apiErr)
		return
	case registry.StatusStopped:
		apiErr = apierr.StreamStopped()
		renderError(c, apiErr)
		return
	}

	if err := s.Sessions.Observe(tenantID, cameraID, payload.Sid, payload.Sub, payload.Iat, payload.Exp); err != nil {
		if _, closed := err.(session.ErrSessionClosed); closed {
			apiErr = apierr.SessionClosed()
			renderError(c, apiErr)
			return
		}
		apiErr = apierr.Internal(err.Error())
		renderError(c, apiErr)
		return
	}

	switch asset {
	case assets.AssetManifest:
		content, err := s.Reader.ReadManifest(c.Request.Context(), tenantID, cameraID)
		if err != nil {
			apiErr = apierr.ManifestNotFound()
			renderError(c, apiErr)
			return
		}
		rewritten := assets.RewriteManifest(content, tenantID, cameraID, url.QueryEscape(rawToken))
		c.Data(http.StatusOK, "application/vnd.apple.mpegurl", rewritten)
	case assets.AssetSegment:
		content, err := s.Reader.ReadSegment(c.Request.Context(), tenantID, cameraID)
		if err != nil {
			apiErr = apierr.SegmentNotFound()
			renderError(c, apiErr)
			return
		}
		c.Data(http.StatusOK, "video/MP2T", content)
	}
}

func tokenAPIErr(err error) *apierr.Error {
	if verr, ok := err.(*token.VerifyError); ok {
		return apierr.TokenError(verr.Code)
	}
	return apierr.Internal(err.Error())
}

func (s *Server) recordPlaybackMetric(tenantID, cameraID string, asset assets.Asset, apiErr *apierr.Error) {
	if s.Metrics == nil {
		return
	}
	result := "ok"
	if apiErr != nil {
		result = "error"
	}
	s.Metrics.PlaybackRequestsTotal.WithLabelValues(tenantID, cameraID, string(asset), result).Inc()
	if apiErr != nil {
		s.Metrics.PlaybackErrorsTotal.WithLabelValues(tenantID, cameraID, string(asset), apiErr.Code).Inc()
	}
}
