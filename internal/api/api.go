// Package api is the HTTP Surface (spec §4.6): the boundary exposing
// provision/deprovision, playback, health, sessions and metrics. It
// enforces token scope, invokes retryable asset reads, and records
// metrics in a finally-style wrapper around every playback request.
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/nearhome/streamgate/internal/apierr"
	"github.com/nearhome/streamgate/internal/assets"
	"github.com/nearhome/streamgate/internal/logging"
	"github.com/nearhome/streamgate/internal/obs"
	"github.com/nearhome/streamgate/internal/registry"
	"github.com/nearhome/streamgate/internal/session"
	"github.com/nearhome/streamgate/internal/token"
	"github.com/nearhome/streamgate/internal/version"
)

// Server wires the domain components to gin routes.
type Server struct {
	Registry *registry.Registry
	Sessions *session.Manager
	Verifier *token.Verifier
	Reader   *assets.Reader
	Metrics  *obs.Metrics
	Logger   logging.Logger

	// DoSweep forces one session sweep pass, backing POST /sessions/sweep.
	DoSweep func() session.SweepResult
}

// Register attaches every streamgate route to engine.
func (s *Server) Register(engine *gin.Engine, health *obs.HealthChecker) {
	engine.GET("/health", health.Handler())
	engine.GET("/health/:tenantId/:cameraId", s.getStreamHealth)
	engine.GET("/version", s.getVersion)

	engine.POST("/provision", s.provision)
	engine.POST("/deprovision", s.deprovision)

	engine.GET("/playback/:tenantId/:cameraId/index.m3u8", s.playbackManifest)
	engine.GET("/playback/:tenantId/:cameraId/segment0.ts", s.playbackSegment)

	engine.GET("/sessions", s.listSessions)
	engine.POST("/sessions/sweep", s.sweepSessions)
}

// --- provisioning ---

type provisionRequest struct {
	TenantID       string   `json:"tenantId" binding:"required"`
	CameraID       string   `json:"cameraId" binding:"required"`
	RTSPUrl        string   `json:"rtspUrl" binding:"required,min=4"`
	Transport      string   `json:"transport"`
	CodecHint      string   `json:"codecHint"`
	TargetProfiles []string `json:"targetProfiles"`
}

func (s *Server) provision(c *gin.Context) {
	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Validation(fieldErrors(err)))
		return
	}

	source := registry.Source{
		Transport:      defaultString(req.Transport, registry.TransportAuto),
		CodecHint:      defaultString(req.CodecHint, "unknown"),
		TargetProfiles: req.TargetProfiles,
	}
	if len(source.TargetProfiles) == 0 {
		source.TargetProfiles = []string{"main"}
	}

	result, err := s.Registry.Upsert(req.TenantID, req.CameraID, req.RTSPUrl, source)
	if err != nil {
		renderError(c, apierr.Internal(err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"tenantId":      result.Entry.TenantID,
		"cameraId":      result.Entry.CameraID,
		"rtspUrl":       result.Entry.RTSPUrl,
		"source":        result.Entry.Source,
		"version":       result.Entry.Version,
		"status":        result.Entry.Status,
		"health":        result.Entry.Health,
		"updatedAt":     result.Entry.UpdatedAt,
		"playbackPath":  "/playback/" + result.Entry.TenantID + "/" + result.Entry.CameraID + "/index.m3u8",
		"reprovisioned": result.Reprovisioned,
	}})
}

type deprovisionRequest struct {
	TenantID string `json:"tenantId" binding:"required"`
	CameraID string `json:"cameraId" binding:"required"`
}

func (s *Server) deprovision(c *gin.Context) {
	var req deprovisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, apierr.Validation(fieldErrors(err)))
		return
	}

	removed := s.Registry.MarkStopped(req.TenantID, req.CameraID)
	if removed {
		s.Sessions.CloseForStream(req.TenantID, req.CameraID, session.ReasonDeprovision)
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"removed": removed}})
}

// --- version ---

func (s *Server) getVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetInfo())
}

// --- health ---

func (s *Server) getStreamHealth(c *gin.Context) {
	tenantID, cameraID := c.Param("tenantId"), c.Param("cameraId")
	entry, ok := s.Registry.Get(tenantID, cameraID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "reason": "not_provisioned"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "data": entry})
}

// --- sessions ---

func (s *Server) listSessions(c *gin.Context) {
	filter := session.Filter{
		TenantID: c.Query("tenantId"),
		CameraID: c.Query("cameraId"),
		Status:   c.Query("status"),
		SID:      c.Query("sid"),
	}
	entries := s.Sessions.List(filter)
	c.JSON(http.StatusOK, gin.H{"data": entries, "total": len(entries)})
}

func (s *Server) sweepSessions(c *gin.Context) {
	result := s.DoSweep()
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"expired": result.Expired, "ended": result.Ended}})
}

// --- helpers ---

func defaultString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func renderError(c *gin.Context, err *apierr.Error) {
	status, envelope := apierr.Render(err)
	c.AbortWithStatusJSON(status, envelope)
}

// fieldErrors converts a gin/validator binding error into the machine
// readable details array spec §7 requires for VALIDATION_ERROR.
func fieldErrors(err error) []gin.H {
	var verrs validator.ValidationErrors
	if !asValidationErrors(err, &verrs) {
		return []gin.H{{"field": "body", "reason": err.Error()}}
	}
	details := make([]gin.H, 0, len(verrs))
	for _, fe := range verrs {
		details = append(details, gin.H{
			"field":  strings.ToLower(fe.Field()),
			"reason": reasonFor(fe),
		})
	}
	return details
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return false
	}
	*target = verrs
	return true
}

func reasonFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "required"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	default:
		return fe.Tag()
	}
}
