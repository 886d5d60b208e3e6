package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucypulova/Elitearn/internal/courses"
	"github.com/lucypulova/Elitearn/pkg/ctxmanage"
	"github.com/lucypulova/Elitearn/pkg/logkey"
)

// DownloadAsset streams a material to a logged-in buyer or the course
// creator.
func (h *Handler) DownloadAsset(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}
	assetID, err := strconv.ParseInt(c.Param("assetId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid assetId"})
		return
	}

	h.serveAsset(c, traceId, assetID, userID)
}

// PublicDownload resolves a signed download link from a confirmation email.
// No session is required: the token itself carries the asset and user, and
// access is re-checked against the current enrollment state so a revoked
// grant also revokes old links.
func (h *Handler) PublicDownload(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	token := c.Param("token")
	if token == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Missing token"})
		return
	}

	claims, err := h.keys.ValidateDownloadToken(token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired link"})
		return
	}
	if claims.AssetID <= 0 || claims.UserID <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid token payload"})
		return
	}

	h.serveAsset(c, traceId, claims.AssetID, claims.UserID)
}

func (h *Handler) serveAsset(c *gin.Context, traceId string, assetID, userID int64) {
	asset, err := h.catalog.GetAsset(c.Request.Context(), assetID)
	if err != nil {
		if errors.Is(err, courses.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
			return
		}
		slog.Error("failed to load asset", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}

	allowed, err := h.catalog.CanAccessAsset(c.Request.Context(), userID, assetID)
	if err != nil {
		slog.Error("failed to check asset access", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "download failed"})
		return
	}
	if !allowed {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No access to this file"})
		return
	}

	path := asset.FilePath
	if _, err := os.Stat(path); err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "File missing on server"})
		return
	}

	contentType := asset.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Type", contentType)

	name := asset.Title
	if name == "" {
		name = filepath.Base(path)
	}
	c.FileAttachment(path, downloadName(name))
}

// downloadName sanitizes a title into a filename an HTTP client will accept.
func downloadName(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}
