package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lucypulova/Elitearn/internal/courses"
	"github.com/lucypulova/Elitearn/pkg/ctxmanage"
	"github.com/lucypulova/Elitearn/pkg/logkey"
)

// ListCourses is the public storefront catalog.
func (h *Handler) ListCourses(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)

	list, err := h.catalog.ListPublished(c.Request.Context())
	if err != nil {
		slog.Error("failed to list courses", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list courses"})
		return
	}
	if list == nil {
		list = []courses.Course{}
	}
	c.JSON(http.StatusOK, list)
}

// ListMyCourses returns the caller's actively enrolled courses.
func (h *Handler) ListMyCourses(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.catalog.ListEnrolled(c.Request.Context(), userID)
	if err != nil {
		slog.Error("failed to list enrolled courses", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list courses"})
		return
	}
	if list == nil {
		list = []courses.Course{}
	}
	c.JSON(http.StatusOK, list)
}

type createCourseRequest struct {
	CategoryID  int64  `json:"category_id" binding:"required,gt=0"`
	Title       string `json:"title" binding:"required"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents" binding:"gte=0"`
	IsPublished *bool  `json:"is_published"`
}

func (h *Handler) CreateCourse(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req createCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	published := true
	if req.IsPublished != nil {
		published = *req.IsPublished
	}

	course, err := h.catalog.CreateCourse(c.Request.Context(), userID, courses.NewCourse{
		CategoryID:  req.CategoryID,
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		IsPublished: published,
	})
	if err != nil {
		slog.Error("failed to create course", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to create course"})
		return
	}
	c.JSON(http.StatusCreated, course)
}

func (h *Handler) ListCreatorCourses(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.catalog.ListByCreator(c.Request.Context(), userID)
	if err != nil {
		slog.Error("failed to list creator courses", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list courses"})
		return
	}
	if list == nil {
		list = []courses.Course{}
	}
	c.JSON(http.StatusOK, list)
}

// UploadAsset receives a multipart material file for the creator's course and
// stores it under the uploads directory with a generated name.
func (h *Handler) UploadAsset(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}
	courseID, err := strconv.ParseInt(c.Param("courseId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid courseId"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "file is required"})
		return
	}
	title := c.PostForm("title")
	if title == "" {
		title = file.Filename
	}

	if err := os.MkdirAll(h.uploadsDir, 0o755); err != nil {
		slog.Error("failed to create uploads dir", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}
	storedPath := filepath.Join(h.uploadsDir, uuid.NewString()+filepath.Ext(file.Filename))
	if err := c.SaveUploadedFile(file, storedPath); err != nil {
		slog.Error("failed to save upload", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		return
	}

	asset, err := h.catalog.AddAsset(c.Request.Context(), courseID, userID, title, storedPath,
		file.Header.Get("Content-Type"), file.Size)
	if err != nil {
		_ = os.Remove(storedPath)
		switch {
		case errors.Is(err, courses.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		case errors.Is(err, courses.ErrForbidden):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your course"})
		default:
			slog.Error("failed to record asset", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "upload failed"})
		}
		return
	}
	c.JSON(http.StatusCreated, asset)
}

func (h *Handler) DeleteAsset(c *gin.Context) {
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

	asset, err := h.catalog.DeleteAsset(c.Request.Context(), assetID, userID)
	if err != nil {
		switch {
		case errors.Is(err, courses.ErrNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Asset not found"})
		case errors.Is(err, courses.ErrForbidden):
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Not your course"})
		default:
			slog.Error("failed to delete asset", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to delete asset"})
		}
		return
	}
	_ = os.Remove(asset.FilePath)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListCourseAssets returns the material metadata of a course the caller can
// access (active enrollment or authorship).
func (h *Handler) ListCourseAssets(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}
	courseID, err := strconv.ParseInt(c.Param("courseId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid courseId"})
		return
	}

	course, err := h.catalog.GetCourse(c.Request.Context(), courseID)
	if err != nil {
		if errors.Is(err, courses.ErrNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Course not found"})
			return
		}
		slog.Error("failed to load course", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load course"})
		return
	}

	if course.CreatorUserID != userID {
		enrolled, err := h.catalog.HasActiveEnrollment(c.Request.Context(), userID, courseID)
		if err != nil {
			slog.Error("failed to check enrollment", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load assets"})
			return
		}
		if !enrolled {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No access to this course"})
			return
		}
	}

	list, err := h.catalog.ListAssets(c.Request.Context(), courseID)
	if err != nil {
		slog.Error("failed to list assets", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to load assets"})
		return
	}
	if list == nil {
		list = []courses.Asset{}
	}
	c.JSON(http.StatusOK, list)
}
