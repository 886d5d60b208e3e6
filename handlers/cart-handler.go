package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/lucypulova/Elitearn/internal/cart"
	"github.com/lucypulova/Elitearn/pkg/ctxmanage"
	"github.com/lucypulova/Elitearn/pkg/logkey"
)

func (h *Handler) GetCart(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}

	view, err := h.cart.Read(c.Request.Context(), userID)
	if err != nil {
		slog.Error("failed to read cart", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to read cart"})
		return
	}
	c.JSON(http.StatusOK, view)
}

type addCartItemRequest struct {
	CourseID int64 `json:"course_id" binding:"required,gt=0"`
	Qty      int   `json:"qty" binding:"omitempty,gt=0"`
}

func (h *Handler) AddCartItem(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}

	view, err := h.cart.AddItem(c.Request.Context(), userID, req.CourseID, req.Qty)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrCourseNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Course not found"})
		case errors.Is(err, cart.ErrOwnCourse):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "You cannot buy a course you created"})
		case errors.Is(err, cart.ErrAlreadyOwned):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "You already own this course"})
		default:
			slog.Error("failed to add cart item", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to add cart item"})
		}
		return
	}
	c.JSON(http.StatusOK, view)
}

type updateCartItemRequest struct {
	Qty int `json:"qty" binding:"required"`
}

func (h *Handler) UpdateCartItem(c *gin.Context) {
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

	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.cart.SetQty(c.Request.Context(), userID, courseID, req.Qty)
	if err != nil {
		slog.Error("failed to update cart item", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to update cart item"})
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) RemoveCartItem(c *gin.Context) {
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

	view, err := h.cart.RemoveItem(c.Request.Context(), userID, courseID)
	if err != nil {
		slog.Error("failed to remove cart item", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to remove cart item"})
		return
	}
	c.JSON(http.StatusOK, view)
}
