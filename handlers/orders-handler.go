package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lucypulova/Elitearn/internal/orders"
	"github.com/lucypulova/Elitearn/pkg/ctxmanage"
	"github.com/lucypulova/Elitearn/pkg/logkey"
)

type createOrderRequest struct {
	Customer struct {
		FullName string `json:"full_name"`
		Phone    string `json:"phone"`
	} `json:"customer"`
}

// CreateOrder converts the buyer's active cart into a created order.
func (h *Handler) CreateOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req createOrderRequest
	// The body is optional; an empty body means no contact snapshot.
	_ = c.ShouldBindJSON(&req)

	buyer := orders.Buyer{ID: userID, Email: claims.Email}
	ord, err := h.o.CreateOrder(c.Request.Context(), buyer, orders.ContactInfo{
		FullName: strings.TrimSpace(req.Customer.FullName),
		Phone:    strings.TrimSpace(req.Customer.Phone),
	})
	if err != nil {
		switch {
		case errors.Is(err, orders.ErrEmptyCart):
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Cart is empty"})
		case errors.Is(err, orders.ErrAlreadyOwned):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Cart contains a course you already own"})
		case errors.Is(err, orders.ErrSelfPurchase):
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "Cart contains a course you created"})
		default:
			slog.Error("order creation failed", slog.String(logkey.TraceID, traceId),
				slog.String(logkey.Error, err.Error()))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "order creation failed"})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"ok":             true,
		"order_id":       ord.ID,
		"order_number":   ord.OrderNumber,
		"status":         ord.Status,
		"subtotal_cents": ord.SubtotalCents,
		"total_cents":    ord.TotalCents,
	})
}

// ProcessOrder drives payment authorization and fulfillment.
func (h *Handler) ProcessOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid orderId"})
		return
	}

	buyer := orders.Buyer{ID: userID, Email: claims.Email}
	res, err := h.o.ProcessOrder(c.Request.Context(), orderID, buyer)
	if err != nil {
		h.abortOrderError(c, traceId, err)
		return
	}
	h.renderProcessingResult(c, res)
}

type confirmOrderRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
}

// ConfirmOrder finishes a stripe order after client-side confirmation.
func (h *Handler) ConfirmOrder(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	claims, userID, ok := currentUser(c)
	if !ok {
		return
	}
	orderID, err := strconv.ParseInt(c.Param("orderId"), 10, 64)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid orderId"})
		return
	}

	var req confirmOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "payment_intent_id is required"})
		return
	}

	buyer := orders.Buyer{ID: userID, Email: claims.Email}
	res, err := h.o.ConfirmOrder(c.Request.Context(), orderID, buyer, strings.TrimSpace(req.PaymentIntentID))
	if err != nil {
		h.abortOrderError(c, traceId, err)
		return
	}
	h.renderProcessingResult(c, res)
}

func (h *Handler) abortOrderError(c *gin.Context, traceId string, err error) {
	h.metrics.OrdersProcessed.WithLabelValues("error").Inc()
	switch {
	case errors.Is(err, orders.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Order not found"})
	case errors.Is(err, orders.ErrForbidden):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "No access to this order"})
	case errors.Is(err, orders.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, orders.ErrNotStripe):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Stripe is not enabled"})
	default:
		slog.Error("order processing failed", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "order processing failed"})
	}
}

// renderProcessingResult maps the pipeline outcome onto the HTTP contract:
// 402 for a decline, the cancellation's own code for an eligibility failure,
// 200 with a client secret for a pending stripe confirmation, 200 otherwise.
func (h *Handler) renderProcessingResult(c *gin.Context, res orders.ProcessingResult) {
	switch {
	case res.Declined:
		h.metrics.OrdersProcessed.WithLabelValues("declined").Inc()
		c.JSON(http.StatusPaymentRequired, gin.H{
			"ok":     false,
			"status": res.Status,
			"error":  "Payment declined",
			"reason": res.DeclineReason,
		})
	case res.Cancelled:
		h.metrics.OrdersProcessed.WithLabelValues("cancelled").Inc()
		code := res.CancelledCode
		if code == 0 {
			code = http.StatusConflict
		}
		c.JSON(code, gin.H{"ok": false, "status": res.Status, "error": res.CancelledReason})
	case res.ClientSecret != "":
		h.metrics.OrdersProcessed.WithLabelValues("awaiting_confirmation").Inc()
		c.JSON(http.StatusOK, gin.H{
			"ok":            true,
			"provider":      "stripe",
			"order_id":      res.OrderID,
			"order_number":  res.OrderNumber,
			"status":        res.Status,
			"client_secret": res.ClientSecret,
		})
	default:
		h.metrics.OrdersProcessed.WithLabelValues("completed").Inc()
		out := gin.H{
			"ok":           true,
			"order_id":     res.OrderID,
			"order_number": res.OrderNumber,
			"status":       res.Status,
		}
		if res.GrantedCourseIDs != nil {
			out["granted_courses"] = res.GrantedCourseIDs
		}
		if res.Free {
			out["free"] = true
		}
		c.JSON(http.StatusOK, out)
	}
}

// ListOrders is the buyer's order history.
func (h *Handler) ListOrders(c *gin.Context) {
	traceId := ctxmanage.GetTraceIdOfRequest(c)
	_, userID, ok := currentUser(c)
	if !ok {
		return
	}

	list, err := h.o.ListOrders(c.Request.Context(), userID)
	if err != nil {
		slog.Error("failed to list orders", slog.String(logkey.TraceID, traceId),
			slog.String(logkey.Error, err.Error()))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to list orders"})
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, list)
}
