package orders

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

type StatusUpdater interface {
	UpdateStatus(ctx context.Context, orderID int64, target Status) (*Order, error)
}

// OrderHandler contém os handlers HTTP para pedidos
type OrderHandler struct {
	useCase StatusUpdater
}

// NewOrderHandler cria uma nova instância de OrderHandler
func NewOrderHandler(useCase StatusUpdater) *OrderHandler {
	return &OrderHandler{useCase: useCase}
}

type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// UpdateStatus é o endpoint PATCH /api/orders/:id/status
func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	target, err := ParseStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	order, err := h.useCase.UpdateStatus(c.Request.Context(), orderID, target)
	if err != nil {
		var transitionErr *TransitionError
		switch {
		case errors.Is(err, ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.As(err, &transitionErr):
			c.JSON(http.StatusConflict, gin.H{
				"error": err.Error(),
				"from":  transitionErr.From,
				"to":    transitionErr.To,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update order status"})
		}
		return
	}

	c.JSON(http.StatusOK, order)
}
