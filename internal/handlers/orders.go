package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/orders"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/validation"
)

// OrderService is the order use-case surface the routes call.
type OrderService interface {
	CreateOrder(ctx context.Context, req validation.CreateOrderRequest, requestID string) (*orders.Order, error)
	DeleteOrder(ctx context.Context, key validation.OrderKey, requestID string) (*orders.Order, error)
	GetOrder(ctx context.Context, q validation.OrderQuery) ([]orders.Order, error)
}

// RegisterOrdersRoutes registers routes for the order API.
func RegisterOrdersRoutes(r gin.IRouter, svc OrderService, logger *zap.Logger) {
	r.POST("/orders", func(c *gin.Context) {
		var req validation.CreateOrderRequest
		if err := validation.BindJSON(c, &req); err != nil {
			// BindJSON already wrote a 400
			return
		}
		order, err := svc.CreateOrder(c.Request.Context(), req, RequestID(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Header("Location", fmt.Sprintf("/orders?email=%s&orderId=%s", order.Email, order.OrderID))
		c.JSON(http.StatusCreated, order)
	})

	// email and orderId -> one order, email -> that customer's orders, none -> all
	r.GET("/orders", func(c *gin.Context) {
		q := validation.OrderQuery{Email: c.Query("email"), OrderID: c.Query("orderId")}
		found, err := svc.GetOrder(c.Request.Context(), q)
		if err != nil {
			writeError(c, logger, err)
			return
		}
		if q.OrderID != "" && len(found) == 1 {
			c.JSON(http.StatusOK, found[0])
			return
		}
		c.JSON(http.StatusOK, found)
	})

	r.DELETE("/orders", func(c *gin.Context) {
		key := validation.OrderKey{Email: c.Query("email"), OrderID: c.Query("orderId")}
		deleted, err := svc.DeleteOrder(c.Request.Context(), key, RequestID(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, deleted)
	})
}
