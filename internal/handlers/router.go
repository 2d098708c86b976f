// Package handlers is the HTTP adapter over the order and product use cases.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the gin engine with health, order and product routes.
func NewRouter(orderSvc OrderService, productSvc ProductService, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestIDMiddleware(), AccessLog(logger))

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	RegisterOrdersRoutes(r, orderSvc, logger)
	RegisterProductsRoutes(r, productSvc, logger)
	return r
}
