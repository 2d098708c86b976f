package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/products"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/service"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/validation"
)

// ProductService is the product use-case surface the routes call.
type ProductService interface {
	ListProducts(ctx context.Context) ([]products.Product, error)
	GetProduct(ctx context.Context, id string) (*products.Product, error)
	CreateProduct(ctx context.Context, req validation.ProductRequest, meta service.Meta) (*products.Product, error)
	UpdateProduct(ctx context.Context, id string, req validation.ProductRequest, meta service.Meta) (*products.Product, error)
	DeleteProduct(ctx context.Context, id string, meta service.Meta) (*products.Product, error)
}

func meta(c *gin.Context) service.Meta {
	return service.Meta{RequestID: RequestID(c), Actor: ActorEmail(c)}
}

// RegisterProductsRoutes registers routes for the product API.
func RegisterProductsRoutes(r gin.IRouter, svc ProductService, logger *zap.Logger) {
	r.GET("/products", func(c *gin.Context) {
		list, err := svc.ListProducts(c.Request.Context())
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, list)
	})

	r.GET("/products/:id", func(c *gin.Context) {
		p, err := svc.GetProduct(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.POST("/products", func(c *gin.Context) {
		var req validation.ProductRequest
		if err := validation.BindJSON(c, &req); err != nil {
			return
		}
		p, err := svc.CreateProduct(c.Request.Context(), req, meta(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.Header("Location", "/products/"+p.ID)
		c.JSON(http.StatusCreated, p)
	})

	r.PUT("/products/:id", func(c *gin.Context) {
		var req validation.ProductRequest
		if err := validation.BindJSON(c, &req); err != nil {
			return
		}
		p, err := svc.UpdateProduct(c.Request.Context(), c.Param("id"), req, meta(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})

	r.DELETE("/products/:id", func(c *gin.Context) {
		p, err := svc.DeleteProduct(c.Request.Context(), c.Param("id"), meta(c))
		if err != nil {
			writeError(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, p)
	})
}
