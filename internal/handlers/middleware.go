package handlers

import (
	"time"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/logging"
)

const (
	// HeaderRequestID carries the correlation id in and out.
	HeaderRequestID = "X-Request-Id"
	// HeaderActorEmail names the acting user when no authorizer claim is present.
	HeaderActorEmail = "X-Actor-Email"

	requestIDKey = "request_id"
)

// RequestIDMiddleware takes the correlation id from API Gateway, the
// X-Request-Id header, or generates one, and echoes it on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" {
			if apigw, ok := core.GetAPIGatewayContextFromContext(c.Request.Context()); ok {
				id = apigw.RequestID
			}
		}
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// RequestID returns the correlation id stored by RequestIDMiddleware.
func RequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// ActorEmail returns the caller's email from the Cognito authorizer claims,
// falling back to the X-Actor-Email header. Empty when neither is set.
func ActorEmail(c *gin.Context) string {
	if apigw, ok := core.GetAPIGatewayContextFromContext(c.Request.Context()); ok {
		if claims, ok := apigw.Authorizer["claims"].(map[string]interface{}); ok {
			if email, ok := claims["email"].(string); ok && email != "" {
				return email
			}
		}
	}
	return c.GetHeader(HeaderActorEmail)
}

// AccessLog writes one line per request.
func AccessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logging.Info(c.Request.Context(), logger, "http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", RequestID(c)),
		)
	}
}
