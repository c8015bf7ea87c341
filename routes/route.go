package routes

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"codesandbox/executor"
	"codesandbox/model"
	"codesandbox/pkg"
)

// Submitter hands a request to the execution backend and waits for it.
type Submitter interface {
	Submit(ctx context.Context, req model.ExecutionRequest) (model.ExecutionResponse, error)
}

type Options struct {
	// AuthHeader carries the shared secret. An empty AuthSecret disables the check.
	AuthHeader string
	AuthSecret string
	Limiter    *pkg.RateLimiter
}

type ExecutionHandler struct {
	submitter Submitter
	opts      Options
	logger    *zap.Logger
}

// SetupRoutes registers the sandbox endpoints on router.
func SetupRoutes(router *gin.Engine, submitter Submitter, opts Options, logger *zap.Logger) {
	h := &ExecutionHandler{submitter: submitter, opts: opts, logger: logger}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	if opts.Limiter != nil {
		api.Use(opts.Limiter.Middleware())
	}
	api.POST("/exec_code", h.HandleExecute)
}

func (h *ExecutionHandler) HandleExecute(c *gin.Context) {
	if !h.authorized(c.GetHeader(h.opts.AuthHeader)) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"message": "forbidden"})
		return
	}

	var req model.ExecutionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid Request Format", "error": err.Error()})
		return
	}
	if req.InputList == nil {
		req.InputList = []string{}
	}

	resp, err := h.submitter.Submit(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, executor.ErrQueueFull), errors.Is(err, executor.ErrPoolClosed):
			status = http.StatusServiceUnavailable
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			status = http.StatusGatewayTimeout
		}
		h.logger.Warn("execution not accepted", zap.Int("http_status", status), zap.Error(err))
		c.JSON(status, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ExecutionHandler) authorized(secret string) bool {
	if h.opts.AuthSecret == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(h.opts.AuthSecret)) == 1
}
