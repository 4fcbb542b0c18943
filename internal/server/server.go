// Package server exposes the digest pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shpitdev/transcript-digest/internal/logger"
	"github.com/shpitdev/transcript-digest/internal/pipeline"
	"github.com/shpitdev/transcript-digest/internal/redact"
	"github.com/shpitdev/transcript-digest/internal/storage"
	"github.com/shpitdev/transcript-digest/internal/version"
)

// Runner is the part of *pipeline.Runner the handlers need.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type Options struct {
	// RequestTimeout bounds a single invocation. Zero means no extra deadline.
	RequestTimeout time.Duration
}

// New builds the gin engine. Callers set gin's mode before calling.
func New(runner Runner, opts Options, log logger.Logger) *gin.Engine {
	if log == nil {
		log = logger.Discard()
	}
	h := &handler{runner: runner, opts: opts, log: log}

	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/healthz", h.health)

	v1 := r.Group("/v1")
	{
		v1.POST("/invocations", h.invoke)
	}
	return r
}

type handler struct {
	runner Runner
	opts   Options
	log    logger.Logger
}

func (h *handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Current,
	})
}

func (h *handler) invoke(c *gin.Context) {
	var req pipeline.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warn(c.Request.Context(), "invocation body rejected: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": pipeline.MessageMissingInput})
		return
	}

	ctx := c.Request.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	started := time.Now()
	res, err := h.runner.Run(ctx, req)
	if err != nil {
		status := statusFor(err)
		msg := redact.Secrets(err.Error())
		h.log.Error(ctx, "invocation failed status=%d bucket=%s key=%s duration=%s err=%s",
			status, req.BucketName, req.ObjectKey, time.Since(started).Round(time.Millisecond), msg)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	h.log.Info(ctx, "invocation ok run=%s summary=%s/%s metadata=%s duration=%s",
		res.RunID, res.BucketName, res.ObjectKey, res.MetadataStatus, time.Since(started).Round(time.Millisecond))
	c.JSON(http.StatusOK, res)
}

func statusFor(err error) int {
	var stageErr *pipeline.StageError
	switch {
	case pipeline.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &stageErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
