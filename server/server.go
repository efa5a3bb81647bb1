// Package server exposes OOB curve computation over HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/YuminosukeSato/oobcurve/core/model"
	"github.com/YuminosukeSato/oobcurve/curve"
	"github.com/YuminosukeSato/oobcurve/ensemble"
	"github.com/YuminosukeSato/oobcurve/measure"
	"github.com/YuminosukeSato/oobcurve/pkg/errors"
	"github.com/YuminosukeSato/oobcurve/pkg/log"
)

// CurveRequest is the body of POST /v1/curve: an ensemble dump plus the measures
// to evaluate. Final restricts evaluation to the full ensemble.
type CurveRequest struct {
	ensemble.Dump
	Measures []string `json:"measures" binding:"omitempty,dive,required"`
	Final    bool     `json:"final"`
}

// FinalResponse is returned when CurveRequest.Final is set. Undefined values are null.
type FinalResponse struct {
	Task     string     `json:"task"`
	Trees    int        `json:"trees"`
	Measures []string   `json:"measures"`
	Values   []*float64 `json:"values"`
}

// MeasureInfo describes one registered measure.
type MeasureInfo struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Tasks    []string `json:"tasks"`
	Minimize bool     `json:"minimize"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// Server serves curve requests against a measure registry.
type Server struct {
	engine   *gin.Engine
	registry *measure.Registry
	opts     []curve.Option
	logger   log.Logger
}

// New builds a Server. A nil registry falls back to measure.Builtins().
func New(reg *measure.Registry, logger log.Logger, opts ...curve.Option) *Server {
	if reg == nil {
		reg = measure.Builtins()
	}
	if logger == nil {
		logger = log.GetLoggerWithName("server")
	}
	s := &Server{
		engine:   gin.New(),
		registry: reg,
		opts:     append([]curve.Option{curve.WithLogger(logger)}, opts...),
		logger:   logger,
	}
	s.engine.Use(gin.Recovery(), s.accessLog)
	s.engine.GET("/healthz", s.healthz)
	v1 := s.engine.Group("/v1")
	v1.GET("/measures", s.listMeasures)
	v1.POST("/curve", s.computeCurve)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", log.OperationKey, log.OperationServe, "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "oobcurve: serve")
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "oobcurve: shutdown")
	}
	s.logger.Info("server stopped", log.OperationKey, log.OperationServe)
	return nil
}

func (s *Server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.logger.Debug("request",
		"method", c.Request.Method,
		"path", c.FullPath(),
		"status", c.Writer.Status(),
		log.DurationMsKey, time.Since(start).Milliseconds(),
	)
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) listMeasures(c *gin.Context) {
	var measures []measure.Measure
	if q := c.Query("task"); q != "" {
		task, err := model.ParseTaskType(q)
		if err != nil {
			s.fail(c, err)
			return
		}
		measures = s.registry.ForTask(task)
	} else {
		for _, id := range s.registry.IDs() {
			m, _ := s.registry.Get(id)
			measures = append(measures, m)
		}
	}

	out := make([]MeasureInfo, len(measures))
	for i, m := range measures {
		tasks := make([]string, len(m.Tasks))
		for j, t := range m.Tasks {
			tasks[j] = t.String()
		}
		out[i] = MeasureInfo{ID: m.ID, Name: m.Name, Tasks: tasks, Minimize: m.Minimize}
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) computeCurve(c *gin.Context) {
	var req CurveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Type: "BindingError"})
		return
	}
	e, task, err := req.Build()
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	if req.Final {
		values, err := curve.FinalEnsemble(ctx, e, task, s.registry, req.Measures, s.opts...)
		if err != nil {
			s.fail(c, err)
			return
		}
		ids := req.Measures
		if len(ids) == 0 {
			ids = measure.DefaultIDs(task.Type)
		}
		c.JSON(http.StatusOK, FinalResponse{
			Task:     task.Type.String(),
			Trees:    e.NumTrees(),
			Measures: ids,
			Values:   curve.Nullable(values),
		})
		return
	}

	cur, err := curve.ComputeEnsemble(ctx, e, task, s.registry, req.Measures, s.opts...)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cur)
}

// fail maps the error taxonomy to HTTP status codes.
func (s *Server) fail(c *gin.Context, err error) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", err, "path", c.FullPath())
	} else {
		s.logger.Debug("request rejected", log.ErrorTypeKey, kind, "path", c.FullPath())
	}
	c.JSON(status, ErrorResponse{Error: err.Error(), Type: kind})
}

func classify(err error) (int, string) {
	kind := log.ErrorType(err)
	switch kind {
	case "UnsupportedModelError", "MissingBookkeepingError", "MeasureEvaluationError":
		return http.StatusUnprocessableEntity, kind
	case "UnsupportedTaskTypeError", "DimensionError", "ValidationError", "ValueError":
		return http.StatusBadRequest, kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusServiceUnavailable, "Cancelled"
	}
	return http.StatusInternalServerError, "InternalError"
}
