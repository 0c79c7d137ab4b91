package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lokasan/atom-robots/internal/correlator"
	"github.com/lokasan/atom-robots/internal/ledger"
	"github.com/lokasan/atom-robots/internal/lifecycle"
)

// Service is what the router drives. *lifecycle.Manager implements it.
type Service interface {
	Start(ctx context.Context, startNumber int) (int, error)
	Stop(ctx context.Context, pid int) (string, error)
	Stats(ctx context.Context, q ledger.StatsQuery) ([]ledger.Run, error)
	Ping(ctx context.Context) error
}

var _ Service = (*lifecycle.Manager)(nil)

// Options configure a Router. Zero values disable the optional parts.
type Options struct {
	BasePath       string
	RequestTimeout time.Duration
	// Metrics is mounted at MetricsPath, outside the base path, when set.
	Metrics     http.Handler
	MetricsPath string
	Logger      *slog.Logger
}

// Router provides embeddable HTTP handlers for the robot control plane.
// Endpoints:
//
//	POST {basePath}/start    query: start_number (default 0)
//	POST {basePath}/stop     query: pid (default 0 stops every robot)
//	GET  {basePath}/stats    query: offset, limit, order_by=asc|desc
//	GET  {basePath}/healthz
type Router struct {
	svc  Service
	opts Options
	log  *slog.Logger
}

func NewRouter(svc Service, opts Options) *Router {
	opts.BasePath = sanitizeBase(opts.BasePath)
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	lg := opts.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Router{svc: svc, opts: opts, log: lg}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery(), requestID(), accessLog(r.log))
	if r.opts.RequestTimeout > 0 {
		g.Use(requestTimeout(r.opts.RequestTimeout))
	}
	group := g.Group(r.opts.BasePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.GET("/stats", r.handleStats)
	group.GET("/healthz", r.handleHealth)
	if r.opts.Metrics != nil {
		g.GET(r.opts.MetricsPath, gin.WrapH(r.opts.Metrics))
	}
	return g
}

// --- Handlers ---

type errorResp struct {
	Detail string `json:"detail"`
}

type messageResp struct {
	Message string `json:"message"`
}

// statRow is the public shape of a run in /stats.
type statRow struct {
	ID          int64     `json:"id"`
	StartDate   time.Time `json:"start_date"`
	PID         int       `json:"pid"`
	Duration    *int64    `json:"duration"`
	StartNumber int       `json:"start_number"`
}

func (r *Router) handleStart(c *gin.Context) {
	n, err := queryInt(c, "start_number", 0)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Detail: err.Error()})
		return
	}
	pid, err := r.svc.Start(c.Request.Context(), n)
	if err != nil {
		code, detail := statusFor(opStart, n, err)
		r.log.Warn("start failed", "start_number", n, "status", code, "err", err)
		writeJSON(c, code, errorResp{Detail: detail})
		return
	}
	writeJSON(c, http.StatusOK, messageResp{Message: lifecycle.StartedMessage(pid)})
}

func (r *Router) handleStop(c *gin.Context) {
	pid, err := queryInt(c, "pid", 0)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Detail: err.Error()})
		return
	}
	msg, err := r.svc.Stop(c.Request.Context(), pid)
	if err != nil {
		code, detail := statusFor(opStop, pid, err)
		r.log.Warn("stop failed", "pid", pid, "status", code, "err", err)
		writeJSON(c, code, errorResp{Detail: detail})
		return
	}
	writeJSON(c, http.StatusOK, messageResp{Message: msg})
}

func (r *Router) handleStats(c *gin.Context) {
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Detail: err.Error()})
		return
	}
	limit, err := queryInt(c, "limit", ledger.DefaultLimit)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Detail: err.Error()})
		return
	}
	order, err := ledger.ParseOrder(c.Query("order_by"))
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Detail: err.Error()})
		return
	}
	runs, err := r.svc.Stats(c.Request.Context(), ledger.StatsQuery{Offset: offset, Limit: limit, OrderBy: order})
	if err != nil {
		code, detail := statusFor(opStats, 0, err)
		writeJSON(c, code, errorResp{Detail: detail})
		return
	}
	out := make([]statRow, 0, len(runs))
	for _, run := range runs {
		out = append(out, statRow{
			ID:          run.ID,
			StartDate:   run.StartDate,
			PID:         run.PID,
			Duration:    run.Duration,
			StartNumber: run.StartNumber,
		})
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleHealth(c *gin.Context) {
	if err := r.svc.Ping(c.Request.Context()); err != nil {
		r.log.Warn("health check failed", "err", err)
		writeJSON(c, http.StatusServiceUnavailable, errorResp{Detail: "ledger unavailable"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "ok"})
}

type op int

const (
	opStart op = iota
	opStop
	opStats
)

// statusFor maps a service error to a status code and the detail shown to the caller.
func statusFor(o op, arg int, err error) (int, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "Request timed out. Try again later."
	case errors.Is(err, ledger.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	}
	switch o {
	case opStart:
		if errors.Is(err, lifecycle.ErrProgramNotFound) {
			return http.StatusNotFound, "Robot script not found."
		}
		if errors.Is(err, lifecycle.ErrExitedEarly) {
			return http.StatusInternalServerError, "Robot exited right after start."
		}
		return http.StatusInternalServerError, "Failed to start robot. Internal Server Error."
	case opStop:
		switch {
		case errors.Is(err, correlator.ErrProcessNotFound):
			return http.StatusBadRequest, fmt.Sprintf("Process with PID %d not found.", arg)
		case errors.Is(err, correlator.ErrRunNotFound):
			return http.StatusBadRequest, fmt.Sprintf("The robot with the passed PID: %d is not among the running ones", arg)
		default:
			return http.StatusBadRequest, fmt.Sprintf("Failed to stop processes %d. Internal Server Error.", arg)
		}
	default:
		return http.StatusInternalServerError, "Internal Server Error."
	}
}
