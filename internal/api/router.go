package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps wires the router.
type Deps struct {
	Handler *Handler
	Health  *HealthHandler
	Auth    *Authenticator
	Limiter *RateLimiter
}

// NewRouter builds the gin engine with ops routes and /api/v1.
func NewRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())

	if d.Health != nil {
		r.GET("/health/live", d.Health.Liveness)
		r.GET("/health/ready", d.Health.Readiness)
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := d.Handler
	v1 := r.Group("/api/v1")

	public := v1.Group("")
	public.Use(d.Limiter.Middleware())
	{
		public.GET("/cycle/status", h.CycleStatus)
		public.GET("/pool/daily", h.TodayPool)
		public.GET("/pool/history", h.PoolHistory)
		public.GET("/evaluation/latest", h.LatestEvaluation)
		public.GET("/evaluation/winners", h.RecentWinners)
	}

	user := v1.Group("")
	user.Use(d.Auth.RequireUser(), d.Limiter.Middleware())
	{
		user.GET("/cycle/limits", h.Limits)
		user.GET("/transactions/history", h.TransactionHistory)
		user.GET("/transactions/summary", h.TransactionSummary)
		user.POST("/posts", h.CreatePost)
		user.POST("/posts/:id/comments", h.Comment)
		user.POST("/posts/:id/like", h.LikePost)
		user.POST("/posts/:id/comments/:commentID/like", h.LikeComment)
	}

	operator := v1.Group("")
	operator.Use(d.Auth.RequireUser(), d.Auth.RequireOperator())
	{
		operator.POST("/evaluation/run", h.RunEvaluation)
		operator.POST("/users", h.Register)
		operator.POST("/users/:id/suspend", h.Suspend)
		operator.DELETE("/users/:id/suspend", h.Unsuspend)
		operator.GET("/fraud-logs", h.FraudLogs)
		operator.POST("/fraud-logs/:id/resolve", h.ResolveFraudLog)
	}

	return r
}
