// Package api exposes the reward economy over HTTP.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/service"
)

// Actions runs fee-charging user actions.
type Actions interface {
	CreatePost(ctx context.Context, userID int64, content string, image *string) (*service.ActionResult, error)
	Comment(ctx context.Context, userID, postID int64, text string) (*service.ActionResult, error)
	LikePost(ctx context.Context, userID, postID int64) (*service.ActionResult, error)
	LikeComment(ctx context.Context, userID, postID, commentID int64) (*service.ActionResult, error)
}

// Reports serves read projections.
type Reports interface {
	LatestEvaluation(ctx context.Context) (*model.EvaluationResult, error)
	RecentWinners(ctx context.Context, limit int) ([]service.WinnerSummary, error)
	TodayPool(ctx context.Context, now time.Time) (*model.DailyPool, error)
	PoolHistory(ctx context.Context, limit int) ([]*model.DailyPool, error)
	TransactionHistory(ctx context.Context, userID int64, txType string, limit, offset int) (*service.TransactionPage, error)
	TransactionSummary(ctx context.Context, userID int64) (*service.TransactionSummary, error)
	CycleStatus(ctx context.Context, now time.Time) (*service.CycleStatus, error)
	Limits(ctx context.Context, userID int64, now time.Time) (*service.Usage, error)
}

// Evaluator settles the current freeze period.
type Evaluator interface {
	Run(ctx context.Context) (*model.EvaluationResult, error)
}

// Accounts provisions and suspends users.
type Accounts interface {
	Register(ctx context.Context, username, passwordHash string) (*model.User, error)
	Suspend(ctx context.Context, id int64, until *time.Time, reason string) (*model.User, error)
	Unsuspend(ctx context.Context, id int64) (*model.User, error)
}

// FraudReview lists and resolves fraud logs.
type FraudReview interface {
	List(ctx context.Context, userID int64, limit int) ([]*model.FraudLog, error)
	Resolve(ctx context.Context, id int64, action string) (*model.FraudLog, error)
}

// Handler holds the HTTP handlers.
type Handler struct {
	actions     Actions
	reports     Reports
	evaluator   Evaluator
	accounts    Accounts
	fraud       FraudReview
	evalTimeout time.Duration
	clock       func() time.Time
}

// NewHandler creates a new Handler instance.
func NewHandler(actions Actions, reports Reports, evaluator Evaluator, accounts Accounts, fraud FraudReview, evalTimeout time.Duration, clock func() time.Time) *Handler {
	if clock == nil {
		clock = time.Now
	}
	return &Handler{
		actions:     actions,
		reports:     reports,
		evaluator:   evaluator,
		accounts:    accounts,
		fraud:       fraud,
		evalTimeout: evalTimeout,
		clock:       clock,
	}
}

type userResponse struct {
	ID               int64      `json:"id"`
	Username         string     `json:"username"`
	Balance          int64      `json:"balance"`
	Reputation       int        `json:"reputation"`
	TotalEarnings    int64      `json:"totalEarnings"`
	TotalSpent       int64      `json:"totalSpent"`
	TotalWins        int        `json:"totalWins"`
	IsSuspended      bool       `json:"isSuspended"`
	SuspendedUntil   *time.Time `json:"suspendedUntil,omitempty"`
	SuspensionReason *string    `json:"suspensionReason,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
}

func toUserResponse(u *model.User) userResponse {
	return userResponse{
		ID:               u.ID,
		Username:         u.Username,
		Balance:          u.Balance,
		Reputation:       u.Reputation,
		TotalEarnings:    u.TotalEarnings,
		TotalSpent:       u.TotalSpent,
		TotalWins:        u.TotalWins,
		IsSuspended:      u.IsSuspended,
		SuspendedUntil:   u.SuspendedUntil,
		SuspensionReason: u.SuspensionReason,
		CreatedAt:        u.CreatedAt,
	}
}

func pathID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperr.Validation("%s must be an integer", name)
	}
	return n, nil
}

func bind(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Validation("invalid request body: %s", err.Error())
	}
	return nil
}

// CycleStatus handles GET /cycle/status.
func (h *Handler) CycleStatus(c *gin.Context) {
	status, err := h.reports.CycleStatus(c.Request.Context(), h.clock())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Limits handles GET /cycle/limits.
func (h *Handler) Limits(c *gin.Context) {
	usage, err := h.reports.Limits(c.Request.Context(), currentUser(c), h.clock())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

// TodayPool handles GET /pool/daily.
func (h *Handler) TodayPool(c *gin.Context) {
	pool, err := h.reports.TodayPool(c.Request.Context(), h.clock())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

// PoolHistory handles GET /pool/history.
func (h *Handler) PoolHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	pools, err := h.reports.PoolHistory(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pools": pools})
}

// LatestEvaluation handles GET /evaluation/latest.
func (h *Handler) LatestEvaluation(c *gin.Context) {
	result, err := h.reports.LatestEvaluation(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// RecentWinners handles GET /evaluation/winners.
func (h *Handler) RecentWinners(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	winners, err := h.reports.RecentWinners(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"winners": winners})
}

// RunEvaluation handles POST /evaluation/run. The run is detached from the
// client connection so a disconnect does not abort a settlement midway.
func (h *Handler) RunEvaluation(c *gin.Context) {
	ctx := context.WithoutCancel(c.Request.Context())
	if h.evalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.evalTimeout)
		defer cancel()
	}

	log.Info().Int64("operator_id", currentUser(c)).Str("request_id", requestID(c)).Msg("Manual evaluation requested")
	result, err := h.evaluator.Run(ctx)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// TransactionHistory handles GET /transactions/history.
func (h *Handler) TransactionHistory(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		respondError(c, err)
		return
	}
	page, err := h.reports.TransactionHistory(c.Request.Context(), currentUser(c), c.Query("type"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// TransactionSummary handles GET /transactions/summary.
func (h *Handler) TransactionSummary(c *gin.Context) {
	sum, err := h.reports.TransactionSummary(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

type createPostRequest struct {
	Content string  `json:"content"`
	Image   *string `json:"image"`
}

// CreatePost handles POST /posts.
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}
	res, err := h.actions.CreatePost(c.Request.Context(), currentUser(c), req.Content, req.Image)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

type commentRequest struct {
	Text string `json:"text"`
}

// Comment handles POST /posts/:id/comments.
func (h *Handler) Comment(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req commentRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}
	res, err := h.actions.Comment(c.Request.Context(), currentUser(c), postID, req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

// LikePost handles POST /posts/:id/like.
func (h *Handler) LikePost(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.actions.LikePost(c.Request.Context(), currentUser(c), postID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// LikeComment handles POST /posts/:id/comments/:commentID/like.
func (h *Handler) LikeComment(c *gin.Context) {
	postID, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	commentID, err := pathID(c, "commentID")
	if err != nil {
		respondError(c, err)
		return
	}
	res, err := h.actions.LikeComment(c.Request.Context(), currentUser(c), postID, commentID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type registerRequest struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
}

// Register handles POST /users.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}
	user, err := h.accounts.Register(c.Request.Context(), req.Username, req.PasswordHash)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(user))
}

type suspendRequest struct {
	Until  *time.Time `json:"until"`
	Reason string     `json:"reason"`
}

// Suspend handles POST /users/:id/suspend.
func (h *Handler) Suspend(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req suspendRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}
	user, err := h.accounts.Suspend(c.Request.Context(), id, req.Until, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Warn().Int64("operator_id", currentUser(c)).Int64("user_id", id).Msg("User suspended by operator")
	c.JSON(http.StatusOK, toUserResponse(user))
}

// Unsuspend handles DELETE /users/:id/suspend.
func (h *Handler) Unsuspend(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	user, err := h.accounts.Unsuspend(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(user))
}

// FraudLogs handles GET /fraud-logs?userId=&limit=.
func (h *Handler) FraudLogs(c *gin.Context) {
	userID, err := queryInt(c, "userId")
	if err != nil {
		respondError(c, err)
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		respondError(c, err)
		return
	}
	logs, err := h.fraud.List(c.Request.Context(), int64(userID), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

type resolveRequest struct {
	Action string `json:"action"`
}

// ResolveFraudLog handles POST /fraud-logs/:id/resolve.
func (h *Handler) ResolveFraudLog(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		respondError(c, err)
		return
	}
	var req resolveRequest
	if err := bind(c, &req); err != nil {
		respondError(c, err)
		return
	}
	l, err := h.fraud.Resolve(c.Request.Context(), id, req.Action)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, l)
}
