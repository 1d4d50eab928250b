package service

import (
	"context"
	"errors"
	"time"

	"github.com/Gaur97shiv/playknow/internal/apperr"
	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/cycle"
	"github.com/Gaur97shiv/playknow/internal/economy"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/repository"
)

// Page sizes for the read projections.
const (
	DefaultWinnersLimit = 10
	MaxWinnersLimit     = 50
	DefaultPoolHistory  = 30
	MaxPoolHistory      = 365
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// ReportEvaluations reads completed settlements.
type ReportEvaluations interface {
	Latest(ctx context.Context) (*model.EvaluationResult, error)
	ListCompleted(ctx context.Context, limit int) ([]*model.EvaluationResult, error)
}

// ReportPools reads daily pools.
type ReportPools interface {
	GetByDate(ctx context.Context, date string) (*model.DailyPool, error)
	List(ctx context.Context, limit int) ([]*model.DailyPool, error)
}

// ReportTransactions reads the ledger history.
type ReportTransactions interface {
	ListByUser(ctx context.Context, userID int64, txType model.TxType, limit, offset int) ([]*model.Transaction, int, error)
	Summary(ctx context.Context, userID int64) ([]repository.SummaryRow, error)
}

// ReportUsers loads a user.
type ReportUsers interface {
	GetByID(ctx context.Context, id int64) (*model.User, error)
}

// WinnerSummary is one settled period in the winners feed.
type WinnerSummary struct {
	Date              time.Time      `json:"date"`
	FreezePeriod      string         `json:"freezePeriod"`
	TopPost           *model.Winner  `json:"topPost,omitempty"`
	TopComments       []model.Winner `json:"topComments"`
	TotalDistributed  int64          `json:"totalDistributed"`
	TotalLikerRewards int64          `json:"totalLikerRewards"`
}

// TransactionPage is one page of history.
type TransactionPage struct {
	Transactions []*model.Transaction `json:"transactions"`
	Total        int                  `json:"total"`
	HasMore      bool                 `json:"hasMore"`
}

// TypeTotal aggregates entries of one type.
type TypeTotal struct {
	Total int64 `json:"total"`
	Count int   `json:"count"`
}

// TransactionSummary splits a user's ledger by direction and type.
type TransactionSummary struct {
	Credits      map[model.TxType]TypeTotal `json:"credits"`
	Debits       map[model.TxType]TypeTotal `json:"debits"`
	TotalCredits int64                      `json:"totalCredits"`
	TotalDebits  int64                      `json:"totalDebits"`
}

// FeeTable lists the fee per action.
type FeeTable struct {
	Post    int64 `json:"post"`
	Comment int64 `json:"comment"`
	Like    int64 `json:"like"`
}

// CycleStatus is the public economy snapshot.
type CycleStatus struct {
	Cycle  cycle.Info            `json:"cycle"`
	Pool   *model.DailyPool      `json:"pool"`
	Fees   FeeTable              `json:"fees"`
	Split  config.FeeSplitConfig `json:"split"`
	Limits config.LimitsConfig   `json:"limits"`
}

// ReportService serves the read-only projections. It never writes.
type ReportService struct {
	evaluations  ReportEvaluations
	pools        ReportPools
	transactions ReportTransactions
	users        ReportUsers
	gate         *LimitGate
	splitter     *economy.Splitter
	cal          *cycle.Calculator
	limits       config.LimitsConfig
}

// NewReportService creates a new ReportService instance.
func NewReportService(
	evaluations ReportEvaluations,
	pools ReportPools,
	transactions ReportTransactions,
	users ReportUsers,
	gate *LimitGate,
	splitter *economy.Splitter,
	cal *cycle.Calculator,
	limits config.LimitsConfig,
) *ReportService {
	return &ReportService{
		evaluations:  evaluations,
		pools:        pools,
		transactions: transactions,
		users:        users,
		gate:         gate,
		splitter:     splitter,
		cal:          cal,
		limits:       limits,
	}
}

// LatestEvaluation returns the most recent completed settlement.
func (s *ReportService) LatestEvaluation(ctx context.Context) (*model.EvaluationResult, error) {
	e, err := s.evaluations.Latest(ctx)
	if err != nil {
		return nil, mapStoreErr("get latest evaluation", err)
	}
	return e, nil
}

// RecentWinners lists the winners of recent settled periods.
func (s *ReportService) RecentWinners(ctx context.Context, limit int) ([]WinnerSummary, error) {
	limit = clampLimit(limit, DefaultWinnersLimit, MaxWinnersLimit)
	results, err := s.evaluations.ListCompleted(ctx, limit)
	if err != nil {
		return nil, mapStoreErr("list evaluations", err)
	}

	out := make([]WinnerSummary, 0, len(results))
	for _, r := range results {
		comments := r.TopCommentWinners
		if comments == nil {
			comments = []model.Winner{}
		}
		out = append(out, WinnerSummary{
			Date:              r.EvaluationDate,
			FreezePeriod:      r.FreezePeriod,
			TopPost:           r.TopPostWinner,
			TopComments:       comments,
			TotalDistributed:  r.TotalPoolDistributed,
			TotalLikerRewards: r.TotalLikerRewardsDistributed,
		})
	}
	return out, nil
}

// TodayPool returns the pool accumulating today, or an empty one.
func (s *ReportService) TodayPool(ctx context.Context, now time.Time) (*model.DailyPool, error) {
	date := s.cal.DateKey(now)
	p, err := s.pools.GetByDate(ctx, date)
	if errors.Is(err, repository.ErrPoolNotFound) {
		return &model.DailyPool{Date: date}, nil
	}
	if err != nil {
		return nil, mapStoreErr("get daily pool", err)
	}
	return p, nil
}

// PoolHistory lists recent pools, newest first.
func (s *ReportService) PoolHistory(ctx context.Context, limit int) ([]*model.DailyPool, error) {
	limit = clampLimit(limit, DefaultPoolHistory, MaxPoolHistory)
	pools, err := s.pools.List(ctx, limit)
	if err != nil {
		return nil, mapStoreErr("list daily pools", err)
	}
	if pools == nil {
		pools = []*model.DailyPool{}
	}
	return pools, nil
}

// TransactionHistory returns one page of the user's ledger. An empty
// txType matches every type.
func (s *ReportService) TransactionHistory(ctx context.Context, userID int64, txType string, limit, offset int) (*TransactionPage, error) {
	if txType != "" && !model.ValidTxType(txType) {
		return nil, apperr.Validation("unknown transaction type %q", txType)
	}
	if offset < 0 {
		return nil, apperr.Validation("offset must not be negative")
	}
	limit = clampLimit(limit, DefaultHistoryLimit, MaxHistoryLimit)

	txs, total, err := s.transactions.ListByUser(ctx, userID, model.TxType(txType), limit, offset)
	if err != nil {
		return nil, mapStoreErr("list transactions", err)
	}
	if txs == nil {
		txs = []*model.Transaction{}
	}
	return &TransactionPage{
		Transactions: txs,
		Total:        total,
		HasMore:      offset+len(txs) < total,
	}, nil
}

// TransactionSummary aggregates the user's ledger by direction and type.
func (s *ReportService) TransactionSummary(ctx context.Context, userID int64) (*TransactionSummary, error) {
	rows, err := s.transactions.Summary(ctx, userID)
	if err != nil {
		return nil, mapStoreErr("summarize transactions", err)
	}

	sum := &TransactionSummary{
		Credits: make(map[model.TxType]TypeTotal),
		Debits:  make(map[model.TxType]TypeTotal),
	}
	for _, row := range rows {
		t := TypeTotal{Total: row.Total, Count: row.Count}
		if row.Direction == model.DirectionCredit {
			sum.Credits[row.Type] = t
			sum.TotalCredits += row.Total
		} else {
			sum.Debits[row.Type] = t
			sum.TotalDebits += row.Total
		}
	}
	return sum, nil
}

// CycleStatus reports the cycle, today's pool and the economy parameters.
func (s *ReportService) CycleStatus(ctx context.Context, now time.Time) (*CycleStatus, error) {
	pool, err := s.TodayPool(ctx, now)
	if err != nil {
		return nil, err
	}
	fees := s.splitter.Fees()
	return &CycleStatus{
		Cycle:  s.cal.Info(now),
		Pool:   pool,
		Fees:   FeeTable{Post: fees[string(model.ActionPost)], Comment: fees[string(model.ActionComment)], Like: fees[string(model.ActionLike)]},
		Split:  s.splitter.Percentages(),
		Limits: s.limits,
	}, nil
}

// Limits reports the user's daily counters.
func (s *ReportService) Limits(ctx context.Context, userID int64, now time.Time) (*Usage, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, mapStoreErr("get user", err)
	}
	u := s.gate.Usage(user, now)
	return &u, nil
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
