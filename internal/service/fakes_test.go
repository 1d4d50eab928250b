package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/cycle"
	"github.com/Gaur97shiv/playknow/internal/economy"
	"github.com/Gaur97shiv/playknow/internal/fraud"
	"github.com/Gaur97shiv/playknow/internal/model"
	"github.com/Gaur97shiv/playknow/internal/pkg/lock"
	"github.com/Gaur97shiv/playknow/internal/repository"
)

var ist = mustLoad("Asia/Kolkata")

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// at returns a wall clock time in the economy timezone.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.January, day, hour, minute, 0, 0, ist)
}

// memStore is an in-memory stand-in for the repositories.
type memStore struct {
	mu sync.Mutex

	users    map[int64]*model.User
	nextUser int64

	txs  []*model.Transaction
	keys map[string]bool

	posts       map[int64]*model.Post
	nextPost    int64
	nextComment int64

	pools map[string]*model.DailyPool
	evals []*model.EvaluationResult

	recordErr error
	saveErr   error

	// markFailAt makes the Nth MarkEvaluated call fail with markErr.
	markFailAt int
	markCalls  int
	markErr    error
}

func newMemStore() *memStore {
	return &memStore{
		users: make(map[int64]*model.User),
		keys:  make(map[string]bool),
		posts: make(map[int64]*model.Post),
		pools: make(map[string]*model.DailyPool),
	}
}

func (m *memStore) addUser(balance int64, lastReset time.Time) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUser++
	u := &model.User{
		ID:             m.nextUser,
		Username:       fmt.Sprintf("user%d", m.nextUser),
		Balance:        balance,
		Reputation:     50,
		LastDailyReset: lastReset,
	}
	m.users[u.ID] = u
	return cloneUser(u)
}

func (m *memStore) addPost(userID int64, created time.Time, postPool, commentPool int64, likes ...int64) *model.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPost++
	p := &model.Post{
		ID:               m.nextPost,
		UserID:           userID,
		Content:          "seeded",
		Likes:            append([]int64(nil), likes...),
		PostPoolCoins:    postPool,
		CommentPoolCoins: commentPool,
		CreatedAt:        created,
	}
	m.posts[p.ID] = p
	return clonePost(p)
}

func (m *memStore) addComment(postID, userID int64, created time.Time, likes ...int64) *model.Comment {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextComment++
	c := &model.Comment{
		ID:        m.nextComment,
		PostID:    postID,
		UserID:    userID,
		Text:      "seeded",
		Likes:     append([]int64(nil), likes...),
		CreatedAt: created,
	}
	m.posts[postID].Comments = append(m.posts[postID].Comments, c)
	return c
}

func (m *memStore) user(id int64) *model.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneUser(m.users[id])
}

func (m *memStore) post(id int64) *model.Post {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clonePost(m.posts[id])
}

func (m *memStore) transactions(userID int64) []*model.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.txs {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

func cloneUser(u *model.User) *model.User {
	if u == nil {
		return nil
	}
	c := *u
	c.FraudFlags = append([]string(nil), u.FraudFlags...)
	return &c
}

func clonePost(p *model.Post) *model.Post {
	if p == nil {
		return nil
	}
	c := *p
	c.Likes = append([]int64(nil), p.Likes...)
	c.Comments = make([]*model.Comment, len(p.Comments))
	for i, cm := range p.Comments {
		cc := *cm
		cc.Likes = append([]int64(nil), cm.Likes...)
		c.Comments[i] = &cc
	}
	return &c
}

// Users.

func (m *memStore) Create(_ context.Context, username, passwordHash string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			return nil, repository.ErrUsernameTaken
		}
	}
	m.nextUser++
	u := &model.User{ID: m.nextUser, Username: username, PasswordHash: passwordHash, Reputation: 50, LastDailyReset: time.Now()}
	m.users[u.ID] = u
	return cloneUser(u), nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (m *memStore) GetByIDs(_ context.Context, ids []int64) (map[int64]*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int64]*model.User, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out[id] = cloneUser(u)
		}
	}
	return out, nil
}

func (m *memStore) LiftSuspension(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsSuspended, u.SuspendedUntil, u.SuspensionReason = false, nil, nil
	return nil
}

func (m *memStore) Suspend(_ context.Context, id int64, until *time.Time, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.IsSuspended, u.SuspendedUntil, u.SuspensionReason = true, until, &reason
	return nil
}

func (m *memStore) ResetDailyCounts(_ context.Context, id int64, now, dayStart time.Time) (*model.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, false, repository.ErrUserNotFound
	}
	if !u.LastDailyReset.Before(dayStart) {
		return cloneUser(u), false, nil
	}
	u.DailyPostCount, u.DailyCommentCount, u.DailyLikeCount = 0, 0, 0
	u.LastDailyReset = now
	return cloneUser(u), true, nil
}

func (m *memStore) IncrementDailyCount(_ context.Context, id int64, action model.ActionType) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, repository.ErrUserNotFound
	}
	switch action.Counter() {
	case model.ActionPost:
		u.DailyPostCount++
	case model.ActionComment:
		u.DailyCommentCount++
	case model.ActionLike:
		u.DailyLikeCount++
	}
	return u.DailyCount(action), nil
}

func (m *memStore) RecordWin(_ context.Context, id int64, bonus int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}
	u.TotalWins++
	u.Reputation = min(100, u.Reputation+bonus)
	return nil
}

// Ledger.

func (m *memStore) Apply(_ context.Context, e *model.LedgerEntry, now time.Time) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.IdempotencyKey != "" && m.keys[e.IdempotencyKey] {
		return nil, repository.ErrAlreadyApplied
	}
	u, ok := m.users[e.UserID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	balance := u.Balance
	if e.Direction == model.DirectionCredit {
		balance += e.Amount
	} else {
		if e.RequireFunds && balance < e.Amount {
			return nil, repository.ErrInsufficientBalance
		}
		balance -= e.Amount
	}
	if balance < 0 {
		return nil, repository.ErrInsufficientBalance
	}
	u.Balance = balance
	if e.Direction == model.DirectionCredit {
		u.TotalEarnings += e.Amount
	} else {
		u.TotalSpent += e.Amount
	}

	txn := &model.Transaction{
		ID:               int64(len(m.txs) + 1),
		UserID:           e.UserID,
		Type:             e.Type,
		Amount:           e.Amount,
		Direction:        e.Direction,
		RelatedPostID:    e.RelatedPostID,
		RelatedCommentID: e.RelatedCommentID,
		Description:      e.Description,
		BalanceAfter:     balance,
		Metadata:         e.Metadata,
		CreatedAt:        now,
	}
	if e.IdempotencyKey != "" {
		key := e.IdempotencyKey
		txn.IdempotencyKey = &key
		m.keys[key] = true
	}
	m.txs = append(m.txs, txn)
	return txn, nil
}

func (m *memStore) ListByUser(_ context.Context, userID int64, txType model.TxType, limit, offset int) ([]*model.Transaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var match []*model.Transaction
	for i := len(m.txs) - 1; i >= 0; i-- {
		t := m.txs[i]
		if t.UserID == userID && (txType == "" || t.Type == txType) {
			match = append(match, t)
		}
	}
	total := len(match)
	if offset >= total {
		return nil, total, nil
	}
	end := min(total, offset+limit)
	return match[offset:end], total, nil
}

func (m *memStore) Summary(_ context.Context, userID int64) ([]repository.SummaryRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type key struct {
		t model.TxType
		d model.Direction
	}
	agg := make(map[key]*repository.SummaryRow)
	var order []key
	for _, t := range m.txs {
		if t.UserID != userID {
			continue
		}
		k := key{t.Type, t.Direction}
		row, ok := agg[k]
		if !ok {
			row = &repository.SummaryRow{Type: t.Type, Direction: t.Direction}
			agg[k] = row
			order = append(order, k)
		}
		row.Total += t.Amount
		row.Count++
	}
	out := make([]repository.SummaryRow, 0, len(order))
	for _, k := range order {
		out = append(out, *agg[k])
	}
	return out, nil
}

// Posts.

// postView exposes the post lookup, which collides with the user lookup
// on memStore.
type postView struct{ *memStore }

func (v postView) GetByID(_ context.Context, id int64) (*model.Post, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.posts[id]
	if !ok {
		return nil, repository.ErrPostNotFound
	}
	return clonePost(p), nil
}

func (m *memStore) Record(_ context.Context, rec *model.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recordErr != nil {
		return m.recordErr
	}

	switch rec.Action {
	case model.ActionPost:
		m.nextPost++
		rec.PostID = m.nextPost
		m.posts[rec.PostID] = &model.Post{
			ID:                rec.PostID,
			UserID:            rec.UserID,
			Content:           rec.Content,
			Image:             rec.Image,
			TotalCoinOnPost:   rec.Split.Total,
			PostPoolCoins:     rec.Split.PrizePool,
			LikerReserveCoins: rec.Split.LikerReserve,
			CreatedAt:         rec.At,
		}
	case model.ActionComment, model.ActionLike, model.ActionCommentLike:
		p, ok := m.posts[rec.PostID]
		if !ok || p.Evaluated {
			return repository.ErrPostNotFound
		}
		switch rec.Action {
		case model.ActionComment:
			m.nextComment++
			rec.CommentID = m.nextComment
			p.Comments = append(p.Comments, &model.Comment{ID: rec.CommentID, PostID: p.ID, UserID: rec.UserID, Text: rec.Text, CreatedAt: rec.At})
			p.CommentPoolCoins += rec.Split.PrizePool
		case model.ActionLike:
			if p.LikedBy(rec.UserID) {
				return repository.ErrAlreadyLiked
			}
			p.Likes = append(p.Likes, rec.UserID)
			p.PostPoolCoins += rec.Split.PrizePool
		case model.ActionCommentLike:
			var target *model.Comment
			for _, c := range p.Comments {
				if c.ID == rec.CommentID {
					target = c
				}
			}
			if target == nil || target.LikedBy(rec.UserID) {
				return repository.ErrAlreadyLiked
			}
			target.Likes = append(target.Likes, rec.UserID)
			p.CommentPoolCoins += rec.Split.PrizePool
		}
		p.TotalCoinOnPost += rec.Split.Total
		p.LikerReserveCoins += rec.Split.LikerReserve
	}

	pool, ok := m.pools[rec.PoolDate]
	if !ok {
		pool = &model.DailyPool{Date: rec.PoolDate, CreatedAt: rec.At}
		m.pools[rec.PoolDate] = pool
	}
	pool.TotalPoolCoins += rec.Split.PrizePool
	pool.PlatformFeeCoins += rec.Split.PlatformFee
	pool.LikerReserveCoins += rec.Split.LikerReserve
	switch rec.Action.Counter() {
	case model.ActionPost:
		pool.PostsCount++
	case model.ActionComment:
		pool.CommentsCount++
	case model.ActionLike:
		pool.LikesCount++
	}
	return nil
}

func (m *memStore) ListForSettlement(_ context.Context, start, end time.Time, period string) ([]*model.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Post
	for _, p := range m.posts {
		open := !p.Evaluated || p.FreezePeriod == period
		if open && !p.CreatedAt.Before(start) && p.CreatedAt.Before(end) {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateScores(_ context.Context, postID int64, score float64, commentScores map[int64]float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return repository.ErrPostNotFound
	}
	p.Score = score
	for _, c := range p.Comments {
		if s, ok := commentScores[c.ID]; ok {
			c.Score = s
		}
	}
	return nil
}

func (m *memStore) MarkWinner(_ context.Context, postID, reward int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.posts[postID]
	if !ok {
		return repository.ErrPostNotFound
	}
	p.IsWinner, p.WinnerReward = true, reward
	return nil
}

func (m *memStore) MarkCommentWinner(_ context.Context, commentID, reward int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.posts {
		for _, c := range p.Comments {
			if c.ID == commentID {
				c.IsWinner, c.WinnerReward = true, reward
				return nil
			}
		}
	}
	return repository.ErrCommentNotFound
}

func (m *memStore) MarkEvaluated(_ context.Context, postID int64, period string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markCalls++
	if m.markFailAt > 0 && m.markCalls == m.markFailAt {
		return m.markErr
	}
	p, ok := m.posts[postID]
	if !ok {
		return repository.ErrPostNotFound
	}
	p.Evaluated, p.EvaluationDate, p.FreezePeriod = true, &now, period
	for _, c := range p.Comments {
		c.Evaluated = true
	}
	return nil
}

// Pools.

func (m *memStore) GetByDate(_ context.Context, date string) (*model.DailyPool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[date]
	if !ok {
		return nil, repository.ErrPoolNotFound
	}
	c := *p
	return &c, nil
}

func (m *memStore) List(_ context.Context, limit int) ([]*model.DailyPool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.DailyPool
	for _, p := range m.pools {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) MarkDistributed(_ context.Context, date string, winner *model.Winner, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pools[date]
	if !ok {
		return false, nil
	}
	p.Distributed, p.DistributedAt = true, &now
	if winner != nil {
		postID, userID := winner.PostID, winner.UserID
		p.WinnerPostID, p.WinnerUserID, p.WinnerReward = &postID, &userID, winner.Reward
	}
	return true, nil
}

// Evaluations.

func (m *memStore) find(period string, status model.EvaluationStatus) *model.EvaluationResult {
	for _, e := range m.evals {
		if e.FreezePeriod == period && e.Status == status {
			c := *e
			return &c
		}
	}
	return nil
}

func (m *memStore) GetCompleted(_ context.Context, period string) (*model.EvaluationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(period, model.EvaluationCompleted); e != nil {
		return e, nil
	}
	return nil, repository.ErrEvaluationNotFound
}

func (m *memStore) GetInProgress(_ context.Context, period string) (*model.EvaluationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e := m.find(period, model.EvaluationInProgress); e != nil {
		return e, nil
	}
	return nil, repository.ErrEvaluationNotFound
}

func (m *memStore) Acquire(_ context.Context, e *model.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, x := range m.evals {
		if x.FreezePeriod == e.FreezePeriod && (x.Status == model.EvaluationInProgress || x.Status == model.EvaluationCompleted) {
			return repository.ErrEvaluationLocked
		}
	}
	e.ID = int64(len(m.evals) + 1)
	e.Status = model.EvaluationInProgress
	e.CreatedAt, e.UpdatedAt = e.EvaluationDate, e.EvaluationDate
	c := *e
	m.evals = append(m.evals, &c)
	return nil
}

func (m *memStore) Save(_ context.Context, e *model.EvaluationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil && e.Status == model.EvaluationCompleted {
		return m.saveErr
	}
	for i, x := range m.evals {
		if x.ID == e.ID {
			c := *e
			m.evals[i] = &c
			return nil
		}
	}
	return repository.ErrEvaluationNotFound
}

func (m *memStore) Latest(_ context.Context) (*model.EvaluationResult, error) {
	all, _ := m.ListCompleted(context.Background(), 1)
	if len(all) == 0 {
		return nil, repository.ErrEvaluationNotFound
	}
	return all[0], nil
}

func (m *memStore) ListCompleted(_ context.Context, limit int) ([]*model.EvaluationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.EvaluationResult
	for i := len(m.evals) - 1; i >= 0 && len(out) < limit; i-- {
		if m.evals[i].Status == model.EvaluationCompleted {
			c := *m.evals[i]
			out = append(out, &c)
		}
	}
	return out, nil
}

// stubFraud returns a scripted fraud result.
type stubFraud struct {
	result *fraud.Result
	err    error
	calls  int
}

func (s *stubFraud) CheckAndLog(context.Context, int64, model.ActionType, int64, time.Time) (*fraud.Result, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if s.result == nil {
		return &fraud.Result{Severity: model.SeverityNone, Action: model.FraudActionNone}, nil
	}
	return s.result, nil
}

func testEconomy() config.EconomyConfig {
	return config.EconomyConfig{
		PostFee:                 5,
		CommentFee:              2,
		LikeFee:                 1,
		SignupBonus:             100,
		FeeSplit:                config.FeeSplitConfig{PrizePool: 70, PlatformFee: 20, LikerReserve: 10},
		TopPostRewardPercent:    50,
		TopCommentRewardPercent: 50,
		LikerRewardPost:         1,
		WinReputationBonus:      5,
		LockTimeout:             time.Second,
	}
}

func testLimits() config.LimitsConfig {
	return config.LimitsConfig{MaxPostsPerDay: 5, MaxCommentsPerDay: 20, MaxLikesPerDay: 50}
}

// fixture wires the services over one memStore with a settable clock.
type fixture struct {
	store    *memStore
	now      time.Time
	fraud    *stubFraud
	cal      *cycle.Calculator
	splitter *economy.Splitter
	ledger   *LedgerService
	gate     *LimitGate
	actions  *ActionService
	eval     *EvaluationService
	report   *ReportService
	accounts *AccountService
}

func newFixture(now time.Time) *fixture {
	f := &fixture{store: newMemStore(), now: now, fraud: &stubFraud{}}
	clock := func() time.Time { return f.now }

	cal, err := cycle.New(0, 6, ist)
	if err != nil {
		panic(err)
	}
	splitter, err := economy.NewSplitter(testEconomy())
	if err != nil {
		panic(err)
	}
	f.cal, f.splitter = cal, splitter
	f.ledger = NewLedgerService(f.store, f.store, clock)
	f.gate = NewLimitGate(f.store, cal, testLimits())
	f.actions = NewActionService(f.store, postView{f.store}, f.gate, f.fraud, f.ledger, splitter, cal, lock.NewUserLock(), time.Second, clock)
	f.eval = NewEvaluationService(f.store, f.store, f.store, f.store, f.ledger, cal, testEconomy(), time.Hour, clock)
	f.report = NewReportService(f.store, f.store, f.store, f.store, f.gate, splitter, cal, testLimits())
	f.accounts = NewAccountService(f.store, f.ledger, testEconomy().SignupBonus, clock)
	return f
}
