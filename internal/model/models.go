// Package model defines the data models for the reward economy.
package model

import "time"

// ActionType is a fee-charging user action.
type ActionType string

const (
	ActionPost        ActionType = "post"
	ActionComment     ActionType = "comment"
	ActionLike        ActionType = "like"
	ActionCommentLike ActionType = "comment_like"
)

// Counter returns the daily counter kind an action is metered against.
// Comment likes count as likes.
func (a ActionType) Counter() ActionType {
	if a == ActionCommentLike {
		return ActionLike
	}
	return a
}

// Valid reports whether a is a known action.
func (a ActionType) Valid() bool {
	switch a {
	case ActionPost, ActionComment, ActionLike, ActionCommentLike:
		return true
	}
	return false
}

// User is an account with its economic state.
type User struct {
	ID                int64      `db:"id"`
	Username          string     `db:"username"`
	PasswordHash      string     `db:"password_hash"`
	Balance           int64      `db:"balance"`
	Reputation        int        `db:"reputation"`
	DailyPostCount    int        `db:"daily_post_count"`
	DailyCommentCount int        `db:"daily_comment_count"`
	DailyLikeCount    int        `db:"daily_like_count"`
	LastDailyReset    time.Time  `db:"last_daily_reset"`
	TotalEarnings     int64      `db:"total_earnings"`
	TotalSpent        int64      `db:"total_spent"`
	TotalWins         int        `db:"total_wins"`
	IsSuspended       bool       `db:"is_suspended"`
	SuspendedUntil    *time.Time `db:"suspended_until"`
	SuspensionReason  *string    `db:"suspension_reason"`
	FraudFlags        []string   `db:"fraud_flags"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// DailyCount returns the counter for the given action.
func (u *User) DailyCount(action ActionType) int {
	switch action.Counter() {
	case ActionPost:
		return u.DailyPostCount
	case ActionComment:
		return u.DailyCommentCount
	case ActionLike:
		return u.DailyLikeCount
	}
	return 0
}

// SuspensionActive reports whether the suspension still holds at now.
// A suspension without an end time holds until lifted.
func (u *User) SuspensionActive(now time.Time) bool {
	if !u.IsSuspended {
		return false
	}
	return u.SuspendedUntil == nil || now.Before(*u.SuspendedUntil)
}

// Post is a piece of content with its pool state.
type Post struct {
	ID                int64      `db:"id"`
	UserID            int64      `db:"user_id"`
	Content           string     `db:"content"`
	Image             *string    `db:"image"`
	Likes             []int64    `db:"-"`
	Comments          []*Comment `db:"-"`
	TotalCoinOnPost   int64      `db:"total_coin_on_post"`
	PostPoolCoins     int64      `db:"post_pool_coins"`
	CommentPoolCoins  int64      `db:"comment_pool_coins"`
	LikerReserveCoins int64      `db:"liker_reserve_coins"`
	Score             float64    `db:"score"`
	Evaluated         bool       `db:"evaluated"`
	EvaluationDate    *time.Time `db:"evaluation_date"`
	IsWinner          bool       `db:"is_winner"`
	WinnerReward      int64      `db:"winner_reward"`
	FreezePeriod      string     `db:"freeze_period"`
	CreatedAt         time.Time  `db:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// CommentLikes sums likes over all comments.
func (p *Post) CommentLikes() int {
	n := 0
	for _, c := range p.Comments {
		n += len(c.Likes)
	}
	return n
}

// LikedBy reports whether userID is in the like set.
func (p *Post) LikedBy(userID int64) bool {
	return containsID(p.Likes, userID)
}

// Comment belongs to a post.
type Comment struct {
	ID           int64     `db:"id"`
	PostID       int64     `db:"post_id"`
	UserID       int64     `db:"user_id"`
	Text         string    `db:"text"`
	Likes        []int64   `db:"-"`
	Score        float64   `db:"score"`
	Evaluated    bool      `db:"evaluated"`
	IsWinner     bool      `db:"is_winner"`
	WinnerReward int64     `db:"winner_reward"`
	CreatedAt    time.Time `db:"created_at"`
}

// LikedBy reports whether userID is in the like set.
func (c *Comment) LikedBy(userID int64) bool {
	return containsID(c.Likes, userID)
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// DailyPool aggregates the fees of one calendar date.
type DailyPool struct {
	Date              string     `db:"date" json:"date"`
	TotalPoolCoins    int64      `db:"total_pool_coins" json:"totalPoolCoins"`
	PlatformFeeCoins  int64      `db:"platform_fee_coins" json:"platformFeeCoins"`
	LikerReserveCoins int64      `db:"liker_reserve_coins" json:"likerReserveCoins"`
	PostsCount        int        `db:"posts_count" json:"postsCount"`
	CommentsCount     int        `db:"comments_count" json:"commentsCount"`
	LikesCount        int        `db:"likes_count" json:"likesCount"`
	Distributed       bool       `db:"distributed" json:"distributed"`
	DistributedAt     *time.Time `db:"distributed_at" json:"distributedAt,omitempty"`
	WinnerPostID      *int64     `db:"winner_post_id" json:"winnerPostId,omitempty"`
	WinnerUserID      *int64     `db:"winner_user_id" json:"winnerUserId,omitempty"`
	WinnerReward      int64      `db:"winner_reward" json:"winnerReward"`
	CreatedAt         time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updatedAt"`
}

// FeeSplit is the division of one fee.
type FeeSplit struct {
	PrizePool    int64 `json:"prizePool"`
	PlatformFee  int64 `json:"platformFee"`
	LikerReserve int64 `json:"likerReserve"`
	Total        int64 `json:"total"`
}

// TxType categorizes ledger entries.
type TxType string

const (
	TxTypePost        TxType = "post"
	TxTypeComment     TxType = "comment"
	TxTypeLike        TxType = "like"
	TxTypeReward      TxType = "reward"
	TxTypeRefund      TxType = "refund"
	TxTypePenalty     TxType = "penalty"
	TxTypeSignupBonus TxType = "signup_bonus"
)

// ActionTxTypes are the entry types written by fee-charging actions.
func ActionTxTypes() []TxType {
	return []TxType{TxTypePost, TxTypeComment, TxTypeLike}
}

// ValidTxType reports whether s names a known entry type.
func ValidTxType(s string) bool {
	switch TxType(s) {
	case TxTypePost, TxTypeComment, TxTypeLike, TxTypeReward, TxTypeRefund, TxTypePenalty, TxTypeSignupBonus:
		return true
	}
	return false
}

// Direction of a ledger entry.
type Direction string

const (
	DirectionDebit  Direction = "debit"
	DirectionCredit Direction = "credit"
)

// Metadata kinds.
const (
	MetaActionFee    = "action_fee"
	MetaReward       = "reward"
	MetaCompensation = "compensation"
	MetaSignup       = "signup"
)

// TxMetadata is a tagged union keyed by Kind. Exactly one payload matches Kind.
type TxMetadata struct {
	Kind         string            `json:"kind,omitempty"`
	Fee          *FeeMetadata      `json:"fee,omitempty"`
	Reward       *RewardMetadata   `json:"reward,omitempty"`
	Compensation *CompensationMeta `json:"compensation,omitempty"`
}

// FeeMetadata describes a fee charge.
type FeeMetadata struct {
	Action ActionType `json:"action"`
	Split  FeeSplit   `json:"split"`
}

// RewardMetadata describes an evaluation payout.
type RewardMetadata struct {
	FreezePeriod string  `json:"freezePeriod"`
	RunID        string  `json:"runId"`
	WinnerType   string  `json:"winnerType"`
	Score        float64 `json:"score,omitempty"`
}

// CompensationMeta links a reversal to the entry it undoes.
type CompensationMeta struct {
	ReversesTxID int64  `json:"reversesTxId"`
	Reason       string `json:"reason"`
}

// Transaction is an immutable ledger row.
type Transaction struct {
	ID               int64      `db:"id" json:"id"`
	UserID           int64      `db:"user_id" json:"userId"`
	Type             TxType     `db:"type" json:"type"`
	Amount           int64      `db:"amount" json:"amount"`
	Direction        Direction  `db:"direction" json:"direction"`
	RelatedPostID    *int64     `db:"related_post_id" json:"relatedPostId,omitempty"`
	RelatedCommentID *int64     `db:"related_comment_id" json:"relatedCommentId,omitempty"`
	Description      string     `db:"description" json:"description"`
	BalanceAfter     int64      `db:"balance_after" json:"balanceAfter"`
	Metadata         TxMetadata `db:"metadata" json:"metadata"`
	IdempotencyKey   *string    `db:"idempotency_key" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
}

// LedgerEntry is a requested balance change.
// Amount is applied as-is: a debit subtracts it, a credit adds it.
type LedgerEntry struct {
	UserID           int64
	Amount           int64
	Direction        Direction
	Type             TxType
	RelatedPostID    *int64
	RelatedCommentID *int64
	Description      string
	Metadata         TxMetadata
	IdempotencyKey   string
	// RequireFunds makes a debit conditional on balance >= Amount.
	RequireFunds bool
}

// EvaluationStatus is the settlement state machine.
type EvaluationStatus string

const (
	EvaluationPending    EvaluationStatus = "pending"
	EvaluationInProgress EvaluationStatus = "in_progress"
	EvaluationCompleted  EvaluationStatus = "completed"
	EvaluationFailed     EvaluationStatus = "failed"
)

// Winner types.
const (
	WinnerPost    = "post"
	WinnerComment = "comment"
)

// Winner records one payout to a top post or comment.
type Winner struct {
	UserID    int64   `json:"userId"`
	PostID    int64   `json:"postId"`
	CommentID *int64  `json:"commentId,omitempty"`
	Score     float64 `json:"score"`
	Reward    int64   `json:"reward"`
	Type      string  `json:"type"`
}

// LikerReward records a flat payout to a liker of the winning post.
type LikerReward struct {
	UserID    int64 `json:"userId"`
	Reward    int64 `json:"reward"`
	ForPostID int64 `json:"forPostId"`
}

// EvaluationResult is one settlement attempt for a freeze period.
type EvaluationResult struct {
	ID                           int64            `db:"id" json:"id"`
	RunID                        string           `db:"run_id" json:"runId"`
	EvaluationDate               time.Time        `db:"evaluation_date" json:"evaluationDate"`
	FreezePeriod                 string           `db:"freeze_period" json:"freezePeriod"`
	Status                       EvaluationStatus `db:"status" json:"status"`
	TotalPostsEvaluated          int              `db:"total_posts_evaluated" json:"totalPostsEvaluated"`
	TotalCommentsEvaluated       int              `db:"total_comments_evaluated" json:"totalCommentsEvaluated"`
	TotalPoolDistributed         int64            `db:"total_pool_distributed" json:"totalPoolDistributed"`
	TotalLikerRewardsDistributed int64            `db:"total_liker_rewards_distributed" json:"totalLikerRewardsDistributed"`
	TopPostWinner                *Winner          `db:"top_post_winner" json:"topPostWinner,omitempty"`
	TopCommentWinners            []Winner         `db:"top_comment_winners" json:"topCommentWinners"`
	LikerRewards                 []LikerReward    `db:"liker_rewards" json:"likerRewards"`
	ErrorMessage                 *string          `db:"error_message" json:"errorMessage,omitempty"`
	CreatedAt                    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt                    time.Time        `db:"updated_at" json:"updatedAt"`
}

// FraudType is the category of a fraud log.
type FraudType string

const (
	FraudRapidActions     FraudType = "rapid_actions"
	FraudCoordinatedLikes FraudType = "coordinated_likes"
	FraudSpamComments     FraudType = "spam_comments"
	FraudBotBehavior      FraudType = "bot_behavior"
	FraudMultipleAccounts FraudType = "multiple_accounts"
	FraudSpamContent      FraudType = "spam_content"
	FraudUnusualPattern   FraudType = "unusual_pattern"
)

// Severity of a fraud detection.
type Severity string

const (
	SeverityNone     Severity = ""
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Penalizes reports whether the severity triggers a reputation penalty.
func (s Severity) Penalizes() bool {
	return s == SeverityHigh || s == SeverityCritical
}

// FraudAction is what was done in response to a detection.
type FraudAction string

const (
	FraudActionNone                FraudAction = "none"
	FraudActionWarning             FraudAction = "warning"
	FraudActionReputationPenalty   FraudAction = "reputation_penalty"
	FraudActionTemporarySuspension FraudAction = "temporary_suspension"
	FraudActionPermanentBan        FraudAction = "permanent_ban"
)

// FraudEvidence is the typed evidence attached to a fraud log.
type FraudEvidence struct {
	Flags            []string   `json:"flags"`
	ActionType       ActionType `json:"actionType"`
	RelatedPostID    *int64     `json:"relatedPostId,omitempty"`
	RecentActions    int        `json:"recentActions,omitempty"`
	CommentedPosts   int        `json:"commentedPosts,omitempty"`
	CliquePosts      int        `json:"cliquePosts,omitempty"`
	MeanGapMillis    int64      `json:"meanGapMillis,omitempty"`
	ReputationBefore *int       `json:"reputationBefore,omitempty"`
	ReputationAfter  *int       `json:"reputationAfter,omitempty"`
}

// FraudLog records one detected violation.
type FraudLog struct {
	ID            int64         `db:"id" json:"id"`
	UserID        int64         `db:"user_id" json:"userId"`
	Type          FraudType     `db:"type" json:"type"`
	Severity      Severity      `db:"severity" json:"severity"`
	Description   string        `db:"description" json:"description"`
	Evidence      FraudEvidence `db:"evidence" json:"evidence"`
	Resolved      bool          `db:"resolved" json:"resolved"`
	ResolvedAt    *time.Time    `db:"resolved_at" json:"resolvedAt,omitempty"`
	Action        FraudAction   `db:"action" json:"action"`
	RelatedPostID *int64        `db:"related_post_id" json:"relatedPostId,omitempty"`
	CreatedAt     time.Time     `db:"created_at" json:"createdAt"`
}

// ActionRecord is the content and pool effect of one charged action.
// For a post, PostID is filled in on record; for a comment, CommentID is.
type ActionRecord struct {
	Action       ActionType
	UserID       int64
	PostID       int64
	CommentID    int64
	Content      string
	Image        *string
	Text         string
	Split        FeeSplit
	PoolDate     string
	FreezePeriod string
	At           time.Time
}
