// Package fraud implements the heuristics that throttle reward farming.
//
// A check runs a fixed set of detectors against the user's recent activity.
// The number of distinct flags sets the severity; only high severity blocks
// the action and costs reputation.
package fraud

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Gaur97shiv/playknow/internal/config"
	"github.com/Gaur97shiv/playknow/internal/metrics"
	"github.com/Gaur97shiv/playknow/internal/model"
)

// Flags raised by the detectors.
const (
	FlagRapidActions     = "RAPID_ACTIONS"
	FlagCoordinatedLikes = "COORDINATED_LIKES"
	FlagSpamComments     = "SPAM_COMMENTS"
	FlagBotCadence       = "BOT_CADENCE"
)

var flagTypes = map[string]model.FraudType{
	FlagRapidActions:     model.FraudRapidActions,
	FlagCoordinatedLikes: model.FraudCoordinatedLikes,
	FlagSpamComments:     model.FraudSpamComments,
	FlagBotCadence:       model.FraudBotBehavior,
}

// ActivityStore is the read side the detectors need.
type ActivityStore interface {
	RecentActionTimes(ctx context.Context, userID int64, since time.Time) ([]time.Time, error)
	RecentLikers(ctx context.Context, postID int64, limit int) ([]int64, error)
	CountLikes(ctx context.Context, postID int64) (int, error)
	CountPostsSharingLikers(ctx context.Context, excludePostID int64, likers []int64, minShared int) (int, error)
	CommentedPostsSince(ctx context.Context, userID int64, since time.Time) ([]int64, error)
}

// LogStore persists fraud logs.
type LogStore interface {
	Create(ctx context.Context, l *model.FraudLog) error
}

// UserFlagger applies the consequences of a detection to the user.
type UserFlagger interface {
	AppendFraudFlags(ctx context.Context, id int64, flags []string) error
	PenalizeReputation(ctx context.Context, id int64, penalty int) (before, after int, err error)
}

// Detection is the outcome of the detectors for one attempt.
type Detection struct {
	Flags    []string
	Evidence model.FraudEvidence
}

// Result is the outcome of CheckAndLog.
type Result struct {
	Flagged  bool
	Flags    []string
	Severity model.Severity
	Action   model.FraudAction
	LogID    int64
}

// Blocked reports whether the action must be refused.
func (r *Result) Blocked() bool {
	return r != nil && r.Severity.Penalizes()
}

// Detector runs the heuristics and records their outcome.
type Detector struct {
	activity ActivityStore
	logs     LogStore
	users    UserFlagger
	cfg      config.FraudConfig
}

// NewDetector creates a new Detector instance.
func NewDetector(activity ActivityStore, logs LogStore, users UserFlagger, cfg config.FraudConfig) *Detector {
	return &Detector{activity: activity, logs: logs, users: users, cfg: cfg}
}

// SeverityFor maps a flag count to a severity.
func SeverityFor(flags int) model.Severity {
	switch {
	case flags >= 3:
		return model.SeverityHigh
	case flags == 2:
		return model.SeverityMedium
	case flags == 1:
		return model.SeverityLow
	default:
		return model.SeverityNone
	}
}

// DetectPatterns runs every detector that applies to the action. The attempt
// being checked counts as happening at now.
func (d *Detector) DetectPatterns(ctx context.Context, userID int64, action model.ActionType, postID int64, now time.Time) (*Detection, error) {
	det := &Detection{Evidence: model.FraudEvidence{ActionType: action}}
	if postID != 0 {
		id := postID
		det.Evidence.RelatedPostID = &id
	}

	times, err := d.activity.RecentActionTimes(ctx, userID, now.Add(-d.cfg.RapidActionWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to load recent actions: %w", err)
	}
	times = append(times, now)
	det.Evidence.RecentActions = len(times)

	if len(times) > d.cfg.RapidActionThreshold {
		det.Flags = append(det.Flags, FlagRapidActions)
	}

	if action == model.ActionLike && postID != 0 {
		clique, err := d.coordinatedLikes(ctx, postID)
		if err != nil {
			return nil, err
		}
		det.Evidence.CliquePosts = clique
		if clique >= d.cfg.CoordinatedMinPosts {
			det.Flags = append(det.Flags, FlagCoordinatedLikes)
		}
	}

	if action == model.ActionComment {
		posts, err := d.activity.CommentedPostsSince(ctx, userID, now.Add(-d.cfg.SpamCommentWindow))
		if err != nil {
			return nil, fmt.Errorf("failed to load commented posts: %w", err)
		}
		distinct := distinctWith(posts, postID)
		det.Evidence.CommentedPosts = distinct
		if distinct > d.cfg.SpamCommentThreshold {
			det.Flags = append(det.Flags, FlagSpamComments)
		}
	}

	if mean, ok := regularCadence(times, d.cfg.CadenceMinActions, d.cfg.CadenceTolerance); ok {
		det.Flags = append(det.Flags, FlagBotCadence)
		det.Evidence.MeanGapMillis = mean.Milliseconds()
	}

	det.Evidence.Flags = det.Flags
	return det, nil
}

// coordinatedLikes counts other posts sharing enough of the target's most
// recent likers. Posts below the minimum like count are never considered.
func (d *Detector) coordinatedLikes(ctx context.Context, postID int64) (int, error) {
	likes, err := d.activity.CountLikes(ctx, postID)
	if err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	if likes < d.cfg.CoordinatedMinLikes {
		return 0, nil
	}

	likers, err := d.activity.RecentLikers(ctx, postID, d.cfg.CoordinatedLikers)
	if err != nil {
		return 0, fmt.Errorf("failed to load recent likers: %w", err)
	}
	if len(likers) < d.cfg.CoordinatedShared {
		return 0, nil
	}

	n, err := d.activity.CountPostsSharingLikers(ctx, postID, likers, d.cfg.CoordinatedShared)
	if err != nil {
		return 0, fmt.Errorf("failed to count shared likers: %w", err)
	}
	return n, nil
}

// CheckAndLog runs the detectors and, when anything fires, writes a fraud
// log, appends the flags to the user and applies the reputation penalty for
// high severity.
func (d *Detector) CheckAndLog(ctx context.Context, userID int64, action model.ActionType, postID int64, now time.Time) (*Result, error) {
	det, err := d.DetectPatterns(ctx, userID, action, postID, now)
	if err != nil {
		return nil, err
	}

	res := &Result{Flags: det.Flags, Severity: SeverityFor(len(det.Flags)), Action: model.FraudActionNone}
	if len(det.Flags) == 0 {
		return res, nil
	}
	res.Flagged = true
	res.Action = model.FraudActionWarning

	if res.Severity.Penalizes() {
		before, after, err := d.users.PenalizeReputation(ctx, userID, d.cfg.ReputationPenalty)
		if err != nil {
			return nil, fmt.Errorf("failed to apply reputation penalty: %w", err)
		}
		det.Evidence.ReputationBefore = &before
		det.Evidence.ReputationAfter = &after
		res.Action = model.FraudActionReputationPenalty
	}

	entry := &model.FraudLog{
		UserID:        userID,
		Type:          flagTypes[det.Flags[0]],
		Severity:      res.Severity,
		Description:   fmt.Sprintf("%d fraud pattern(s) detected on %s: %s", len(det.Flags), action, strings.Join(det.Flags, ", ")),
		Evidence:      det.Evidence,
		Action:        res.Action,
		RelatedPostID: det.Evidence.RelatedPostID,
		CreatedAt:     now,
	}
	if err := d.logs.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to write fraud log: %w", err)
	}
	res.LogID = entry.ID

	if err := d.users.AppendFraudFlags(ctx, userID, det.Flags); err != nil {
		return nil, fmt.Errorf("failed to append fraud flags: %w", err)
	}

	for _, f := range det.Flags {
		metrics.FraudFlags.WithLabelValues(f).Inc()
	}
	log.Warn().
		Int64("user_id", userID).
		Str("action", string(action)).
		Strs("flags", det.Flags).
		Str("severity", string(res.Severity)).
		Msg("Fraud patterns detected")

	return res, nil
}

// distinctWith counts distinct ids in ids plus extra.
func distinctWith(ids []int64, extra int64) int {
	seen := make(map[int64]struct{}, len(ids)+1)
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	if extra != 0 {
		seen[extra] = struct{}{}
	}
	return len(seen)
}

// regularCadence reports whether the timestamps arrive at a machine-regular
// interval: at least minActions of them, with every gap within
// max(tolerance, mean/10) of the mean gap.
func regularCadence(times []time.Time, minActions int, tolerance time.Duration) (time.Duration, bool) {
	if minActions < 2 || len(times) < minActions {
		return 0, false
	}
	sorted := append([]time.Time(nil), times...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]time.Duration, 0, len(sorted)-1)
	var total time.Duration
	for i := 1; i < len(sorted); i++ {
		g := sorted[i].Sub(sorted[i-1])
		gaps = append(gaps, g)
		total += g
	}
	mean := total / time.Duration(len(gaps))

	tol := mean / 10
	if tolerance > tol {
		tol = tolerance
	}
	for _, g := range gaps {
		diff := g - mean
		if diff < 0 {
			diff = -diff
		}
		if diff > tol {
			return 0, false
		}
	}
	return mean, true
}
