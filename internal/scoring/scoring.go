// Package scoring computes reproducible engagement scores and rankings.
package scoring

import (
	"math"
	"sort"
	"time"

	"github.com/Gaur97shiv/playknow/internal/model"
)

const (
	likeWeight        = 1.0
	commentWeight     = 2.0
	commentLikeWeight = 0.5
	replyWeight       = 2.0
	reputationWeight  = 0.1

	maxAgeBonus = 0.1
	daysPerYear = 365.0
)

// Author is the part of a user that influences scores.
type Author struct {
	Reputation int
	CreatedAt  time.Time
}

// AuthorOf extracts scoring inputs from a user.
func AuthorOf(u *model.User) Author {
	return Author{Reputation: u.Reputation, CreatedAt: u.CreatedAt}
}

// Authors maps user IDs to scoring inputs. Missing entries score zero.
type Authors map[int64]Author

// PostScore scores a post at now.
func PostScore(p *model.Post, author Author, now time.Time) float64 {
	base := float64(len(p.Likes))*likeWeight +
		float64(len(p.Comments))*commentWeight +
		float64(p.CommentLikes())*commentLikeWeight +
		float64(author.Reputation)*reputationWeight
	return round2(base * ageMultiplier(author, now))
}

// CommentScore scores a comment at now. Comments have no replies, so the
// reply term is always zero.
func CommentScore(c *model.Comment, author Author, now time.Time) float64 {
	const replies = 0
	base := float64(len(c.Likes))*likeWeight +
		replies*replyWeight +
		float64(author.Reputation)*reputationWeight
	return round2(base * ageMultiplier(author, now))
}

// ageMultiplier grants up to a 10% bonus at one year of account age.
func ageMultiplier(a Author, now time.Time) float64 {
	days := now.Sub(a.CreatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	return 1 + math.Min(days/daysPerYear, 1)*maxAgeBonus
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ScoredPost pairs a post with its computed score.
type ScoredPost struct {
	Post  *model.Post
	Score float64
}

// ScoredComment pairs a comment with its computed score.
type ScoredComment struct {
	Comment *model.Comment
	Score   float64
}

// RankPosts scores posts and orders them by score descending. Equal scores
// keep their input order.
func RankPosts(posts []*model.Post, authors Authors, now time.Time) []ScoredPost {
	ranked := make([]ScoredPost, 0, len(posts))
	for _, p := range posts {
		var score float64
		if a, ok := authors[p.UserID]; ok {
			score = PostScore(p, a, now)
		}
		ranked = append(ranked, ScoredPost{Post: p, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

// RankComments scores comments and orders them by score descending. Equal
// scores keep their input order.
func RankComments(comments []*model.Comment, authors Authors, now time.Time) []ScoredComment {
	ranked := make([]ScoredComment, 0, len(comments))
	for _, c := range comments {
		var score float64
		if a, ok := authors[c.UserID]; ok {
			score = CommentScore(c, a, now)
		}
		ranked = append(ranked, ScoredComment{Comment: c, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
