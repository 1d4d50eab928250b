package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Gaur97shiv/playknow/internal/model"
)

const postColumns = `id, user_id, content, image, total_coin_on_post, post_pool_coins,
	comment_pool_coins, liker_reserve_coins, score, evaluated, evaluation_date,
	is_winner, winner_reward, freeze_period, created_at, updated_at`

const commentColumns = `id, post_id, user_id, text, score, evaluated, is_winner, winner_reward, created_at`

func scanPost(row pgx.Row) (*model.Post, error) {
	var p model.Post
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Content,
		&p.Image,
		&p.TotalCoinOnPost,
		&p.PostPoolCoins,
		&p.CommentPoolCoins,
		&p.LikerReserveCoins,
		&p.Score,
		&p.Evaluated,
		&p.EvaluationDate,
		&p.IsWinner,
		&p.WinnerReward,
		&p.FreezePeriod,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanComment(row pgx.Row) (*model.Comment, error) {
	var c model.Comment
	err := row.Scan(
		&c.ID,
		&c.PostID,
		&c.UserID,
		&c.Text,
		&c.Score,
		&c.Evaluated,
		&c.IsWinner,
		&c.WinnerReward,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PostRepository handles posts, comments and their like sets.
type PostRepository struct {
	pool *pgxpool.Pool
}

// NewPostRepository creates a new PostRepository instance.
func NewPostRepository(pool *pgxpool.Pool) *PostRepository {
	return &PostRepository{pool: pool}
}

// Record persists the content of a charged action and accumulates its fee
// split into the post's pools and the day's pool, in one transaction.
func (r *PostRepository) Record(ctx context.Context, rec *model.ActionRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin record transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	switch rec.Action {
	case model.ActionPost:
		err = insertPost(ctx, tx, rec)
	case model.ActionComment:
		err = insertComment(ctx, tx, rec)
	case model.ActionLike:
		err = insertPostLike(ctx, tx, rec)
	case model.ActionCommentLike:
		err = insertCommentLike(ctx, tx, rec)
	default:
		err = fmt.Errorf("%w: %s", errUnknownRecordedAction, rec.Action)
	}
	if err != nil {
		return err
	}

	if err := accumulatePool(ctx, tx, rec); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit record transaction: %w", err)
	}
	return nil
}

func insertPost(ctx context.Context, tx pgx.Tx, rec *model.ActionRecord) error {
	const query = `
		INSERT INTO posts (user_id, content, image, total_coin_on_post, post_pool_coins,
			liker_reserve_coins, freeze_period, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id
	`
	err := tx.QueryRow(ctx, query,
		rec.UserID, rec.Content, rec.Image, rec.Split.Total, rec.Split.PrizePool,
		rec.Split.LikerReserve, rec.FreezePeriod, rec.At,
	).Scan(&rec.PostID)
	if err != nil {
		return fmt.Errorf("failed to create post: %w", err)
	}
	return nil
}

func insertComment(ctx context.Context, tx pgx.Tx, rec *model.ActionRecord) error {
	if err := creditCommentPool(ctx, tx, rec); err != nil {
		return err
	}
	const query = `
		INSERT INTO comments (post_id, user_id, text, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	if err := tx.QueryRow(ctx, query, rec.PostID, rec.UserID, rec.Text, rec.At).Scan(&rec.CommentID); err != nil {
		return fmt.Errorf("failed to create comment: %w", err)
	}
	return nil
}

func insertPostLike(ctx context.Context, tx pgx.Tx, rec *model.ActionRecord) error {
	const like = `
		INSERT INTO post_likes (post_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, user_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, like, rec.PostID, rec.UserID, rec.At)
	if err != nil {
		return fmt.Errorf("failed to like post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyLiked
	}

	const pool = `
		UPDATE posts
		SET total_coin_on_post = total_coin_on_post + $2,
			post_pool_coins = post_pool_coins + $3,
			liker_reserve_coins = liker_reserve_coins + $4,
			updated_at = $5
		WHERE id = $1 AND evaluated = FALSE
	`
	tag, err = tx.Exec(ctx, pool, rec.PostID, rec.Split.Total, rec.Split.PrizePool, rec.Split.LikerReserve, rec.At)
	if err != nil {
		return fmt.Errorf("failed to update post pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

func insertCommentLike(ctx context.Context, tx pgx.Tx, rec *model.ActionRecord) error {
	const lookup = `SELECT 1 FROM comments WHERE id = $1 AND post_id = $2 FOR SHARE`
	var one int
	if err := tx.QueryRow(ctx, lookup, rec.CommentID, rec.PostID).Scan(&one); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrCommentNotFound
		}
		return fmt.Errorf("failed to get comment: %w", err)
	}

	const like = `
		INSERT INTO comment_likes (comment_id, user_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (comment_id, user_id) DO NOTHING
	`
	tag, err := tx.Exec(ctx, like, rec.CommentID, rec.UserID, rec.At)
	if err != nil {
		return fmt.Errorf("failed to like comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyLiked
	}
	return creditCommentPool(ctx, tx, rec)
}

func creditCommentPool(ctx context.Context, tx pgx.Tx, rec *model.ActionRecord) error {
	const query = `
		UPDATE posts
		SET total_coin_on_post = total_coin_on_post + $2,
			comment_pool_coins = comment_pool_coins + $3,
			liker_reserve_coins = liker_reserve_coins + $4,
			updated_at = $5
		WHERE id = $1 AND evaluated = FALSE
	`
	tag, err := tx.Exec(ctx, query, rec.PostID, rec.Split.Total, rec.Split.PrizePool, rec.Split.LikerReserve, rec.At)
	if err != nil {
		return fmt.Errorf("failed to update comment pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

// GetByID retrieves a post with its likes and comments.
func (r *PostRepository) GetByID(ctx context.Context, id int64) (*model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE id = $1`

	post, err := scanPost(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	if err := r.loadRelations(ctx, []*model.Post{post}); err != nil {
		return nil, err
	}
	return post, nil
}

// ListForSettlement returns the posts created in [start, end) that are still
// open or were already closed for freezePeriod, in creation order, with likes
// and comments loaded. A retried settlement therefore sees the same set.
func (r *PostRepository) ListForSettlement(ctx context.Context, start, end time.Time, freezePeriod string) ([]*model.Post, error) {
	query := `
		SELECT ` + postColumns + `
		FROM posts
		WHERE created_at >= $1 AND created_at < $2
			AND (evaluated = FALSE OR freeze_period = $3)
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, start, end, freezePeriod)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts for settlement: %w", err)
	}
	defer rows.Close()

	var posts []*model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}

	if err := r.loadRelations(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (r *PostRepository) loadRelations(ctx context.Context, posts []*model.Post) error {
	if len(posts) == 0 {
		return nil
	}
	byID := make(map[int64]*model.Post, len(posts))
	ids := make([]int64, 0, len(posts))
	for _, p := range posts {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	likes, err := r.pool.Query(ctx,
		`SELECT post_id, user_id FROM post_likes WHERE post_id = ANY($1) ORDER BY created_at, user_id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load post likes: %w", err)
	}
	for likes.Next() {
		var postID, userID int64
		if err := likes.Scan(&postID, &userID); err != nil {
			likes.Close()
			return fmt.Errorf("failed to scan post like: %w", err)
		}
		byID[postID].Likes = append(byID[postID].Likes, userID)
	}
	likes.Close()
	if err := likes.Err(); err != nil {
		return fmt.Errorf("failed to iterate post likes: %w", err)
	}

	comments, err := r.pool.Query(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE post_id = ANY($1) ORDER BY created_at, id`, ids)
	if err != nil {
		return fmt.Errorf("failed to load comments: %w", err)
	}
	commentByID := make(map[int64]*model.Comment)
	var commentIDs []int64
	for comments.Next() {
		c, err := scanComment(comments)
		if err != nil {
			comments.Close()
			return fmt.Errorf("failed to scan comment: %w", err)
		}
		byID[c.PostID].Comments = append(byID[c.PostID].Comments, c)
		commentByID[c.ID] = c
		commentIDs = append(commentIDs, c.ID)
	}
	comments.Close()
	if err := comments.Err(); err != nil {
		return fmt.Errorf("failed to iterate comments: %w", err)
	}
	if len(commentIDs) == 0 {
		return nil
	}

	clikes, err := r.pool.Query(ctx,
		`SELECT comment_id, user_id FROM comment_likes WHERE comment_id = ANY($1) ORDER BY created_at, user_id`, commentIDs)
	if err != nil {
		return fmt.Errorf("failed to load comment likes: %w", err)
	}
	defer clikes.Close()
	for clikes.Next() {
		var commentID, userID int64
		if err := clikes.Scan(&commentID, &userID); err != nil {
			return fmt.Errorf("failed to scan comment like: %w", err)
		}
		commentByID[commentID].Likes = append(commentByID[commentID].Likes, userID)
	}
	if err := clikes.Err(); err != nil {
		return fmt.Errorf("failed to iterate comment likes: %w", err)
	}
	return nil
}

// UpdateScores persists the computed score of a post and its comments.
func (r *PostRepository) UpdateScores(ctx context.Context, postID int64, score float64, commentScores map[int64]float64) error {
	if _, err := r.pool.Exec(ctx, `UPDATE posts SET score = $2, updated_at = NOW() WHERE id = $1`, postID, score); err != nil {
		return fmt.Errorf("failed to update post score: %w", err)
	}
	for id, s := range commentScores {
		if _, err := r.pool.Exec(ctx, `UPDATE comments SET score = $2 WHERE id = $1`, id, s); err != nil {
			return fmt.Errorf("failed to update comment score: %w", err)
		}
	}
	return nil
}

// MarkWinner flags a post as the period's winner.
func (r *PostRepository) MarkWinner(ctx context.Context, postID, reward int64) error {
	const query = `UPDATE posts SET is_winner = TRUE, winner_reward = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, postID, reward)
	if err != nil {
		return fmt.Errorf("failed to mark post winner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	return nil
}

// MarkCommentWinner flags a comment as its post's top comment.
func (r *PostRepository) MarkCommentWinner(ctx context.Context, commentID, reward int64) error {
	const query = `UPDATE comments SET is_winner = TRUE, winner_reward = $2 WHERE id = $1`
	tag, err := r.pool.Exec(ctx, query, commentID, reward)
	if err != nil {
		return fmt.Errorf("failed to mark comment winner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

// MarkEvaluated closes a post and all of its comments for the period.
func (r *PostRepository) MarkEvaluated(ctx context.Context, postID int64, freezePeriod string, at time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin evaluation mark: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const post = `
		UPDATE posts SET evaluated = TRUE, evaluation_date = $2, freeze_period = $3, updated_at = NOW()
		WHERE id = $1
	`
	tag, err := tx.Exec(ctx, post, postID, at, freezePeriod)
	if err != nil {
		return fmt.Errorf("failed to mark post evaluated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPostNotFound
	}
	if _, err := tx.Exec(ctx, `UPDATE comments SET evaluated = TRUE WHERE post_id = $1`, postID); err != nil {
		return fmt.Errorf("failed to mark comments evaluated: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit evaluation mark: %w", err)
	}
	return nil
}

// RecentLikers returns the most recent likers of a post, newest first.
func (r *PostRepository) RecentLikers(ctx context.Context, postID int64, limit int) ([]int64, error) {
	const query = `
		SELECT user_id FROM post_likes
		WHERE post_id = $1
		ORDER BY created_at DESC, user_id DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, query, postID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent likers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan liker: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate likers: %w", err)
	}
	return ids, nil
}

// CountLikes returns the size of a post's like set.
func (r *PostRepository) CountLikes(ctx context.Context, postID int64) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM post_likes WHERE post_id = $1`, postID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count likes: %w", err)
	}
	return n, nil
}

// CountPostsSharingLikers counts posts other than excludePostID that were
// liked by at least minShared of the given users.
func (r *PostRepository) CountPostsSharingLikers(ctx context.Context, excludePostID int64, likers []int64, minShared int) (int, error) {
	const query = `
		SELECT COUNT(*) FROM (
			SELECT post_id FROM post_likes
			WHERE post_id <> $1 AND user_id = ANY($2)
			GROUP BY post_id
			HAVING COUNT(*) >= $3
		) shared
	`
	var n int
	if err := r.pool.QueryRow(ctx, query, excludePostID, likers, minShared).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts sharing likers: %w", err)
	}
	return n, nil
}

// CommentedPostsSince returns the distinct posts the user commented on since the given time.
func (r *PostRepository) CommentedPostsSince(ctx context.Context, userID int64, since time.Time) ([]int64, error) {
	const query = `
		SELECT DISTINCT post_id FROM comments
		WHERE user_id = $1 AND created_at >= $2
	`
	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to list commented posts: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan post id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate commented posts: %w", err)
	}
	return ids, nil
}
