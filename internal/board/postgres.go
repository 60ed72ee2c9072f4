package board

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/hearth-cms/hearth/internal/platform/db"
)

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const postColumns = `id, author_id, title, content, is_secret, COALESCE(password_hash, ''), is_deleted, created_at, updated_at`

const commentColumns = `id, post_id, author_id, content, is_deleted, created_at, updated_at`

func scanPost(row pgx.Row) (Post, error) {
	var p Post
	err := row.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Content, &p.Secret, &p.PasswordHash, &p.Deleted, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Post{}, ErrPostNotFound
	}
	return p, err
}

func scanComment(row pgx.Row) (Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &c.Content, &c.Deleted, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Comment{}, ErrCommentNotFound
	}
	return c, err
}

func nullableHash(hash string) *string {
	if hash == "" {
		return nil
	}
	return &hash
}

func (r *PGRepository) FindPost(ctx context.Context, id int64) (Post, error) {
	return scanPost(r.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM board_posts WHERE id = $1`, id))
}

func (r *PGRepository) InsertPost(ctx context.Context, post *Post) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO board_posts (author_id, title, content, is_secret, password_hash)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, updated_at`,
		post.AuthorID, post.Title, post.Content, post.Secret, nullableHash(post.PasswordHash),
	).Scan(&post.ID, &post.CreatedAt, &post.UpdatedAt)
	if err != nil {
		return fmt.Errorf("board: insert post: %w", err)
	}
	return nil
}

func (r *PGRepository) SavePost(ctx context.Context, id int64, mutate func(*Post) error) (Post, error) {
	var saved Post
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		post, err := scanPost(tx.QueryRow(ctx, `SELECT `+postColumns+` FROM board_posts WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := mutate(&post); err != nil {
			return err
		}
		saved, err = scanPost(tx.QueryRow(ctx, `UPDATE board_posts
SET title = $2, content = $3, is_secret = $4, password_hash = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+postColumns,
			id, post.Title, post.Content, post.Secret, nullableHash(post.PasswordHash)))
		return err
	})
	if err != nil {
		return Post{}, err
	}
	return saved, nil
}

func (r *PGRepository) SoftDeletePost(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE board_posts SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return false, fmt.Errorf("board: delete post: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListPosts runs the page query and the count in parallel.
func (r *PGRepository) ListPosts(ctx context.Context, q ListQuery) ([]Post, int, error) {
	where := `WHERE NOT is_deleted`
	args := []any{}
	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		where += ` AND (title ILIKE $1 OR content ILIKE $1)`
	}

	var (
		posts []Post
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), q.PerPage, (q.Page-1)*q.PerPage)
		limit := len(args) + 1
		rows, err := r.pool.Query(gctx, fmt.Sprintf(`SELECT %s FROM board_posts %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			postColumns, where, limit, limit+1), pageArgs...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			post, err := scanPost(rows)
			if err != nil {
				return err
			}
			posts = append(posts, post)
		}
		return rows.Err()
	})
	g.Go(func() error {
		return r.pool.QueryRow(gctx, `SELECT COUNT(*) FROM board_posts `+where, args...).Scan(&total)
	})
	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("board: list posts: %w", err)
	}
	return posts, total, nil
}

func (r *PGRepository) FindComment(ctx context.Context, id int64) (Comment, error) {
	return scanComment(r.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM board_comments WHERE id = $1`, id))
}

func (r *PGRepository) InsertComment(ctx context.Context, comment *Comment) error {
	err := r.pool.QueryRow(ctx, `INSERT INTO board_comments (post_id, author_id, content)
VALUES ($1, $2, $3)
RETURNING id, created_at, updated_at`,
		comment.PostID, comment.AuthorID, comment.Content,
	).Scan(&comment.ID, &comment.CreatedAt, &comment.UpdatedAt)
	if err != nil {
		return fmt.Errorf("board: insert comment: %w", err)
	}
	return nil
}

func (r *PGRepository) SaveComment(ctx context.Context, id int64, mutate func(*Comment) error) (Comment, error) {
	var saved Comment
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		comment, err := scanComment(tx.QueryRow(ctx, `SELECT `+commentColumns+` FROM board_comments WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err := mutate(&comment); err != nil {
			return err
		}
		saved, err = scanComment(tx.QueryRow(ctx, `UPDATE board_comments SET content = $2, updated_at = NOW() WHERE id = $1 RETURNING `+commentColumns,
			id, comment.Content))
		return err
	})
	if err != nil {
		return Comment{}, err
	}
	return saved, nil
}

func (r *PGRepository) SoftDeleteComment(ctx context.Context, id int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE board_comments SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND NOT is_deleted`, id)
	if err != nil {
		return false, fmt.Errorf("board: delete comment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PGRepository) ListComments(ctx context.Context, postID int64) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+commentColumns+` FROM board_comments WHERE post_id = $1 AND NOT is_deleted ORDER BY id`, postID)
	if err != nil {
		return nil, fmt.Errorf("board: list comments: %w", err)
	}
	defer rows.Close()
	out := make([]Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, comment)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

var _ Repository = (*PGRepository)(nil)
