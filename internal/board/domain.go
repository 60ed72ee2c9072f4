// Package board implements the post and comment board: loading records,
// asking the access engine for a decision, mutating, and invalidating the
// list cache.
package board

import (
	"errors"
	"time"

	"github.com/hearth-cms/hearth/internal/access"
)

// MinSecretPasswordLength applies to passwords set on secret posts.
const MinSecretPasswordLength = 6

// Post is a stored board post. PasswordHash is set only for secret posts.
type Post struct {
	ID           int64     `json:"id"`
	AuthorID     int64     `json:"author_id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	Secret       bool      `json:"is_secret"`
	PasswordHash string    `json:"password_hash,omitempty"`
	Deleted      bool      `json:"is_deleted"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Resource returns the descriptor the access engine evaluates.
func (p Post) Resource() access.Resource {
	return access.Resource{
		Kind:       access.KindPost,
		ID:         p.ID,
		OwnerID:    p.AuthorID,
		Secret:     p.Secret,
		SecretHash: p.PasswordHash,
		Deleted:    p.Deleted,
	}
}

// Comment is a stored comment on a post.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	AuthorID  int64     `json:"author_id"`
	Content   string    `json:"content"`
	Deleted   bool      `json:"is_deleted"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Resource returns the comment descriptor. A comment under a deleted post is
// itself deleted.
func (c Comment) Resource(parent Post) access.Resource {
	return access.Resource{
		Kind:    access.KindComment,
		ID:      c.ID,
		OwnerID: c.AuthorID,
		Deleted: c.Deleted || parent.Deleted,
	}
}

// PostInput is the create/update payload. Password is nil when the client
// did not send one; an empty or blank string counts as absent.
type PostInput struct {
	Title    string  `json:"title" validate:"required,max=200"`
	Content  string  `json:"content" validate:"required"`
	IsSecret bool    `json:"isSecret"`
	Password *string `json:"password"`
}

// CommentInput is the create/update payload for comments.
type CommentInput struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// ListQuery selects a page of posts.
type ListQuery struct {
	Page    int
	PerPage int
	Search  string
}

// PostView is a post as returned to a particular principal. Locked posts
// carry no content.
type PostView struct {
	ID          int64     `json:"id"`
	AuthorID    int64     `json:"author_id"`
	Author      string    `json:"author,omitempty"`
	Title       string    `json:"title"`
	Content     string    `json:"content,omitempty"`
	ContentHTML string    `json:"content_html,omitempty"`
	IsSecret    bool      `json:"is_secret"`
	Locked      bool      `json:"locked"`
	IsDeleted   bool      `json:"is_deleted,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CommentView is a comment as returned to clients.
type CommentView struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	AuthorID  int64     `json:"author_id"`
	Author    string    `json:"author,omitempty"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrPostNotFound is returned by repositories for unknown post ids.
	ErrPostNotFound = errors.New("board: post not found")
	// ErrCommentNotFound is returned by repositories for unknown comment ids.
	ErrCommentNotFound = errors.New("board: comment not found")
)
