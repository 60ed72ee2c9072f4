package board

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Repository is the persistence boundary for posts and comments. Find
// methods return soft-deleted rows too; callers decide visibility through the
// access engine.
type Repository interface {
	FindPost(ctx context.Context, id int64) (Post, error)
	InsertPost(ctx context.Context, post *Post) error
	// SavePost re-reads the post under a row lock, passes it to mutate and
	// persists the result. mutate may return an error to abort.
	SavePost(ctx context.Context, id int64, mutate func(*Post) error) (Post, error)
	// SoftDeletePost flags the post deleted. It reports whether the row
	// changed.
	SoftDeletePost(ctx context.Context, id int64) (bool, error)
	ListPosts(ctx context.Context, q ListQuery) ([]Post, int, error)

	FindComment(ctx context.Context, id int64) (Comment, error)
	InsertComment(ctx context.Context, comment *Comment) error
	SaveComment(ctx context.Context, id int64, mutate func(*Comment) error) (Comment, error)
	SoftDeleteComment(ctx context.Context, id int64) (bool, error)
	ListComments(ctx context.Context, postID int64) ([]Comment, error)
}

// MemoryRepository keeps posts and comments in maps guarded by one mutex,
// which also serializes SavePost the way a row lock would.
type MemoryRepository struct {
	mu          sync.Mutex
	posts       map[int64]Post
	comments    map[int64]Comment
	nextPost    int64
	nextComment int64
	now         func() time.Time
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		posts:    make(map[int64]Post),
		comments: make(map[int64]Comment),
		now:      time.Now,
	}
}

func (m *MemoryRepository) FindPost(_ context.Context, id int64) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return Post{}, ErrPostNotFound
	}
	return post, nil
}

func (m *MemoryRepository) InsertPost(_ context.Context, post *Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPost++
	now := m.now()
	post.ID = m.nextPost
	post.CreatedAt, post.UpdatedAt = now, now
	m.posts[post.ID] = *post
	return nil
}

func (m *MemoryRepository) SavePost(_ context.Context, id int64, mutate func(*Post) error) (Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return Post{}, ErrPostNotFound
	}
	if err := mutate(&post); err != nil {
		return Post{}, err
	}
	post.ID = id
	post.UpdatedAt = m.now()
	m.posts[id] = post
	return post, nil
}

func (m *MemoryRepository) SoftDeletePost(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	post, ok := m.posts[id]
	if !ok {
		return false, ErrPostNotFound
	}
	if post.Deleted {
		return false, nil
	}
	post.Deleted = true
	post.UpdatedAt = m.now()
	m.posts[id] = post
	return true, nil
}

func (m *MemoryRepository) ListPosts(_ context.Context, q ListQuery) ([]Post, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(strings.TrimSpace(q.Search))
	matched := make([]Post, 0, len(m.posts))
	for _, post := range m.posts {
		if post.Deleted {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(post.Title), needle) &&
			!strings.Contains(strings.ToLower(post.Content), needle) {
			continue
		}
		matched = append(matched, post)
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	start := (q.Page - 1) * q.PerPage
	if start > total {
		start = total
	}
	end := start + q.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (m *MemoryRepository) FindComment(_ context.Context, id int64) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment, ok := m.comments[id]
	if !ok {
		return Comment{}, ErrCommentNotFound
	}
	return comment, nil
}

func (m *MemoryRepository) InsertComment(_ context.Context, comment *Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.posts[comment.PostID]; !ok {
		return ErrPostNotFound
	}
	m.nextComment++
	now := m.now()
	comment.ID = m.nextComment
	comment.CreatedAt, comment.UpdatedAt = now, now
	m.comments[comment.ID] = *comment
	return nil
}

func (m *MemoryRepository) SaveComment(_ context.Context, id int64, mutate func(*Comment) error) (Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment, ok := m.comments[id]
	if !ok {
		return Comment{}, ErrCommentNotFound
	}
	if err := mutate(&comment); err != nil {
		return Comment{}, err
	}
	comment.ID = id
	comment.UpdatedAt = m.now()
	m.comments[id] = comment
	return comment, nil
}

func (m *MemoryRepository) SoftDeleteComment(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	comment, ok := m.comments[id]
	if !ok {
		return false, ErrCommentNotFound
	}
	if comment.Deleted {
		return false, nil
	}
	comment.Deleted = true
	comment.UpdatedAt = m.now()
	m.comments[id] = comment
	return true, nil
}

func (m *MemoryRepository) ListComments(_ context.Context, postID int64) ([]Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Comment, 0)
	for _, comment := range m.comments {
		if comment.PostID == postID && !comment.Deleted {
			out = append(out, comment)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Repository = (*MemoryRepository)(nil)
