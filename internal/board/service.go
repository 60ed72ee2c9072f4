package board

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/credential"
	"github.com/hearth-cms/hearth/internal/grant"
	"github.com/hearth-cms/hearth/internal/platform/httpx"
	"github.com/hearth-cms/hearth/internal/shared"
)

// Grants issues grants for unlock requests and wraps presented tokens.
type Grants interface {
	Issue(r access.Resource, password, session string) (grant.Issued, error)
	Presented(tokens ...string) access.Grants
}

// Names resolves author ids to display names.
type Names interface {
	DisplayNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Deps groups the collaborators of Service. Cache, Audit and Names are
// optional.
type Deps struct {
	Repo     Repository
	Engine   *access.Engine
	Grants   Grants
	Verifier *credential.Verifier
	Cache    *ListCache
	Audit    shared.AuditRecorder
	Names    Names
	Logger   *slog.Logger
}

// Service coordinates board reads and mutations: load the record, ask the
// engine, mutate, invalidate.
type Service struct {
	repo     Repository
	engine   *access.Engine
	grants   Grants
	verifier *credential.Verifier
	cache    *ListCache
	audit    shared.AuditRecorder
	names    Names
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := deps.Engine
	if engine == nil {
		engine = access.NewEngine(logger, nil)
	}
	return &Service{
		repo:     deps.Repo,
		engine:   engine,
		grants:   deps.Grants,
		verifier: deps.Verifier,
		cache:    deps.Cache,
		audit:    deps.Audit,
		names:    deps.Names,
		logger:   logger,
	}
}

// CreatePost stores a new post authored by p.
func (s *Service) CreatePost(ctx context.Context, p access.Principal, in PostInput) (PostView, error) {
	if !p.IsAuthenticated() {
		return PostView{}, access.Denial(access.ReasonUnauthenticated, access.KindPost)
	}
	in = normalizePostInput(in)
	if err := httpx.Validate(in); err != nil {
		return PostView{}, err
	}

	post := Post{AuthorID: p.ID, Title: in.Title, Content: in.Content}
	if in.IsSecret {
		hash, err := s.hashSecret(in.Password)
		if err != nil {
			return PostView{}, err
		}
		if hash == "" {
			return PostView{}, httpx.NewValidationError("password", "is required for secret posts")
		}
		post.Secret, post.PasswordHash = true, hash
	}

	if err := s.repo.InsertPost(ctx, &post); err != nil {
		return PostView{}, fmt.Errorf("board: create post: %w", err)
	}
	s.invalidate(ctx)
	s.record(ctx, p, "post.create", post.ID, map[string]any{"is_secret": post.Secret})
	return s.view(ctx, post)
}

// UpdatePost edits a post. Secrecy rules: a new password is rehashed, secrecy
// kept without a password carries the old hash forward, turning secrecy on
// without any password is rejected and turning it off clears the hash.
func (s *Service) UpdatePost(ctx context.Context, p access.Principal, id int64, in PostInput) (PostView, error) {
	if !p.IsAuthenticated() {
		return PostView{}, access.Denial(access.ReasonUnauthenticated, access.KindPost)
	}
	in = normalizePostInput(in)
	if err := httpx.Validate(in); err != nil {
		return PostView{}, err
	}

	post, err := s.loadPost(ctx, id)
	if err != nil {
		return PostView{}, err
	}
	if err := s.engine.Authorize(p, post.Resource(), access.ActionUpdate, nil).Err(post.Resource()); err != nil {
		return PostView{}, err
	}

	var newHash string
	if in.IsSecret {
		if newHash, err = s.hashSecret(in.Password); err != nil {
			return PostView{}, err
		}
	}

	saved, err := s.repo.SavePost(ctx, id, func(current *Post) error {
		// The row may have changed since the first read.
		if err := s.engine.Authorize(p, current.Resource(), access.ActionUpdate, nil).Err(current.Resource()); err != nil {
			return err
		}
		current.Title, current.Content = in.Title, in.Content
		switch {
		case !in.IsSecret:
			current.Secret, current.PasswordHash = false, ""
		case newHash != "":
			current.Secret, current.PasswordHash = true, newHash
		case current.Secret && current.PasswordHash != "":
			// keep the existing hash
		default:
			return httpx.NewValidationError("password", "is required for secret posts")
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return PostView{}, access.Denial(access.ReasonNotFound, access.KindPost)
		}
		var denied *access.DenyError
		if errors.As(err, &denied) || errors.Is(err, httpx.ErrValidation) {
			return PostView{}, err
		}
		return PostView{}, fmt.Errorf("board: update post %d: %w", id, err)
	}

	s.invalidate(ctx)
	s.record(ctx, p, "post.update", id, map[string]any{
		"is_secret":        saved.Secret,
		"password_changed": newHash != "",
	})
	return s.view(ctx, saved)
}

// DeletePost soft-deletes a post. Repeating the delete is a no-op success for
// principals who would be allowed to delete the live post; everyone else
// sees not_found.
func (s *Service) DeletePost(ctx context.Context, p access.Principal, id int64) error {
	if !p.IsAuthenticated() {
		return access.Denial(access.ReasonUnauthenticated, access.KindPost)
	}
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return err
	}
	if post.Deleted {
		live := post.Resource()
		live.Deleted = false
		if s.engine.Authorize(p, live, access.ActionDelete, nil).Allowed() {
			return nil
		}
		return access.Denial(access.ReasonNotFound, access.KindPost)
	}
	if err := s.engine.Authorize(p, post.Resource(), access.ActionDelete, nil).Err(post.Resource()); err != nil {
		return err
	}
	changed, err := s.repo.SoftDeletePost(ctx, id)
	if err != nil {
		return fmt.Errorf("board: delete post %d: %w", id, err)
	}
	if changed {
		s.invalidate(ctx)
		s.record(ctx, p, "post.delete", id, nil)
	}
	return nil
}

// GetPost returns a post if p may read it. Secret posts need ownership,
// admin, or a valid grant among tokens.
func (s *Service) GetPost(ctx context.Context, p access.Principal, id int64, tokens []string) (PostView, error) {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return PostView{}, err
	}
	r := post.Resource()
	if err := s.engine.Authorize(p, r, access.ActionRead, s.presented(tokens)).Err(r); err != nil {
		return PostView{}, err
	}
	return s.view(ctx, post)
}

// AuditPost returns a post including soft-deleted ones. Admin only.
func (s *Service) AuditPost(ctx context.Context, p access.Principal, id int64) (PostView, error) {
	post, err := s.loadPost(ctx, id)
	if err != nil {
		return PostView{}, err
	}
	r := post.Resource()
	if err := s.engine.Authorize(p, r, access.ActionAudit, nil).Err(r); err != nil {
		return PostView{}, err
	}
	v, err := s.view(ctx, post)
	v.IsDeleted = post.Deleted
	return v, err
}

// PostPage is one page of the post listing.
type PostPage struct {
	Posts      []PostView        `json:"posts"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListPosts returns a page of visible posts, newest first. Secret posts the
// principal cannot read are listed with locked set and no content.
func (s *Service) ListPosts(ctx context.Context, p access.Principal, q ListQuery, tokens []string) (PostPage, error) {
	q.Page, q.PerPage = shared.NormalizePage(q.Page, q.PerPage)
	q.Search = strings.TrimSpace(q.Search)

	posts, total, err := s.cache.Fetch(ctx, q, func(ctx context.Context) ([]Post, int, error) {
		return s.repo.ListPosts(ctx, q)
	})
	if err != nil {
		return PostPage{}, fmt.Errorf("board: list posts: %w", err)
	}

	grants := s.presented(tokens)
	names := s.displayNames(ctx, authorIDs(posts))
	views := make([]PostView, 0, len(posts))
	for _, post := range posts {
		locked := !s.engine.Authorize(p, post.Resource(), access.ActionRead, grants).Allowed()
		v := PostView{
			ID:        post.ID,
			AuthorID:  post.AuthorID,
			Author:    names[post.AuthorID],
			Title:     post.Title,
			IsSecret:  post.Secret,
			Locked:    locked,
			CreatedAt: post.CreatedAt,
			UpdatedAt: post.UpdatedAt,
		}
		if !locked {
			v.Content = post.Content
		}
		views = append(views, v)
	}
	return PostPage{Posts: views, Pagination: shared.NewPagination(q.Page, q.PerPage, total)}, nil
}

// UnlockPost checks password against the post and mints a grant bound to the
// principal's session.
func (s *Service) UnlockPost(ctx context.Context, p access.Principal, id int64, password string) (grant.Issued, error) {
	if p.Session == "" {
		return grant.Issued{}, access.Denial(access.ReasonUnauthenticated, access.KindPost)
	}
	var r access.Resource
	post, err := s.repo.FindPost(ctx, id)
	switch {
	case err == nil:
		r = post.Resource()
	case errors.Is(err, ErrPostNotFound):
		r = access.Resource{Kind: access.KindPost}
	default:
		return grant.Issued{}, fmt.Errorf("board: load post %d: %w", id, err)
	}
	issued, err := s.grants.Issue(r, password, p.Session)
	if err != nil {
		return grant.Issued{}, err
	}
	s.logger.Debug("secret post unlocked",
		slog.Int64("principal_id", p.ID),
		slog.Int64("resource_id", id),
		slog.String("scope", issued.Claims.Scope.String()))
	return issued, nil
}

// CreateComment adds a comment to a post the principal can read.
func (s *Service) CreateComment(ctx context.Context, p access.Principal, postID int64, in CommentInput, tokens []string) (CommentView, error) {
	in.Content = strings.TrimSpace(in.Content)
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return CommentView{}, err
	}
	r := post.Resource()
	if err := s.engine.Authorize(p, r, access.ActionComment, nil).Err(r); err != nil {
		return CommentView{}, err
	}
	if err := s.engine.Authorize(p, r, access.ActionRead, s.presented(tokens)).Err(r); err != nil {
		return CommentView{}, err
	}
	if err := httpx.Validate(in); err != nil {
		return CommentView{}, err
	}

	comment := Comment{PostID: postID, AuthorID: p.ID, Content: in.Content}
	if err := s.repo.InsertComment(ctx, &comment); err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return CommentView{}, access.Denial(access.ReasonNotFound, access.KindPost)
		}
		return CommentView{}, fmt.Errorf("board: create comment: %w", err)
	}
	s.record(ctx, p, "comment.create", comment.ID, map[string]any{"post_id": postID})
	return s.commentView(comment, s.displayNames(ctx, []int64{p.ID})), nil
}

// UpdateComment edits a comment. Only its author or an admin may edit.
func (s *Service) UpdateComment(ctx context.Context, p access.Principal, id int64, in CommentInput) (CommentView, error) {
	if !p.IsAuthenticated() {
		return CommentView{}, access.Denial(access.ReasonUnauthenticated, access.KindComment)
	}
	in.Content = strings.TrimSpace(in.Content)
	if err := httpx.Validate(in); err != nil {
		return CommentView{}, err
	}
	comment, parent, err := s.loadComment(ctx, id)
	if err != nil {
		return CommentView{}, err
	}
	r := comment.Resource(parent)
	if err := s.engine.Authorize(p, r, access.ActionUpdate, nil).Err(r); err != nil {
		return CommentView{}, err
	}

	saved, err := s.repo.SaveComment(ctx, id, func(current *Comment) error {
		if current.Deleted {
			return access.Denial(access.ReasonNotFound, access.KindComment)
		}
		current.Content = in.Content
		return nil
	})
	if err != nil {
		var denied *access.DenyError
		if errors.As(err, &denied) {
			return CommentView{}, err
		}
		if errors.Is(err, ErrCommentNotFound) {
			return CommentView{}, access.Denial(access.ReasonNotFound, access.KindComment)
		}
		return CommentView{}, fmt.Errorf("board: update comment %d: %w", id, err)
	}
	s.record(ctx, p, "comment.update", id, nil)
	return s.commentView(saved, s.displayNames(ctx, []int64{saved.AuthorID})), nil
}

// DeleteComment soft-deletes a comment. The comment author, the post author
// and admins may delete.
func (s *Service) DeleteComment(ctx context.Context, p access.Principal, id int64) error {
	if !p.IsAuthenticated() {
		return access.Denial(access.ReasonUnauthenticated, access.KindComment)
	}
	comment, parent, err := s.loadComment(ctx, id)
	if err != nil {
		return err
	}
	r := comment.Resource(parent)
	if err := s.engine.AuthorizeCommentDelete(p, r, parent.Resource()).Err(r); err != nil {
		return err
	}
	changed, err := s.repo.SoftDeleteComment(ctx, id)
	if err != nil {
		return fmt.Errorf("board: delete comment %d: %w", id, err)
	}
	if changed {
		s.record(ctx, p, "comment.delete", id, map[string]any{"post_id": parent.ID})
	}
	return nil
}

// ListComments returns the visible comments of a post the principal can read.
func (s *Service) ListComments(ctx context.Context, p access.Principal, postID int64, tokens []string) ([]CommentView, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	r := post.Resource()
	if err := s.engine.Authorize(p, r, access.ActionRead, s.presented(tokens)).Err(r); err != nil {
		return nil, err
	}
	comments, err := s.repo.ListComments(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("board: list comments: %w", err)
	}
	ids := make([]int64, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.AuthorID)
	}
	names := s.displayNames(ctx, ids)
	out := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		out = append(out, s.commentView(c, names))
	}
	return out, nil
}

func (s *Service) loadPost(ctx context.Context, id int64) (Post, error) {
	post, err := s.repo.FindPost(ctx, id)
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return Post{}, access.Denial(access.ReasonNotFound, access.KindPost)
		}
		return Post{}, fmt.Errorf("board: load post %d: %w", id, err)
	}
	return post, nil
}

func (s *Service) loadComment(ctx context.Context, id int64) (Comment, Post, error) {
	comment, err := s.repo.FindComment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrCommentNotFound) {
			return Comment{}, Post{}, access.Denial(access.ReasonNotFound, access.KindComment)
		}
		return Comment{}, Post{}, fmt.Errorf("board: load comment %d: %w", id, err)
	}
	parent, err := s.repo.FindPost(ctx, comment.PostID)
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return Comment{}, Post{}, access.Denial(access.ReasonNotFound, access.KindComment)
		}
		return Comment{}, Post{}, fmt.Errorf("board: load post %d: %w", comment.PostID, err)
	}
	return comment, parent, nil
}

// hashSecret returns the bcrypt hash of the submitted password, or "" when
// none was submitted.
func (s *Service) hashSecret(password *string) (string, error) {
	if password == nil || strings.TrimSpace(*password) == "" {
		return "", nil
	}
	if len([]rune(strings.TrimSpace(*password))) < MinSecretPasswordLength {
		return "", httpx.NewValidationError("password", fmt.Sprintf("must be at least %d characters", MinSecretPasswordLength))
	}
	hash, err := s.verifier.Hash(*password)
	if err != nil {
		if errors.Is(err, credential.ErrSecretTooLong) {
			return "", httpx.NewValidationError("password", "is too long")
		}
		return "", fmt.Errorf("board: hash password: %w", err)
	}
	return hash, nil
}

func (s *Service) presented(tokens []string) access.Grants {
	if s.grants == nil || len(tokens) == 0 {
		return access.NoGrants{}
	}
	return s.grants.Presented(tokens...)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("invalidate board list cache", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, p access.Principal, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	entity := strings.SplitN(action, ".", 2)[0]
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: p.ID, Action: action, Entity: entity, EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) displayNames(ctx context.Context, ids []int64) map[int64]string {
	if s.names == nil || len(ids) == 0 {
		return map[int64]string{}
	}
	names, err := s.names.DisplayNames(ctx, ids)
	if err != nil {
		s.logger.Warn("resolve author names", slog.Any("error", err))
		return map[int64]string{}
	}
	return names
}

func (s *Service) view(ctx context.Context, post Post) (PostView, error) {
	v := PostView{
		ID:        post.ID,
		AuthorID:  post.AuthorID,
		Author:    s.displayNames(ctx, []int64{post.AuthorID})[post.AuthorID],
		Title:     post.Title,
		IsSecret:  post.Secret,
		CreatedAt: post.CreatedAt,
		UpdatedAt: post.UpdatedAt,
	}
	html, err := RenderContent(post.Content)
	if err != nil {
		return PostView{}, fmt.Errorf("board: render post %d: %w", post.ID, err)
	}
	v.Content, v.ContentHTML = post.Content, html
	return v, nil
}

func (s *Service) commentView(c Comment, names map[int64]string) CommentView {
	return CommentView{
		ID:        c.ID,
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		Author:    names[c.AuthorID],
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func normalizePostInput(in PostInput) PostInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	return in
}

func authorIDs(posts []Post) []int64 {
	seen := make(map[int64]struct{}, len(posts))
	out := make([]int64, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.AuthorID]; ok {
			continue
		}
		seen[p.AuthorID] = struct{}{}
		out = append(out, p.AuthorID)
	}
	return out
}
