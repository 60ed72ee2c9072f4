package board

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/hearth-cms/hearth/internal/grant"
	"github.com/hearth-cms/hearth/internal/platform/httpx"
	"github.com/hearth-cms/hearth/internal/shared"
)

// Handler exposes the board over JSON.
type Handler struct {
	logger       *slog.Logger
	service      *Service
	secureCookie bool
	unlockLimit  int
	now          func() time.Time
}

// NewHandler constructs a Handler. unlockLimit caps unlock attempts per IP
// and minute; zero disables the limit.
func NewHandler(logger *slog.Logger, service *Service, secureCookie bool, unlockLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:       logger,
		service:      service,
		secureCookie: secureCookie,
		unlockLimit:  unlockLimit,
		now:          time.Now,
	}
}

// MountRoutes registers board routes under /board.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/posts", func(r chi.Router) {
		r.Get("/", h.listPosts)
		r.Post("/", h.createPost)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getPost)
			r.Put("/", h.updatePost)
			r.Delete("/", h.deletePost)
			if h.unlockLimit > 0 {
				r.With(httprate.LimitByIP(h.unlockLimit, time.Minute)).Post("/unlock", h.unlockPost)
			} else {
				r.Post("/unlock", h.unlockPost)
			}
			r.Get("/comments", h.listComments)
			r.Post("/comments", h.createComment)
		})
	})
	r.Route("/comments/{id}", func(r chi.Router) {
		r.Put("/", h.updateComment)
		r.Delete("/", h.deleteComment)
	})
}

// MountAdminRoutes registers admin-only board routes.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Get("/posts/{id}", h.auditPost)
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	q := ListQuery{
		Page:    httpx.IntQuery(r, "page", 1),
		PerPage: httpx.IntQuery(r, "per_page", shared.DefaultPerPage),
		Search:  r.URL.Query().Get("search"),
	}
	page, err := h.service.ListPosts(r.Context(), shared.PrincipalFromContext(r.Context()), q, grant.FromRequest(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, page)
}

func (h *Handler) createPost(w http.ResponseWriter, r *http.Request) {
	var in PostInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.CreatePost(r.Context(), shared.PrincipalFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, post)
}

func (h *Handler) getPost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.GetPost(r.Context(), shared.PrincipalFromContext(r.Context()), id, grant.FromRequest(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) updatePost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in PostInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.UpdatePost(r.Context(), shared.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if !post.IsSecret {
		grant.ClearCookie(w, id)
	}
	httpx.JSON(w, http.StatusOK, post)
}

func (h *Handler) deletePost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeletePost(r.Context(), shared.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	grant.ClearCookie(w, id)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}

func (h *Handler) auditPost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	post, err := h.service.AuditPost(r.Context(), shared.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, post)
}

type unlockRequest struct {
	Password string `json:"password"`
}

type unlockResponse struct {
	Token     string    `json:"token"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) unlockPost(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in unlockRequest
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	issued, err := h.service.UnlockPost(r.Context(), shared.PrincipalFromContext(r.Context()), id, in.Password)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	grant.SetCookie(w, id, issued, h.secureCookie, h.now())
	httpx.JSON(w, http.StatusOK, unlockResponse{
		Token:     issued.Token,
		Scope:     issued.Claims.Scope.String(),
		ExpiresAt: issued.ExpiresAt,
	})
}

func (h *Handler) listComments(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	comments, err := h.service.ListComments(r.Context(), shared.PrincipalFromContext(r.Context()), id, grant.FromRequest(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (h *Handler) createComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in CommentInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	comment, err := h.service.CreateComment(r.Context(), shared.PrincipalFromContext(r.Context()), id, in, grant.FromRequest(r))
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, comment)
}

func (h *Handler) updateComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var in CommentInput
	if err := httpx.DecodeJSON(w, r, &in); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	comment, err := h.service.UpdateComment(r.Context(), shared.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, comment)
}

func (h *Handler) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.DeleteComment(r.Context(), shared.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "deleted"})
}
