package gallery

import (
	"errors"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hearth-cms/hearth/internal/platform/httpx"
	"github.com/hearth-cms/hearth/internal/shared"
)

// maxUploadBytes bounds one multipart request.
const maxUploadBytes = 32 << 20

// Handler exposes the gallery over HTTP.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers gallery routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.update)
	r.Delete("/{id}", h.delete)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.List(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	item, err := h.service.Get(r.Context(), shared.PrincipalFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := h.decodeInput(w, r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	defer cleanup()
	item, err := h.service.Create(r.Context(), shared.PrincipalFromContext(r.Context()), in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, item)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	in, cleanup, err := h.decodeInput(w, r)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	defer cleanup()
	item, err := h.service.Update(r.Context(), shared.PrincipalFromContext(r.Context()), id, in)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "id")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	if err := h.service.Delete(r.Context(), shared.PrincipalFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// decodeInput reads either a JSON body or a multipart form with title,
// content, category, imageUrls and images file fields. The returned cleanup
// closes uploaded files.
func (h *Handler) decodeInput(w http.ResponseWriter, r *http.Request) (ItemInput, func(), error) {
	noop := func() {}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		var in ItemInput
		if err := httpx.DecodeJSON(w, r, &in); err != nil {
			return ItemInput{}, noop, err
		}
		return in, noop, nil
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ItemInput{}, noop, httpx.NewValidationError("images", "upload is too large")
		}
		return ItemInput{}, noop, httpx.ErrValidation
	}
	form := r.MultipartForm
	in := ItemInput{
		Title:    r.FormValue("title"),
		Content:  r.FormValue("content"),
		Category: r.FormValue("category"),
		Keep:     form.Value["imageUrls"],
	}
	var files []multipart.File
	cleanup := func() {
		for _, f := range files {
			_ = f.Close()
		}
		_ = form.RemoveAll()
	}
	for _, header := range form.File["images"] {
		if header.Size == 0 {
			continue
		}
		f, err := header.Open()
		if err != nil {
			cleanup()
			return ItemInput{}, noop, httpx.ErrValidation
		}
		files = append(files, f)
		in.Uploads = append(in.Uploads, Upload{Name: header.Filename, Body: f})
	}
	return in, cleanup, nil
}
