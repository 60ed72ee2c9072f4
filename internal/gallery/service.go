package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/objectstore"
	"github.com/hearth-cms/hearth/internal/platform/httpx"
	"github.com/hearth-cms/hearth/internal/shared"
)

// Store writes and removes image objects.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Delete(ctx context.Context, key string) error
}

// Purger schedules removal of image objects in the background.
type Purger interface {
	EnqueuePurge(ctx context.Context, refs []string) error
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// Deps groups the collaborators of Service. Purger and Audit are optional;
// without a Purger removed images are deleted inline.
type Deps struct {
	Repo      Repository
	Engine    *access.Engine
	Store     Store
	Purger    Purger
	Audit     shared.AuditRecorder
	CDNDomain string
	Logger    *slog.Logger
}

// Service implements gallery reads and admin mutations.
type Service struct {
	repo    Repository
	engine  *access.Engine
	store   Store
	purger  Purger
	audit   shared.AuditRecorder
	cdnBase string
	logger  *slog.Logger
	newKey  func(ext string) string
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
		repo:    deps.Repo,
		engine:  engine,
		store:   deps.Store,
		purger:  deps.Purger,
		audit:   deps.Audit,
		cdnBase: publicBase(deps.CDNDomain),
		logger:  logger,
		newKey: func(ext string) string {
			return objectstore.UploadPrefix + uuid.NewString() + ext
		},
	}
}

// publicBase is the URL prefix under which upload file names are served.
// Without a CDN the API serves them itself under /uploads.
func publicBase(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), "/")
	switch {
	case domain == "":
		return "/uploads"
	case strings.HasPrefix(domain, "http://"), strings.HasPrefix(domain, "https://"):
		return domain
	default:
		return "https://" + domain
	}
}

// PublicURL maps a stored image reference to the URL clients fetch: the
// CDN base joined with the reference's file name.
func (s *Service) PublicURL(ref string) string {
	file := path.Base(objectstore.KeyFromURL(ref))
	if file == "." || file == "/" {
		return ""
	}
	return s.cdnBase + "/" + file
}

// List returns up to MaxListItems live items, newest first. The thumbnail is
// the public URL of the first image.
func (s *Service) List(ctx context.Context) ([]ListItem, error) {
	items, err := s.repo.ListItems(ctx, MaxListItems)
	if err != nil {
		return nil, fmt.Errorf("gallery: list: %w", err)
	}
	out := make([]ListItem, 0, len(items))
	for _, item := range items {
		images := s.publicURLs(item.Images)
		out = append(out, ListItem{
			ID:        item.ID,
			Title:     item.Title,
			Category:  item.Category,
			Images:    images,
			Thumbnail: firstOrEmpty(images),
		})
	}
	return out, nil
}

// Get returns one live item.
func (s *Service) Get(ctx context.Context, p access.Principal, id int64) (ItemView, error) {
	item, err := s.load(ctx, id)
	if err != nil {
		return ItemView{}, err
	}
	r := item.Resource()
	if err := s.engine.Authorize(p, r, access.ActionRead, nil).Err(r); err != nil {
		return ItemView{}, err
	}
	return s.view(item), nil
}

// Create stores uploads and inserts a new item. Admin only. A new item owns
// only the files uploaded with it, so existing references are refused.
// Uploaded objects are removed again when the insert fails.
func (s *Service) Create(ctx context.Context, p access.Principal, in ItemInput) (ItemView, error) {
	if err := requireAdmin(p); err != nil {
		return ItemView{}, err
	}
	in = normalizeInput(in)
	if err := httpx.Validate(in); err != nil {
		return ItemView{}, err
	}
	if len(normalizeRefs(in.Keep)) > 0 {
		return ItemView{}, httpx.NewValidationError("images", "new items accept uploaded files only")
	}
	if err := checkImageCount(len(in.Uploads)); err != nil {
		return ItemView{}, err
	}

	added, err := s.storeUploads(ctx, in.Uploads)
	if err != nil {
		return ItemView{}, err
	}
	item := Item{
		OwnerID:  p.ID,
		Title:    in.Title,
		Content:  in.Content,
		Category: in.Category,
		Images:   added,
	}
	if err := s.repo.InsertItem(ctx, &item); err != nil {
		s.discard(ctx, added)
		return ItemView{}, fmt.Errorf("gallery: create: %w", err)
	}
	s.record(ctx, p, "gallery.create", item.ID, map[string]any{"images": len(item.Images)})
	return s.view(item), nil
}

// Update edits an item. Images not listed in in.Keep are detached and
// scheduled for purge once the update commits.
func (s *Service) Update(ctx context.Context, p access.Principal, id int64, in ItemInput) (ItemView, error) {
	if err := requireAdmin(p); err != nil {
		return ItemView{}, err
	}
	in = normalizeInput(in)
	if err := httpx.Validate(in); err != nil {
		return ItemView{}, err
	}
	item, err := s.load(ctx, id)
	if err != nil {
		return ItemView{}, err
	}
	if err := s.engine.Authorize(p, item.Resource(), access.ActionUpdate, nil).Err(item.Resource()); err != nil {
		return ItemView{}, err
	}
	keep := normalizeRefs(in.Keep)
	if err := checkImageCount(len(keep) + len(in.Uploads)); err != nil {
		return ItemView{}, err
	}

	added, err := s.storeUploads(ctx, in.Uploads)
	if err != nil {
		return ItemView{}, err
	}
	var removed []string
	saved, err := s.repo.SaveItem(ctx, id, func(current *Item) error {
		if err := s.engine.Authorize(p, current.Resource(), access.ActionUpdate, nil).Err(current.Resource()); err != nil {
			return err
		}
		wanted := make(map[string]bool, len(keep))
		for _, key := range keep {
			wanted[path.Base(key)] = true
		}
		// Only images already attached can be kept.
		images := make([]string, 0, len(keep)+len(added))
		removed = removed[:0]
		for _, key := range current.Images {
			if wanted[path.Base(objectstore.KeyFromURL(key))] {
				images = append(images, key)
			} else {
				removed = append(removed, key)
			}
		}
		images = append(images, added...)
		if err := checkImageCount(len(images)); err != nil {
			return err
		}
		current.Title, current.Content, current.Category = in.Title, in.Content, in.Category
		current.Images = images
		return nil
	})
	if err != nil {
		s.discard(ctx, added)
		if errors.Is(err, ErrItemNotFound) {
			return ItemView{}, access.Denial(access.ReasonNotFound, access.KindGallery)
		}
		var denied *access.DenyError
		if errors.As(err, &denied) || errors.Is(err, httpx.ErrValidation) {
			return ItemView{}, err
		}
		return ItemView{}, fmt.Errorf("gallery: update %d: %w", id, err)
	}

	s.purge(ctx, removed)
	s.record(ctx, p, "gallery.update", id, map[string]any{"added": len(added), "removed": len(removed)})
	return s.view(saved), nil
}

// Delete soft-deletes an item and schedules its images for purge. Repeating
// the delete succeeds for principals allowed to delete the live item.
func (s *Service) Delete(ctx context.Context, p access.Principal, id int64) error {
	if !p.IsAuthenticated() {
		return access.Denial(access.ReasonUnauthenticated, access.KindGallery)
	}
	item, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if item.Deleted {
		live := item.Resource()
		live.Deleted = false
		if s.engine.Authorize(p, live, access.ActionDelete, nil).Allowed() {
			return nil
		}
		return access.Denial(access.ReasonNotFound, access.KindGallery)
	}
	if err := s.engine.Authorize(p, item.Resource(), access.ActionDelete, nil).Err(item.Resource()); err != nil {
		return err
	}
	changed, err := s.repo.SoftDeleteItem(ctx, id)
	if err != nil {
		return fmt.Errorf("gallery: delete %d: %w", id, err)
	}
	if changed {
		s.purge(ctx, item.Images)
		s.record(ctx, p, "gallery.delete", id, nil)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id int64) (Item, error) {
	item, err := s.repo.FindItem(ctx, id)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return Item{}, access.Denial(access.ReasonNotFound, access.KindGallery)
		}
		return Item{}, fmt.Errorf("gallery: load %d: %w", id, err)
	}
	return item, nil
}

func (s *Service) storeUploads(ctx context.Context, uploads []Upload) ([]string, error) {
	keys := make([]string, 0, len(uploads))
	for _, up := range uploads {
		ext := strings.ToLower(path.Ext(up.Name))
		if ext == "" {
			ext = ".jpg"
		}
		if !imageExtensions[ext] {
			s.discard(ctx, keys)
			return nil, httpx.NewValidationError("images", fmt.Sprintf("unsupported file type %q", ext))
		}
		key := s.newKey(ext)
		if err := s.store.Put(ctx, key, up.Body); err != nil {
			s.discard(ctx, keys)
			return nil, fmt.Errorf("gallery: store upload: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, nil
}

// discard removes freshly stored uploads after a failed write.
func (s *Service) discard(ctx context.Context, keys []string) {
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("discard upload", slog.String("key", key), slog.Any("error", err))
		}
	}
}

func (s *Service) purge(ctx context.Context, refs []string) {
	if len(refs) == 0 {
		return
	}
	if s.purger != nil {
		if err := s.purger.EnqueuePurge(ctx, refs); err != nil {
			s.logger.Error("enqueue image purge", slog.Int("count", len(refs)), slog.Any("error", err))
		}
		return
	}
	for _, ref := range refs {
		if err := s.store.Delete(ctx, objectstore.KeyFromURL(ref)); err != nil {
			s.logger.Warn("purge image", slog.String("ref", ref), slog.Any("error", err))
		}
	}
}

func (s *Service) record(ctx context.Context, p access.Principal, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{ActorID: p.ID, Action: action, Entity: "gallery", EntityID: id, Meta: meta}); err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) view(item Item) ItemView {
	images := s.publicURLs(item.Images)
	return ItemView{
		ID:        item.ID,
		OwnerID:   item.OwnerID,
		Title:     item.Title,
		Content:   item.Content,
		Category:  item.Category,
		Images:    images,
		Thumbnail: firstOrEmpty(images),
		CreatedAt: item.CreatedAt,
		UpdatedAt: item.UpdatedAt,
	}
}

func (s *Service) publicURLs(refs []string) []string {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		if u := s.PublicURL(ref); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func requireAdmin(p access.Principal) error {
	if !p.IsAuthenticated() {
		return access.Denial(access.ReasonUnauthenticated, access.KindGallery)
	}
	if !p.IsAdmin() {
		return access.Denial(access.ReasonForbidden, access.KindGallery)
	}
	return nil
}

func checkImageCount(n int) error {
	switch {
	case n == 0:
		return httpx.NewValidationError("images", "at least one image is required")
	case n > MaxImages:
		return httpx.NewValidationError("images", fmt.Sprintf("at most %d images are allowed", MaxImages))
	}
	return nil
}

func normalizeInput(in ItemInput) ItemInput {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	in.Category = strings.TrimSpace(in.Category)
	return in
}

// normalizeRefs reduces kept image references to object keys, dropping
// blanks and duplicates.
func normalizeRefs(refs []string) []string {
	out := make([]string, 0, len(refs))
	seen := make(map[string]bool, len(refs))
	for _, ref := range refs {
		key := objectstore.KeyFromURL(ref)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, key)
	}
	return out
}

func firstOrEmpty(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
