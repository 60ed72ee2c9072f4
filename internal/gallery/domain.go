// Package gallery manages image gallery items. Items are created and edited
// by admins; anyone may browse them.
package gallery

import (
	"errors"
	"io"
	"time"

	"github.com/hearth-cms/hearth/internal/access"
)

const (
	// MaxListItems caps the gallery listing.
	MaxListItems = 100
	// MaxImages caps the images attached to one item.
	MaxImages = 20
)

// Item is a stored gallery entry. Images holds object keys.
type Item struct {
	ID        int64
	OwnerID   int64
	Title     string
	Content   string
	Category  string
	Images    []string
	Deleted   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Resource returns the descriptor the access engine evaluates.
func (i Item) Resource() access.Resource {
	return access.Resource{
		Kind:    access.KindGallery,
		ID:      i.ID,
		OwnerID: i.OwnerID,
		Deleted: i.Deleted,
	}
}

// Upload is one image file submitted with an item.
type Upload struct {
	Name string
	Body io.Reader
}

// ItemInput is the create/update payload. Keep lists existing images (URLs
// or keys) that stay attached on update and must be empty on create; Uploads
// are added after them.
type ItemInput struct {
	Title    string   `json:"title" validate:"required,max=200"`
	Content  string   `json:"content" validate:"max=5000"`
	Category string   `json:"category" validate:"max=50"`
	Keep     []string `json:"images"`
	Uploads  []Upload `json:"-"`
}

// ListItem is one entry of the gallery listing.
type ListItem struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Category  string   `json:"category,omitempty"`
	Images    []string `json:"images"`
	Thumbnail string   `json:"thumbnail,omitempty"`
}

// ItemView is a gallery item as returned to clients.
type ItemView struct {
	ID        int64     `json:"id"`
	OwnerID   int64     `json:"owner_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Category  string    `json:"category,omitempty"`
	Images    []string  `json:"images"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrItemNotFound is returned by repositories for unknown ids.
var ErrItemNotFound = errors.New("gallery: item not found")
