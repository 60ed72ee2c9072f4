package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearth-cms/hearth/internal/access"
	"github.com/hearth-cms/hearth/internal/shared"
)

func galleryRouter(f *galleryFixture, p access.Principal) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), p)))
		})
	})
	r.Route("/gallery", NewHandler(nil, f.svc).MountRoutes)
	return r
}

func multipartBody(t *testing.T, fields map[string][]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for name, values := range fields {
		for _, v := range values {
			require.NoError(t, mw.WriteField(name, v))
		}
	}
	for filename, content := range files {
		part, err := mw.CreateFormFile("images", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestGalleryMultipartCreateAndUpdate(t *testing.T) {
	f := newGalleryFixture(t, "cdn.example.com")
	router := galleryRouter(f, admin)

	body, contentType := multipartBody(t, map[string][]string{"title": {"trip"}, "category": {"travel"}}, map[string]string{"a.jpg": "jpeg"})
	req := httptest.NewRequest(http.MethodPost, "/gallery", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created ItemView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "travel", created.Category)
	assert.True(t, f.store.Exists("uploads/img1.jpg"))

	body, contentType = multipartBody(t, map[string][]string{
		"title":     {"trip 2"},
		"imageUrls": {created.Images[0]},
	}, map[string]string{"b.png": "png"})
	req = httptest.NewRequest(http.MethodPut, "/gallery/"+strconv.FormatInt(created.ID, 10), body)
	req.Header.Set("Content-Type", contentType)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var updated ItemView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Len(t, updated.Images, 2)
}

func TestGalleryJSONAndReads(t *testing.T) {
	f := newGalleryFixture(t, "")
	router := galleryRouter(f, admin)

	req := httptest.NewRequest(http.MethodPost, "/gallery", strings.NewReader(`{"title":"linked","images":["uploads/existing.jpg"]}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

	repo := f.svc.repo.(*MemoryRepository)
	require.NoError(t, repo.InsertItem(context.Background(), &Item{OwnerID: admin.ID, Title: "linked", Images: []string{"uploads/existing.jpg"}}))

	public := galleryRouter(f, anon)
	rec = httptest.NewRecorder()
	public.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gallery", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Items []ListItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed.Items, 1)
	assert.Equal(t, "/uploads/existing.jpg", listed.Items[0].Thumbnail)

	rec = httptest.NewRecorder()
	public.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gallery/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	public.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/gallery/1", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/gallery/1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	public.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/gallery/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
