package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/hearth-cms/hearth/internal/jobs"
	"github.com/hearth-cms/hearth/internal/objectstore"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPurgeImages removes image objects no longer referenced by a
	// gallery item.
	TaskPurgeImages = "gallery:purge_images"
)

// PurgeImagesPayload lists the object keys to remove.
type PurgeImagesPayload struct {
	Keys []string `json:"keys"`
}

// NewPurgeImagesTask builds a purge task for the given image references.
// References may be CDN URLs or object keys.
func NewPurgeImagesTask(refs []string) (*asynq.Task, error) {
	payload := PurgeImagesPayload{Keys: make([]string, 0, len(refs))}
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		key := objectstore.KeyFromURL(ref)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		payload.Keys = append(payload.Keys, key)
	}
	if len(payload.Keys) == 0 {
		return nil, errors.New("jobs: purge task without keys")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPurgeImages, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// Deleter removes objects by key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// PurgeImagesJob deletes image objects named in purge tasks.
type PurgeImagesJob struct {
	store   Deleter
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewPurgeImagesJob constructs the job handler.
func NewPurgeImagesJob(store Deleter, logger *slog.Logger) *PurgeImagesJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &PurgeImagesJob{store: store, logger: logger}
}

// WithMetrics attaches job metrics.
func (j *PurgeImagesJob) WithMetrics(m *jobmetrics.Metrics) *PurgeImagesJob {
	j.metrics = m
	return j
}

// Handle processes TaskPurgeImages tasks. Keys that fail are retried as a
// whole task; keys already gone are no-ops.
func (j *PurgeImagesJob) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track(TaskPurgeImages)
	return tracker.End(j.purge(ctx, t))
}

func (j *PurgeImagesJob) purge(ctx context.Context, t *asynq.Task) error {
	var payload PurgeImagesPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("jobs: decode purge payload: %v: %w", err, asynq.SkipRetry)
	}
	var failed []string
	skipped := 0
	for _, key := range payload.Keys {
		if err := j.store.Delete(ctx, key); err != nil {
			if errors.Is(err, objectstore.ErrInvalidKey) {
				j.logger.Warn("purge skipped invalid key", slog.String("key", key))
				skipped++
				continue
			}
			j.logger.Error("purge image", slog.String("key", key), slog.Any("error", err))
			failed = append(failed, key)
		}
	}
	j.metrics.AddObjects("deleted", len(payload.Keys)-skipped-len(failed))
	j.metrics.AddObjects("skipped", skipped)
	j.metrics.AddObjects("failed", len(failed))
	if len(failed) > 0 {
		return fmt.Errorf("jobs: purge failed for %s", strings.Join(failed, ", "))
	}
	j.logger.Info("images purged", slog.Int("count", len(payload.Keys)))
	return nil
}
