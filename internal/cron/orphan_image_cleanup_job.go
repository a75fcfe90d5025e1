package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/media"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	orphanImageMinAge = 24 * time.Hour
	orphanImageBatch  = 200
)

type OrphanImageCleanupJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Files  media.FileStore
	MinAge time.Duration
	Batch  int
}

// NewOrphanImageCleanupJob removes image rows no product, category or slide
// references any more, then deletes their files.
func NewOrphanImageCleanupJob(params OrphanImageCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Files == nil {
		return nil, fmt.Errorf("file store required")
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = orphanImageMinAge
	}
	batch := params.Batch
	if batch <= 0 {
		batch = orphanImageBatch
	}
	return &orphanImageCleanupJob{
		logg:   params.Logger,
		db:     params.DB,
		files:  params.Files,
		minAge: minAge,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type orphanImageCleanupJob struct {
	logg   *logger.Logger
	db     txRunner
	files  media.FileStore
	minAge time.Duration
	batch  int
	now    func() time.Time
}

func (j *orphanImageCleanupJob) Name() string { return "orphan-image-cleanup" }

func (j *orphanImageCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	var removed []models.Image
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := media.NewRepository(tx)
		orphans, err := repo.ListOrphans(ctx, cutoff, j.batch)
		if err != nil {
			return err
		}
		ids := make([]uuid.UUID, 0, len(orphans))
		for _, image := range orphans {
			ids = append(ids, image.ID)
		}
		removed, err = repo.DeleteByIDs(ctx, ids)
		return err
	})
	if err != nil {
		return fmt.Errorf("orphan image cleanup: %w", err)
	}

	failed := 0
	for _, image := range removed {
		if err := j.files.Remove(ctx, image.Path); err != nil {
			failed++
			j.logg.Warn(j.logg.WithField(ctx, "path", image.Path), "orphan image file not removed")
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": len(removed),
		"files_failed": failed,
		"batch_size":   j.batch,
	})
	j.logg.Info(logCtx, "orphan image cleanup complete")
	return nil
}
