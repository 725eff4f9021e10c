package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/worksheet-session/internal/cache"
	apperrors "github.com/SAP-F-2025/worksheet-session/internal/errors"
	"github.com/SAP-F-2025/worksheet-session/internal/models"
	"github.com/SAP-F-2025/worksheet-session/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const contentCacheTTL = 10 * time.Minute

type ContentPostgreSQL struct {
	db     *gorm.DB
	cache  cache.CacheService
	logger *slog.Logger
}

func NewContentPostgreSQL(db *gorm.DB, cacheService cache.CacheService, logger *slog.Logger) repositories.ContentRepository {
	return &ContentPostgreSQL{
		db:     db,
		cache:  cacheService,
		logger: logger,
	}
}

// Migrate creates or updates the content tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Records()...); err != nil {
		return fmt.Errorf("failed to migrate content tables: %w", err)
	}
	return nil
}

func contentCacheKey(worksheetID string) string {
	return "worksheet_content:" + worksheetID
}

// GetWorksheetContent loads a worksheet with its problems in position order
func (c *ContentPostgreSQL) GetWorksheetContent(ctx context.Context, worksheetID string) (*models.WorksheetContent, error) {
	var cached models.WorksheetContent
	if err := c.cache.Get(ctx, contentCacheKey(worksheetID), &cached); err == nil {
		return &cached, nil
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		c.logger.Warn("Content cache read failed", "worksheet_id", worksheetID, "error", err)
	}

	var header WorksheetRecord
	if err := c.db.WithContext(ctx).First(&header, "id = ?", worksheetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("worksheet %s: %w", worksheetID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get worksheet: %w", err)
	}

	var problemRecords []ProblemRecord
	if err := c.db.WithContext(ctx).
		Where("worksheet_id = ?", worksheetID).
		Order("position ASC").
		Find(&problemRecords).Error; err != nil {
		return nil, fmt.Errorf("failed to get worksheet problems: %w", err)
	}

	var passageRecords []PassageRecord
	if err := c.db.WithContext(ctx).
		Where("worksheet_id = ?", worksheetID).
		Order("id ASC").
		Find(&passageRecords).Error; err != nil {
		return nil, fmt.Errorf("failed to get worksheet passages: %w", err)
	}

	content := &models.WorksheetContent{
		Worksheet: header.toModel(),
		Persisted: true,
	}
	for _, r := range problemRecords {
		p, err := r.toModel()
		if err != nil {
			return nil, err
		}
		content.Problems = append(content.Problems, p)
	}
	for _, r := range passageRecords {
		content.Passages = append(content.Passages, r.toModel())
	}

	if err := c.cache.Set(ctx, contentCacheKey(worksheetID), content, contentCacheTTL); err != nil {
		c.logger.Warn("Content cache write failed", "worksheet_id", worksheetID, "error", err)
	}
	return content, nil
}

// SaveWorksheetContent persists a draft worksheet in one transaction
func (c *ContentPostgreSQL) SaveWorksheetContent(ctx context.Context, content *models.WorksheetContent) error {
	worksheetID := content.Worksheet.ID

	problems := make([]ProblemRecord, 0, len(content.Problems))
	for i, p := range content.Problems {
		r, err := problemToRecord(worksheetID, i, p)
		if err != nil {
			return err
		}
		problems = append(problems, r)
	}
	passages := make([]PassageRecord, 0, len(content.Passages))
	for _, p := range content.Passages {
		passages = append(passages, passageToRecord(worksheetID, p))
	}

	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		header := worksheetToRecord(content.Worksheet)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&header).Error; err != nil {
			return fmt.Errorf("failed to save worksheet: %w", err)
		}
		if err := tx.Where("worksheet_id = ?", worksheetID).Delete(&ProblemRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear worksheet problems: %w", err)
		}
		if err := tx.Where("worksheet_id = ?", worksheetID).Delete(&PassageRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear worksheet passages: %w", err)
		}
		if len(problems) > 0 {
			if err := tx.Create(&problems).Error; err != nil {
				return fmt.Errorf("failed to save worksheet problems: %w", err)
			}
		}
		if len(passages) > 0 {
			if err := tx.Create(&passages).Error; err != nil {
				return fmt.Errorf("failed to save worksheet passages: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	content.Persisted = true
	c.invalidate(ctx, worksheetID)
	return nil
}

// UpdateProblem rewrites one problem in place, keeping its position
func (c *ContentPostgreSQL) UpdateProblem(ctx context.Context, worksheetID string, problem models.Problem) error {
	record, err := problemToRecord(worksheetID, 0, problem)
	if err != nil {
		return err
	}

	result := c.db.WithContext(ctx).
		Model(&ProblemRecord{}).
		Where("worksheet_id = ? AND id = ?", worksheetID, problem.ID).
		Select("question_text", "difficulty", "choices", "correct_answer", "explanation", "detail", "updated_at").
		Updates(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to update problem: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("problem %s: %w", problem.ID, apperrors.ErrNotFound)
	}

	c.invalidate(ctx, worksheetID)
	return nil
}

// UpdatePassage rewrites one passage in place
func (c *ContentPostgreSQL) UpdatePassage(ctx context.Context, worksheetID string, passage models.Passage) error {
	record := passageToRecord(worksheetID, passage)

	result := c.db.WithContext(ctx).
		Model(&PassageRecord{}).
		Where("worksheet_id = ? AND id = ?", worksheetID, passage.ID).
		Select("type", "content_for_student", "content_original", "content_translation", "related_problem_ids", "updated_at").
		Updates(&record)
	if result.Error != nil {
		return fmt.Errorf("failed to update passage: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("passage %s: %w", passage.ID, apperrors.ErrNotFound)
	}

	c.invalidate(ctx, worksheetID)
	return nil
}

func (c *ContentPostgreSQL) invalidate(ctx context.Context, worksheetID string) {
	if err := c.cache.Delete(ctx, contentCacheKey(worksheetID)); err != nil {
		c.logger.Warn("Content cache invalidation failed", "worksheet_id", worksheetID, "error", err)
	}
}
