package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/models"
)

const importBatchSize = 500

type ImportResult struct {
	Created    int      `json:"created"`
	Duplicates []string `json:"duplicates"`
}

// Service manages the stock pool outside of fulfillment.
type Service struct {
	db     *gorm.DB
	audit  audit.Recorder
	logger *zap.Logger
}

func NewService(db *gorm.DB, recorder audit.Recorder, logger *zap.Logger) *Service {
	return &Service{db: db, audit: recorder, logger: logger}
}

// Import adds codes for a product. Blank lines are ignored; codes repeated in
// the batch or already stored for the product are reported as duplicates.
func (s *Service) Import(ctx context.Context, productID uuid.UUID, codes []string, actorID *uuid.UUID) (*ImportResult, error) {
	var product models.Product
	if err := s.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.New(apperrors.CodeNotFound, "Product not found.")
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to load product", err)
	}

	result := &ImportResult{Duplicates: []string{}}
	seen := make(map[string]struct{}, len(codes))
	unique := make([]string, 0, len(codes))
	for _, raw := range codes {
		code := strings.TrimSpace(raw)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			result.Duplicates = append(result.Duplicates, code)
			continue
		}
		seen[code] = struct{}{}
		unique = append(unique, code)
	}
	if len(unique) == 0 {
		return result, nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing := make(map[string]struct{})
		for start := 0; start < len(unique); start += importBatchSize {
			end := min(start+importBatchSize, len(unique))
			var found []string
			if err := tx.Model(&models.Stock{}).
				Where("product_id = ? AND code IN ?", productID, unique[start:end]).
				Pluck("code", &found).Error; err != nil {
				return fmt.Errorf("find existing codes: %w", err)
			}
			for _, code := range found {
				existing[code] = struct{}{}
			}
		}

		rows := make([]models.Stock, 0, len(unique))
		for _, code := range unique {
			if _, dup := existing[code]; dup {
				result.Duplicates = append(result.Duplicates, code)
				continue
			}
			rows = append(rows, models.Stock{
				ProductID: productID,
				Code:      code,
				Status:    models.StockAvailable,
				CreatedBy: actorID,
			})
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.CreateInBatches(&rows, importBatchSize).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperrors.Wrap(apperrors.CodeDuplicate, "Stock codes were added concurrently. Please retry.", err)
			}
			return fmt.Errorf("insert stock: %w", err)
		}
		result.Created = len(rows)
		return nil
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to import stock", err)
	}

	s.logger.Info("stock imported",
		zap.String("productId", productID.String()),
		zap.Int("created", result.Created),
		zap.Int("duplicates", len(result.Duplicates)))

	if result.Created > 0 {
		if err := s.audit.Record(ctx, audit.Entry{
			Action:     audit.ActionStockImported,
			ActorID:    actorID,
			EntityType: "product",
			EntityID:   productID.String(),
			Meta: map[string]interface{}{
				"created":    result.Created,
				"duplicates": len(result.Duplicates),
			},
		}); err != nil {
			s.logger.Error("failed to audit stock import", zap.Error(err))
		}
	}

	return result, nil
}

// Available counts unassigned codes for a product.
func (s *Service) Available(ctx context.Context, productID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Stock{}).
		Where("product_id = ? AND status = ?", productID, models.StockAvailable).
		Count(&count).Error
	return count, err
}
