package settings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/farellandr/ucshop/internal/apperrors"
	"github.com/farellandr/ucshop/internal/audit"
	"github.com/farellandr/ucshop/internal/gateway"
	"github.com/farellandr/ucshop/internal/helpers"
	"github.com/farellandr/ucshop/internal/models"
)

type GatewayInput struct {
	Provider     string `json:"provider" binding:"required"`
	BaseURL      string `json:"base_url" binding:"required,url"`
	MerchantID   string `json:"merchant_id" binding:"required"`
	MerchantKey  string `json:"merchant_key"`
	MerchantSalt string `json:"merchant_salt"`
	TestMode     bool   `json:"test_mode"`
}

// GatewayPreview is the only form of the credentials shown to admins.
type GatewayPreview struct {
	Configured   bool       `json:"configured"`
	Provider     string     `json:"provider,omitempty"`
	BaseURL      string     `json:"base_url,omitempty"`
	MerchantID   string     `json:"merchant_id,omitempty"`
	MerchantKey  string     `json:"merchant_key,omitempty"`
	MerchantSalt string     `json:"merchant_salt,omitempty"`
	TestMode     bool       `json:"test_mode"`
	UpdatedAt    *time.Time `json:"updated_at,omitempty"`
}

// Store keeps gateway credentials encrypted in the gateway_settings table.
// It implements gateway.ConfigProvider.
type Store struct {
	db     *gorm.DB
	cipher *helpers.Cipher
	audit  audit.Recorder
	logger *zap.Logger
}

var _ gateway.ConfigProvider = (*Store)(nil)

func NewStore(db *gorm.DB, cipher *helpers.Cipher, recorder audit.Recorder, logger *zap.Logger) *Store {
	return &Store{db: db, cipher: cipher, audit: recorder, logger: logger}
}

func notConfigured() *apperrors.Error {
	return apperrors.New(apperrors.CodeGatewayNotConfigured, "Payment gateway is not configured.")
}

func (s *Store) active(ctx context.Context, tx *gorm.DB) (*models.GatewaySetting, error) {
	var setting models.GatewaySetting
	err := tx.WithContext(ctx).Where("is_active = ?", true).Order("created_at DESC").First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to load gateway settings", err)
	}
	return &setting, nil
}

// Credentials decrypts the active row. The result must not be cached.
func (s *Store) Credentials(ctx context.Context) (*gateway.Credentials, error) {
	setting, err := s.active(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if setting == nil || setting.BaseURL == "" || setting.MerchantID == "" {
		return nil, notConfigured()
	}

	key, err := s.cipher.Decrypt(setting.MerchantKeyEnc)
	if err != nil {
		s.logger.Error("failed to decrypt merchant key", zap.Error(err))
		return nil, notConfigured()
	}
	salt, err := s.cipher.Decrypt(setting.MerchantSaltEnc)
	if err != nil {
		s.logger.Error("failed to decrypt merchant salt", zap.Error(err))
		return nil, notConfigured()
	}
	if key == "" || salt == "" {
		return nil, notConfigured()
	}

	return &gateway.Credentials{
		Provider:     setting.Provider,
		BaseURL:      setting.BaseURL,
		MerchantID:   setting.MerchantID,
		MerchantKey:  key,
		MerchantSalt: salt,
		TestMode:     setting.TestMode,
	}, nil
}

// Save replaces the active settings row. Blank key or salt keep the values of
// the current row.
func (s *Store) Save(ctx context.Context, input GatewayInput, actorID uuid.UUID) (*GatewayPreview, error) {
	var saved models.GatewaySetting
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.active(ctx, tx)
		if err != nil {
			return err
		}

		keyEnc, err := s.encryptOrKeep(input.MerchantKey, current, "merchant_key")
		if err != nil {
			return err
		}
		saltEnc, err := s.encryptOrKeep(input.MerchantSalt, current, "merchant_salt")
		if err != nil {
			return err
		}

		if err := tx.Model(&models.GatewaySetting{}).
			Where("is_active = ?", true).
			Update("is_active", false).Error; err != nil {
			return fmt.Errorf("deactivate gateway settings: %w", err)
		}

		saved = models.GatewaySetting{
			Provider:        input.Provider,
			BaseURL:         input.BaseURL,
			MerchantID:      input.MerchantID,
			MerchantKeyEnc:  keyEnc,
			MerchantSaltEnc: saltEnc,
			TestMode:        input.TestMode,
			IsActive:        true,
			UpdatedBy:       &actorID,
		}
		if err := tx.Create(&saved).Error; err != nil {
			return fmt.Errorf("insert gateway settings: %w", err)
		}
		return nil
	})
	if err != nil {
		var appErr *apperrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabase, "failed to save gateway settings", err)
	}

	if err := s.audit.Record(ctx, audit.Entry{
		Action:     audit.ActionGatewayUpdated,
		ActorID:    &actorID,
		EntityType: "gateway_setting",
		EntityID:   saved.ID.String(),
		Meta: map[string]interface{}{
			"provider":    saved.Provider,
			"merchant_id": saved.MerchantID,
			"test_mode":   saved.TestMode,
		},
	}); err != nil {
		s.logger.Error("failed to audit gateway settings", zap.Error(err))
	}

	return s.preview(&saved)
}

func (s *Store) encryptOrKeep(value string, current *models.GatewaySetting, field string) (string, error) {
	if value == "" {
		if current == nil {
			return "", apperrors.Validation(field, "is required")
		}
		if field == "merchant_key" {
			return current.MerchantKeyEnc, nil
		}
		return current.MerchantSaltEnc, nil
	}
	enc, err := s.cipher.Encrypt(value)
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeInternal, "failed to encrypt credentials", err)
	}
	return enc, nil
}

func (s *Store) Preview(ctx context.Context) (*GatewayPreview, error) {
	setting, err := s.active(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if setting == nil {
		return &GatewayPreview{}, nil
	}
	return s.preview(setting)
}

func (s *Store) preview(setting *models.GatewaySetting) (*GatewayPreview, error) {
	key, err := s.cipher.Decrypt(setting.MerchantKeyEnc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to read gateway settings", err)
	}
	salt, err := s.cipher.Decrypt(setting.MerchantSaltEnc)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeInternal, "failed to read gateway settings", err)
	}

	updatedAt := setting.UpdatedAt
	return &GatewayPreview{
		Configured:   true,
		Provider:     setting.Provider,
		BaseURL:      setting.BaseURL,
		MerchantID:   setting.MerchantID,
		MerchantKey:  helpers.MaskSecret(key),
		MerchantSalt: helpers.MaskSecret(salt),
		TestMode:     setting.TestMode,
		UpdatedAt:    &updatedAt,
	}, nil
}
