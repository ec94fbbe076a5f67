package accounts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/magicdevops/cloudleakage/internal/awsx"
	"github.com/magicdevops/cloudleakage/internal/database/models"
	"github.com/magicdevops/cloudleakage/pkg/crypto"
	"gorm.io/gorm"
)

// ValidationError reports a user-correctable problem with account input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Service is the account directory: CRUD over stored account records. It only
// persists; credential validation happens in Validator before Create is
// called.
type Service struct {
	db        *gorm.DB
	encryptor *crypto.Encryptor
	logger    *slog.Logger
}

func NewService(db *gorm.DB, encryptor *crypto.Encryptor, logger *slog.Logger) *Service {
	return &Service{db: db, encryptor: encryptor, logger: logger}
}

// CreateInput carries already-validated account data. For keypair accounts
// the plaintext credentials are encrypted here, immediately before the
// persist; they are never stored or logged in the clear.
type CreateInput struct {
	DisplayName     string
	AccessType      models.AccessType
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	RoleARN         string

	// Capabilities discovered at validation time, serialized JSON.
	AccountInfo string
}

func (s *Service) Create(ctx context.Context, input CreateInput) (*models.Account, error) {
	if input.DisplayName == "" {
		return nil, &ValidationError{Field: "display_name", Message: "required"}
	}

	account := &models.Account{
		DisplayName: input.DisplayName,
		Provider:    models.ProviderAWS,
		AccessType:  input.AccessType,
		Status:      models.StatusConnected,
		AccountInfo: input.AccountInfo,
	}
	if account.AccountInfo == "" {
		account.AccountInfo = "{}"
	}

	switch input.AccessType {
	case models.AccessTypeKeypair:
		if input.AccessKeyID == "" || input.SecretAccessKey == "" {
			return nil, &ValidationError{Field: "credentials", Message: "access key id and secret are required"}
		}
		blob, err := awsx.MarshalStoredCredentials(awsx.StaticCredentials{
			AccessKeyID:     input.AccessKeyID,
			SecretAccessKey: input.SecretAccessKey,
			Region:          input.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("serializing credentials: %w", err)
		}
		ciphertext, err := s.encryptor.EncryptString(string(blob))
		if err != nil {
			return nil, fmt.Errorf("encrypting credentials: %w", err)
		}
		account.EncryptedCredentials = ciphertext

	case models.AccessTypeRole:
		if input.RoleARN == "" {
			return nil, &ValidationError{Field: "role_arn", Message: "required"}
		}
		account.RoleARN = input.RoleARN

	default:
		return nil, &ValidationError{Field: "access_type", Message: fmt.Sprintf("unsupported value %q", input.AccessType)}
	}

	if err := s.db.WithContext(ctx).Create(account).Error; err != nil {
		return nil, fmt.Errorf("creating account: %w", err)
	}

	s.logger.Info("account created",
		"account_id", account.ID,
		"display_name", account.DisplayName,
		"access_type", account.AccessType,
	)

	return account, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	if err := s.db.WithContext(ctx).First(&account, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns all accounts, most recently created first.
func (s *Service) List(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// UpdateLastSync stamps the account's last successful sync. Updating a
// deleted id is a no-op, not an error.
func (s *Service) UpdateLastSync(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Update("last_sync", now).Error
}

func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status models.AccountStatus) error {
	return s.db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", id).
		Update("status", status).Error
}

// Delete removes the account permanently. Returns false when no row matched.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := s.db.WithContext(ctx).Delete(&models.Account{}, "id = ?", id)
	if result.Error != nil {
		return false, fmt.Errorf("deleting account: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}
