package dns

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go_certhub/internal/model"
	"go_certhub/internal/secret"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrProviderNotFound is returned when a credential id does not exist
	ErrProviderNotFound = errors.New("dns provider not found")
	// ErrInvalidParam is returned for bad input, before anything is written
	ErrInvalidParam = errors.New("invalid dns provider parameter")
)

// Service manages DNS vendor credentials
type Service struct {
	db      *gorm.DB
	secrets *secret.Store
	logger  *logrus.Entry
}

// NewService creates a new DNS credential service
func NewService(db *gorm.DB, secrets *secret.Store, logger *logrus.Entry) *Service {
	return &Service{
		db:      db,
		secrets: secrets,
		logger:  logger.WithField("component", "dns-provider-service"),
	}
}

// CreateParams holds the fields of a new credential
type CreateParams struct {
	Name      string
	Type      string
	SecretID  string
	SecretKey string
	Notes     string
}

// Create validates and stores a credential, encrypting the secret key and,
// for vendors whose secret id is a credential too, the secret id
func (s *Service) Create(ctx context.Context, p CreateParams) (*model.DNSProvider, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.SecretID = strings.TrimSpace(p.SecretID)
	if p.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidParam)
	}
	if !IsValidType(p.Type) {
		return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidParam, p.Type)
	}
	if p.SecretID == "" {
		return nil, fmt.Errorf("%w: secret_id is required", ErrInvalidParam)
	}
	if p.SecretKey == "" {
		return nil, fmt.Errorf("%w: secret_key is required", ErrInvalidParam)
	}

	provider := &model.DNSProvider{
		Name:     p.Name,
		Type:     p.Type,
		SecretID: p.SecretID,
		Notes:    p.Notes,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.secrets.WithDB(tx)
		if SecretIDSensitive(p.Type) {
			ref, err := store.PutString(ctx, p.SecretID)
			if err != nil {
				return err
			}
			provider.SecretID = MaskSecret(p.SecretID)
			provider.SecretIDRef = ref
		}
		ref, err := store.PutString(ctx, p.SecretKey)
		if err != nil {
			return err
		}
		provider.SecretKeyRef = ref
		return tx.Create(provider).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create dns provider: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"id": provider.ID, "type": provider.Type}).Info("dns provider created")
	return provider, nil
}

// UpdateParams holds a partial update; nil fields are left unchanged
type UpdateParams struct {
	Name      *string
	Type      *string
	SecretID  *string
	SecretKey *string
	Notes     *string
}

// Update applies a partial update. New secret material is stored under
// fresh refs and the previous refs are removed in the same transaction.
// Changing type between a plain and a sensitive secret id requires a new
// secret_id.
func (s *Service) Update(ctx context.Context, id int, p UpdateParams) (*model.DNSProvider, error) {
	provider, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: name must not be empty", ErrInvalidParam)
		}
		updates["name"] = name
	}
	newType := provider.Type
	if p.Type != nil {
		if !IsValidType(*p.Type) {
			return nil, fmt.Errorf("%w: unsupported type %q", ErrInvalidParam, *p.Type)
		}
		newType = *p.Type
		updates["type"] = newType
	}
	var secretID string
	if p.SecretID != nil {
		secretID = strings.TrimSpace(*p.SecretID)
		if secretID == "" {
			return nil, fmt.Errorf("%w: secret_id must not be empty", ErrInvalidParam)
		}
	} else if SecretIDSensitive(newType) != SecretIDSensitive(provider.Type) {
		return nil, fmt.Errorf("%w: secret_id is required when changing type to %s", ErrInvalidParam, newType)
	}
	if p.Notes != nil {
		updates["notes"] = *p.Notes
	}
	if p.SecretKey != nil && *p.SecretKey == "" {
		return nil, fmt.Errorf("%w: secret_key must not be empty", ErrInvalidParam)
	}

	var stale []string
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		store := s.secrets.WithDB(tx)
		if p.SecretID != nil {
			stale = append(stale, provider.SecretIDRef)
			updates["secret_id"] = secretID
			updates["secret_id_ref"] = ""
			if SecretIDSensitive(newType) {
				ref, err := store.PutString(ctx, secretID)
				if err != nil {
					return err
				}
				updates["secret_id"] = MaskSecret(secretID)
				updates["secret_id_ref"] = ref
			}
		}
		if p.SecretKey != nil {
			ref, err := store.PutString(ctx, *p.SecretKey)
			if err != nil {
				return err
			}
			updates["secret_key_ref"] = ref
			stale = append(stale, provider.SecretKeyRef)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&model.DNSProvider{}).Where("id = ?", id).Updates(updates).Error; err != nil {
			return err
		}
		return store.Delete(ctx, stale...)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update dns provider: %w", err)
	}

	return s.Get(ctx, id)
}

// Delete removes the credential and its encrypted secrets
func (s *Service) Delete(ctx context.Context, id int) error {
	provider, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.DNSProvider{}, id).Error; err != nil {
			return err
		}
		return s.secrets.WithDB(tx).Delete(ctx, provider.SecretIDRef, provider.SecretKeyRef)
	})
	if err != nil {
		return fmt.Errorf("failed to delete dns provider: %w", err)
	}

	s.logger.WithField("id", id).Info("dns provider deleted")
	return nil
}

// Get returns one credential without secret material
func (s *Service) Get(ctx context.Context, id int) (*model.DNSProvider, error) {
	var provider model.DNSProvider
	if err := s.db.WithContext(ctx).First(&provider, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProviderNotFound
		}
		return nil, fmt.Errorf("failed to get dns provider: %w", err)
	}
	return &provider, nil
}

// ListParams filters List
type ListParams struct {
	Page     int
	PageSize int
	Name     string
	Type     string
}

// List returns a page of credentials; secret keys are never included
func (s *Service) List(ctx context.Context, p ListParams) ([]model.DNSProvider, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.DNSProvider{})
	if p.Name != "" {
		query = query.Where("name LIKE ?", "%"+p.Name+"%")
	}
	if p.Type != "" {
		query = query.Where("type = ?", p.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count dns providers: %w", err)
	}

	items := make([]model.DNSProvider, 0)
	offset := (p.Page - 1) * p.PageSize
	if err := query.Order("id DESC").Offset(offset).Limit(p.PageSize).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list dns providers: %w", err)
	}
	return items, total, nil
}

// Secrets is the revealed credential pair
type Secrets struct {
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
}

// Reveal decrypts the credential pair of one record
func (s *Service) Reveal(ctx context.Context, id int) (*Secrets, error) {
	cred, err := s.Credential(ctx, id)
	if err != nil {
		return nil, err
	}
	return &Secrets{SecretID: cred.SecretID, SecretKey: cred.SecretKey}, nil
}

// Credential loads and decrypts the credential used by vendor adapters
func (s *Service) Credential(ctx context.Context, id int) (Credential, error) {
	provider, err := s.Get(ctx, id)
	if err != nil {
		return Credential{}, err
	}

	key, err := s.secrets.GetString(ctx, provider.SecretKeyRef)
	if err != nil {
		return Credential{}, fmt.Errorf("failed to decrypt dns provider %d secret: %w", id, err)
	}

	secretID := provider.SecretID
	if provider.SecretIDRef != "" {
		if secretID, err = s.secrets.GetString(ctx, provider.SecretIDRef); err != nil {
			return Credential{}, fmt.Errorf("failed to decrypt dns provider %d secret id: %w", id, err)
		}
	}

	return Credential{
		ID:        provider.ID,
		Type:      provider.Type,
		SecretID:  secretID,
		SecretKey: key,
	}, nil
}

// TypeStat counts credentials per vendor type
type TypeStat struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

// Stats counts credentials grouped by type
func (s *Service) Stats(ctx context.Context) ([]TypeStat, error) {
	stats := make([]TypeStat, 0)
	if err := s.db.WithContext(ctx).Model(&model.DNSProvider{}).
		Select("type, COUNT(*) AS count").
		Group("type").
		Order("type").
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("failed to count dns providers: %w", err)
	}
	return stats, nil
}
