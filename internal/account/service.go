// Package account manages ACME accounts registered with a CA
package account

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go_certhub/internal/acme"
	"go_certhub/internal/model"
	"go_certhub/internal/secret"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when an account id does not exist
	ErrNotFound = errors.New("acme account not found")
	// ErrInvalidParam is returned for bad input, before the CA is contacted
	ErrInvalidParam = errors.New("invalid acme account parameter")
	// ErrStateConflict is returned when the account status does not allow the operation
	ErrStateConflict = errors.New("acme account state does not allow operation")
)

// Service registers, lists and deactivates ACME accounts
type Service struct {
	db      *gorm.DB
	secrets *secret.Store
	opts    acme.Options
	logger  *logrus.Entry
}

// NewService creates a new account service
func NewService(db *gorm.DB, secrets *secret.Store, opts acme.Options, logger *logrus.Entry) *Service {
	return &Service{
		db:      db,
		secrets: secrets,
		opts:    opts,
		logger:  logger.WithField("component", "acme-account-service"),
	}
}

// RegisterParams holds the fields of a new account
type RegisterParams struct {
	Name       string
	KeyType    string
	Server     string
	Email      string
	EabKeyID   string
	EabHmacKey string
}

func (p *RegisterParams) validate() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Server = strings.TrimSpace(p.Server)
	p.Email = strings.TrimSpace(p.Email)
	p.EabKeyID = strings.TrimSpace(p.EabKeyID)
	p.EabHmacKey = strings.TrimSpace(p.EabHmacKey)

	if p.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidParam)
	}
	if !acme.ValidKeyType(p.KeyType) {
		return fmt.Errorf("%w: key_type must be one of %s", ErrInvalidParam, strings.Join(acme.KeyTypes(), ", "))
	}
	u, err := url.Parse(p.Server)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return fmt.Errorf("%w: server must be an http(s) directory URL", ErrInvalidParam)
	}
	if p.Email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidParam)
	}
	if (p.EabKeyID == "") != (p.EabHmacKey == "") {
		return fmt.Errorf("%w: eab_kid and eab_hmac_key must be given together", ErrInvalidParam)
	}
	return nil
}

// Register generates an account key, registers it with the CA and stores
// the account. Nothing is written when the CA rejects the registration.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*model.AcmeAccount, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	key, err := acme.GenerateKey(p.KeyType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}

	client, err := acme.NewClient(p.Server, key, "", s.opts)
	if err != nil {
		return nil, &acme.Error{Kind: acme.KindRegistration, Err: err}
	}

	var eab *acme.EAB
	if p.EabKeyID != "" {
		eab = &acme.EAB{KeyID: p.EabKeyID, HMACKey: p.EabHmacKey}
	}

	uri, err := client.Register(p.Email, eab)
	if err != nil {
		s.logger.WithFields(logrus.Fields{"server": p.Server, "eab": eab != nil}).WithError(err).Warn("acme registration rejected")
		return nil, err
	}

	account := &model.AcmeAccount{
		Name:     p.Name,
		KeyType:  p.KeyType,
		Server:   p.Server,
		Email:    p.Email,
		URI:      uri,
		Status:   model.AcmeAccountStatusValid,
		EabKeyID: p.EabKeyID,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		secrets := s.secrets.WithDB(tx)
		keyRef, err := secrets.Put(ctx, acme.EncodeKey(key))
		if err != nil {
			return err
		}
		account.KeyRef = keyRef

		if p.EabHmacKey != "" {
			hmacRef, err := secrets.PutString(ctx, p.EabHmacKey)
			if err != nil {
				return err
			}
			account.EabHmacRef = hmacRef
		}
		return tx.Create(account).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store acme account: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"id": account.ID, "server": account.Server, "key_type": account.KeyType}).Info("acme account registered")
	return account, nil
}

// Get returns an account by id
func (s *Service) Get(ctx context.Context, id int) (*model.AcmeAccount, error) {
	var account model.AcmeAccount
	err := s.db.WithContext(ctx).First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get acme account: %w", err)
	}
	return &account, nil
}

// Active returns an account that may still create orders
func (s *Service) Active(ctx context.Context, id int) (*model.AcmeAccount, error) {
	account, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if account.Status != model.AcmeAccountStatusValid {
		return nil, fmt.Errorf("%w: account %d is %s", ErrStateConflict, id, account.Status)
	}
	return account, nil
}

// ListParams holds list filters
type ListParams struct {
	Name     string
	Status   string
	BindEAB  *bool
	Page     int
	PageSize int
}

// List returns a page of accounts, newest first
func (s *Service) List(ctx context.Context, p ListParams) ([]model.AcmeAccount, int64, error) {
	var (
		accounts []model.AcmeAccount
		total    int64
	)

	query := s.db.WithContext(ctx).Model(&model.AcmeAccount{})
	if p.Name != "" {
		query = query.Where("name LIKE ?", "%"+p.Name+"%")
	}
	if p.Status != "" {
		query = query.Where("status = ?", p.Status)
	}
	if p.BindEAB != nil {
		if *p.BindEAB {
			query = query.Where("eab_key_id <> ''")
		} else {
			query = query.Where("(eab_key_id = '' OR eab_key_id IS NULL)")
		}
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count acme accounts: %w", err)
	}

	offset := (p.Page - 1) * p.PageSize
	if err := query.Order("id DESC").Offset(offset).Limit(p.PageSize).Find(&accounts).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list acme accounts: %w", err)
	}
	return accounts, total, nil
}

// Delete removes an account and its key material. Accounts that still own
// issued certificates cannot be deleted.
func (s *Service) Delete(ctx context.Context, id int) error {
	account, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	var issued int64
	if err := s.db.WithContext(ctx).Model(&model.Certificate{}).
		Where("account_id = ? AND cert_status = ?", id, model.CertStatusIssued).
		Count(&issued).Error; err != nil {
		return fmt.Errorf("failed to count certificates: %w", err)
	}
	if issued > 0 {
		return fmt.Errorf("%w: account %d still has %d issued certificate(s)", ErrStateConflict, id, issued)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.AcmeAccount{}, id).Error; err != nil {
			return err
		}
		return s.secrets.WithDB(tx).Delete(ctx, account.KeyRef, account.EabHmacRef)
	})
	if err != nil {
		return fmt.Errorf("failed to delete acme account: %w", err)
	}

	s.logger.WithField("id", id).Info("acme account deleted")
	return nil
}

// Deactivate deactivates the account at the CA and then locally.
// The local status only moves forward from valid.
func (s *Service) Deactivate(ctx context.Context, id int) (*model.AcmeAccount, error) {
	account, err := s.Active(ctx, id)
	if err != nil {
		return nil, err
	}

	client, err := s.Client(ctx, account)
	if err != nil {
		return nil, err
	}
	if err := client.Deactivate(); err != nil {
		return nil, err
	}

	result := s.db.WithContext(ctx).Model(&model.AcmeAccount{}).
		Where("id = ? AND status = ?", id, model.AcmeAccountStatusValid).
		Update("status", model.AcmeAccountStatusDeactivated)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update acme account status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: account %d changed concurrently", ErrStateConflict, id)
	}

	s.logger.WithField("id", id).Info("acme account deactivated")
	account.Status = model.AcmeAccountStatusDeactivated
	return account, nil
}

// Client builds a CA client signing with the account key
func (s *Service) Client(ctx context.Context, account *model.AcmeAccount) (*acme.Client, error) {
	pemKey, err := s.secrets.Get(ctx, account.KeyRef)
	if err != nil {
		return nil, fmt.Errorf("failed to load key of account %d: %w", account.ID, err)
	}
	key, err := acme.DecodeKey(pemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode key of account %d: %w", account.ID, err)
	}
	return acme.NewClient(account.Server, key, account.URI, s.opts)
}

// Stats is the account count summary
type Stats struct {
	Total       int64 `json:"total"`
	Valid       int64 `json:"valid"`
	Deactivated int64 `json:"deactivated"`
	Revoked     int64 `json:"revoked"`
}

// Stats counts accounts by status
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	if err := s.db.WithContext(ctx).Model(&model.AcmeAccount{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count acme accounts: %w", err)
	}

	stats := &Stats{}
	for _, row := range rows {
		stats.Total += row.Count
		switch row.Status {
		case model.AcmeAccountStatusValid:
			stats.Valid = row.Count
		case model.AcmeAccountStatusDeactivated:
			stats.Deactivated = row.Count
		case model.AcmeAccountStatusRevoked:
			stats.Revoked = row.Count
		}
	}
	return stats, nil
}
