// Package cert manages issued certificates: listing, download, revocation,
// deletion and the background expiry sweep.
package cert

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go_certhub/internal/account"
	"go_certhub/internal/acme"
	"go_certhub/internal/model"
	"go_certhub/internal/secret"
	"go_certhub/internal/ws"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a certificate id does not exist
	ErrNotFound = errors.New("certificate not found")
	// ErrStateConflict is returned when cert_status does not allow the operation
	ErrStateConflict = errors.New("certificate state does not allow operation")
)

// Events publishes certificate events to clients
type Events interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

// Service is the certificate lifecycle manager
type Service struct {
	db       *gorm.DB
	secrets  *secret.Store
	accounts *account.Service
	events   Events
	logger   *logrus.Entry
	now      func() time.Time
}

// NewService creates a new certificate service. events may be nil.
func NewService(db *gorm.DB, secrets *secret.Store, accounts *account.Service, events Events, logger *logrus.Entry) *Service {
	return &Service{
		db:       db,
		secrets:  secrets,
		accounts: accounts,
		events:   events,
		logger:   logger.WithField("component", "certificate-service"),
		now:      time.Now,
	}
}

// Item is a certificate with its derived state
type Item struct {
	model.Certificate
	Status        string `json:"status"`
	RemainingDays *int   `json:"remaining_days"`
}

func (s *Service) item(c model.Certificate) Item {
	now := s.now()
	return Item{
		Certificate:   c,
		Status:        DisplayStatus(&c, now),
		RemainingDays: RemainingDays(&c, now),
	}
}

// ListParams holds list filters
type ListParams struct {
	Domains    string
	CertType   string
	CertStatus string
	AccountID  int
	Page       int
	PageSize   int
}

// List returns a page of certificates, newest first. PEM bodies are omitted.
func (s *Service) List(ctx context.Context, p ListParams) ([]Item, int64, error) {
	var (
		certs []model.Certificate
		total int64
	)

	query := s.db.WithContext(ctx).Model(&model.Certificate{})
	if p.Domains != "" {
		query = query.Where("domains LIKE ?", "%"+p.Domains+"%")
	}
	if p.CertType != "" {
		query = query.Where("cert_type = ?", p.CertType)
	}
	if p.CertStatus != "" {
		query = query.Where("cert_status = ?", p.CertStatus)
	}
	if p.AccountID > 0 {
		query = query.Where("account_id = ?", p.AccountID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count certificates: %w", err)
	}

	offset := (p.Page - 1) * p.PageSize
	if err := query.Omit("certificate", "issuer_certificate", "csr").
		Order("id DESC").Offset(offset).Limit(p.PageSize).
		Find(&certs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list certificates: %w", err)
	}

	items := make([]Item, 0, len(certs))
	for _, c := range certs {
		items = append(items, s.item(c))
	}
	return items, total, nil
}

func (s *Service) load(ctx context.Context, id int) (*model.Certificate, error) {
	var c model.Certificate
	err := s.db.WithContext(ctx).First(&c, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: id=%d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}
	return &c, nil
}

// Get returns one certificate with its chain
func (s *Service) Get(ctx context.Context, id int) (*Item, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	item := s.item(*c)
	return &item, nil
}

// Chain returns the PEM chain and the primary domain of an issued certificate
func (s *Service) Chain(ctx context.Context, id int) (string, []byte, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if c.Certificate == "" {
		return "", nil, fmt.Errorf("%w: certificate %d is %s", ErrStateConflict, id, c.CertStatus)
	}
	return c.PrimaryDomain, []byte(c.Certificate), nil
}

// PrivateKey decrypts the certificate key. Callers gate this on the
// private key permission.
func (s *Service) PrivateKey(ctx context.Context, id int) (string, []byte, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if c.PrivateKeyRef == "" {
		return "", nil, fmt.Errorf("%w: certificate %d is %s", ErrStateConflict, id, c.CertStatus)
	}

	key, err := s.secrets.Get(ctx, c.PrivateKeyRef)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decrypt private key of certificate %d: %w", id, err)
	}
	s.logger.WithField("id", id).Info("certificate private key revealed")
	return c.PrimaryDomain, key, nil
}

// Revoke revokes an issued certificate at the CA with the owning account
// key. The status only changes when the CA accepted the request.
func (s *Service) Revoke(ctx context.Context, id int) (*Item, error) {
	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.CertStatus != model.CertStatusIssued {
		return nil, fmt.Errorf("%w: certificate %d is %s", ErrStateConflict, id, c.CertStatus)
	}

	acct, err := s.accounts.Get(ctx, c.AccountID)
	if err != nil {
		return nil, err
	}
	client, err := s.accounts.Client(ctx, acct)
	if err != nil {
		return nil, err
	}
	if err := client.Revoke([]byte(c.Certificate)); err != nil {
		s.logger.WithField("id", id).WithError(err).Warn("revocation rejected")
		return nil, err
	}

	result := s.db.WithContext(ctx).Model(&model.Certificate{}).
		Where("id = ? AND cert_status = ?", id, model.CertStatusIssued).
		Update("cert_status", model.CertStatusRevoked)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to update certificate status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("%w: certificate %d changed concurrently", ErrStateConflict, id)
	}

	c.CertStatus = model.CertStatusRevoked
	s.logger.WithFields(logrus.Fields{"id": id, "serial": c.SerialNumber}).Info("certificate revoked")
	s.publish(ctx, ws.EventCertificateRevoked, c)

	item := s.item(*c)
	return &item, nil
}

// Delete removes a certificate and its encrypted key
func (s *Service) Delete(ctx context.Context, id int) error {
	c, err := s.load(ctx, id)
	if err != nil {
		return err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.Certificate{}, id).Error; err != nil {
			return err
		}
		return s.secrets.WithDB(tx).Delete(ctx, c.PrivateKeyRef)
	})
	if err != nil {
		return fmt.Errorf("failed to delete certificate: %w", err)
	}

	s.logger.WithField("id", id).Info("certificate deleted")
	return nil
}

// MarkIssued stores the issued chain and key on a not_issued certificate.
// The key and the status change commit together or not at all.
func (s *Service) MarkIssued(ctx context.Context, id int, issued *acme.Issued) (*model.Certificate, error) {
	info, err := ParseInfo(issued.Certificate)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		keyRef, err := s.secrets.WithDB(tx).Put(ctx, issued.PrivateKey)
		if err != nil {
			return err
		}

		issuedAt := info.IssuedAt
		result := tx.Model(&model.Certificate{}).
			Where("id = ? AND cert_status = ?", id, model.CertStatusNotIssued).
			Updates(map[string]interface{}{
				"cert_status":        model.CertStatusIssued,
				"cert_type":          info.CertType,
				"issued_at":          &issuedAt,
				"validity_days":      info.ValidityDays,
				"serial_number":      info.SerialNumber,
				"certificate":        string(issued.Certificate),
				"issuer_certificate": string(issued.IssuerCertificate),
				"csr":                string(issued.CSR),
				"private_key_ref":    keyRef,
				"cert_url":           issued.CertURL,
				"cert_stable_url":    issued.CertStableURL,
				"last_error":         "",
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: certificate %d is no longer awaiting issuance", ErrStateConflict, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store issued certificate: %w", err)
	}

	c, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"id": id, "serial": c.SerialNumber, "domains": c.Domains}).Info("certificate issued")
	s.publish(ctx, ws.EventCertificateIssued, c)
	return c, nil
}

// MarkFailed records the last issuance error of a not_issued certificate
func (s *Service) MarkFailed(ctx context.Context, id int, reason string) error {
	if len(reason) > 1000 {
		reason = reason[:1000]
	}
	return s.db.WithContext(ctx).Model(&model.Certificate{}).
		Where("id = ? AND cert_status = ?", id, model.CertStatusNotIssued).
		Update("last_error", reason).Error
}

// Covering returns the issued certificates whose SANs cover every host
func (s *Service) Covering(ctx context.Context, hosts []string) ([]Item, error) {
	if len(hosts) == 0 {
		return []Item{}, nil
	}

	// narrow by the registrable suffix of the first host, then match exactly
	hint := hosts[0]
	if i := strings.Index(hint, "."); i >= 0 {
		hint = hint[i+1:]
	}

	var certs []model.Certificate
	if err := s.db.WithContext(ctx).
		Omit("certificate", "issuer_certificate", "csr").
		Where("cert_status = ? AND domains LIKE ?", model.CertStatusIssued, "%"+hint+"%").
		Order("issued_at DESC").
		Find(&certs).Error; err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", err)
	}

	items := make([]Item, 0)
	for _, c := range certs {
		if CalculateCoverage(c.Domains, hosts).Status != CoverageStatusCovered {
			continue
		}
		item := s.item(c)
		if item.Status == model.CertStatusExpired {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// MonthCount is the number of certificates issued in one month
type MonthCount struct {
	Month string `json:"month"` // 2006-01
	Count int64  `json:"count"`
}

// Stats is the certificate summary shown on the dashboard
type Stats struct {
	Total     int64        `json:"total"`
	Valid     int64        `json:"valid"`
	Expired   int64        `json:"expired"`
	Revoked   int64        `json:"revoked"`
	NotIssued int64        `json:"not_issued"`
	Monthly   []MonthCount `json:"monthly"`
}

// Stats counts certificates by derived status and issuance per month over
// the last six months, oldest first.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var certs []model.Certificate
	if err := s.db.WithContext(ctx).
		Select("id", "cert_status", "issued_at", "validity_days").
		Find(&certs).Error; err != nil {
		return nil, fmt.Errorf("failed to query certificates: %w", err)
	}

	now := s.now()
	first := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, -5, 0)

	stats := &Stats{Total: int64(len(certs)), Monthly: make([]MonthCount, 6)}
	index := make(map[string]int, 6)
	for i := range stats.Monthly {
		month := first.AddDate(0, i, 0).Format("2006-01")
		stats.Monthly[i].Month = month
		index[month] = i
	}

	for i := range certs {
		c := &certs[i]
		switch DisplayStatus(c, now) {
		case model.CertStatusIssued:
			stats.Valid++
		case model.CertStatusExpired:
			stats.Expired++
		case model.CertStatusRevoked:
			stats.Revoked++
		case model.CertStatusNotIssued:
			stats.NotIssued++
		}
		if c.IssuedAt != nil {
			if m, ok := index[c.IssuedAt.In(now.Location()).Format("2006-01")]; ok {
				stats.Monthly[m].Count++
			}
		}
	}
	return stats, nil
}

func (s *Service) publish(ctx context.Context, event string, c *model.Certificate) {
	if s.events == nil {
		return
	}
	payload := map[string]interface{}{
		"id":          c.ID,
		"domains":     c.Domains,
		"cert_status": c.CertStatus,
		"account_id":  c.AccountID,
	}
	if err := s.events.Publish(ctx, event, payload); err != nil {
		s.logger.WithError(err).WithField("event", event).Warn("failed to publish event")
	}
}
