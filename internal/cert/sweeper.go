package cert

import (
	"context"
	"time"

	"go_certhub/internal/metrics"
	"go_certhub/internal/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SweeperConfig defines the expiry sweeper configuration
type SweeperConfig struct {
	Enabled           bool
	Interval          time.Duration
	NotIssuedKeepDays int
}

// Sweeper marks issued certificates past their validity as expired and
// purges abandoned not_issued rows.
type Sweeper struct {
	db          *gorm.DB
	config      SweeperConfig
	logger      *logrus.Entry
	now         func() time.Time
	stopChan    chan struct{}
	stoppedChan chan struct{}
}

// NewSweeper creates a new certificate sweeper
func NewSweeper(db *gorm.DB, config SweeperConfig, logger *logrus.Entry) *Sweeper {
	return &Sweeper{
		db:          db,
		config:      config,
		logger:      logger.WithField("component", "cert-sweeper"),
		now:         time.Now,
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}
}

// Start starts the sweeper
func (s *Sweeper) Start() {
	if !s.config.Enabled {
		s.logger.Info("disabled, skipping")
		close(s.stoppedChan)
		return
	}

	s.logger.WithFields(logrus.Fields{
		"interval":  s.config.Interval,
		"keep_days": s.config.NotIssuedKeepDays,
	}).Info("starting")

	go s.run()
}

// Stop stops the sweeper and waits for the running pass
func (s *Sweeper) Stop() {
	if !s.config.Enabled {
		return
	}
	close(s.stopChan)
	<-s.stoppedChan
	s.logger.Info("stopped")
}

func (s *Sweeper) run() {
	defer close(s.stoppedChan)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick()

	for {
		select {
		case <-ticker.C:
			s.tick()
		case <-s.stopChan:
			return
		}
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if n, err := s.MarkExpired(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to mark expired certificates")
	} else if n > 0 {
		s.logger.WithField("count", n).Info("marked certificates expired")
	}

	if n, err := s.PurgeNotIssued(ctx); err != nil {
		s.logger.WithError(err).Warn("failed to purge not_issued certificates")
	} else if n > 0 {
		s.logger.WithField("count", n).Info("purged stale not_issued certificates")
	}
}

// MarkExpired moves issued certificates whose validity ended to expired.
// Expiry is computed here rather than in SQL so MySQL and sqlite agree.
func (s *Sweeper) MarkExpired(ctx context.Context) (int64, error) {
	var certs []model.Certificate
	if err := s.db.WithContext(ctx).
		Select("id", "issued_at", "validity_days").
		Where("cert_status = ? AND issued_at IS NOT NULL", model.CertStatusIssued).
		Find(&certs).Error; err != nil {
		return 0, err
	}

	now := s.now()
	ids := make([]int, 0)
	for _, c := range certs {
		if ComputeRemainingDays(*c.IssuedAt, c.ValidityDays, now) == 0 {
			ids = append(ids, c.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	result := s.db.WithContext(ctx).Model(&model.Certificate{}).
		Where("id IN ? AND cert_status = ?", ids, model.CertStatusIssued).
		Update("cert_status", model.CertStatusExpired)
	if result.Error != nil {
		return 0, result.Error
	}
	metrics.CertificatesSweptTotal.WithLabelValues("expired").Add(float64(result.RowsAffected))
	return result.RowsAffected, nil
}

// PurgeNotIssued deletes not_issued certificates older than the keep window.
// They never received a private key, so no secrets are left behind.
func (s *Sweeper) PurgeNotIssued(ctx context.Context) (int64, error) {
	if s.config.NotIssuedKeepDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-time.Duration(s.config.NotIssuedKeepDays) * day)
	result := s.db.WithContext(ctx).
		Where("cert_status = ? AND created_at < ?", model.CertStatusNotIssued, cutoff).
		Delete(&model.Certificate{})
	if result.Error != nil {
		return 0, result.Error
	}
	metrics.CertificatesSweptTotal.WithLabelValues("purged").Add(float64(result.RowsAffected))
	return result.RowsAffected, nil
}
