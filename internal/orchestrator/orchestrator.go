// Package orchestrator runs DNS-01 issuance flows: it creates the CA order,
// publishes or pre-checks the challenge records, waits for every
// authorization and finalizes the certificate.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go_certhub/internal/account"
	"go_certhub/internal/acme"
	"go_certhub/internal/cert"
	"go_certhub/internal/dns"
	"go_certhub/internal/dns/providers"
	"go_certhub/internal/domainutil"
	"go_certhub/internal/metrics"
	"go_certhub/internal/model"
	"go_certhub/internal/session"
	"go_certhub/internal/ws"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var (
	// ErrInvalidParam is returned for bad input, before the CA is contacted
	ErrInvalidParam = errors.New("invalid issuance parameter")
	// ErrStateConflict is returned when the session does not allow the operation
	ErrStateConflict = errors.New("authorization session state does not allow operation")

	errAbandoned    = errors.New("authorization session abandoned")
	errShuttingDown = errors.New("server shutting down")
)

// Credentials resolves DNS provider credentials by id
type Credentials interface {
	Credential(ctx context.Context, id int) (dns.Credential, error)
}

// Events publishes session events to clients
type Events interface {
	Publish(ctx context.Context, event string, payload interface{}) error
}

// detachedTimeout bounds bookkeeping done after the caller's context ended
const detachedTimeout = 10 * time.Second

// Options tune the issuance flow
type Options struct {
	PropagationInterval     time.Duration
	PropagationTimeout      time.Duration
	PropagationInitialDelay time.Duration
	// ManualPrecheckTimeout bounds the resolver check of manual mode
	ManualPrecheckTimeout time.Duration
	// FlowTimeout bounds one Issue call and the session lock it holds
	FlowTimeout    time.Duration
	CleanupTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.PropagationInterval <= 0 {
		o.PropagationInterval = 10 * time.Second
	}
	if o.PropagationTimeout <= 0 {
		o.PropagationTimeout = 3 * time.Minute
	}
	if o.ManualPrecheckTimeout <= 0 {
		o.ManualPrecheckTimeout = 30 * time.Second
	}
	if o.FlowTimeout <= 0 {
		o.FlowTimeout = 10 * time.Minute
	}
	if o.CleanupTimeout <= 0 {
		o.CleanupTimeout = time.Minute
	}
	return o
}

// Orchestrator owns authorization sessions and the flows that consume them
type Orchestrator struct {
	db        *gorm.DB
	accounts  *account.Service
	certs     *cert.Service
	sessions  *session.Store
	creds     Credentials
	providers providers.Factory
	checker   dns.PropagationChecker
	events    Events
	opts      Options
	logger    *logrus.Entry

	mu       sync.Mutex
	inflight map[string]context.CancelCauseFunc
	cleanups sync.WaitGroup
}

// Deps are the collaborators of an Orchestrator. Events may be nil.
type Deps struct {
	DB          *gorm.DB
	Accounts    *account.Service
	Certs       *cert.Service
	Sessions    *session.Store
	Credentials Credentials
	Providers   providers.Factory
	Checker     dns.PropagationChecker
	Events      Events
}

// New creates an Orchestrator
func New(deps Deps, opts Options, logger *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		db:        deps.DB,
		accounts:  deps.Accounts,
		certs:     deps.Certs,
		sessions:  deps.Sessions,
		creds:     deps.Credentials,
		providers: deps.Providers,
		checker:   deps.Checker,
		events:    deps.Events,
		opts:      opts.withDefaults(),
		logger:    logger.WithField("component", "orchestrator"),
		inflight:  make(map[string]context.CancelCauseFunc),
	}
}

// CreateAuthParams holds the input of CreateAuth
type CreateAuthParams struct {
	AccountID     int
	Domains       []string
	KeyType       string
	Mode          string
	DNSProviderID int
}

func validateMode(mode string, dnsProviderID int) error {
	switch mode {
	case session.ModeAuto:
		if dnsProviderID <= 0 {
			return fmt.Errorf("%w: mode auto requires dns_provider_id", ErrInvalidParam)
		}
	case session.ModeManual:
		if dnsProviderID != 0 {
			return fmt.Errorf("%w: mode manual does not take dns_provider_id", ErrInvalidParam)
		}
	default:
		return fmt.Errorf("%w: mode must be manual or auto", ErrInvalidParam)
	}
	return nil
}

// CreateAuth creates a CA order for the domain set and stores the session
// holding its DNS-01 challenges. A not_issued certificate row tracks it.
func (o *Orchestrator) CreateAuth(ctx context.Context, p CreateAuthParams) (*session.Session, error) {
	domains, err := domainutil.NormalizeList(p.Domains)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	if !acme.ValidKeyType(p.KeyType) {
		return nil, fmt.Errorf("%w: invalid key_type %q", ErrInvalidParam, p.KeyType)
	}
	if p.Mode == "" {
		p.Mode = session.ModeManual
	}
	if err := validateMode(p.Mode, p.DNSProviderID); err != nil {
		return nil, err
	}
	if p.Mode == session.ModeAuto {
		if _, err := o.creds.Credential(ctx, p.DNSProviderID); err != nil {
			return nil, err
		}
	}

	acct, err := o.accounts.Active(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	client, err := o.accounts.Client(ctx, acct)
	if err != nil {
		return nil, err
	}

	order, err := client.NewOrder(domains)
	if err != nil {
		return nil, err
	}

	c := &model.Certificate{
		Domains:       domains,
		PrimaryDomain: domains[0],
		KeyType:       p.KeyType,
		AccountID:     acct.ID,
		DNSProviderID: p.DNSProviderID,
		CertStatus:    model.CertStatusNotIssued,
		OrderURL:      order.URL,
	}
	if err := o.db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	s := &session.Session{
		AccountID:     acct.ID,
		Domains:       domains,
		KeyType:       p.KeyType,
		Mode:          p.Mode,
		DNSProviderID: p.DNSProviderID,
		OrderURL:      order.URL,
		FinalizeURL:   order.FinalizeURL,
		InfoList:      order.Challenges,
		CertificateID: c.ID,
	}
	if err := o.sessions.Create(ctx, s, order.Expires); err != nil {
		return nil, err
	}
	if err := o.db.WithContext(ctx).Model(c).Update("session_id", s.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to link session: %w", err)
	}

	o.logger.WithFields(logrus.Fields{
		"session":     s.ID,
		"certificate": c.ID,
		"domains":     domains,
		"mode":        s.Mode,
	}).Info("authorization session created")
	o.publish(ctx, s)
	return s, nil
}

// Session returns a stored session
func (o *Orchestrator) Session(ctx context.Context, id string) (*session.Session, error) {
	return o.sessions.Get(ctx, id)
}

// IssueParams locate a session, by SessionID or by account, key type and
// domain set, and select the mode explicitly.
type IssueParams struct {
	SessionID     string
	AccountID     int
	Domains       []string
	KeyType       string
	Mode          string
	DNSProviderID int
}

func (o *Orchestrator) locate(ctx context.Context, p IssueParams) (*session.Session, error) {
	if p.SessionID != "" {
		return o.sessions.Get(ctx, p.SessionID)
	}
	domains, err := domainutil.NormalizeList(p.Domains)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParam, err)
	}
	return o.sessions.Find(ctx, p.AccountID, p.KeyType, domains)
}

// Issue fulfils the session's challenges in its mode, waits for every
// authorization and stores the certificate. Either the full domain set is
// issued or nothing is.
func (o *Orchestrator) Issue(ctx context.Context, p IssueParams) (*model.Certificate, error) {
	if err := validateMode(p.Mode, p.DNSProviderID); err != nil {
		return nil, err
	}

	s, err := o.locate(ctx, p)
	if err != nil {
		return nil, err
	}
	if p.Mode != s.Mode {
		return nil, fmt.Errorf("%w: session was created in %s mode", ErrInvalidParam, s.Mode)
	}
	if s.Mode == session.ModeAuto && p.DNSProviderID != s.DNSProviderID {
		return nil, fmt.Errorf("%w: dns_provider_id does not match the session", ErrInvalidParam)
	}
	if err := issuable(s); err != nil {
		return nil, err
	}

	release, err := o.sessions.Lock(ctx, s.ID, o.opts.FlowTimeout)
	if errors.Is(err, session.ErrLocked) {
		return nil, fmt.Errorf("%w: %v", ErrStateConflict, err)
	}
	if err != nil {
		return nil, err
	}
	defer release()

	// the previous holder of the lock may have settled the session
	if s, err = o.sessions.Get(ctx, s.ID); err != nil {
		return nil, err
	}
	if err := issuable(s); err != nil {
		return nil, err
	}

	// a client that goes away does not stop the flow; only Abandon,
	// Shutdown and FlowTimeout do
	base := context.WithoutCancel(ctx)
	causeCtx, cancelCause := context.WithCancelCause(base)
	defer cancelCause(nil)
	flowCtx, cancel := context.WithTimeout(causeCtx, o.opts.FlowTimeout)
	defer cancel()
	o.track(s.ID, cancelCause)
	defer o.untrack(s.ID)

	log := o.logger.WithFields(logrus.Fields{"session": s.ID, "mode": s.Mode, "domains": s.Domains})
	start := time.Now()

	s.Status = session.StatusProcessing
	s.LastError = ""
	o.save(base, s)

	c, err := o.run(flowCtx, s, log)

	metrics.IssuanceDurationSeconds.WithLabelValues(s.Mode).Observe(time.Since(start).Seconds())
	metrics.IssuanceTotal.WithLabelValues(s.Mode, issueResult(err)).Inc()

	if err != nil {
		o.fail(flowCtx, s, err, log)
		return nil, err
	}

	s.Status = session.StatusIssued
	o.save(base, s)
	log.WithField("certificate", c.ID).Info("certificate issued")
	return c, nil
}

func issuable(s *session.Session) error {
	switch s.Status {
	case session.StatusIssued, session.StatusFailed, session.StatusAbandoned:
		return fmt.Errorf("%w: session is %s", ErrStateConflict, s.Status)
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, s *session.Session, log *logrus.Entry) (*model.Certificate, error) {
	acct, err := o.accounts.Active(ctx, s.AccountID)
	if err != nil {
		return nil, err
	}
	client, err := o.accounts.Client(ctx, acct)
	if err != nil {
		return nil, err
	}

	switch s.Mode {
	case session.ModeAuto:
		err = o.fulfillAuto(ctx, client, s, log)
	default:
		err = o.fulfillManual(ctx, client, s)
	}
	if err != nil {
		return nil, err
	}

	issued, err := client.Finalize(ctx, s.Order(), s.Domains, s.KeyType)
	if err != nil {
		return nil, err
	}
	return o.certs.MarkIssued(ctx, s.CertificateID, issued)
}

// fulfillManual trusts the operator's records only once public resolvers
// see them, so an early call does not burn the authorizations.
func (o *Orchestrator) fulfillManual(ctx context.Context, client *acme.Client, s *session.Session) error {
	records := txtRecords(s.InfoList)
	if len(records) > 0 && o.checker != nil {
		err := dns.WaitForPropagation(ctx, o.checker, records, o.opts.PropagationInterval, o.opts.ManualPrecheckTimeout)
		if err != nil {
			return propagationError(err)
		}
	}
	return o.authorize(ctx, client, s)
}

// fulfillAuto publishes every record in parallel, waits until they are
// visible and lets the CA validate. Records are removed in the background
// once the authorizations are settled, whatever the outcome.
func (o *Orchestrator) fulfillAuto(ctx context.Context, client *acme.Client, s *session.Session, log *logrus.Entry) error {
	cred, err := o.creds.Credential(ctx, s.DNSProviderID)
	if err != nil {
		return err
	}
	provider, err := o.providers.New(ctx, cred)
	if err != nil {
		return err
	}

	records := txtRecords(s.InfoList)
	handles, err := present(ctx, provider, records)
	s.Records = handles
	o.save(ctx, s)
	defer o.cleanup(provider, handles, log)
	if err != nil {
		return err
	}

	if len(records) > 0 {
		if delay := o.opts.PropagationInitialDelay; delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if o.checker != nil {
			err := dns.WaitForPropagation(ctx, o.checker, records, o.opts.PropagationInterval, o.opts.PropagationTimeout)
			if err != nil {
				return propagationError(err)
			}
		}
	}

	return o.authorize(ctx, client, s)
}

func (o *Orchestrator) authorize(ctx context.Context, client *acme.Client, s *session.Session) error {
	if err := client.AcceptChallenges(ctx, s.InfoList); err != nil {
		return err
	}
	return client.WaitAuthorizations(ctx, s.InfoList)
}

// fail records the error on the session and the certificate. Timeouts,
// including FlowTimeout, and shutdown leave the session pending so the
// operator can retry.
func (o *Orchestrator) fail(flowCtx context.Context, s *session.Session, err error, log *logrus.Entry) {
	s.LastError = err.Error()
	cause := context.Cause(flowCtx)
	switch {
	case errors.Is(cause, errAbandoned):
		s.Status = session.StatusAbandoned
		s.Records = nil
	case errors.Is(cause, errShuttingDown), acme.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		s.Status = session.StatusPending
	default:
		s.Status = session.StatusFailed
	}

	// the caller may have gone away, the bookkeeping still has to land
	bg, cancel := context.WithTimeout(context.Background(), detachedTimeout)
	defer cancel()
	o.save(bg, s)
	if markErr := o.certs.MarkFailed(bg, s.CertificateID, s.LastError); markErr != nil {
		log.WithError(markErr).Warn("failed to record issuance error")
	}
	log.WithError(err).WithField("status", s.Status).Warn("issuance failed")
}

// Abandon stops a session. An in-flight flow in this process is cancelled
// and removes its own records; otherwise records created in auto mode are
// removed here.
func (o *Orchestrator) Abandon(ctx context.Context, id string) (*session.Session, error) {
	s, err := o.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch s.Status {
	case session.StatusIssued, session.StatusAbandoned:
		return nil, fmt.Errorf("%w: session is %s", ErrStateConflict, s.Status)
	}

	if o.cancel(id) {
		o.logger.WithField("session", id).Info("in-flight issuance cancelled")
		s.Status = session.StatusAbandoned
		return s, nil
	}

	release, err := o.sessions.Lock(ctx, id, o.opts.CleanupTimeout)
	if errors.Is(err, session.ErrLocked) {
		return nil, fmt.Errorf("%w: session is being processed by another instance", ErrStateConflict)
	}
	if err != nil {
		return nil, err
	}
	defer release()

	if s, err = o.sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	switch s.Status {
	case session.StatusIssued, session.StatusAbandoned:
		return nil, fmt.Errorf("%w: session is %s", ErrStateConflict, s.Status)
	}

	log := o.logger.WithField("session", id)
	if s.Mode == session.ModeAuto && len(s.Records) > 0 {
		cred, err := o.creds.Credential(ctx, s.DNSProviderID)
		if err == nil {
			var provider dns.Provider
			provider, err = o.providers.New(ctx, cred)
			if err == nil {
				o.cleanup(provider, s.Records, log)
			}
		}
		if err != nil {
			log.WithError(err).Warn("cannot clean up challenge records")
		}
	}

	s.Status = session.StatusAbandoned
	s.Records = nil
	o.save(ctx, s)
	log.Info("authorization session abandoned")
	return s, nil
}

// Wait blocks until background record cleanups have finished
func (o *Orchestrator) Wait() {
	o.cleanups.Wait()
}

// Shutdown cancels every in-flight flow and waits for their cleanups
func (o *Orchestrator) Shutdown() {
	o.mu.Lock()
	for _, cancel := range o.inflight {
		cancel(errShuttingDown)
	}
	o.mu.Unlock()
	o.cleanups.Wait()
}

func (o *Orchestrator) track(id string, cancel context.CancelCauseFunc) {
	o.mu.Lock()
	o.inflight[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) cancel(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	cancel, ok := o.inflight[id]
	if ok {
		cancel(errAbandoned)
	}
	return ok
}

func (o *Orchestrator) save(ctx context.Context, s *session.Session) {
	if err := o.sessions.Save(ctx, s); err != nil {
		o.logger.WithError(err).WithField("session", s.ID).Warn("failed to save session")
	}
	o.publish(ctx, s)
}

func (o *Orchestrator) publish(ctx context.Context, s *session.Session) {
	if o.events == nil {
		return
	}
	payload := map[string]interface{}{
		"id":             s.ID,
		"status":         s.Status,
		"mode":           s.Mode,
		"domains":        s.Domains,
		"certificate_id": s.CertificateID,
		"last_error":     s.LastError,
	}
	if err := o.events.Publish(ctx, ws.EventSessionUpdated, payload); err != nil {
		o.logger.WithError(err).Warn("failed to publish session event")
	}
}

func propagationError(err error) error {
	if errors.Is(err, dns.ErrPropagationTimeout) {
		return acme.Timeout("propagation", err)
	}
	return err
}

func issueResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case acme.IsTimeout(err):
		return "timeout"
	case dns.KindOf(err) != "":
		return "dns_error"
	case acme.KindOf(err) != "":
		return "ca_error"
	default:
		return "error"
	}
}
