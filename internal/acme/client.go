package acme

import (
	"context"
	"crypto"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"go_certhub/internal/metrics"

	legoacme "github.com/go-acme/lego/v4/acme"
	"github.com/go-acme/lego/v4/acme/api"
	"github.com/go-acme/lego/v4/certcrypto"
	"github.com/go-acme/lego/v4/challenge"
	"github.com/go-acme/lego/v4/challenge/dns01"
)

// Options tune the CA client
type Options struct {
	UserAgent          string
	HTTPClient         *http.Client
	InsecureSkipVerify bool
	PollInitial        time.Duration
	PollMax            time.Duration
	PollTimeout        time.Duration
	FinalizeTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.UserAgent == "" {
		o.UserAgent = "go_certhub"
	}
	if o.PollInitial <= 0 {
		o.PollInitial = 2 * time.Second
	}
	if o.PollMax <= 0 {
		o.PollMax = 30 * time.Second
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = 2 * time.Minute
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = 90 * time.Second
	}
	if o.HTTPClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if o.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // test CAs only
		}
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second, Transport: transport}
	}
	return o
}

// Client drives the RFC 8555 flow for one account key against one CA.
// It is cheap to build and holds no per-order state, so a flow can be
// resumed from a stored session by building a new Client.
type Client struct {
	core *api.Core
	kid  string
	opts Options
}

// NewClient fetches the CA directory and binds key (and kid, when the
// account is already registered).
func NewClient(server string, key crypto.Signer, kid string, opts Options) (*Client, error) {
	opts = opts.withDefaults()
	core, err := api.New(opts.HTTPClient, opts.UserAgent, server, kid, key)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ACME directory %s: %w", server, err)
	}
	return &Client{core: core, kid: kid, opts: opts}, nil
}

// EAB is an external account binding
type EAB struct {
	KeyID   string
	HMACKey string // base64url, as handed out by the CA
}

// Register creates the account at the CA and returns its URI
func (c *Client) Register(email string, eab *EAB) (string, error) {
	req := legoacme.Account{TermsOfServiceAgreed: true}
	if email != "" {
		req.Contact = []string{"mailto:" + email}
	}

	var (
		acct legoacme.ExtendedAccount
		err  error
	)
	if eab != nil && eab.KeyID != "" {
		acct, err = c.core.Accounts.NewEAB(req, eab.KeyID, eab.HMACKey)
	} else {
		acct, err = c.core.Accounts.New(req)
	}
	if err != nil {
		return "", newError(KindRegistration, "", err)
	}
	if acct.Location == "" {
		return "", newError(KindRegistration, "", errors.New("CA returned no account location"))
	}

	c.kid = acct.Location
	return acct.Location, nil
}

// Deactivate permanently deactivates the bound account
func (c *Client) Deactivate() error {
	if c.kid == "" {
		return newError(KindDeactivation, "", errors.New("account is not registered"))
	}
	if err := c.core.Accounts.Deactivate(c.kid); err != nil {
		return newError(KindDeactivation, "", err)
	}
	return nil
}

// ChallengeInfo is the DNS-01 material of one authorization
type ChallengeInfo struct {
	Domain           string `json:"domain"` // as requested, wildcard kept
	FQDN             string `json:"fqdn"`
	EffectiveFQDN    string `json:"EffectiveFQDN"`
	Value            string `json:"Value"`
	Token            string `json:"token"`
	KeyAuth          string `json:"key_auth,omitempty"`
	AuthorizationURL string `json:"authz_url"`
	ChallengeURL     string `json:"challenge_url"`
	Status           string `json:"status"`
}

// Identifier is the authorization identifier, without the wildcard label
func (i ChallengeInfo) Identifier() string {
	if len(i.Domain) > 2 && i.Domain[:2] == "*." {
		return i.Domain[2:]
	}
	return i.Domain
}

// Order is a created order with its DNS-01 challenges
type Order struct {
	URL         string          `json:"url"`
	FinalizeURL string          `json:"finalize_url"`
	Status      string          `json:"status"`
	Expires     time.Time       `json:"expires"` // earliest of the order and its authorizations
	Challenges  []ChallengeInfo `json:"challenges"`
}

// NewOrder creates an order for domains and resolves the DNS-01 challenge
// of every authorization.
func (c *Client) NewOrder(domains []string) (*Order, error) {
	order, err := c.core.Orders.New(domains)
	if err != nil {
		return nil, newError(KindAuthorization, "", fmt.Errorf("failed to create order: %w", err))
	}

	result := &Order{
		URL:         order.Location,
		FinalizeURL: order.Finalize,
		Status:      order.Status,
	}
	if order.Expires != "" {
		expires, err := time.Parse(time.RFC3339, order.Expires)
		if err != nil {
			return nil, newError(KindAuthorization, "", fmt.Errorf("invalid order expiry %q: %w", order.Expires, err))
		}
		result.Expires = expires
	}

	for _, authzURL := range order.Authorizations {
		authz, err := c.core.Authorizations.Get(authzURL)
		if err != nil {
			return nil, newError(KindAuthorization, "", fmt.Errorf("failed to get authorization: %w", err))
		}

		domain := challenge.GetTargetedDomain(authz)
		chlng, err := challenge.FindChallenge(challenge.DNS01, authz)
		if err != nil {
			return nil, newError(KindAuthorization, domain, err)
		}

		keyAuth, err := c.core.GetKeyAuthorization(chlng.Token)
		if err != nil {
			return nil, fmt.Errorf("failed to compute key authorization: %w", err)
		}

		info := dns01.GetChallengeInfo(authz.Identifier.Value, keyAuth)
		result.Challenges = append(result.Challenges, ChallengeInfo{
			Domain:           domain,
			FQDN:             info.FQDN,
			EffectiveFQDN:    info.EffectiveFQDN,
			Value:            info.Value,
			Token:            chlng.Token,
			KeyAuth:          keyAuth,
			AuthorizationURL: authzURL,
			ChallengeURL:     chlng.URL,
			Status:           authz.Status,
		})

		if !authz.Expires.IsZero() && (result.Expires.IsZero() || authz.Expires.Before(result.Expires)) {
			result.Expires = authz.Expires
		}
	}

	return result, nil
}

// AcceptChallenges tells the CA the records are in place. Already valid
// authorizations are skipped.
func (c *Client) AcceptChallenges(ctx context.Context, infos []ChallengeInfo) error {
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if info.Status == legoacme.StatusValid {
			continue
		}

		chlng, err := c.core.Challenges.New(info.ChallengeURL)
		if err != nil {
			return newError(KindAuthorization, info.Domain, fmt.Errorf("failed to initiate challenge: %w", err))
		}
		if chlng.Status == legoacme.StatusInvalid {
			return newError(KindAuthorization, info.Domain, chlng.Err())
		}
	}
	return nil
}

// AuthorizationStatus fetches the current status of one authorization
func (c *Client) AuthorizationStatus(authzURL string) (string, error) {
	authz, err := c.core.Authorizations.Get(authzURL)
	if err != nil {
		return "", err
	}
	return authz.Status, nil
}

// WaitAuthorizations polls every authorization with exponential backoff
// until all are valid. Any invalid authorization aborts the whole set.
func (c *Client) WaitAuthorizations(ctx context.Context, infos []ChallengeInfo) error {
	start := time.Now()
	pending := make(map[string]ChallengeInfo, len(infos))
	for _, info := range infos {
		pending[info.AuthorizationURL] = info
	}

	err := c.poll(ctx, c.opts.PollTimeout, "authorization", func() (bool, error) {
		for authzURL, info := range pending {
			authz, err := c.core.Authorizations.Get(authzURL)
			if err != nil {
				return false, newError(KindAuthorization, info.Domain, err)
			}

			done, err := checkAuthorization(authz)
			if err != nil {
				return false, newError(KindAuthorization, info.Domain, err)
			}
			if done {
				delete(pending, authzURL)
			}
		}
		return len(pending) == 0, nil
	})

	metrics.CAPollDurationSeconds.WithLabelValues("authorization", pollResult(err)).Observe(time.Since(start).Seconds())
	if IsTimeout(err) {
		return &Error{Kind: KindTimeout, Domain: firstPending(pending), Err: fmt.Errorf("authorizations still pending: %w", err)}
	}
	return err
}

// Issued is the downloaded certificate with the key that backs it
type Issued struct {
	Certificate       []byte // leaf followed by the issuer chain
	IssuerCertificate []byte
	PrivateKey        []byte
	CSR               []byte
	CertURL           string
	CertStableURL     string
}

// Finalize submits a CSR made from a fresh key of keyType, waits for the
// order to become valid and downloads the chain. The certificate must name
// exactly domains.
func (c *Client) Finalize(ctx context.Context, order *Order, domains []string, keyType string) (*Issued, error) {
	key, err := GenerateKey(keyType)
	if err != nil {
		return nil, err
	}

	csr, err := certcrypto.CreateCSR(key, certcrypto.CSROptions{Domain: domains[0], SAN: domains})
	if err != nil {
		return nil, newError(KindFinalization, "", fmt.Errorf("failed to create CSR: %w", err))
	}

	respOrder, err := c.core.Orders.UpdateForCSR(order.FinalizeURL, csr)
	if err != nil {
		return nil, newError(KindFinalization, "", err)
	}

	certURL := ""
	if respOrder.Status == legoacme.StatusValid {
		certURL = respOrder.Certificate
	}

	start := time.Now()
	if certURL == "" {
		err = c.poll(ctx, c.opts.FinalizeTimeout, "finalization", func() (bool, error) {
			o, err := c.core.Orders.Get(order.URL)
			if err != nil {
				return false, newError(KindFinalization, "", err)
			}
			switch o.Status {
			case legoacme.StatusValid:
				certURL = o.Certificate
				return true, nil
			case legoacme.StatusInvalid:
				return false, newError(KindFinalization, "", o.Err())
			}
			return false, nil
		})
	}
	metrics.CAPollDurationSeconds.WithLabelValues("finalization", pollResult(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	certs, err := c.core.Certificates.GetAll(certURL, true)
	if err != nil {
		return nil, newError(KindFinalization, "", fmt.Errorf("failed to download certificate: %w", err))
	}
	raw, ok := certs[certURL]
	if !ok {
		return nil, newError(KindFinalization, "", errors.New("CA returned no certificate at the order's certificate URL"))
	}

	leaf, err := certcrypto.ParsePEMCertificate(raw.Cert)
	if err != nil {
		return nil, newError(KindFinalization, "", fmt.Errorf("failed to parse issued certificate: %w", err))
	}
	if err := matchNames(leaf, domains); err != nil {
		return nil, newError(KindFinalization, "", err)
	}

	return &Issued{
		Certificate:       raw.Cert,
		IssuerCertificate: raw.Issuer,
		PrivateKey:        EncodeKey(key),
		CSR:               certcrypto.PEMEncode(&x509.CertificateRequest{Raw: csr}),
		CertURL:           certURL,
		CertStableURL:     certURL,
	}, nil
}

// Revoke revokes the leaf of certPEM
func (c *Client) Revoke(certPEM []byte) error {
	leaf, err := certcrypto.ParsePEMCertificate(certPEM)
	if err != nil {
		return newError(KindRevocation, "", fmt.Errorf("failed to parse certificate: %w", err))
	}

	err = c.core.Certificates.Revoke(legoacme.RevokeCertMessage{
		Certificate: base64.RawURLEncoding.EncodeToString(leaf.Raw),
	})
	if err != nil {
		return newError(KindRevocation, "", err)
	}
	return nil
}

func checkAuthorization(authz legoacme.Authorization) (bool, error) {
	switch authz.Status {
	case legoacme.StatusValid:
		return true, nil
	case legoacme.StatusPending, legoacme.StatusProcessing:
		return false, nil
	case legoacme.StatusInvalid:
		for _, chlg := range authz.Challenges {
			if chlg.Status == legoacme.StatusInvalid && chlg.Error != nil {
				return false, chlg.Err()
			}
		}
		return false, errors.New("invalid authorization")
	default:
		return false, fmt.Errorf("authorization is %s", authz.Status)
	}
}

// matchNames enforces that the certificate covers exactly the requested set
func matchNames(leaf *x509.Certificate, domains []string) error {
	got := append([]string(nil), leaf.DNSNames...)
	want := append([]string(nil), domains...)
	sort.Strings(got)
	sort.Strings(want)

	if len(got) != len(want) {
		return fmt.Errorf("certificate names %v do not match requested %v", got, want)
	}
	for i := range got {
		if got[i] != want[i] {
			return fmt.Errorf("certificate names %v do not match requested %v", got, want)
		}
	}
	return nil
}

func firstPending(pending map[string]ChallengeInfo) string {
	names := make([]string, 0, len(pending))
	for _, info := range pending {
		names = append(names, info.Domain)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

func pollResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsTimeout(err):
		return "timeout"
	default:
		return "error"
	}
}
