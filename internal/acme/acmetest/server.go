// Package acmetest runs an in-memory RFC 8555 CA for tests. It verifies
// JWS signatures, issues real certificates from a throwaway root and can be
// scripted per domain.
package acmetest

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
)

// Behavior is how the CA answers a challenge for one domain
type Behavior int

const (
	// Valid marks the authorization valid when its challenge is accepted
	Valid Behavior = iota
	// Invalid marks the authorization invalid with an incorrectResponse problem
	Invalid
	// Pending never resolves the authorization
	Pending
)

const (
	problemBadNonce     = "urn:ietf:params:acme:error:badNonce"
	problemMalformed    = "urn:ietf:params:acme:error:malformed"
	problemUnauthorized = "urn:ietf:params:acme:error:unauthorized"
	problemIncorrect    = "urn:ietf:params:acme:error:incorrectResponse"
	problemRevoked      = "urn:ietf:params:acme:error:alreadyRevoked"
	problemEABRequired  = "urn:ietf:params:acme:error:externalAccountRequired"
	problemBadCSR       = "urn:ietf:params:acme:error:badCSR"
	problemOrderNotRdy  = "urn:ietf:params:acme:error:orderNotReady"
)

var signatureAlgorithms = []jose.SignatureAlgorithm{jose.ES256, jose.ES384, jose.RS256}

type identifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type problem struct {
	Type   string `json:"type"`
	Detail string `json:"detail"`
	Status int    `json:"status"`
}

type account struct {
	ID      string           `json:"-"`
	Key     *jose.JSONWebKey `json:"-"`
	Status  string           `json:"status"`
	Contact []string         `json:"contact,omitempty"`
}

type challenge struct {
	Type   string   `json:"type"`
	Status string   `json:"status"`
	URL    string   `json:"url"`
	Token  string   `json:"token"`
	Error  *problem `json:"error,omitempty"`
}

type authorization struct {
	ID         string       `json:"-"`
	Domain     string       `json:"-"`
	Status     string       `json:"status"`
	Expires    string       `json:"expires"`
	Identifier identifier   `json:"identifier"`
	Challenges []*challenge `json:"challenges"`
	Wildcard   bool         `json:"wildcard,omitempty"`
}

type order struct {
	ID             string       `json:"-"`
	AccountID      string       `json:"-"`
	Status         string       `json:"status"`
	Expires        string       `json:"expires"`
	Identifiers    []identifier `json:"identifiers"`
	Authorizations []string     `json:"authorizations"`
	Finalize       string       `json:"finalize"`
	Certificate    string       `json:"certificate,omitempty"`
	Error          *problem     `json:"error,omitempty"`

	pollsLeft int
}

// Server is the fake CA
type Server struct {
	srv *httptest.Server

	mu        sync.Mutex
	nextID    int
	nonces    map[string]bool
	accounts  map[string]*account
	orders    map[string]*order
	authzs    map[string]*authorization
	certs     map[string][]byte
	revoked   map[string]bool // serial -> revoked
	behaviors map[string]Behavior

	eabKID  string
	eabHMAC []byte

	extraSAN       string
	finalizePolls  int
	validityDays   int
	authzTTL       time.Duration
	challengeCalls int
	authzPolls     int

	rootKey  *ecdsa.PrivateKey
	rootCert *x509.Certificate
}

// NewServer starts a CA; it is closed when the test ends
func NewServer(t interface {
	Helper()
	Cleanup(func())
	Fatalf(string, ...interface{})
}) *Server {
	t.Helper()

	rootKey, rootCert, err := newRoot()
	if err != nil {
		t.Fatalf("acmetest: create root: %v", err)
	}

	s := &Server{
		nextID:       1,
		nonces:       map[string]bool{},
		accounts:     map[string]*account{},
		orders:       map[string]*order{},
		authzs:       map[string]*authorization{},
		certs:        map[string][]byte{},
		revoked:      map[string]bool{},
		behaviors:    map[string]Behavior{},
		validityDays: 90,
		authzTTL:     time.Hour,
		rootKey:      rootKey,
		rootCert:     rootCert,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/directory", s.directory)
	mux.HandleFunc("/new-nonce", s.newNonce)
	mux.HandleFunc("/new-account", s.newAccount)
	mux.HandleFunc("/new-order", s.newOrder)
	mux.HandleFunc("/revoke-cert", s.revokeCert)
	mux.HandleFunc("/acct/", s.updateAccount)
	mux.HandleFunc("/order/", s.getOrder)
	mux.HandleFunc("/authz/", s.getAuthorization)
	mux.HandleFunc("/chall/", s.postChallenge)
	mux.HandleFunc("/finalize/", s.finalizeOrder)
	mux.HandleFunc("/cert/", s.getCertificate)

	// lego only talks to CAs over HTTPS
	s.srv = httptest.NewTLSServer(mux)
	t.Cleanup(s.srv.Close)
	return s
}

// DirectoryURL is the URL to hand to ACME clients
func (s *Server) DirectoryURL() string {
	return s.srv.URL + "/directory"
}

// HTTPClient returns a client that trusts the server's TLS certificate
func (s *Server) HTTPClient() *http.Client {
	return s.srv.Client()
}

// SetBehavior scripts the challenge outcome of domain (as requested, "*." kept)
func (s *Server) SetBehavior(domain string, b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.behaviors[domain] = b
}

// RequireEAB makes new accounts require an external account binding
func (s *Server) RequireEAB(kid string, hmacKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eabKID = kid
	s.eabHMAC = hmacKey
}

// SetExtraSAN makes issued certificates carry one more name than requested
func (s *Server) SetExtraSAN(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.extraSAN = name
}

// SetFinalizePolls keeps orders "processing" for n order fetches after finalize
func (s *Server) SetFinalizePolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finalizePolls = n
}

// SetAuthorizationTTL changes the expiry of new orders and authorizations
func (s *Server) SetAuthorizationTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authzTTL = ttl
}

// ChallengeCalls counts accepted challenge requests
func (s *Server) ChallengeCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.challengeCalls
}

// AuthorizationPolls counts authorization fetches
func (s *Server) AuthorizationPolls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authzPolls
}

// AccountStatus returns the status of the account at uri
func (s *Server) AccountStatus(uri string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if acct, ok := s.accounts[s.idFrom(uri, "/acct/")]; ok {
		return acct.Status
	}
	return ""
}

// Revoked reports whether the certificate with serial was revoked
func (s *Server) Revoked(serial *big.Int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[serial.String()]
}

// Root returns the issuing root certificate
func (s *Server) Root() *x509.Certificate {
	return s.rootCert
}

func (s *Server) url(path string) string {
	return s.srv.URL + path
}

func (s *Server) idFrom(u, prefix string) string {
	u = strings.TrimPrefix(u, s.srv.URL)
	return strings.TrimPrefix(u, prefix)
}

func (s *Server) id() string {
	id := fmt.Sprintf("%d", s.nextID)
	s.nextID++
	return id
}

func (s *Server) nonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	n := base64.RawURLEncoding.EncodeToString(b)
	s.nonces[n] = true
	return n
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, location string, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if location != "" {
		w.Header().Set("Location", location)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeProblem(w http.ResponseWriter, status int, typ, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(problem{Type: typ, Detail: detail, Status: status})
}

// verify checks nonce, url and signature of a request and returns the payload
// and the signing account (nil for new-account).
func (s *Server) verify(w http.ResponseWriter, r *http.Request) ([]byte, *account, *jose.JSONWebKey, bool) {
	w.Header().Set("Replay-Nonce", s.nonce())

	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, err.Error())
		return nil, nil, nil, false
	}

	jws, err := jose.ParseSigned(string(body), signatureAlgorithms)
	if err != nil || len(jws.Signatures) != 1 {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, "invalid JWS")
		return nil, nil, nil, false
	}
	header := jws.Signatures[0].Protected

	if !s.nonces[header.Nonce] {
		s.writeProblem(w, http.StatusBadRequest, problemBadNonce, "invalid or re-used nonce")
		return nil, nil, nil, false
	}
	delete(s.nonces, header.Nonce)

	if u, _ := header.ExtraHeaders["url"].(string); u != s.url(r.URL.Path) {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, "JWS url mismatch")
		return nil, nil, nil, false
	}

	var (
		acct *account
		key  *jose.JSONWebKey
	)
	if header.KeyID != "" {
		acct = s.accounts[s.idFrom(header.KeyID, "/acct/")]
		if acct == nil {
			s.writeProblem(w, http.StatusUnauthorized, "urn:ietf:params:acme:error:accountDoesNotExist", "unknown account")
			return nil, nil, nil, false
		}
		key = acct.Key
	} else {
		key = header.JSONWebKey
	}
	if key == nil {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, "no key in JWS")
		return nil, nil, nil, false
	}

	payload, err := jws.Verify(key)
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, "bad signature")
		return nil, nil, nil, false
	}
	return payload, acct, key, true
}

func (s *Server) directory(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeJSON(w, http.StatusOK, "", map[string]interface{}{
		"newNonce":   s.url("/new-nonce"),
		"newAccount": s.url("/new-account"),
		"newOrder":   s.url("/new-order"),
		"revokeCert": s.url("/revoke-cert"),
		"keyChange":  s.url("/key-change"),
		"meta": map[string]interface{}{
			"externalAccountRequired": s.eabKID != "",
		},
	})
}

func (s *Server) newNonce(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w.Header().Set("Replay-Nonce", s.nonce())
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) newAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, _, key, ok := s.verify(w, r)
	if !ok {
		return
	}

	var req struct {
		Contact                []string        `json:"contact"`
		TermsOfServiceAgreed   bool            `json:"termsOfServiceAgreed"`
		ExternalAccountBinding json.RawMessage `json:"externalAccountBinding"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, err.Error())
		return
	}

	for _, c := range req.Contact {
		if !strings.HasPrefix(c, "mailto:") || !strings.Contains(c, "@") {
			s.writeProblem(w, http.StatusBadRequest, "urn:ietf:params:acme:error:invalidContact", "invalid contact "+c)
			return
		}
	}

	if s.eabKID != "" {
		if len(req.ExternalAccountBinding) == 0 {
			s.writeProblem(w, http.StatusUnauthorized, problemEABRequired, "external account binding is required")
			return
		}
		if err := s.verifyEAB(req.ExternalAccountBinding, key, r); err != nil {
			s.writeProblem(w, http.StatusUnauthorized, problemUnauthorized, err.Error())
			return
		}
	}

	acct := &account{ID: s.id(), Key: key, Status: "valid", Contact: req.Contact}
	s.accounts[acct.ID] = acct
	s.writeJSON(w, http.StatusCreated, s.url("/acct/"+acct.ID), acct)
}

func (s *Server) verifyEAB(raw json.RawMessage, accountKey *jose.JSONWebKey, r *http.Request) error {
	jws, err := jose.ParseSigned(string(raw), []jose.SignatureAlgorithm{jose.HS256})
	if err != nil || len(jws.Signatures) != 1 {
		return fmt.Errorf("malformed external account binding")
	}
	header := jws.Signatures[0].Protected
	if header.KeyID != s.eabKID {
		return fmt.Errorf("unknown external account key id")
	}
	if u, _ := header.ExtraHeaders["url"].(string); u != s.url(r.URL.Path) {
		return fmt.Errorf("external account binding url mismatch")
	}

	payload, err := jws.Verify(s.eabHMAC)
	if err != nil {
		return fmt.Errorf("external account binding signature is invalid")
	}

	var bound jose.JSONWebKey
	if err := bound.UnmarshalJSON(payload); err != nil {
		return fmt.Errorf("external account binding payload is not a JWK")
	}
	a, _ := bound.Thumbprint(crypto.SHA256)
	b, _ := accountKey.Thumbprint(crypto.SHA256)
	if !hmac.Equal(a, b) {
		return fmt.Errorf("external account binding is for another key")
	}
	return nil
}

func (s *Server) updateAccount(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, acct, _, ok := s.verify(w, r)
	if !ok {
		return
	}
	if acct == nil || acct.ID != s.idFrom(r.URL.Path, "/acct/") {
		s.writeProblem(w, http.StatusUnauthorized, problemUnauthorized, "account mismatch")
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	_ = json.Unmarshal(payload, &req)

	if req.Status == "deactivated" {
		if acct.Status != "valid" {
			s.writeProblem(w, http.StatusUnauthorized, problemUnauthorized, "account is "+acct.Status)
			return
		}
		acct.Status = "deactivated"
	}
	s.writeJSON(w, http.StatusOK, "", acct)
}

func (s *Server) newOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, acct, _, ok := s.verify(w, r)
	if !ok {
		return
	}
	if acct == nil || acct.Status != "valid" {
		s.writeProblem(w, http.StatusUnauthorized, problemUnauthorized, "account is not valid")
		return
	}

	var req struct {
		Identifiers []identifier `json:"identifiers"`
	}
	if err := json.Unmarshal(payload, &req); err != nil || len(req.Identifiers) == 0 {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, "no identifiers")
		return
	}

	expires := time.Now().Add(s.authzTTL).UTC().Format(time.RFC3339)
	o := &order{
		ID:          s.id(),
		AccountID:   acct.ID,
		Status:      "pending",
		Expires:     expires,
		Identifiers: req.Identifiers,
	}
	o.Finalize = s.url("/finalize/" + o.ID)

	for _, ident := range req.Identifiers {
		value := strings.TrimPrefix(ident.Value, "*.")
		a := &authorization{
			ID:         s.id(),
			Domain:     ident.Value,
			Status:     "pending",
			Expires:    expires,
			Identifier: identifier{Type: "dns", Value: value},
			Wildcard:   value != ident.Value,
		}
		chID := s.id()
		a.Challenges = []*challenge{{
			Type:   "dns-01",
			Status: "pending",
			URL:    s.url("/chall/" + chID),
			Token:  "token-" + chID,
		}}
		s.authzs[a.ID] = a
		o.Authorizations = append(o.Authorizations, s.url("/authz/"+a.ID))
	}

	s.orders[o.ID] = o
	s.writeJSON(w, http.StatusCreated, s.url("/order/"+o.ID), o)
}

func (s *Server) getAuthorization(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, _, ok := s.verify(w, r); !ok {
		return
	}
	a, found := s.authzs[s.idFrom(r.URL.Path, "/authz/")]
	if !found {
		s.writeProblem(w, http.StatusNotFound, problemMalformed, "no such authorization")
		return
	}
	s.authzPolls++
	s.writeJSON(w, http.StatusOK, "", a)
}

func (s *Server) postChallenge(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, _, ok := s.verify(w, r); !ok {
		return
	}

	chURL := s.url(r.URL.Path)
	for _, a := range s.authzs {
		ch := a.Challenges[0]
		if ch.URL != chURL {
			continue
		}

		s.challengeCalls++
		if a.Status == "pending" {
			switch s.behaviors[a.Domain] {
			case Valid:
				ch.Status, a.Status = "valid", "valid"
			case Invalid:
				ch.Status, a.Status = "invalid", "invalid"
				ch.Error = &problem{
					Type:   problemIncorrect,
					Detail: fmt.Sprintf("No TXT record found at _acme-challenge.%s", a.Identifier.Value),
					Status: http.StatusForbidden,
				}
			case Pending:
				ch.Status = "processing"
			}
			s.refreshOrders()
		}

		w.Header().Set("Link", fmt.Sprintf(`<%s>;rel="up"`, s.url("/authz/"+a.ID)))
		s.writeJSON(w, http.StatusOK, "", ch)
		return
	}
	s.writeProblem(w, http.StatusNotFound, problemMalformed, "no such challenge")
}

// refreshOrders moves pending orders to ready or invalid
func (s *Server) refreshOrders() {
	for _, o := range s.orders {
		if o.Status != "pending" {
			continue
		}
		ready := true
		for _, u := range o.Authorizations {
			a := s.authzs[s.idFrom(u, "/authz/")]
			switch a.Status {
			case "invalid":
				o.Status = "invalid"
				o.Error = a.Challenges[0].Error
				ready = false
			case "valid":
			default:
				ready = false
			}
		}
		if ready {
			o.Status = "ready"
		}
	}
}

func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, _, ok := s.verify(w, r); !ok {
		return
	}
	o, found := s.orders[s.idFrom(r.URL.Path, "/order/")]
	if !found {
		s.writeProblem(w, http.StatusNotFound, problemMalformed, "no such order")
		return
	}
	if o.Status == "processing" {
		if o.pollsLeft <= 0 {
			o.Status = "valid"
		} else {
			o.pollsLeft--
		}
	}
	s.writeJSON(w, http.StatusOK, "", o)
}

func (s *Server) finalizeOrder(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, acct, _, ok := s.verify(w, r)
	if !ok {
		return
	}
	o, found := s.orders[s.idFrom(r.URL.Path, "/finalize/")]
	if !found || acct == nil || o.AccountID != acct.ID {
		s.writeProblem(w, http.StatusNotFound, problemMalformed, "no such order")
		return
	}
	if o.Status != "ready" {
		s.writeProblem(w, http.StatusForbidden, problemOrderNotRdy, "order is "+o.Status)
		return
	}

	var req struct {
		CSR string `json:"csr"`
	}
	_ = json.Unmarshal(payload, &req)
	der, err := base64.RawURLEncoding.DecodeString(req.CSR)
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, problemBadCSR, "csr is not base64url")
		return
	}
	csr, err := x509.ParseCertificateRequest(der)
	if err != nil || csr.CheckSignature() != nil {
		s.writeProblem(w, http.StatusBadRequest, problemBadCSR, "invalid csr")
		return
	}

	want := map[string]bool{}
	for _, ident := range o.Identifiers {
		want[ident.Value] = true
	}
	if len(csr.DNSNames) != len(want) {
		s.writeProblem(w, http.StatusBadRequest, problemBadCSR, "csr names do not match order")
		return
	}
	for _, n := range csr.DNSNames {
		if !want[n] {
			s.writeProblem(w, http.StatusBadRequest, problemBadCSR, "csr names do not match order")
			return
		}
	}

	names := append([]string(nil), csr.DNSNames...)
	if s.extraSAN != "" {
		names = append(names, s.extraSAN)
	}
	leafDER, err := s.issue(csr.PublicKey, names)
	if err != nil {
		s.writeProblem(w, http.StatusInternalServerError, "urn:ietf:params:acme:error:serverInternal", err.Error())
		return
	}

	certID := s.id()
	s.certs[certID] = append(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: leafDER}),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: s.rootCert.Raw})...,
	)
	o.Certificate = s.url("/cert/" + certID)
	o.Status = "valid"
	if s.finalizePolls > 0 {
		o.Status = "processing"
		o.pollsLeft = s.finalizePolls
	}

	s.writeJSON(w, http.StatusOK, s.url("/order/"+o.ID), o)
}

func (s *Server) getCertificate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, _, _, ok := s.verify(w, r); !ok {
		return
	}
	chain, found := s.certs[s.idFrom(r.URL.Path, "/cert/")]
	if !found {
		s.writeProblem(w, http.StatusNotFound, problemMalformed, "no such certificate")
		return
	}
	w.Header().Set("Content-Type", "application/pem-certificate-chain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(chain)
}

func (s *Server) revokeCert(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, _, _, ok := s.verify(w, r)
	if !ok {
		return
	}

	var req struct {
		Certificate string `json:"certificate"`
	}
	_ = json.Unmarshal(payload, &req)
	der, err := base64.RawURLEncoding.DecodeString(req.Certificate)
	if err != nil {
		s.writeProblem(w, http.StatusBadRequest, problemMalformed, "certificate is not base64url")
		return
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil || cert.CheckSignatureFrom(s.rootCert) != nil {
		s.writeProblem(w, http.StatusNotFound, problemMalformed, "unknown certificate")
		return
	}

	serial := cert.SerialNumber.String()
	if s.revoked[serial] {
		s.writeProblem(w, http.StatusBadRequest, problemRevoked, "Certificate already revoked")
		return
	}
	s.revoked[serial] = true
	w.WriteHeader(http.StatusOK)
}

func (s *Server) issue(pub crypto.PublicKey, names []string) ([]byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	if err != nil {
		return nil, err
	}
	notBefore := time.Now().UTC().Truncate(time.Second)
	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: names[0]},
		DNSNames:     names,
		NotBefore:    notBefore,
		NotAfter:     notBefore.Add(time.Duration(s.validityDays) * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	return x509.CreateCertificate(rand.Reader, tmpl, s.rootCert, pub, s.rootKey)
}

func newRoot() (*ecdsa.PrivateKey, *x509.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, err
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "acmetest root"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}
	return key, cert, nil
}
