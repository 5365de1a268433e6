package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go_certhub/internal/acme"
	"go_certhub/internal/dns"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown or expired sessions
	ErrNotFound = errors.New("authorization session not found or expired")
	// ErrLocked is returned when another flow holds the session
	ErrLocked = errors.New("authorization session is being processed")
	// ErrExpired is returned when saving a session whose deadline has passed
	ErrExpired = errors.New("authorization session expired")
)

// Issuance modes
const (
	ModeManual = "manual"
	ModeAuto   = "auto"
)

// Session statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusIssued     = "issued"
	StatusFailed     = "failed"
	StatusAbandoned  = "abandoned"
)

// Session is the server-side state between "create auth" and "issue"
type Session struct {
	ID            string               `json:"id"`
	AccountID     int                  `json:"account_id"`
	Domains       []string             `json:"domains"`
	KeyType       string               `json:"key_type"`
	Mode          string               `json:"mode"`
	DNSProviderID int                  `json:"dns_provider_id,omitempty"`
	OrderURL      string               `json:"order_url"`
	FinalizeURL   string               `json:"finalize_url"`
	InfoList      []acme.ChallengeInfo `json:"info_list"`
	Records       []dns.RecordHandle   `json:"records,omitempty"`
	CertificateID int                  `json:"certificate_id"`
	Status        string               `json:"status"`
	LastError     string               `json:"last_error,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	ExpiresAt     time.Time            `json:"expires_at"`
}

// Order rebuilds the CA order the session was created from
func (s *Session) Order() *acme.Order {
	return &acme.Order{
		URL:         s.OrderURL,
		FinalizeURL: s.FinalizeURL,
		Expires:     s.ExpiresAt,
		Challenges:  s.InfoList,
	}
}

// Store keeps sessions in Redis as JSON with a TTL
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore creates a new session store. ttl caps every session's lifetime.
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return fmt.Sprintf("acme:session:%s", id)
}

func lockKey(id string) string {
	return fmt.Sprintf("acme:session:%s:lock", id)
}

// LookupKey indexes a session by account, key type and domain set
func LookupKey(accountID int, keyType string, domains []string) string {
	sorted := append([]string(nil), domains...)
	sort.Strings(sorted)
	return fmt.Sprintf("acme:session:index:%d:%s:%s", accountID, keyType, strings.Join(sorted, ","))
}

// Create assigns an id and stores s. Its deadline is the earlier of the
// store TTL and orderExpiry.
func (st *Store) Create(ctx context.Context, s *Session, orderExpiry time.Time) error {
	now := time.Now()
	s.ID = uuid.NewString()
	s.CreatedAt = now
	s.ExpiresAt = now.Add(st.ttl)
	if !orderExpiry.IsZero() && orderExpiry.Before(s.ExpiresAt) {
		s.ExpiresAt = orderExpiry
	}
	if s.Status == "" {
		s.Status = StatusPending
	}
	return st.Save(ctx, s)
}

// Save writes s with its remaining lifetime
func (st *Store) Save(ctx context.Context, s *Session) error {
	ttl := time.Until(s.ExpiresAt)
	if ttl <= 0 {
		return ErrExpired
	}

	jsonData, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := st.rdb.TxPipeline()
	pipe.Set(ctx, sessionKey(s.ID), jsonData, ttl)
	pipe.Set(ctx, LookupKey(s.AccountID, s.KeyType, s.Domains), s.ID, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store session in Redis: %w", err)
	}
	return nil
}

// Get loads a session by id
func (st *Store) Get(ctx context.Context, id string) (*Session, error) {
	jsonData, err := st.rdb.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var s Session
	if err := json.Unmarshal(jsonData, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &s, nil
}

// Find loads the latest session for account, key type and domain set
func (st *Store) Find(ctx context.Context, accountID int, keyType string, domains []string) (*Session, error) {
	id, err := st.rdb.Get(ctx, LookupKey(accountID, keyType, domains)).Result()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	return st.Get(ctx, id)
}

// Delete removes a session and its index entry
func (st *Store) Delete(ctx context.Context, s *Session) error {
	script := `
		if redis.call('GET', KEYS[2]) == ARGV[1] then
			redis.call('DEL', KEYS[2])
		end
		return redis.call('DEL', KEYS[1])
	`
	keys := []string{sessionKey(s.ID), LookupKey(s.AccountID, s.KeyType, s.Domains)}
	if err := st.rdb.Eval(ctx, script, keys, s.ID).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Lock marks the session as owned by one flow for at most ttl.
// The returned function releases the lock if it is still ours.
func (st *Store) Lock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate lock token: %w", err)
	}
	token := hex.EncodeToString(b)

	ok, err := st.rdb.SetNX(ctx, lockKey(id), token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to lock session: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}

	release := func() {
		script := `
			if redis.call('GET', KEYS[1]) == ARGV[1] then
				return redis.call('DEL', KEYS[1])
			end
			return 0
		`
		// released on a fresh context so a cancelled flow still unlocks
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st.rdb.Eval(ctx, script, []string{lockKey(id)}, token)
	}
	return release, nil
}
