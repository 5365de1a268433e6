// Package secret stores key material and vendor credentials encrypted at rest.
//
// Every value is sealed with XChaCha20-Poly1305 under a key derived from the
// environment supplied master key. The row id is bound as additional data, so
// a ciphertext copied onto another row fails to open.
package secret

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"go_certhub/internal/model"

	"github.com/google/uuid"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
	"gorm.io/gorm"
)

const hkdfInfo = "go_certhub/secret-store/v1"

var (
	// ErrNotFound is returned when a ref does not exist
	ErrNotFound = errors.New("secret not found")
	// ErrKeyMismatch is returned when a row was sealed under another master key
	ErrKeyMismatch = errors.New("secret sealed with a different master key")
)

// Store puts and gets encrypted blobs by opaque ref
type Store struct {
	db    *gorm.DB
	aead  cipher.AEAD
	keyID string
}

// NewStore derives the data key from masterKey and returns a store backed by db
func NewStore(db *gorm.DB, masterKey string) (*Store, error) {
	if masterKey == "" {
		return nil, fmt.Errorf("master key is empty")
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(masterKey), nil, []byte(hkdfInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive data key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	sum := sha256.Sum256(key)
	return &Store{
		db:    db,
		aead:  aead,
		keyID: hex.EncodeToString(sum[:4]),
	}, nil
}

// WithDB returns a store that writes through tx, sharing the same key
func (s *Store) WithDB(tx *gorm.DB) *Store {
	return &Store{db: tx, aead: s.aead, keyID: s.keyID}
}

// Put encrypts plaintext and returns its ref
func (s *Store) Put(ctx context.Context, plaintext []byte) (string, error) {
	ref := uuid.NewString()

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	row := model.Secret{
		ID:         ref,
		KeyID:      s.keyID,
		Nonce:      nonce,
		Ciphertext: s.aead.Seal(nil, nonce, plaintext, []byte(ref)),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", fmt.Errorf("failed to store secret: %w", err)
	}
	return ref, nil
}

// PutString is Put for string values
func (s *Store) PutString(ctx context.Context, plaintext string) (string, error) {
	return s.Put(ctx, []byte(plaintext))
}

// Get decrypts the value stored under ref
func (s *Store) Get(ctx context.Context, ref string) ([]byte, error) {
	if ref == "" {
		return nil, ErrNotFound
	}

	var row model.Secret
	if err := s.db.WithContext(ctx).First(&row, "id = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load secret: %w", err)
	}

	if row.KeyID != s.keyID {
		return nil, ErrKeyMismatch
	}

	plaintext, err := s.aead.Open(nil, row.Nonce, row.Ciphertext, []byte(row.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return plaintext, nil
}

// GetString is Get for string values
func (s *Store) GetString(ctx context.Context, ref string) (string, error) {
	b, err := s.Get(ctx, ref)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Delete removes refs; unknown and empty refs are ignored
func (s *Store) Delete(ctx context.Context, refs ...string) error {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		if ref != "" {
			ids = append(ids, ref)
		}
	}
	if len(ids) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Delete(&model.Secret{}).Error; err != nil {
		return fmt.Errorf("failed to delete secrets: %w", err)
	}
	return nil
}
