package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/fleetconf/shepherd/pkg/storage"
	"github.com/fleetconf/shepherd/pkg/types"
)

// referencePrefix namespaces generated secret names so they are
// recognizable in the store and in source records.
const referencePrefix = "shepherd-source-credentials-"

// Manager exchanges raw credentials for named references. Credential
// material is encrypted with AES-256-GCM before it reaches the store;
// only the generated reference name ever appears on a source record.
type Manager struct {
	store         storage.Store
	encryptionKey []byte // 32 bytes for AES-256
}

// NewManager creates a secrets manager with the given encryption key.
// The key must be 32 bytes for AES-256-GCM.
func NewManager(store storage.Store, key []byte) (*Manager, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}
	return &Manager{store: store, encryptionKey: key}, nil
}

// NewManagerFromPassword derives the encryption key from a password
// using SHA-256.
func NewManagerFromPassword(store storage.Store, password string) (*Manager, error) {
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	hash := sha256.Sum256([]byte(password))
	return NewManager(store, hash[:])
}

// Exchange stores the raw credentials under a freshly generated reference
// name and returns that name. The raw payload never leaves this function
// unencrypted.
func (m *Manager) Exchange(creds *types.RawCredentials) (string, error) {
	if creds == nil || creds.Username == "" || creds.Password == "" {
		return "", fmt.Errorf("credentials require username and password")
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	encrypted, err := m.encrypt(plaintext)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	name := referencePrefix + uuid.New().String()
	if err := m.store.PutSecret(name, encrypted); err != nil {
		return "", err
	}
	return name, nil
}

// Replace seals new credentials under an existing reference name,
// keeping the reference stable across rotation.
func (m *Manager) Replace(name string, creds *types.RawCredentials) error {
	if creds == nil || creds.Username == "" || creds.Password == "" {
		return fmt.Errorf("credentials require username and password")
	}
	plaintext, err := json.Marshal(creds)
	if err != nil {
		return err
	}
	encrypted, err := m.encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	return m.store.PutSecret(name, encrypted)
}

// Fetch decrypts and returns the credentials stored under a reference
// name.
func (m *Manager) Fetch(name string) (*types.RawCredentials, error) {
	encrypted, err := m.store.GetSecret(name)
	if err != nil {
		return nil, err
	}
	plaintext, err := m.decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credentials: %w", err)
	}
	var creds types.RawCredentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, err
	}
	return &creds, nil
}

// Delete removes the credentials stored under a reference name.
func (m *Manager) Delete(name string) error {
	return m.store.DeleteSecret(name)
}

// encrypt seals plaintext with AES-256-GCM, nonce prepended.
func (m *Manager) encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	block, err := aes.NewCipher(m.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens data sealed by encrypt.
func (m *Manager) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}

	block, err := aes.NewCipher(m.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}
