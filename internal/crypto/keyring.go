package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrKeyNotFound    = errors.New("key not found in keyring")
	ErrActiveKeyUnset = errors.New("active master key identifier not set or found")
)

type MasterKey struct {
	KID      string `json:"kid"`
	Material string `json:"material"` // Base64
	bytes    []byte
}

type Keyring struct {
	keys      map[string][]byte
	activeKID string
}

func NewKeyring() *Keyring {
	return &Keyring{
		keys: make(map[string][]byte),
	}
}

// LoadFromEnv loads MASTER_KEYS (JSON) and ACTIVE_MASTER_KID from environment values.
// Strict validation: Must fail if active key defaults or invalid keys found.
func (k *Keyring) LoadFromEnv() error {
	keysJSON := os.Getenv("MASTER_KEYS")
	activeKID := os.Getenv("ACTIVE_MASTER_KID")

	if keysJSON == "" {
		// If no keys defined, we can't operate.
		return errors.New("MASTER_KEYS environment variable is empty")
	}
	if activeKID == "" {
		return errors.New("ACTIVE_MASTER_KID environment variable is empty")
	}

	var rawKeys []MasterKey
	if err := json.Unmarshal([]byte(keysJSON), &rawKeys); err != nil {
		return fmt.Errorf("failed to parse MASTER_KEYS: %w", err)
	}

	k.keys = make(map[string][]byte)
	for _, rk := range rawKeys {
		if rk.KID == "" {
			return errors.New("found master key with empty KID")
		}
		if _, exists := k.keys[rk.KID]; exists {
			return fmt.Errorf("duplicate master key KID: %s", rk.KID)
		}

		decoded, err := base64.StdEncoding.DecodeString(rk.Material)
		if err != nil {
			return fmt.Errorf("invalid base64 for key %s: %w", rk.KID, err)
		}

		if len(decoded) != 32 {
			return fmt.Errorf("invalid key length for %s: expected 32 bytes (AES-256), got %d", rk.KID, len(decoded))
		}

		k.keys[rk.KID] = decoded
	}

	// Verify Active Key Exists
	if _, ok := k.keys[activeKID]; !ok {
		return fmt.Errorf("active key %s not found in MASTER_KEYS", activeKID)
	}
	k.activeKID = activeKID

	return nil
}

// WrapDEK generates a new DEK nonce, encrypts the DEK using the Active Master Key.
// Returns: masterKID, dekNonce, dekCiphertext, dekTag, err
func (k *Keyring) WrapDEK(dek []byte, aad []byte) (string, []byte, []byte, []byte, error) {
	if k.activeKID == "" {
		return "", nil, nil, nil, ErrActiveKeyUnset
	}

	masterKey, ok := k.keys[k.activeKID]
	if !ok {
		return "", nil, nil, nil, ErrActiveKeyUnset
	}

	// Encrypt DEK
	nonce, ciphertext, tag, err := EncryptGCM(masterKey, dek, aad)
	if err != nil {
		return "", nil, nil, nil, err
	}

	return k.activeKID, nonce, ciphertext, tag, nil
}

// UnwrapDEK decrypts a wrapped DEK using the specified master KID.
func (k *Keyring) UnwrapDEK(kid string, nonce, ciphertext, tag, aad []byte) ([]byte, error) {
	masterKey, ok := k.keys[kid]
	if !ok {
		return nil, ErrKeyNotFound
	}

	return DecryptGCM(masterKey, nonce, ciphertext, tag, aad)
}

// SealCredentials encrypts a VideoSource's username/password under a
// freshly generated DEK, then wraps that DEK with the keyring's active
// master key. aad should bind the envelope to its owning record (see
// CredentialAAD) so a ciphertext copied onto another row fails to open.
func (k *Keyring) SealCredentials(username, password string, aad []byte) (*CredentialEnvelope, error) {
	dek, err := GenerateDEK()
	if err != nil {
		return nil, fmt.Errorf("crypto: generate dek: %w", err)
	}

	payload, err := json.Marshal(credentialPayload{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("crypto: marshal credentials: %w", err)
	}

	nonce, ciphertext, tag, err := EncryptGCM(dek, payload, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: seal credentials: %w", err)
	}

	kid, dekNonce, dekCiphertext, dekTag, err := k.WrapDEK(dek, aad)
	if err != nil {
		return nil, fmt.Errorf("crypto: wrap dek: %w", err)
	}

	return &CredentialEnvelope{
		MasterKID:     kid,
		DEKNonce:      dekNonce,
		DEKCiphertext: dekCiphertext,
		DEKTag:        dekTag,
		Nonce:         nonce,
		Ciphertext:    ciphertext,
		Tag:           tag,
	}, nil
}

// OpenCredentials reverses SealCredentials: unwrap the DEK against
// env.MasterKID, then open the credential payload. aad must match the
// value passed to SealCredentials exactly.
func (k *Keyring) OpenCredentials(env *CredentialEnvelope, aad []byte) (username, password string, err error) {
	dek, err := k.UnwrapDEK(env.MasterKID, env.DEKNonce, env.DEKCiphertext, env.DEKTag, aad)
	if err != nil {
		return "", "", fmt.Errorf("crypto: unwrap dek: %w", err)
	}

	payload, err := DecryptGCM(dek, env.Nonce, env.Ciphertext, env.Tag, aad)
	if err != nil {
		return "", "", fmt.Errorf("crypto: open credentials: %w", err)
	}

	var cred credentialPayload
	if err := json.Unmarshal(payload, &cred); err != nil {
		return "", "", fmt.Errorf("crypto: unmarshal credentials: %w", err)
	}
	return cred.Username, cred.Password, nil
}

// GenerateDEK creates a random 32-byte key for use as a DEK.
func GenerateDEK() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
