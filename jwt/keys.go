package jwtkit

import (
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultAuthKeysPath is the default directory where External Secrets mounts auth keys
	DefaultAuthKeysPath = "/vault/auth"
)

// VerificationKeys is the local key material used to verify session tokens
// without calling the identity provider.
type VerificationKeys struct {
	// HMACSecret verifies HS256/384/512 tokens (e.g. a Supabase project JWT secret).
	HMACSecret []byte
	// RSA verifies RS256/384/512 tokens by kid.
	RSA map[string]*rsa.PublicKey
}

// Empty reports whether no local key is configured.
func (k VerificationKeys) Empty() bool {
	return len(k.HMACSecret) == 0 && len(k.RSA) == 0
}

// Algorithms lists the JWS algorithms the configured keys can verify.
func (k VerificationKeys) Algorithms() []string {
	var algs []string
	if len(k.HMACSecret) > 0 {
		algs = append(algs, "HS256", "HS384", "HS512")
	}
	if len(k.RSA) > 0 {
		algs = append(algs, "RS256", "RS384", "RS512")
	}
	return algs
}

// PublicKey returns the RSA key for kid. A token without a kid is accepted
// only when exactly one RSA key is configured.
func (k VerificationKeys) PublicKey(kid string) (*rsa.PublicKey, bool) {
	if kid != "" {
		pub, ok := k.RSA[kid]
		return pub, ok
	}
	if len(k.RSA) == 1 {
		for _, pub := range k.RSA {
			return pub, true
		}
	}
	return nil, false
}

// KeyIDs returns the configured RSA key ids in stable order.
func (k VerificationKeys) KeyIDs() []string {
	ids := make([]string, 0, len(k.RSA))
	for kid := range k.RSA {
		ids = append(ids, kid)
	}
	sort.Strings(ids)
	return ids
}

// LoadVerificationKeys discovers verification keys with the following priority:
//  1. secret argument (from the service config)
//  2. Environment variables JWT_SECRET, PUBLIC_KEYS, ACTIVE_KEY_ID/ACTIVE_PRIVATE_KEY_PEM
//  3. {keysDir}/keys.json (External Secrets Operator mount)
//
// Sources are merged: an HMAC secret and RSA keys may be configured together.
// Returns an empty set (and nil error) when nothing is configured, in which
// case callers fall back to remote verification.
func LoadVerificationKeys(secret, keysDir string) (VerificationKeys, error) {
	keys := VerificationKeys{RSA: map[string]*rsa.PublicKey{}}
	if s := strings.TrimSpace(secret); s != "" {
		keys.HMACSecret = []byte(s)
	}

	if err := loadFromEnv(&keys); err != nil {
		return VerificationKeys{}, fmt.Errorf("failed to load keys from environment variables: %w", err)
	}

	if keysDir == "" {
		keysDir = DefaultAuthKeysPath
	}
	if err := loadFromFilesystem(&keys, keysDir); err != nil {
		return VerificationKeys{}, fmt.Errorf("failed to load keys from %s: %w", keysDir, err)
	}

	if len(keys.RSA) == 0 {
		keys.RSA = nil
	}
	return keys, nil
}

// loadFromEnv reads:
//
//	JWT_SECRET - shared HMAC secret
//	PUBLIC_KEYS - JSON map of key IDs to PEM-encoded public keys
//	ACTIVE_KEY_ID, ACTIVE_PRIVATE_KEY_PEM - signing pair; its public half is accepted too
//
// Example PUBLIC_KEYS format:
//
//	{"key-123": "-----BEGIN PUBLIC KEY-----\n..."}
func loadFromEnv(keys *VerificationKeys) error {
	if len(keys.HMACSecret) == 0 {
		if s := strings.TrimSpace(os.Getenv("JWT_SECRET")); s != "" {
			keys.HMACSecret = []byte(s)
		}
	}

	activeKeyID := strings.TrimSpace(os.Getenv("ACTIVE_KEY_ID"))
	activePrivateKeyPEM := strings.TrimSpace(os.Getenv("ACTIVE_PRIVATE_KEY_PEM"))
	switch {
	case activeKeyID == "" && activePrivateKeyPEM == "":
	case activeKeyID == "":
		return fmt.Errorf("ACTIVE_PRIVATE_KEY_PEM is set but ACTIVE_KEY_ID is missing")
	case activePrivateKeyPEM == "":
		return fmt.Errorf("ACTIVE_KEY_ID is set but ACTIVE_PRIVATE_KEY_PEM is missing")
	default:
		signer, err := NewRSASignerFromPEM(activeKeyID, []byte(activePrivateKeyPEM))
		if err != nil {
			return fmt.Errorf("failed to parse ACTIVE_PRIVATE_KEY_PEM: %w", err)
		}
		keys.RSA[activeKeyID] = signer.PublicKey()
	}

	publicKeysJSON := strings.TrimSpace(os.Getenv("PUBLIC_KEYS"))
	if publicKeysJSON == "" {
		return nil
	}
	var pubKeyMap map[string]string
	if err := json.Unmarshal([]byte(publicKeysJSON), &pubKeyMap); err != nil {
		return fmt.Errorf("failed to parse PUBLIC_KEYS JSON: %w", err)
	}
	return addPublicKeys(keys, pubKeyMap)
}

// loadFromFilesystem reads {dir}/keys.json. A missing directory or file is not an error.
func loadFromFilesystem(keys *VerificationKeys, dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, "keys.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read keys.json: %w", err)
	}

	var keyData struct {
		HMACSecret string            `json:"hmac_secret"`
		PublicKeys map[string]string `json:"public_keys"`
	}
	if err := json.Unmarshal(data, &keyData); err != nil {
		return fmt.Errorf("failed to parse keys.json: %w", err)
	}
	if len(keys.HMACSecret) == 0 && strings.TrimSpace(keyData.HMACSecret) != "" {
		keys.HMACSecret = []byte(strings.TrimSpace(keyData.HMACSecret))
	}
	return addPublicKeys(keys, keyData.PublicKeys)
}

func addPublicKeys(keys *VerificationKeys, pems map[string]string) error {
	for kid, pemStr := range pems {
		pub, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemStr))
		if err != nil {
			return fmt.Errorf("public key %s: %w", kid, err)
		}
		keys.RSA[kid] = pub
	}
	return nil
}
