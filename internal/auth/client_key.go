package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	clientIDBytes  = 16
	clientSigBytes = 16
)

// ClientKeys mints and verifies the keys that identify a browser across
// logins. A key is "<random>.<mac>"; only keys this server signed are
// accepted, so a client cannot pick another client's key or a user id.
type ClientKeys struct {
	secret []byte
}

// NewClientKeys uses secret to sign keys. An empty secret is replaced by a
// random one, which invalidates outstanding keys on restart.
func NewClientKeys(secret string) (*ClientKeys, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate client key secret: %w", err)
		}
	}
	return &ClientKeys{secret: key}, nil
}

func (k *ClientKeys) Mint() (string, error) {
	buf := make([]byte, clientIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate client key: %w", err)
	}
	id := hex.EncodeToString(buf)
	return id + "." + k.sign(id), nil
}

func (k *ClientKeys) Valid(key string) bool {
	id, sig, ok := strings.Cut(key, ".")
	if !ok || len(id) != 2*clientIDBytes {
		return false
	}
	return hmac.Equal([]byte(sig), []byte(k.sign(id)))
}

func (k *ClientKeys) sign(id string) string {
	mac := hmac.New(sha256.New, k.secret)
	mac.Write([]byte(id))
	return hex.EncodeToString(mac.Sum(nil)[:clientSigBytes])
}
