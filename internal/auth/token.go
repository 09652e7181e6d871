// Package auth mints and verifies the bearer tokens the API accepts. The
// external sign-in layer authenticates the person; this package only
// vouches for the resulting users.id.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	tokenVersion = "v1"
	Audience     = "checklists-api"
)

// Claims identify the acting user. Sub is the numeric users.id.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	JTI   string `json:"jti"`
	Aud   string `json:"aud"`
	Iat   int64  `json:"iat"`
	Exp   int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Sub, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Signer issues tokens with its first key and accepts any of its keys, so
// a secret can be rotated without signing everyone out.
type Signer struct {
	keys [][]byte
	now  func() time.Time
}

func NewSigner(current []byte, previous ...[]byte) *Signer {
	keys := [][]byte{current}
	for _, key := range previous {
		if len(key) > 0 {
			keys = append(keys, key)
		}
	}
	return &Signer{keys: keys, now: time.Now}
}

// Issue signs claims. Aud and Iat are filled in when empty.
func (s *Signer) Issue(claims Claims) (string, error) {
	if claims.Aud == "" {
		claims.Aud = Audience
	}
	if claims.Iat == 0 {
		claims.Iat = s.now().Unix()
	}
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	body := tokenVersion + "." + base64.RawURLEncoding.EncodeToString(raw)
	return body + "." + mac(s.keys[0], body), nil
}

func (s *Signer) Parse(token string) (Claims, error) {
	version, rest, ok := strings.Cut(token, ".")
	if !ok || version != tokenVersion {
		return Claims{}, ErrInvalidToken
	}
	payload, signature, ok := strings.Cut(rest, ".")
	if !ok || strings.Contains(signature, ".") {
		return Claims{}, ErrInvalidToken
	}
	if !s.verify(version+"."+payload, signature) {
		return Claims{}, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	if claims.JTI == "" || claims.Exp == 0 || claims.Aud != Audience {
		return Claims{}, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return Claims{}, err
	}
	if s.now().Unix() >= claims.Exp {
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

func (s *Signer) verify(body, signature string) bool {
	for _, key := range s.keys {
		if hmac.Equal([]byte(signature), []byte(mac(key, body))) {
			return true
		}
	}
	return false
}

func mac(key []byte, body string) string {
	h := hmac.New(sha256.New, key)
	_, _ = h.Write([]byte(body))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
