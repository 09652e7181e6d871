package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func fixedSigner(key string, at time.Time, previous ...[]byte) *Signer {
	s := NewSigner([]byte(key), previous...)
	s.now = func() time.Time { return at }
	return s
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	signer := fixedSigner("secret", now)

	issued, err := signer.Issue(Claims{
		Sub:   "17",
		Email: "avery@example.com",
		Name:  "Avery",
		JTI:   "jti-1",
		Exp:   now.Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !strings.HasPrefix(issued, "v1.") {
		t.Fatalf("expected a versioned token, got %q", issued)
	}

	claims, err := signer.Parse(issued)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Sub != "17" || claims.Name != "Avery" || claims.Email != "avery@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Aud != Audience || claims.Iat != now.Unix() {
		t.Fatalf("expected aud and iat to be filled, got %+v", claims)
	}
	id, err := claims.UserID()
	if err != nil || id != 17 {
		t.Fatalf("UserID() = %d, %v", id, err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issued, err := fixedSigner("secret", now).Issue(Claims{Sub: "17", JTI: "jti-1", Exp: now.Add(time.Minute).Unix()})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	_, err = fixedSigner("secret", now.Add(time.Minute)).Parse(issued)
	if !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	now := time.Now()
	signer := fixedSigner("secret", now)
	exp := now.Add(time.Hour).Unix()

	issued, err := signer.Issue(Claims{Sub: "17", JTI: "jti-1", Exp: exp})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	forged, err := fixedSigner("other", now).Issue(Claims{Sub: "1", JTI: "jti-1", Exp: exp})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	foreignAudience, err := signer.Issue(Claims{Sub: "17", JTI: "jti-1", Aud: "billing", Exp: exp})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	issuedParts := strings.Split(issued, ".")
	forgedParts := strings.Split(forged, ".")

	cases := map[string]string{
		"swapped payload":  strings.Join([]string{"v1", forgedParts[1], issuedParts[2]}, "."),
		"wrong secret":     forged,
		"no signature":     "v1." + issuedParts[1],
		"unknown version":  "v0." + issuedParts[1] + "." + issuedParts[2],
		"extra segment":    issued + ".x",
		"foreign audience": foreignAudience,
		"garbage":          "a.b.c",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := signer.Parse(token); !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("expected ErrInvalidToken, got %v", err)
			}
		})
	}
}

func TestParseAcceptsPreviousKey(t *testing.T) {
	now := time.Now()
	old := fixedSigner("old-secret", now)
	issued, err := old.Issue(Claims{Sub: "17", JTI: "jti-1", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	rotated := fixedSigner("new-secret", now, []byte("old-secret"))
	if _, err := rotated.Parse(issued); err != nil {
		t.Fatalf("expected the previous key to verify, got %v", err)
	}
	if _, err := fixedSigner("new-secret", now).Parse(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken once the old key is retired, got %v", err)
	}

	reissued, err := rotated.Issue(Claims{Sub: "17", JTI: "jti-2", Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := old.Parse(reissued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("new tokens must be signed with the current key, got %v", err)
	}
}

func TestParseRequiresNumericSubject(t *testing.T) {
	signer := NewSigner([]byte("secret"))
	issued, err := signer.Issue(Claims{Sub: "user-1", JTI: "jti-1", Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := signer.Parse(issued); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}
