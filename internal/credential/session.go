// Package credential turns encrypted platform sessions into short-lived
// in-memory cookies.
package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/models"
)

// ErrUnusable means there is no credential the executor can act with:
// missing, flagged invalid, expired or undecryptable.
var ErrUnusable = errors.New("no usable credential")

// Session is decrypted session material. It must be destroyed right after
// it is injected into a browser context and never logged or returned.
type Session struct {
	cookies   []browser.Cookie
	destroyed bool
}

// NewSession wraps already-decrypted cookies.
func NewSession(cookies []browser.Cookie) *Session {
	return &Session{cookies: cookies}
}

func (s *Session) Cookies() []browser.Cookie {
	if s == nil || s.destroyed {
		return nil
	}
	return s.cookies
}

// Destroy zeroes every cookie and drops the reference. Safe to call twice.
func (s *Session) Destroy() {
	if s == nil || s.destroyed {
		return
	}
	for i := range s.cookies {
		s.cookies[i] = browser.Cookie{}
	}
	s.cookies = nil
	s.destroyed = true
}

func (s *Session) Destroyed() bool { return s == nil || s.destroyed }

// Store reads encrypted credentials.
type Store interface {
	ValidCredential(ctx context.Context, userID string, platform models.Platform) (*models.EncryptedCredential, error)
}

// Decrypter is satisfied by *Vault.
type Decrypter interface {
	Decrypt(blob string) ([]byte, error)
}

type Provider struct {
	store Store
	vault Decrypter
	now   func() time.Time
}

func NewProvider(store Store, vault Decrypter, now func() time.Time) *Provider {
	if now == nil {
		now = time.Now
	}
	return &Provider{store: store, vault: vault, now: now}
}

// HasUsable reports whether a credential exists and is flagged valid. It does
// not decrypt.
func (p *Provider) HasUsable(ctx context.Context, userID string, platform models.Platform) (bool, error) {
	enc, err := p.store.ValidCredential(ctx, userID, platform)
	if err != nil {
		return false, err
	}
	return enc != nil && enc.Usable(p.now()), nil
}

// Open decrypts the credential for a single action. Every failure to produce
// cookies wraps ErrUnusable; store errors are wrapped as well so a broken
// credential row never aborts the run.
func (p *Provider) Open(ctx context.Context, userID string, platform models.Platform) (*Session, error) {
	enc, err := p.store.ValidCredential(ctx, userID, platform)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnusable, platform, err)
	}
	if enc == nil || !enc.Usable(p.now()) {
		return nil, fmt.Errorf("%w: %s", ErrUnusable, platform)
	}

	plain, err := p.vault.Decrypt(enc.Blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnusable, platform, err)
	}
	defer wipe(plain)

	cookies, err := parseCookies(plain)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnusable, platform, err)
	}
	return NewSession(cookies), nil
}

// Encrypter is satisfied by *Vault.
type Encrypter interface {
	Encrypt(plaintext []byte) (string, error)
}

// Seal encrypts cookies into a credential row. The plaintext is wiped before
// returning.
func Seal(vault Encrypter, userID string, platform models.Platform, cookies []browser.Cookie, expiresAt *time.Time) (models.EncryptedCredential, error) {
	if len(cookies) == 0 {
		return models.EncryptedCredential{}, errors.New("session has no cookies")
	}
	plain, err := json.Marshal(cookies)
	if err != nil {
		return models.EncryptedCredential{}, fmt.Errorf("failed to encode %s cookies: %w", platform, err)
	}
	defer wipe(plain)

	blob, err := vault.Encrypt(plain)
	if err != nil {
		return models.EncryptedCredential{}, fmt.Errorf("failed to seal %s session: %w", platform, err)
	}
	return models.EncryptedCredential{
		UserID:    userID,
		Platform:  platform,
		Blob:      blob,
		Valid:     true,
		ExpiresAt: expiresAt,
	}, nil
}

// parseCookies accepts either a bare cookie array or {"cookies": [...]}.
func parseCookies(plain []byte) ([]browser.Cookie, error) {
	trimmed := bytes.TrimSpace(plain)
	var cookies []browser.Cookie
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &cookies); err != nil {
			return nil, errors.New("session payload is not a cookie list")
		}
	} else {
		var wrapped struct {
			Cookies []browser.Cookie `json:"cookies"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, errors.New("session payload is not a cookie object")
		}
		cookies = wrapped.Cookies
	}
	if len(cookies) == 0 {
		return nil, errors.New("session has no cookies")
	}
	return cookies, nil
}
