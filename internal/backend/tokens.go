package backend

import (
	"encoding/json"
	"fmt"

	"github.com/thegamersstation/gsm/internal/domain"
)

// Local storage keys shared with the web client.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyUser         = "user"
	KeyLanguage     = "i18nextLng"
)

// KV is the local key/value storage holding the session.
type KV interface {
	GetItem(key string) (string, bool, error)
	SetItem(key, value string) error
	RemoveItems(keys ...string) error
}

// Tokens reads and writes the session kept in local storage.
type Tokens struct {
	kv KV
}

func NewTokens(kv KV) *Tokens {
	return &Tokens{kv: kv}
}

// AccessToken returns the stored access token, or "".
func (t *Tokens) AccessToken() string {
	return t.get(KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "".
func (t *Tokens) RefreshToken() string {
	return t.get(KeyRefreshToken)
}

func (t *Tokens) get(key string) string {
	v, ok, err := t.kv.GetItem(key)
	if err != nil || !ok {
		return ""
	}
	return v
}

// SetTokens stores both tokens.
func (t *Tokens) SetTokens(access, refresh string) error {
	if err := t.kv.SetItem(KeyAccessToken, access); err != nil {
		return fmt.Errorf("store access token: %w", err)
	}
	if err := t.kv.SetItem(KeyRefreshToken, refresh); err != nil {
		return fmt.Errorf("store refresh token: %w", err)
	}
	return nil
}

// User returns the stored session user, or nil.
func (t *Tokens) User() (*domain.User, error) {
	raw, ok, err := t.kv.GetItem(KeyUser)
	if err != nil {
		return nil, fmt.Errorf("read user: %w", err)
	}
	if !ok || raw == "" {
		return nil, nil
	}
	var u domain.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	return &u, nil
}

// SetUser stores the session user as JSON.
func (t *Tokens) SetUser(u domain.User) error {
	b, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}
	return t.kv.SetItem(KeyUser, string(b))
}

// Clear removes the tokens and the user. The language preference stays.
func (t *Tokens) Clear() error {
	return t.kv.RemoveItems(KeyAccessToken, KeyRefreshToken, KeyUser)
}

// Language returns the stored UI language, or "".
func (t *Tokens) Language() string {
	return t.get(KeyLanguage)
}

func (t *Tokens) SetLanguage(lang string) error {
	return t.kv.SetItem(KeyLanguage, lang)
}
