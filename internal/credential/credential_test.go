package credential

import (
	"context"
	"encoding/base64"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-openclaw-autoapply/internal/browser"
	"go-openclaw-autoapply/internal/models"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(testKey)
	require.NoError(t, err)
	return v
}

func TestNewVaultRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "abcd", strings.Repeat("zz", 32), testKey + "00"} {
		_, err := NewVault(key)
		assert.ErrorIs(t, err, ErrBadKey, "key %q", key)
	}
}

func TestVaultRoundTrip(t *testing.T) {
	v := newTestVault(t)

	for _, plain := range []string{"", "x", strings.Repeat("a", 16), `{"cookies":[{"name":"li_at","value":"secret"}]}`} {
		blob, err := v.Encrypt([]byte(plain))
		require.NoError(t, err)

		raw, err := base64.StdEncoding.DecodeString(blob)
		require.NoError(t, err)
		assert.Zero(t, len(raw)%16)
		assert.Greater(t, len(raw), 16)

		got, err := v.Decrypt(blob)
		require.NoError(t, err)
		assert.Equal(t, plain, string(got))
	}
}

func TestVaultUsesFreshIV(t *testing.T) {
	v := newTestVault(t)
	a, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)
	b, err := v.Encrypt([]byte("same"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestVaultDecryptErrors(t *testing.T) {
	v := newTestVault(t)
	other, err := NewVault(strings.Repeat("ab", 32))
	require.NoError(t, err)

	blob, err := other.Encrypt([]byte(`[{"name":"li_at","value":"v"}]`))
	require.NoError(t, err)

	tests := map[string]string{
		"not base64": "%%%",
		"too short":  base64.StdEncoding.EncodeToString([]byte("short")),
		"unaligned":  base64.StdEncoding.EncodeToString(make([]byte, 40)),
		"wrong key":  blob,
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := v.Decrypt(input)
			if name == "wrong key" && err == nil {
				// a wrong key yields valid padding roughly 1 time in 256
				t.Skip("wrong key produced valid padding by chance")
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrDecrypt)
		})
	}
}

type fakeStore struct {
	cred *models.EncryptedCredential
	err  error
}

func (f fakeStore) ValidCredential(context.Context, string, models.Platform) (*models.EncryptedCredential, error) {
	return f.cred, f.err
}

func TestProviderOpenAndDestroy(t *testing.T) {
	v := newTestVault(t)
	blob, err := v.Encrypt([]byte(`{"cookies":[{"name":"li_at","value":"token","domain":".linkedin.com"}]}`))
	require.NoError(t, err)

	p := NewProvider(fakeStore{cred: &models.EncryptedCredential{Blob: blob, Valid: true}}, v, nil)

	ok, err := p.HasUsable(context.Background(), "u1", models.PlatformLinkedIn)
	require.NoError(t, err)
	assert.True(t, ok)

	sess, err := p.Open(context.Background(), "u1", models.PlatformLinkedIn)
	require.NoError(t, err)

	cookies := sess.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "token", cookies[0].Value)

	sess.Destroy()
	assert.True(t, sess.Destroyed())
	assert.Nil(t, sess.Cookies())
	assert.Empty(t, cookies[0].Value)
	sess.Destroy()
}

func TestSealOpensWithProvider(t *testing.T) {
	v := newTestVault(t)
	expires := time.Now().Add(24 * time.Hour)

	cred, err := Seal(v, "u1", models.PlatformIndeed, []browser.Cookie{{Name: "CTK", Value: "abc"}}, &expires)
	require.NoError(t, err)
	assert.Equal(t, "u1", cred.UserID)
	assert.True(t, cred.Valid)
	assert.NotContains(t, cred.Blob, "abc")

	sess, err := NewProvider(fakeStore{cred: &cred}, v, nil).Open(context.Background(), "u1", models.PlatformIndeed)
	require.NoError(t, err)
	require.Len(t, sess.Cookies(), 1)
	assert.Equal(t, "abc", sess.Cookies()[0].Value)
	sess.Destroy()

	_, err = Seal(v, "u1", models.PlatformIndeed, nil, nil)
	assert.Error(t, err)
}

func TestProviderOpenFailuresAreUnusable(t *testing.T) {
	v := newTestVault(t)
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	expired := now.Add(-time.Hour)
	emptyList, err := v.Encrypt([]byte(`[]`))
	require.NoError(t, err)

	tests := []struct {
		name  string
		store fakeStore
	}{
		{name: "absent", store: fakeStore{}},
		{name: "flagged invalid", store: fakeStore{cred: &models.EncryptedCredential{Blob: emptyList}}},
		{name: "expired", store: fakeStore{cred: &models.EncryptedCredential{Blob: emptyList, Valid: true, ExpiresAt: &expired}}},
		{name: "garbage blob", store: fakeStore{cred: &models.EncryptedCredential{Blob: "bm90LWEtYmxvYg==", Valid: true}}},
		{name: "no cookies", store: fakeStore{cred: &models.EncryptedCredential{Blob: emptyList, Valid: true}}},
		{name: "store error", store: fakeStore{err: errors.New("timeout")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProvider(tt.store, v, func() time.Time { return now })
			sess, err := p.Open(context.Background(), "u1", models.PlatformIndeed)
			assert.Nil(t, sess)
			assert.ErrorIs(t, err, ErrUnusable)
		})
	}
}
