package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPassphrase = "a-passphrase-that-is-at-least-32-chars-long"

func TestRoundTrip(t *testing.T) {
	enc, err := New(testPassphrase)
	require.NoError(t, err)

	plaintext := "sk-test-1234567890"
	token, err := enc.Encrypt(plaintext)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	got, err := enc.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)
}

func TestEncryptIsNonDeterministic(t *testing.T) {
	enc, err := New(testPassphrase)
	require.NoError(t, err)

	a, err := enc.Encrypt("same-value")
	require.NoError(t, err)
	b, err := enc.Encrypt("same-value")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestEmptyStringRoundTrips(t *testing.T) {
	enc, err := New(testPassphrase)
	require.NoError(t, err)

	token, err := enc.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", token)

	got, err := enc.Decrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestDecryptTamperedCiphertextFails(t *testing.T) {
	enc, err := New(testPassphrase)
	require.NoError(t, err)

	token, err := enc.Encrypt("sensitive")
	require.NoError(t, err)

	tampered := token[:len(token)-2] + "zz"
	_, err = enc.Decrypt(tampered)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptWrongKeyFails(t *testing.T) {
	enc1, err := New(testPassphrase)
	require.NoError(t, err)
	enc2, err := New("a-totally-different-passphrase-of-32-chars!")
	require.NoError(t, err)

	token, err := enc1.Encrypt("sensitive")
	require.NoError(t, err)

	_, err = enc2.Decrypt(token)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestDecryptMalformedInputFails(t *testing.T) {
	enc, err := New(testPassphrase)
	require.NoError(t, err)

	_, err = enc.Decrypt("not-valid-base64!!!")
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}

func TestGenerateKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(key), 32)

	other, err := GenerateKey()
	require.NoError(t, err)
	assert.NotEqual(t, key, other)
}
