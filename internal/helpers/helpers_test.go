package helpers

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCipherRoundTrip(t *testing.T) {
	c, err := NewCipher("master-secret")
	require.NoError(t, err)

	first, err := c.Encrypt("merchant-key-123")
	require.NoError(t, err)
	second, err := c.Encrypt("merchant-key-123")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "each encryption uses a fresh nonce")

	plain, err := c.Decrypt(first)
	require.NoError(t, err)
	assert.Equal(t, "merchant-key-123", plain)
}

func TestCipherRejectsTampering(t *testing.T) {
	c, err := NewCipher("master-secret")
	require.NoError(t, err)

	enc, err := c.Encrypt("salt")
	require.NoError(t, err)
	raw, _ := base64.StdEncoding.DecodeString(enc)
	raw[len(raw)-1] ^= 0xff

	_, err = c.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrInvalidCipherText)

	other, err := NewCipher("another-secret")
	require.NoError(t, err)
	_, err = other.Decrypt(enc)
	assert.ErrorIs(t, err, ErrInvalidCipherText)

	_, err = c.Decrypt("not base64!")
	assert.ErrorIs(t, err, ErrInvalidCipherText)
}

func TestNewCipherRequiresSecret(t *testing.T) {
	_, err := NewCipher("")
	assert.Error(t, err)
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "abcd********wxyz", MaskSecret("abcdefghijklwxyz"))
	assert.Equal(t, "********", MaskSecret("12345678"))
	assert.Equal(t, "***", MaskSecret("abc"))
	assert.Equal(t, "", MaskSecret(""))
}

func TestReadLines(t *testing.T) {
	lines, err := ReadLines(strings.NewReader("AAA-111\n\n  BBB-222  \r\nCCC-333"), DefaultCodeListUploadConfig)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAA-111", "BBB-222", "CCC-333"}, lines)

	_, err = ReadLines(strings.NewReader("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), DefaultCodeListUploadConfig)
	assert.Error(t, err)
}
