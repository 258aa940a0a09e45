package service

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCipher_RoundTrip(t *testing.T) {
	cipher := testCipher(t)

	enc, err := cipher.Encrypt("access-sandbox-abc123")
	require.NoError(t, err)
	assert.NotEqual(t, "access-sandbox-abc123", enc)

	dec, err := cipher.Decrypt(enc)
	require.NoError(t, err)
	assert.Equal(t, "access-sandbox-abc123", dec)
}

func TestTokenCipher_NonDeterministic(t *testing.T) {
	cipher := testCipher(t)

	// 每次加密随机 nonce，同一明文两次密文不同
	a, err := cipher.Encrypt("same-token")
	require.NoError(t, err)
	b, err := cipher.Encrypt("same-token")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestTokenCipher_TamperedCiphertext(t *testing.T) {
	cipher := testCipher(t)

	enc, err := cipher.Encrypt("access-sandbox-abc123")
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(enc)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF

	_, err = cipher.Decrypt(base64.StdEncoding.EncodeToString(raw))
	assert.Error(t, err)
}

func TestTokenCipher_TooShort(t *testing.T) {
	cipher := testCipher(t)

	_, err := cipher.Decrypt(base64.StdEncoding.EncodeToString([]byte("short")))
	assert.Error(t, err)
}

func TestTokenCipher_BadBase64(t *testing.T) {
	cipher := testCipher(t)

	_, err := cipher.Decrypt("%%% not base64 %%%")
	assert.Error(t, err)
}

func TestNewTokenCipher_BadKey(t *testing.T) {
	_, err := NewTokenCipher("not-base64!!!")
	assert.Error(t, err)

	// 解码后长度不是 16/24/32 字节
	_, err = NewTokenCipher(base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{1}, 10)))
	assert.Error(t, err)
}
