package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// gcmNonceBytes GCM 推荐的 12 字节随机 nonce
const gcmNonceBytes = 12

// TokenCipher 聚合器访问令牌的 AES-GCM 加解密
// 密文格式：base64(nonce || ciphertext)
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher 从 base64 密钥创建加解密器，密钥解码后须为 16/24/32 字节
func NewTokenCipher(keyBase64 string) (*TokenCipher, error) {
	key, err := base64.StdEncoding.DecodeString(keyBase64)
	if err != nil {
		return nil, fmt.Errorf("解码加密密钥失败: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("创建 AES cipher 失败: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("创建 GCM 失败: %w", err)
	}
	return &TokenCipher{aead: aead}, nil
}

// Encrypt 加密明文令牌
func (tc *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, gcmNonceBytes)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("生成 nonce 失败: %w", err)
	}
	ct := tc.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(append(nonce, ct...)), nil
}

// Decrypt 解密 base64(nonce||密文) 格式的令牌
func (tc *TokenCipher) Decrypt(b64 string) (string, error) {
	in, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return "", fmt.Errorf("解码密文失败: %w", err)
	}
	// 最小长度 = nonce + GCM tag
	if len(in) < gcmNonceBytes+16 {
		return "", fmt.Errorf("密文长度不合法")
	}
	nonce, ct := in[:gcmNonceBytes], in[gcmNonceBytes:]
	pt, err := tc.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("解密失败: %w", err)
	}
	return string(pt), nil
}
