package utils

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// shareTokenBytes 分享令牌的随机字节数，24字节 = 192 bit 熵
const shareTokenBytes = 24

// GenerateShareToken 生成 URL 安全的随机分享令牌
func GenerateShareToken() (string, error) {
	buf := make([]byte, shareTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate share token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
