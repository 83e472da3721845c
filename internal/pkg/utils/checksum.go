package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
)

// CalculateSHA256 流式计算 reader 内容的 SHA-256，返回小写十六进制
func CalculateSHA256(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Sha256Hex 计算字节切片的 SHA-256 十六进制摘要
func Sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsValidSHA256Hex 校验是否为64位十六进制字符串
func IsValidSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// NormalizeChecksum 统一比较用的小写形式
func NormalizeChecksum(s string) string {
	return strings.ToLower(s)
}
