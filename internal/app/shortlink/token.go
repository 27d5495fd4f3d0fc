package shortlink

import (
	"crypto/rand"
	"fmt"
)

// ShortIDLength 生成的 shortId 长度
const ShortIDLength = 8

// 64 个字符，正好对应 6 bit，取模没有偏差。
const shortIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// NewShortID 生成 ShortIDLength 位的 URL 安全随机 id。
func NewShortID() (string, error) {
	buf := make([]byte, ShortIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate short id: %w", err)
	}
	for i, b := range buf {
		buf[i] = shortIDAlphabet[b&63]
	}
	return string(buf), nil
}
