package service

import (
	"crypto/rand"
	"fmt"
)

const (
	pnrAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	pnrLength   = 6
	// 重試上限；36^6 個組合下連續碰撞代表儲存層異常
	maxPNRAttempts = 10
)

// GeneratePNR returns six characters drawn uniformly from A-Z0-9.
func GeneratePNR() (string, error) {
	// 252 = 7 * 36, bytes at or above it are rejected to avoid modulo bias
	const limit = 252
	out := make([]byte, 0, pnrLength)
	buf := make([]byte, pnrLength*2)
	for len(out) < pnrLength {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate pnr: %w", err)
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, pnrAlphabet[int(b)%len(pnrAlphabet)])
			if len(out) == pnrLength {
				break
			}
		}
	}
	return string(out), nil
}
