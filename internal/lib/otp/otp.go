package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const DefaultLength = 4

// * New генерирует числовой одноразовый код заданной длины
func New(length int) (string, error) {
	const op = "otp.New"

	if length <= 0 {
		length = DefaultLength
	}

	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
		b[i] = byte('0' + n.Int64())
	}

	return string(b), nil
}
