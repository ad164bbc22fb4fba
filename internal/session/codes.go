// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const codeAlphabet = "abcdefghijklmnopqrstuvwxyz"
const codeLength = 6

// newCode draws a uniformly random six-letter lowercase code. Collision with
// an existing session is handled by the caller via rejection-and-resample.
func newCode() (string, error) {
	b := make([]byte, codeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}

// NewReconnectToken draws a random 128-bit value, hex-encoded, per §3's
// Student.reconnectToken.
func NewReconnectToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
