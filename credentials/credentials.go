// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co
// SPDX-FileContributor: mochi-co

// Package credentials generates broker logins for registering devices and
// encodes their passwords for storage.
package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the pbkdf2 round count used when none is given.
	DefaultIterations = 901

	usernameLen = 4
	passwordLen = 16
	randomLen   = 48
	saltLen     = 20
	keyLen      = 64

	scheme = "PBKDF2"
	hasher = "sha256"
)

var (
	ErrMalformedHash    = errors.New("malformed password hash")
	ErrUnknownAlgorithm = errors.New("unsupported password hash algorithm")
)

// Login is the set of credentials sent to a device on registration.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Random   string `json:"random"`
}

// RandomSecret returns n random bytes encoded as hex.
func RandomSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// NewLogin generates a fresh username, password and random token.
func NewLogin() (Login, error) {
	var l Login
	var err error
	if l.Username, err = RandomSecret(usernameLen); err != nil {
		return l, err
	}
	if l.Password, err = RandomSecret(passwordLen); err != nil {
		return l, err
	}
	if l.Random, err = RandomSecret(randomLen); err != nil {
		return l, err
	}
	return l, nil
}

// Hash encodes a password as PBKDF2$sha256$iterations$salt$base64(key).
func Hash(password string, iterations int) (string, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}

	salt, err := RandomSecret(saltLen)
	if err != nil {
		return "", err
	}

	return encode(password, salt, iterations), nil
}

func encode(password, salt string, iterations int) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, keyLen, sha256.New)
	return strings.Join([]string{
		scheme,
		hasher,
		strconv.Itoa(iterations),
		salt,
		base64.StdEncoding.EncodeToString(key),
	}, "$")
}

// Verify reports whether password matches an encoded hash.
func Verify(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 5 {
		return false, ErrMalformedHash
	}

	if parts[0] != scheme || parts[1] != hasher {
		return false, ErrUnknownAlgorithm
	}

	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return false, ErrMalformedHash
	}

	want := encode(password, parts[3], iterations)
	return subtle.ConstantTimeCompare([]byte(want), []byte(encoded)) == 1, nil
}
