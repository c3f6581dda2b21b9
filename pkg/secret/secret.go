// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

// Package secret deals with the `secure:` values found in CI manifests: short
// strings RSA-encrypted against a per-repository key and carried in the
// manifest as base64.
//
// The wire form is compatible with the hosted platform this manifest format
// comes from: PKCS#1 v1.5 encryption, base64 standard encoding, keys in PEM.
package secret

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"io/fs"
	"os"
)

// Encrypt encrypts a value against a repository public key, returning the
// base64 blob to put under a `secure:` key.
func Encrypt(pub *rsa.PublicKey, value string) (string, error) {
	enc, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(value))
	if err != nil {
		return "", fmt.Errorf("encrypt secure value: %w", err)
	}
	return base64.StdEncoding.EncodeToString(enc), nil
}

// Keyring holds a repository private key and implements manifest.Decrypter.
type Keyring struct {
	key *rsa.PrivateKey
}

// NewKeyring wraps a private key.
func NewKeyring(key *rsa.PrivateKey) *Keyring {
	return &Keyring{key: key}
}

// Decrypt decrypts a base64 `secure:` blob.
func (k *Keyring) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("secure value is not valid base64: %w", err)
	}
	cleartext, err := rsa.DecryptPKCS1v15(rand.Reader, k.key, raw)
	if err != nil {
		return "", fmt.Errorf("decrypt secure value: %w", err)
	}
	return string(cleartext), nil
}

// LoadPrivateKey reads an RSA private key from a PEM file (PKCS#1 or PKCS#8).
func LoadPrivateKey(filename string) (*rsa.PrivateKey, error) {
	block, err := readPEM(filename)
	if err != nil {
		return nil, err
	}
	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}
	keyAny, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, &fs.PathError{Op: "parse private key", Path: filename, Err: err}
	}
	key, ok := keyAny.(*rsa.PrivateKey)
	if !ok {
		return nil, &fs.PathError{
			Op:   "parse private key",
			Path: filename,
			Err:  fmt.Errorf("not an RSA key: %T", keyAny),
		}
	}
	return key, nil
}

// LoadPublicKey reads an RSA public key from a PEM file (PKIX or PKCS#1).  A
// private-key file is accepted too, yielding its public half.
func LoadPublicKey(filename string) (*rsa.PublicKey, error) {
	block, err := readPEM(filename)
	if err != nil {
		return nil, err
	}
	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}
	if pubAny, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if pub, ok := pubAny.(*rsa.PublicKey); ok {
			return pub, nil
		}
		return nil, &fs.PathError{
			Op:   "parse public key",
			Path: filename,
			Err:  fmt.Errorf("not an RSA key"),
		}
	}
	priv, err := LoadPrivateKey(filename)
	if err != nil {
		return nil, &fs.PathError{
			Op:   "parse public key",
			Path: filename,
			Err:  fmt.Errorf("not a recognized PEM key"),
		}
	}
	return &priv.PublicKey, nil
}

func readPEM(filename string) (*pem.Block, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, &fs.PathError{
			Op:   "parse key",
			Path: filename,
			Err:  fmt.Errorf("no PEM block found"),
		}
	}
	return block, nil
}
