// Copyright (C) 2025-2026  Ambassador Labs
//
// SPDX-License-Identifier: Apache-2.0

package secret_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datawire/civet/pkg/manifest"
	"github.com/datawire/civet/pkg/secret"
	"github.com/datawire/civet/pkg/testutil"
)

func genKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	keyring := secret.NewKeyring(key)

	// Clip generated values to well under the PKCS#1 v1.5 message limit; the
	// overlong case is TestEncryptOverlong's.
	clip := func(value string) string {
		if len(value) > 100 {
			value = value[:100]
		}
		return value
	}
	testutil.QuickCheckEqual(t,
		clip,
		func(value string) string {
			blob, err := secret.Encrypt(&key.PublicKey, clip(value))
			if err != nil {
				return "encrypt: " + err.Error()
			}
			got, err := keyring.Decrypt(blob)
			if err != nil {
				return "decrypt: " + err.Error()
			}
			return got
		},
		quick.Config{MaxCount: 20},
		[]interface{}{""},
		[]interface{}{"hunter2"},
		[]interface{}{"pypi-AgEIcHlwaS5vcmc"},
	)
}

func TestEncryptOverlong(t *testing.T) {
	t.Parallel()
	key := genKey(t)

	// A 2048-bit key fits at most 245 bytes of message.
	testutil.QuickCheck(t,
		func(pad string) bool {
			_, err := secret.Encrypt(&key.PublicKey, strings.Repeat("x", 246)+pad)
			return err != nil
		},
		quick.Config{MaxCount: 20},
		[]interface{}{""},
	)
}

func TestDecryptErrors(t *testing.T) {
	t.Parallel()
	keyring := secret.NewKeyring(genKey(t))

	_, err := keyring.Decrypt("not base64 !!!")
	assert.Error(t, err)

	// Valid base64, but not encrypted against our key.
	otherBlob, err := secret.Encrypt(&genKey(t).PublicKey, "sekrit")
	require.NoError(t, err)
	_, err = keyring.Decrypt(otherBlob)
	assert.Error(t, err)
}

func writePEM(t *testing.T, name, blockType string, der []byte) string {
	t.Helper()
	filename := filepath.Join(t.TempDir(), name)
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	require.NoError(t, os.WriteFile(filename, data, 0o600))
	return filename
}

func TestLoadKeys(t *testing.T) {
	t.Parallel()
	key := genKey(t)

	privPKCS1 := writePEM(t, "pkcs1.pem", "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
	pkcs8, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	privPKCS8 := writePEM(t, "pkcs8.pem", "PRIVATE KEY", pkcs8)
	pubPKCS1 := writePEM(t, "pub1.pem", "RSA PUBLIC KEY", x509.MarshalPKCS1PublicKey(&key.PublicKey))
	pkix, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)
	pubPKIX := writePEM(t, "pubx.pem", "PUBLIC KEY", pkix)

	for _, filename := range []string{privPKCS1, privPKCS8} {
		loaded, err := secret.LoadPrivateKey(filename)
		require.NoError(t, err, filename)
		assert.True(t, key.Equal(loaded), filename)
	}
	// LoadPublicKey takes public keys in either encoding, and also accepts a
	// private-key file.
	for _, filename := range []string{pubPKCS1, pubPKIX, privPKCS1} {
		loaded, err := secret.LoadPublicKey(filename)
		require.NoError(t, err, filename)
		assert.True(t, key.PublicKey.Equal(loaded), filename)
	}

	_, err = secret.LoadPrivateKey(filepath.Join(t.TempDir(), "enoent.pem"))
	assert.Error(t, err)

	garbage := filepath.Join(t.TempDir(), "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not pem"), 0o600))
	_, err = secret.LoadPrivateKey(garbage)
	assert.Error(t, err)
}

func TestManifestResolve(t *testing.T) {
	t.Parallel()
	key := genKey(t)
	blob, err := secret.Encrypt(&key.PublicKey, "swordfish")
	require.NoError(t, err)

	sec := manifest.Secret{Secure: blob}
	got, err := sec.Resolve(manifest.BuildContext{}, secret.NewKeyring(key))
	require.NoError(t, err)
	assert.Equal(t, "swordfish", got)

	// Without a key there is nothing to decrypt with.
	_, err = sec.Resolve(manifest.BuildContext{}, nil)
	assert.Error(t, err)

	// Plain values expand env references instead.
	plain := manifest.Secret{Plain: "$TOKEN"}
	got, err = plain.Resolve(manifest.BuildContext{Env: map[string]string{"TOKEN": "tok"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tok", got)
}
