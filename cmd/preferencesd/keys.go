package main

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"
)

// loadPublicKey reads the RSA public key access tokens are verified with
// from the PEM file at `path`. Both PKIX and PKCS #1 encodings are
// accepted.
func loadPublicKey(path string) (*rsa.PublicKey, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "error reading public key")
	}
	block, _ := pem.Decode(contents)
	if block == nil {
		return nil, errors.Errorf("no PEM block found in %s", path)
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing PKCS #1 public key")
		}
		return key, nil
	case "PUBLIC KEY":
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, errors.Wrap(err, "error parsing PKIX public key")
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errors.Errorf("public key in %s is a %T, not an RSA key", path, parsed)
		}
		return key, nil
	}
	return nil, errors.Errorf("unexpected PEM block type %q in %s", block.Type, path)
}

// publicKeyFingerprint returns the SHA256 fingerprint of `k`, in the same
// format ssh-keygen uses, so operators can tell which key is loaded.
func publicKeyFingerprint(k *rsa.PublicKey) (string, error) {
	p, err := ssh.NewPublicKey(k)
	if err != nil {
		return "", errors.Wrap(err, "error creating SSH public key")
	}
	return ssh.FingerprintSHA256(p), nil
}
