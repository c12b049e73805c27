// Package tlsutil generates and loads the self-signed TLS certificates
// quicfish endpoints use, in the style of the teacher's server/cert package.
package tlsutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"time"
)

// GenSelfSignedPem generates a self-signed certificate with an Ed25519 key
// and returns both the certificate and PKCS#8 private key as a single PEM
// file's bytes.
func GenSelfSignedPem(commonName string) ([]byte, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	notBefore := time.Now().Add(-1 * time.Minute)
	notAfter := notBefore.Add(365 * 24 * time.Hour)

	tpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: commonName,
		},
		NotBefore: notBefore,
		NotAfter:  notAfter,

		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  false,
	}

	derCert, err := x509.CreateCertificate(rand.Reader, tpl, tpl, priv.Public(), priv)
	if err != nil {
		return nil, err
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, err
	}

	var pemBuf []byte
	pemBuf = append(pemBuf, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: derCert})...)
	pemBuf = append(pemBuf, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: pkcs8})...)

	return pemBuf, nil
}

// ReadOrCreatePem reads a PEM file from path, or generates and persists a
// new self-signed one if it does not exist yet.
func ReadOrCreatePem(path string, commonName string) (tls.Certificate, error) {
	data, err := func() ([]byte, error) {
		pemFile, err := os.ReadFile(path)
		if err == nil {
			return pemFile, nil
		}
		if !os.IsNotExist(err) {
			return nil, err
		}

		pemFile, err = GenSelfSignedPem(commonName)
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, pemFile, 0o600); err != nil {
			return nil, err
		}
		return pemFile, nil
	}()
	if err != nil {
		return tls.Certificate{}, err
	}

	keyPair, err := tls.X509KeyPair(data, data)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse self-signed key pair at %q: %w", path, err)
	}
	return keyPair, nil
}

// EphemeralServerTLSConfig builds an in-memory (never persisted to disk)
// self-signed tls.Config for tests and quick local servers.
func EphemeralServerTLSConfig(commonName string, alpn string) (*tls.Config, error) {
	pemBytes, err := GenSelfSignedPem(commonName)
	if err != nil {
		return nil, err
	}
	cert, err := tls.X509KeyPair(pemBytes, pemBytes)
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpn},
	}, nil
}

// InsecureClientTLSConfig builds a client tls.Config that skips certificate
// verification. Appropriate only for the self-signed loopback deployments
// this repository targets (no CA distribution mechanism is in scope).
func InsecureClientTLSConfig(alpn string) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		NextProtos:         []string{alpn},
	}
}
