// Package creds bundles TLS material for gRPC connections to switches.
package creds

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

// Material is a certificate or key provided either inline or as a path.
// Bytes wins when both are set.
type Material struct {
	Bytes []byte
	Path  string
}

// IsZero reports whether no material was provided.
func (m Material) IsZero() bool {
	return len(m.Bytes) == 0 && m.Path == ""
}

// Load returns the raw bytes, reading Path when Bytes is empty.
func (m Material) Load() ([]byte, error) {
	if len(m.Bytes) > 0 {
		return m.Bytes, nil
	}
	if m.Path == "" {
		return nil, errors.New("no credential material")
	}
	data, err := os.ReadFile(m.Path)
	if err != nil {
		return nil, fmt.Errorf("read credential %q: %w", m.Path, err)
	}
	return data, nil
}

// Credentials holds the TLS bundle for one switch connection.
//
// CACert verifies the server. Cert and PrivateKey, when present, enable
// mutual TLS. TargetNameOverride replaces the server name used for SNI
// and certificate verification, which the demonstration networks need
// because switch certificates rarely carry the dialed address.
type Credentials struct {
	CACert     Material
	Cert       Material
	PrivateKey Material

	// TargetNameOverride overrides the expected server name.
	TargetNameOverride string
}

// TransportCredentials builds gRPC transport credentials from the
// bundle. A nil receiver yields insecure (plaintext) credentials.
func (c *Credentials) TransportCredentials() (credentials.TransportCredentials, error) {
	if c == nil {
		return insecure.NewCredentials(), nil
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.TargetNameOverride,
	}

	if !c.CACert.IsZero() {
		pem, err := c.CACert.Load()
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("ca_cert: no certificates found")
		}
		cfg.RootCAs = pool
	}

	if !c.Cert.IsZero() || !c.PrivateKey.IsZero() {
		certPEM, err := c.Cert.Load()
		if err != nil {
			return nil, err
		}
		keyPEM, err := c.PrivateKey.Load()
		if err != nil {
			return nil, err
		}
		pair, err := tls.X509KeyPair(certPEM, keyPEM)
		if err != nil {
			return nil, fmt.Errorf("client keypair: %w", err)
		}
		cfg.Certificates = []tls.Certificate{pair}
	}

	return credentials.NewTLS(cfg), nil
}
