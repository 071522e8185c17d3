// Package tlsaccept builds the tls.Config for the HTTPS relay listener in
// one of three modes: operator-supplied cert files, an ephemeral
// self-signed cert, or ACME via Let's Encrypt.
package tlsaccept

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"path/filepath"
	"time"

	"github.com/pkarrdns/pkarrdns/internal/config"
	"github.com/pkarrdns/pkarrdns/internal/log"
	"golang.org/x/crypto/acme"
	"golang.org/x/crypto/acme/autocert"
)

var logger = log.PrefixedLog("tls")

const letsEncryptStagingURL = "https://acme-staging-v02.api.letsencrypt.org/directory"

// selfSignedValidity bounds the ephemeral cert's lifetime; the process is
// expected to restart (and re-issue) well within it.
const selfSignedValidity = 365 * 24 * time.Hour

// Build returns the tls.Config for the configured cert mode. dataDir hosts
// the ACME cache when Let's Encrypt is selected.
func Build(cfg config.HTTPSConfig, dataDir string) (*tls.Config, error) {
	switch cfg.CertMode {
	case config.CertModeManual:
		return manual(cfg)
	case config.CertModeSelfSigned:
		return selfSigned(cfg.Domains)
	case config.CertModeLetsEncrypt:
		return letsEncrypt(cfg, dataDir)
	default:
		return nil, fmt.Errorf("tlsaccept: unknown cert mode %q", cfg.CertMode)
	}
}

func manual(cfg config.HTTPSConfig) (*tls.Config, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("tlsaccept: cert_mode manual requires cert_file and key_file")
	}
	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("tlsaccept: load keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

func selfSigned(domains []string) (*tls.Config, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("tlsaccept: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("tlsaccept: serial: %w", err)
	}

	if len(domains) == 0 {
		domains = []string{"localhost"}
	}
	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: domains[0]},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(selfSignedValidity),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     domains,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("tlsaccept: create certificate: %w", err)
	}

	logger.WithField("domains", domains).Warn("serving a self-signed certificate")
	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{der}, PrivateKey: key}},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func letsEncrypt(cfg config.HTTPSConfig, dataDir string) (*tls.Config, error) {
	if len(cfg.Domains) == 0 {
		return nil, fmt.Errorf("tlsaccept: cert_mode lets_encrypt requires at least one domain")
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.Domains...),
		Email:      cfg.LetsEncryptContact,
		Cache:      autocert.DirCache(filepath.Join(dataDir, "acme")),
	}
	if !cfg.LetsEncryptProd {
		manager.Client = &acme.Client{DirectoryURL: letsEncryptStagingURL}
		logger.Warn("using the Let's Encrypt staging environment")
	}

	tc := manager.TLSConfig()
	tc.MinVersion = tls.VersionTLS12
	return tc, nil
}
