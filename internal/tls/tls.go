// Package tls builds the daemon's server TLS configuration from explicit
// certificate files or a directory, generating a self-signed pair on demand.
package tls

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	tlsCrt = "tls.crt"
	tlsKey = "tls.key"

	defaultValidDays = 365
)

var ErrNoCertificate = errors.New("TLS enabled but no valid certificate configuration found")

// Options mirror the [server] tls_* settings.
type Options struct {
	CertFile string
	KeyFile  string
	// Dir holds tls.crt and tls.key; used when CertFile/KeyFile are empty.
	Dir          string
	AutoGenerate bool
	MinVersion   string // "1.2" or "1.3"; empty means 1.2
}

// Enabled reports whether any certificate source is configured.
func (o Options) Enabled() bool {
	return (o.CertFile != "" && o.KeyFile != "") || o.Dir != ""
}

// parseTLSVersion parses TLS version string and returns the corresponding constant
func parseTLSVersion(ver string) (uint16, error) {
	switch strings.ToLower(strings.TrimSpace(ver)) {
	case "", "1.2", "tls1.2":
		return tls.VersionTLS12, nil
	case "1.3", "tls1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS version %q", ver)
	}
}

// Setup returns nil, nil when TLS is not configured.
func Setup(o Options) (*tls.Config, error) {
	if !o.Enabled() {
		return nil, nil
	}
	minVer, err := parseTLSVersion(o.MinVersion)
	if err != nil {
		return nil, err
	}
	certPath, keyPath := o.CertFile, o.KeyFile
	if certPath == "" || keyPath == "" {
		certPath = filepath.Join(o.Dir, tlsCrt)
		keyPath = filepath.Join(o.Dir, tlsKey)
		if !certificatesExist(certPath, keyPath) {
			if !o.AutoGenerate {
				return nil, fmt.Errorf("%w: %s", ErrNoCertificate, o.Dir)
			}
			if err := generateCertificate(o.Dir); err != nil {
				return nil, fmt.Errorf("certificate generation failed: %w", err)
			}
		}
	}
	// load once up front so a bad pair fails at startup, not on first handshake
	if _, err := tls.LoadX509KeyPair(certPath, keyPath); err != nil {
		return nil, fmt.Errorf("load certificate: %w", err)
	}
	return &tls.Config{
		GetCertificate: getCertificationFunc(certPath, keyPath),
		MinVersion:     minVer,
	}, nil
}

// getCertificationFunc reloads the pair on each handshake so rotated files are picked up.
func getCertificationFunc(certFile, keyFile string) func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	return func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
		certificate, err := tls.LoadX509KeyPair(filepath.Clean(certFile), filepath.Clean(keyFile))
		if err != nil {
			return nil, err
		}
		return &certificate, nil
	}
}

func certificatesExist(certPath, keyPath string) bool {
	_, certErr := os.Stat(certPath)
	_, keyErr := os.Stat(keyPath)
	return certErr == nil && keyErr == nil
}

func generateCertificate(destDir string) error {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}
	return GenerateSelfSignedCert(CertConfig{
		CommonName:   "localhost",
		Organization: "atom-robots",
		DNSNames:     []string{"localhost"},
		IPAddresses:  []string{"127.0.0.1", "::1"},
		NotAfter:     time.Now().AddDate(0, 0, defaultValidDays),
		CertPath:     filepath.Join(destDir, tlsCrt),
		KeyPath:      filepath.Join(destDir, tlsKey),
	})
}
