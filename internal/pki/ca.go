// Package pki выпускает материал стадии сертификатов: CA и серверный
// сертификат, подписанный этим CA, в cert_dir.
package pki

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"time"
)

const (
	CACert     = "ca.crt"
	CAKey      = "ca.key"
	ServerCert = "server.crt"
	ServerKey  = "server.key"
)

type Service struct {
	Dir string
	Now func() time.Time
}

func New(dir string) *Service { return &Service{Dir: dir, Now: time.Now} }

type keyPair struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
	der  []byte
}

// EnsureStagingCerts создаёт CA и серверный сертификат, если их ещё нет.
// Существующие файлы не трогаются; generated=false.
func (s *Service) EnsureStagingCerts(cn string, ttl time.Duration) (bool, error) {
	if exists(filepath.Join(s.Dir, CACert)) && exists(filepath.Join(s.Dir, ServerCert)) {
		return false, nil
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return false, fmt.Errorf("create cert dir: %w", err)
	}

	ca, err := s.issueCA(cn+" CA", ttl)
	if err != nil {
		return false, err
	}
	srv, err := s.issueServer(ca, cn, ttl)
	if err != nil {
		return false, err
	}

	for _, f := range []struct {
		name string
		kp   *keyPair
	}{{CACert, ca}, {ServerCert, srv}} {
		if err := writePEM(filepath.Join(s.Dir, f.name), "CERTIFICATE", f.kp.der, 0o644); err != nil {
			return false, err
		}
	}
	for _, f := range []struct {
		name string
		kp   *keyPair
	}{{CAKey, ca}, {ServerKey, srv}} {
		der, err := x509.MarshalECPrivateKey(f.kp.key)
		if err != nil {
			return false, fmt.Errorf("marshal key: %w", err)
		}
		if err := writePEM(filepath.Join(s.Dir, f.name), "EC PRIVATE KEY", der, 0o600); err != nil {
			return false, err
		}
	}
	return true, nil
}

func (s *Service) issueCA(name string, ttl time.Duration) (*keyPair, error) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ca key: %w", err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}
	nb, na := s.Now().Add(-time.Hour), s.Now().Add(ttl)
	tpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             nb,
		NotAfter:              na,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, tpl, &sk.PublicKey, sk)
	if err != nil {
		return nil, fmt.Errorf("create ca cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse ca cert: %w", err)
	}
	return &keyPair{cert: cert, key: sk, der: der}, nil
}

func (s *Service) issueServer(ca *keyPair, cn string, ttl time.Duration) (*keyPair, error) {
	sk, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}
	serial, err := newSerial()
	if err != nil {
		return nil, err
	}
	nb, na := s.Now().Add(-time.Hour), s.Now().Add(ttl)
	tpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: cn},
		DNSNames:     []string{cn},
		NotBefore:    nb,
		NotAfter:     na,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tpl, ca.cert, &sk.PublicKey, ca.key)
	if err != nil {
		return nil, fmt.Errorf("create server cert: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse server cert: %w", err)
	}
	return &keyPair{cert: cert, key: sk, der: der}, nil
}

func newSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("serial: %w", err)
	}
	return serial, nil
}

func writePEM(path, typ string, der []byte, mode os.FileMode) error {
	var buf bytes.Buffer
	if err := pem.Encode(&buf, &pem.Block{Type: typ, Bytes: der}); err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, buf.Bytes(), mode); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, os.ErrNotExist)
}
