package factory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	k8s "k8s.io/client-go/kubernetes"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/config"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/discovery/kubernetes"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/discovery/memory"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/storage/filesystem"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/utils"
)

// TLSFactory creates TLS providers based on configuration
type TLSFactory struct {
	cfg *config.Config

	// generate is swapped in tests.
	generate func(hosts ...string) ([]byte, []byte, error)
}

// NewTLSFactory creates a new TLS factory
func NewTLSFactory(cfg *config.Config) *TLSFactory {
	return &TLSFactory{cfg: cfg, generate: utils.GenerateSelfSignedCert}
}

// Create creates a TLS provider based on configuration
func (f *TLSFactory) Create(clientset k8s.Interface) (core.TLSProvider, error) {
	switch f.cfg.TLSMode {
	case config.TLSModeFile:
		logger.Info("Creating File-based TLS Provider", "cert", f.cfg.TLSCertFile, "key", f.cfg.TLSKeyFile)
		return filesystem.NewFileTLSProvider(f.cfg.TLSCertFile, f.cfg.TLSKeyFile), nil
	case config.TLSModeKubernetes:
		if clientset == nil {
			return nil, fmt.Errorf("kubernetes TLS mode requires kubernetes client (provide KUBECONFIG or run in-cluster)")
		}
		logger.Info("Creating Kubernetes TLS Provider", "namespace", f.cfg.Namespace, "secret", f.cfg.TLSSecretName)
		return kubernetes.NewK8sTLSProvider(clientset, f.cfg.Namespace, f.cfg.TLSSecretName), nil
	case config.TLSModeMemory:
		logger.Info("Creating Memory TLS Provider")
		return memory.NewMemoryTLSProvider(), nil
	default:
		return nil, fmt.Errorf("unknown TLS mode: %s", f.cfg.TLSMode)
	}
}

// EnsureCertificate loads the provider's certificate, generating a
// self-signed one when it is missing, or renewing it when it is about to
// expire and auto-renewal is on. hosts are added to generated certificates.
func (f *TLSFactory) EnsureCertificate(ctx context.Context, provider core.TLSProvider, hosts ...string) (*tls.Certificate, error) {
	cert, err := provider.GetCertificate(ctx)
	if err != nil {
		if !errors.Is(err, core.ErrCertificateNotFound) {
			return nil, err
		}
		if !f.cfg.TLSAutoGenerate {
			return nil, fmt.Errorf("certificate not found and TLS_AUTO_GENERATE=false: %w", err)
		}
		logger.Info("Certificate not found. Generating new self-signed certificate...")
		return f.generateAndStore(ctx, provider, hosts)
	}

	if !f.cfg.TLSAutoRenew {
		logger.Info("Certificate validation skipped (TLS_AUTO_RENEW=false)")
		return cert, nil
	}

	expiring, notAfter, err := CertificateExpiring(cert, f.cfg.TLSRenewalThresholdDays)
	if err != nil {
		return nil, err
	}
	if expiring {
		logger.Warn("Certificate expiring, renewing", "not_after", notAfter, "threshold_days", f.cfg.TLSRenewalThresholdDays)
		return f.generateAndStore(ctx, provider, hosts)
	}

	logger.Info("Certificate loaded and validated successfully", "not_after", notAfter)
	return cert, nil
}

// BuildTLSConfig returns the server configuration for cert.
func BuildTLSConfig(cert *tls.Certificate) *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"http/1.1"},
	}
}

func (f *TLSFactory) generateAndStore(ctx context.Context, provider core.TLSProvider, hosts []string) (*tls.Certificate, error) {
	certPEM, keyPEM, err := f.generate(hosts...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate self-signed certificate: %w", err)
	}

	// Store the certificate (handles race condition for Kubernetes secrets)
	if err := provider.Store(ctx, certPEM, keyPEM); err != nil {
		// If store fails (possibly due to race condition), try to load again
		logger.Warn("Failed to store certificate, attempting to load existing cert", "error", err)
		cert, loadErr := provider.GetCertificate(ctx)
		if loadErr != nil {
			return nil, fmt.Errorf("failed to load certificate after store failure: %w", loadErr)
		}
		logger.Info("Successfully loaded certificate created by another instance")
		return cert, nil
	}

	logger.Info("Successfully generated and stored self-signed certificate")
	return provider.GetCertificate(ctx)
}

// CertificateExpiring reports whether cert expires within thresholdDays.
func CertificateExpiring(cert *tls.Certificate, thresholdDays int) (bool, time.Time, error) {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return false, time.Time{}, fmt.Errorf("certificate chain is empty")
		}
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return false, time.Time{}, fmt.Errorf("failed to parse certificate: %w", err)
		}
		leaf = parsed
	}

	threshold := time.Now().AddDate(0, 0, thresholdDays)
	return leaf.NotAfter.Before(threshold), leaf.NotAfter, nil
}
