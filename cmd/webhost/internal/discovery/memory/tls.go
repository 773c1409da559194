package memory

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
)

// MemoryTLSProvider keeps the listener certificate for the life of the
// process. It pairs with a generated certificate on single-node setups.
type MemoryTLSProvider struct {
	cert atomic.Pointer[tls.Certificate]
	now  func() time.Time
}

func NewMemoryTLSProvider() *MemoryTLSProvider {
	return &MemoryTLSProvider{now: time.Now}
}

func (p *MemoryTLSProvider) GetCertificate(ctx context.Context) (*tls.Certificate, error) {
	cert := p.cert.Load()
	if cert == nil {
		return nil, core.ErrCertificateNotFound
	}
	return cert, nil
}

// Store replaces the held certificate. The leaf is parsed up front so expiry
// checks need no further decoding, and an already expired pair is refused.
func (p *MemoryTLSProvider) Store(ctx context.Context, certPEM, keyPEM []byte) error {
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return fmt.Errorf("invalid certificate pair: %w", err)
	}
	if pair.Leaf == nil {
		if pair.Leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return fmt.Errorf("invalid certificate: %w", err)
		}
	}
	now := time.Now
	if p.now != nil {
		now = p.now
	}
	if notAfter := pair.Leaf.NotAfter; now().After(notAfter) {
		return fmt.Errorf("certificate expired at %s", notAfter.Format(time.RFC3339))
	}

	p.cert.Store(&pair)
	return nil
}
