package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/utils"
)

func TestMemoryTLSProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryTLSProvider()

	_, err := p.GetCertificate(ctx)
	require.ErrorIs(t, err, core.ErrCertificateNotFound)

	require.Error(t, p.Store(ctx, []byte("junk"), []byte("junk")))

	certPEM, keyPEM, err := utils.GenerateSelfSignedCert()
	require.NoError(t, err)
	require.NoError(t, p.Store(ctx, certPEM, keyPEM))

	cert, err := p.GetCertificate(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, cert.Certificate)
	require.NotNil(t, cert.Leaf)
}

func TestMemoryTLSProvider_RefusesExpired(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryTLSProvider()

	certPEM, keyPEM, err := utils.GenerateSelfSignedCert()
	require.NoError(t, err)
	require.NoError(t, p.Store(ctx, certPEM, keyPEM))
	held, err := p.GetCertificate(ctx)
	require.NoError(t, err)

	p.now = func() time.Time { return time.Now().Add(utils.SelfSignedValidity + time.Hour) }
	require.ErrorContains(t, p.Store(ctx, certPEM, keyPEM), "expired")

	// The previous certificate stays in place.
	cert, err := p.GetCertificate(ctx)
	require.NoError(t, err)
	require.Same(t, held, cert)
}

func TestStaticAddress(t *testing.T) {
	got, err := NewStaticAddress(" 10.0.0.5 ").LookupAddress(context.Background())
	require.NoError(t, err)
	require.Equal(t, "10.0.0.5", got)

	got, err = NewStaticAddress("::1").LookupAddress(context.Background())
	require.NoError(t, err)
	require.Equal(t, "::1", got)

	got, err = NewStaticAddress("").LookupAddress(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestStaticAddress_NotAnIPFallsBack(t *testing.T) {
	for _, addr := range []string{"web.local", "not-an-ip", "10.0.0.256"} {
		got, err := NewStaticAddress(addr).LookupAddress(context.Background())
		require.NoError(t, err, addr)
		require.Empty(t, got, addr)
	}
}
