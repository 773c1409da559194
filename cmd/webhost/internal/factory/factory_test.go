package factory

import (
	"context"
	"crypto/tls"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/client-go/kubernetes/fake"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/config"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/core"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/discovery/kubernetes"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/discovery/memory"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/storage/filesystem"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/utils"
)

func tlsConfig(mode config.TLSMode) *config.Config {
	return &config.Config{
		TLSEnabled:              true,
		TLSMode:                 mode,
		TLSCertFile:             "/tmp/c.crt",
		TLSKeyFile:              "/tmp/c.key",
		TLSSecretName:           "xwebhost-tls",
		Namespace:               "web",
		TLSAutoGenerate:         true,
		TLSAutoRenew:            true,
		TLSRenewalThresholdDays: 30,
	}
}

func TestTLSFactory_Create(t *testing.T) {
	p, err := NewTLSFactory(tlsConfig(config.TLSModeFile)).Create(nil)
	require.NoError(t, err)
	assert.IsType(t, &filesystem.FileTLSProvider{}, p)

	p, err = NewTLSFactory(tlsConfig(config.TLSModeMemory)).Create(nil)
	require.NoError(t, err)
	assert.IsType(t, &memory.MemoryTLSProvider{}, p)

	p, err = NewTLSFactory(tlsConfig(config.TLSModeKubernetes)).Create(fake.NewSimpleClientset())
	require.NoError(t, err)
	assert.IsType(t, &kubernetes.K8sTLSProvider{}, p)

	_, err = NewTLSFactory(tlsConfig(config.TLSModeKubernetes)).Create(nil)
	require.Error(t, err)

	_, err = NewTLSFactory(tlsConfig("bogus")).Create(nil)
	require.Error(t, err)
}

func TestEnsureCertificate_GeneratesWhenMissing(t *testing.T) {
	f := NewTLSFactory(tlsConfig(config.TLSModeMemory))
	provider := memory.NewMemoryTLSProvider()

	cert, err := f.EnsureCertificate(context.Background(), provider, "10.0.0.5")
	require.NoError(t, err)
	require.NoError(t, cert.Leaf.VerifyHostname("10.0.0.5"))

	stored, err := provider.GetCertificate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, cert.Certificate, stored.Certificate)
}

func TestEnsureCertificate_NoAutoGenerate(t *testing.T) {
	cfg := tlsConfig(config.TLSModeMemory)
	cfg.TLSAutoGenerate = false

	_, err := NewTLSFactory(cfg).EnsureCertificate(context.Background(), memory.NewMemoryTLSProvider())
	require.ErrorIs(t, err, core.ErrCertificateNotFound)
}

func TestEnsureCertificate_KeepsValidCertificate(t *testing.T) {
	provider := memory.NewMemoryTLSProvider()
	certPEM, keyPEM, err := utils.GenerateSelfSignedCert()
	require.NoError(t, err)
	require.NoError(t, provider.Store(context.Background(), certPEM, keyPEM))
	existing, err := provider.GetCertificate(context.Background())
	require.NoError(t, err)

	f := NewTLSFactory(tlsConfig(config.TLSModeMemory))
	f.generate = func(...string) ([]byte, []byte, error) {
		t.Fatal("valid certificate must not be regenerated")
		return nil, nil, nil
	}

	cert, err := f.EnsureCertificate(context.Background(), provider)
	require.NoError(t, err)
	assert.Same(t, existing, cert)
}

func TestEnsureCertificate_RenewsExpiring(t *testing.T) {
	provider := memory.NewMemoryTLSProvider()
	certPEM, keyPEM, err := utils.GenerateSelfSignedCert()
	require.NoError(t, err)
	require.NoError(t, provider.Store(context.Background(), certPEM, keyPEM))
	old, err := provider.GetCertificate(context.Background())
	require.NoError(t, err)

	cfg := tlsConfig(config.TLSModeMemory)
	cfg.TLSRenewalThresholdDays = 400 // beyond the generated validity

	cert, err := NewTLSFactory(cfg).EnsureCertificate(context.Background(), provider)
	require.NoError(t, err)
	assert.NotEqual(t, old.Certificate, cert.Certificate)
}

type failingStore struct {
	core.TLSProvider
}

func (failingStore) Store(context.Context, []byte, []byte) error {
	return errors.New("conflict")
}

func TestEnsureCertificate_StoreRaceLoadsExisting(t *testing.T) {
	provider := memory.NewMemoryTLSProvider()

	calls := 0
	f := NewTLSFactory(tlsConfig(config.TLSModeMemory))
	f.generate = func(hosts ...string) ([]byte, []byte, error) {
		calls++
		certPEM, keyPEM, err := utils.GenerateSelfSignedCert(hosts...)
		// Another replica stores first.
		require.NoError(t, provider.Store(context.Background(), certPEM, keyPEM))
		return certPEM, keyPEM, err
	}

	cert, err := f.EnsureCertificate(context.Background(), failingStore{provider})
	require.NoError(t, err)
	require.NotNil(t, cert)
	require.Equal(t, 1, calls)
}

func TestCertificateExpiring(t *testing.T) {
	certPEM, keyPEM, err := utils.GenerateSelfSignedCert()
	require.NoError(t, err)
	pair, err := tls.X509KeyPair(certPEM, keyPEM)
	require.NoError(t, err)
	pair.Leaf = nil

	expiring, notAfter, err := CertificateExpiring(&pair, 30)
	require.NoError(t, err)
	assert.False(t, expiring)
	assert.True(t, notAfter.After(time.Now().AddDate(0, 0, 300)))

	_, _, err = CertificateExpiring(&tls.Certificate{}, 30)
	require.Error(t, err)
}

func TestBuildTLSConfig(t *testing.T) {
	c := BuildTLSConfig(&tls.Certificate{})
	assert.Len(t, c.Certificates, 1)
	assert.Equal(t, uint16(tls.VersionTLS12), c.MinVersion)
}

func TestAddressFactory(t *testing.T) {
	cfg := &config.Config{AddressMode: config.AddressStatic, HostAddress: "10.0.0.5"}
	addr, err := NewAddressFactory(cfg).Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.5", addr)

	cfg = &config.Config{AddressMode: config.AddressStatic, HostAddress: "not-an-ip"}
	addr, err = NewAddressFactory(cfg).Resolve(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, addr)
	assert.NotNil(t, core.ResolveAddress(addr))

	cfg = &config.Config{AddressMode: config.AddressKubernetes, Namespace: "web", PodName: "web-0"}
	_, err = NewAddressFactory(cfg).Create(nil)
	require.Error(t, err)

	lookup, err := NewAddressFactory(cfg).Create(fake.NewSimpleClientset())
	require.NoError(t, err)
	assert.IsType(t, &kubernetes.PodAddress{}, lookup)

	_, err = NewAddressFactory(&config.Config{AddressMode: "bogus"}).Create(nil)
	require.Error(t, err)
}

func TestNewKubernetesClient_NotNeeded(t *testing.T) {
	client, err := NewKubernetesClient(&config.Config{AddressMode: config.AddressStatic})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestNewHostFactory(t *testing.T) {
	cfg := &config.Config{DirectoryListing: false, CacheTTL: time.Second, RecycleOnChange: true}
	f := NewHostFactory(cfg, nil)
	assert.False(t, f.Config.DirectoryListing)
	assert.True(t, f.Config.RecycleOnChange)
	assert.Equal(t, time.Second, f.Config.CacheTTL)
}
