package factory

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/config"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/host/httphost"
	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/logger"
)

// NewHostFactory creates the in-process HTTP host factory from configuration.
func NewHostFactory(cfg *config.Config, tracer trace.Tracer) *httphost.Factory {
	hc := httphost.Config{
		DrainTimeout:      cfg.DrainTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		CacheTTL:          cfg.CacheTTL,
		CacheMaxFileSize:  cfg.CacheMaxFileSize,
		DirectoryListing:  cfg.DirectoryListing,
		RecycleOnChange:   cfg.RecycleOnChange,
		RecycleDebounce:   cfg.RecycleDebounce,
	}

	logger.Info("Creating HTTP Host Factory",
		"directory_listing", hc.DirectoryListing,
		"cache_ttl", hc.CacheTTL,
		"recycle_on_change", hc.RecycleOnChange)

	return httphost.NewFactory(hc, tracer)
}
