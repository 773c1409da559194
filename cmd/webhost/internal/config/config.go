package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hasirciogluhq/xwebhost/cmd/webhost/internal/tracing"
)

// RuntimeEnvironment represents the execution environment
type RuntimeEnvironment string

const (
	RuntimeKubernetes RuntimeEnvironment = "kubernetes"
	RuntimeContainer  RuntimeEnvironment = "container"
	RuntimeVM         RuntimeEnvironment = "vm"
)

// AddressMode selects where the listener address comes from
type AddressMode string

const (
	AddressStatic     AddressMode = "static"
	AddressKubernetes AddressMode = "kubernetes"
)

// TLSMode represents TLS certificate source
type TLSMode string

const (
	TLSModeFile       TLSMode = "file"
	TLSModeKubernetes TLSMode = "kubernetes"
	TLSModeMemory     TLSMode = "memory"
)

// Paths probed for runtime auto-detection. Variables so tests can point
// them elsewhere.
var (
	serviceAccountDir = "/var/run/secrets/kubernetes.io/serviceaccount"
	dockerEnvFile     = "/.dockerenv"
)

// Config holds all application configuration
type Config struct {
	// Core
	Debug     bool
	LogFormat string

	// Runtime
	Runtime   RuntimeEnvironment
	Namespace string // Only for Kubernetes runtime
	PodName   string

	// Listener
	Port             int
	HostAddress      string
	VirtualPath      string
	PhysicalPath     string
	AcceptRetryDelay time.Duration
	WaitTimeout      time.Duration
	StopTimeout      time.Duration

	// Server
	HealthServerPort string

	// Address discovery
	AddressMode    AddressMode
	KubeConfigPath string
	KubeContext    string

	// Host
	DrainTimeout      time.Duration
	ReadHeaderTimeout time.Duration
	IdleTimeout       time.Duration
	DirectoryListing  bool
	CacheTTL          time.Duration
	CacheMaxFileSize  int64
	RecycleOnChange   bool
	RecycleDebounce   time.Duration

	// TLS Configuration
	TLSEnabled              bool
	TLSMode                 TLSMode
	TLSCertFile             string
	TLSKeyFile              string
	TLSSecretName           string
	TLSAutoGenerate         bool // Generate self-signed if cert doesn't exist
	TLSAutoRenew            bool // Regenerate if cert is invalid/expired
	TLSRenewalThresholdDays int  // Days before expiry to trigger renewal

	Tracing tracing.Config
}

// NewViper returns a viper instance with every key defaulted and bound to
// the environment. Nested keys map to env with "_" (tracing.enabled ->
// TRACING_ENABLED).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("debug", false)
	v.SetDefault("log_format", "text")
	v.SetDefault("runtime", "")
	v.SetDefault("namespace", "")
	v.SetDefault("pod_name", "")

	v.SetDefault("port", 80)
	v.SetDefault("host_address", "")
	v.SetDefault("virtual_path", "/")
	v.SetDefault("physical_path", ".")
	v.SetDefault("accept_retry_delay", 100*time.Millisecond)
	v.SetDefault("wait_timeout", 30*time.Second)
	v.SetDefault("stop_timeout", 60*time.Second)

	v.SetDefault("health_server_port", "8080")

	v.SetDefault("address_mode", "")
	v.SetDefault("kubeconfig", "")
	v.SetDefault("kube_context", "")

	v.SetDefault("drain_timeout", 30*time.Second)
	v.SetDefault("read_header_timeout", 10*time.Second)
	v.SetDefault("idle_timeout", 120*time.Second)
	v.SetDefault("directory_listing", true)
	v.SetDefault("cache_ttl", time.Minute)
	v.SetDefault("cache_max_file_size", 1<<20)
	v.SetDefault("recycle_on_change", false)
	v.SetDefault("recycle_debounce", time.Second)

	v.SetDefault("tls_enabled", false)
	v.SetDefault("tls_mode", "")
	v.SetDefault("tls_cert_file", "")
	v.SetDefault("tls_key_file", "")
	v.SetDefault("tls_secret_name", "")
	v.SetDefault("tls_auto_generate", true)
	v.SetDefault("tls_auto_renew", true)
	v.SetDefault("tls_renewal_threshold_days", 30)

	td := tracing.DefaultConfig()
	v.SetDefault("tracing.enabled", td.Enabled)
	v.SetDefault("tracing.exporter", td.Exporter)
	v.SetDefault("tracing.otlp_endpoint", td.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", td.SampleRate)
	v.SetDefault("tracing.service_name", td.ServiceName)

	return v
}

// ReadFile merges a YAML (or any viper-supported) config file into v.
// Environment variables and bound flags still take precedence.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return nil
}

// Load builds the configuration from v
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		// Core
		Debug:     v.GetBool("debug"),
		LogFormat: v.GetString("log_format"),

		// Runtime - Auto-detect or explicit
		Runtime:   determineRuntime(v.GetString("runtime")),
		Namespace: determineNamespace(v),
		PodName:   determinePodName(v),

		// Listener
		Port:             v.GetInt("port"),
		HostAddress:      strings.TrimSpace(v.GetString("host_address")),
		VirtualPath:      v.GetString("virtual_path"),
		PhysicalPath:     v.GetString("physical_path"),
		AcceptRetryDelay: v.GetDuration("accept_retry_delay"),
		WaitTimeout:      v.GetDuration("wait_timeout"),
		StopTimeout:      v.GetDuration("stop_timeout"),

		// Server
		HealthServerPort: v.GetString("health_server_port"),

		// Address discovery
		KubeConfigPath: v.GetString("kubeconfig"),
		KubeContext:    v.GetString("kube_context"),

		// Host
		DrainTimeout:      v.GetDuration("drain_timeout"),
		ReadHeaderTimeout: v.GetDuration("read_header_timeout"),
		IdleTimeout:       v.GetDuration("idle_timeout"),
		DirectoryListing:  v.GetBool("directory_listing"),
		CacheTTL:          v.GetDuration("cache_ttl"),
		CacheMaxFileSize:  v.GetInt64("cache_max_file_size"),
		RecycleOnChange:   v.GetBool("recycle_on_change"),
		RecycleDebounce:   v.GetDuration("recycle_debounce"),

		// TLS
		TLSEnabled:              v.GetBool("tls_enabled"),
		TLSMode:                 determineTLSMode(v),
		TLSCertFile:             v.GetString("tls_cert_file"),
		TLSKeyFile:              v.GetString("tls_key_file"),
		TLSSecretName:           v.GetString("tls_secret_name"),
		TLSAutoGenerate:         v.GetBool("tls_auto_generate"),
		TLSAutoRenew:            v.GetBool("tls_auto_renew"),
		TLSRenewalThresholdDays: v.GetInt("tls_renewal_threshold_days"),

		Tracing: tracing.Config{
			Enabled:      v.GetBool("tracing.enabled"),
			Exporter:     v.GetString("tracing.exporter"),
			OTLPEndpoint: v.GetString("tracing.otlp_endpoint"),
			SampleRate:   v.GetFloat64("tracing.sample_rate"),
			ServiceName:  v.GetString("tracing.service_name"),
		},
	}
	cfg.AddressMode = determineAddressMode(v.GetString("address_mode"), cfg)

	// Validation
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate ensures configuration is coherent
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Port)
	}
	if strings.TrimSpace(c.PhysicalPath) == "" {
		return fmt.Errorf("PHYSICAL_PATH must be set")
	}

	// TLS validation only if TLS is enabled
	if c.TLSEnabled {
		if c.TLSMode == TLSModeFile {
			if c.TLSCertFile == "" || c.TLSKeyFile == "" {
				return fmt.Errorf("TLS_CERT_FILE and TLS_KEY_FILE must be set when using file-based TLS")
			}
		}

		if c.TLSMode == TLSModeKubernetes && c.TLSSecretName == "" {
			return fmt.Errorf("TLS_SECRET_NAME must be set when using kubernetes TLS mode")
		}

		if c.TLSRenewalThresholdDays < 0 {
			return fmt.Errorf("TLS_RENEWAL_THRESHOLD_DAYS must not be negative")
		}
	}

	if c.AddressMode == AddressKubernetes {
		if c.PodName == "" {
			return fmt.Errorf("kubernetes address mode requires POD_NAME")
		}
		if c.Runtime == RuntimeContainer && c.KubeConfigPath == "" {
			return fmt.Errorf("kubernetes address mode in container runtime requires KUBECONFIG path")
		}
	}

	return nil
}

// NeedsKubernetes reports whether any component talks to the API server.
func (c *Config) NeedsKubernetes() bool {
	return c.AddressMode == AddressKubernetes || (c.TLSEnabled && c.TLSMode == TLSModeKubernetes)
}

func determineRuntime(explicit string) RuntimeEnvironment {
	// Explicit runtime setting
	switch strings.ToLower(explicit) {
	case "kubernetes", "k8s":
		return RuntimeKubernetes
	case "container", "docker":
		return RuntimeContainer
	case "vm", "virtual-machine", "bare-metal":
		return RuntimeVM
	}

	// Auto-detect: Check if running in Kubernetes
	if _, err := os.Stat(serviceAccountDir); err == nil {
		return RuntimeKubernetes
	}

	// Auto-detect: Check if running in container
	if _, err := os.Stat(dockerEnvFile); err == nil {
		return RuntimeContainer
	}

	// Default to VM
	return RuntimeVM
}

func determineNamespace(v *viper.Viper) string {
	// Explicit namespace
	if ns := v.GetString("namespace"); ns != "" {
		return ns
	}

	// Kubernetes downward API
	if ns := os.Getenv("POD_NAMESPACE"); ns != "" {
		return ns
	}

	// Read from service account (in-cluster)
	if data, err := os.ReadFile(serviceAccountDir + "/namespace"); err == nil {
		return strings.TrimSpace(string(data))
	}

	return "default"
}

func determinePodName(v *viper.Viper) string {
	if name := v.GetString("pod_name"); name != "" {
		return name
	}
	// A pod hostname defaults to the pod name.
	return os.Getenv("HOSTNAME")
}

func determineAddressMode(explicit string, c *Config) AddressMode {
	// Explicit mode
	switch strings.ToLower(explicit) {
	case "static":
		return AddressStatic
	case "kubernetes", "k8s", "pod":
		return AddressKubernetes
	}

	// Auto-detect: an explicit address always wins
	if c.HostAddress != "" {
		return AddressStatic
	}
	if c.Runtime == RuntimeKubernetes {
		return AddressKubernetes
	}
	return AddressStatic
}

func determineTLSMode(v *viper.Viper) TLSMode {
	// Explicit mode
	switch strings.ToLower(v.GetString("tls_mode")) {
	case "file", "filesystem":
		return TLSModeFile
	case "kubernetes", "k8s", "secret":
		return TLSModeKubernetes
	case "memory", "in-memory":
		return TLSModeMemory
	}

	// Auto-detect based on configuration
	if v.GetString("tls_cert_file") != "" {
		return TLSModeFile
	}

	if v.GetString("tls_secret_name") != "" {
		return TLSModeKubernetes
	}

	return TLSModeMemory
}
