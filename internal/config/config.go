package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	localStateSecret     = "integrationgw-local-dev"
	defaultWebhookBytes  = 5 << 20
	defaultHTTPTimeout   = 15 * time.Second
	minHTTPTimeout       = time.Second
	maxHTTPTimeout       = 2 * time.Minute
	defaultRetryInterval = time.Minute
)

type Config struct {
	Environment   string
	Server        ServerConfig
	Database      DatabaseConfig
	Auth          AuthConfig
	Platforms     PlatformsConfig
	Webhooks      WebhooksConfig
	Host          HostConfig
	Delivery      DeliveryConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Port      int
	PublicURL string
	APIToken  string
}

type DatabaseConfig struct {
	Path      string
	LogTiming bool
}

type AuthConfig struct {
	StateSecret    string
	CredentialsKey string
}

type PlatformsConfig struct {
	Enabled     []string
	CatalogPath string
	HTTPTimeout time.Duration
}

type WebhooksConfig struct {
	MaxBytes       int64
	MaxRetries     int
	RetryInterval  time.Duration
	InternalSecret string
}

// HostConfig points at the host application CloudEvents sink.
type HostConfig struct {
	EventsURL string
}

// DeliveryConfig points at the CDEvents delivery dashboard.
type DeliveryConfig struct {
	Endpoint string
	Token    string
	Secret   string
}

type ObservabilityConfig struct {
	Enabled           bool
	OTLPEndpoint      string
	OTLPTraceHeaders  map[string]string
	OTLPMetricHeaders map[string]string
	ServiceName       string
	ServiceVer        string
	SamplingRatio     float64
	MetricsConsole    bool
}

func Load() (Config, error) {
	return load(true)
}

// LoadForTool loads config for CLI tools that do not serve the API.
func LoadForTool() (Config, error) {
	return load(false)
}

func load(requireServerSecrets bool) (Config, error) {
	v := newViper()

	env := resolveEnvironment(v)
	port := v.GetInt("gateway_port")
	if port <= 0 || port > 65535 {
		return Config{}, fmt.Errorf("invalid GATEWAY_PORT: %d", port)
	}

	samplingRatio := clamp(v.GetFloat64("gateway_otel_sampling_ratio"), 0, 1)

	httpTimeout := v.GetDuration("gateway_http_timeout")
	if httpTimeout <= 0 {
		httpTimeout = defaultHTTPTimeout
	}
	httpTimeout = clamp(httpTimeout, minHTTPTimeout, maxHTTPTimeout)

	maxBytes := v.GetInt64("gateway_webhook_max_bytes")
	if maxBytes <= 0 {
		maxBytes = defaultWebhookBytes
	}
	maxRetries := v.GetInt("gateway_webhook_max_retries")
	if maxRetries <= 0 {
		maxRetries = 5
	}
	retryInterval := v.GetDuration("gateway_retry_interval")
	if retryInterval < 0 {
		retryInterval = 0
	}

	serviceName := strings.TrimSpace(v.GetString("otel_service_name"))
	if serviceName == "" {
		serviceName = "integrationgw"
	}
	serviceVersion := strings.TrimSpace(v.GetString("gateway_version"))
	if serviceVersion == "" {
		serviceVersion = strings.TrimSpace(v.GetString("otel_service_version"))
	}
	if serviceVersion == "" {
		serviceVersion = "dev"
	}

	otlpEndpoint := strings.TrimSpace(v.GetString("otel_exporter_otlp_endpoint"))
	otlpCommonHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_headers"))
	otlpTraceHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_traces_headers"))
	otlpMetricHeaders := parseOTLPHeaders(v.GetString("otel_exporter_otlp_metrics_headers"))
	metricsConsole := v.GetBool("gateway_otel_metrics_console")
	otelEnabled := v.GetBool("gateway_otel_enabled") || otlpEndpoint != "" || metricsConsole

	cfg := Config{
		Environment: env,
		Server: ServerConfig{
			Port:      port,
			PublicURL: strings.TrimRight(strings.TrimSpace(v.GetString("gateway_public_url")), "/"),
			APIToken:  strings.TrimSpace(v.GetString("gateway_api_token")),
		},
		Database: DatabaseConfig{
			Path:      strings.TrimSpace(v.GetString("gateway_db_path")),
			LogTiming: v.GetBool("gateway_db_log_timing"),
		},
		Auth: AuthConfig{
			StateSecret:    strings.TrimSpace(v.GetString("gateway_state_secret")),
			CredentialsKey: strings.TrimSpace(v.GetString("gateway_credentials_key")),
		},
		Platforms: PlatformsConfig{
			Enabled:     splitList(v.GetString("gateway_platforms")),
			CatalogPath: strings.TrimSpace(v.GetString("gateway_catalog_path")),
			HTTPTimeout: httpTimeout,
		},
		Webhooks: WebhooksConfig{
			MaxBytes:       maxBytes,
			MaxRetries:     maxRetries,
			RetryInterval:  retryInterval,
			InternalSecret: strings.TrimSpace(v.GetString("gateway_internal_webhook_secret")),
		},
		Host: HostConfig{
			EventsURL: strings.TrimSpace(v.GetString("gateway_host_events_url")),
		},
		Delivery: DeliveryConfig{
			Endpoint: strings.TrimSpace(v.GetString("ddash_endpoint")),
			Token:    strings.TrimSpace(v.GetString("ddash_auth_token")),
			Secret:   strings.TrimSpace(v.GetString("ddash_webhook_secret")),
		},
		Observability: ObservabilityConfig{
			Enabled:           otelEnabled,
			OTLPEndpoint:      otlpEndpoint,
			OTLPTraceHeaders:  mergeHeaderMaps(otlpCommonHeaders, otlpTraceHeaders),
			OTLPMetricHeaders: mergeHeaderMaps(otlpCommonHeaders, otlpMetricHeaders),
			ServiceName:       serviceName,
			ServiceVer:        serviceVersion,
			SamplingRatio:     samplingRatio,
			MetricsConsole:    metricsConsole,
		},
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/gateway"
	}
	if cfg.Server.PublicURL == "" {
		cfg.Server.PublicURL = fmt.Sprintf("http://localhost:%d", port)
	}
	if requireServerSecrets && !cfg.IsLocalDevelopment() {
		if cfg.Auth.StateSecret == "" {
			return Config{}, fmt.Errorf("GATEWAY_STATE_SECRET is required outside local/dev environments")
		}
		if cfg.Server.APIToken == "" {
			return Config{}, fmt.Errorf("GATEWAY_API_TOKEN is required outside local/dev environments")
		}
	}
	if cfg.IsLocalDevelopment() && cfg.Auth.StateSecret == "" {
		cfg.Auth.StateSecret = localStateSecret
	}

	return cfg, nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("gateway_env", "")
	v.SetDefault("app_env", "")
	v.SetDefault("go_env", "")
	v.SetDefault("gateway_port", 8080)
	v.SetDefault("gateway_db_path", "data/gateway")
	v.SetDefault("gateway_db_log_timing", false)
	v.SetDefault("gateway_public_url", "")
	v.SetDefault("gateway_api_token", "")
	v.SetDefault("gateway_state_secret", "")
	v.SetDefault("gateway_credentials_key", "")
	v.SetDefault("gateway_platforms", "")
	v.SetDefault("gateway_catalog_path", "")
	v.SetDefault("gateway_http_timeout", defaultHTTPTimeout)
	v.SetDefault("gateway_webhook_max_bytes", defaultWebhookBytes)
	v.SetDefault("gateway_webhook_max_retries", 5)
	v.SetDefault("gateway_retry_interval", defaultRetryInterval)
	v.SetDefault("gateway_internal_webhook_secret", "")
	v.SetDefault("gateway_host_events_url", "")
	v.SetDefault("ddash_endpoint", "")
	v.SetDefault("ddash_auth_token", "")
	v.SetDefault("ddash_webhook_secret", "")
	v.SetDefault("gateway_otel_enabled", false)
	v.SetDefault("otel_exporter_otlp_endpoint", "")
	v.SetDefault("otel_exporter_otlp_headers", "")
	v.SetDefault("otel_exporter_otlp_traces_headers", "")
	v.SetDefault("otel_exporter_otlp_metrics_headers", "")
	v.SetDefault("otel_service_name", "integrationgw")
	v.SetDefault("gateway_version", "dev")
	v.SetDefault("otel_service_version", "")
	v.SetDefault("gateway_otel_sampling_ratio", 1.0)
	v.SetDefault("gateway_otel_metrics_console", false)
	return v
}

func parseOTLPHeaders(raw string) map[string]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if !ok || key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func mergeHeaderMaps(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func clamp[T int | int64 | float64 | time.Duration](value, lo, hi T) T {
	return min(max(value, lo), hi)
}

func (c Config) IsLocalDevelopment() bool {
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "", "local", "dev", "development", "test":
		return true
	default:
		return false
	}
}

func resolveEnvironment(v *viper.Viper) string {
	for _, key := range []string{"gateway_env", "app_env", "go_env"} {
		value := strings.TrimSpace(v.GetString(key))
		if value != "" {
			return strings.ToLower(value)
		}
	}
	return ""
}
