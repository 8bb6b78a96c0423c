package config

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/fr0stylo/integrationgw/internal/platform"
)

// PlatformSecret is the operator-provided configuration of one platform.
type PlatformSecret struct {
	ClientID      string
	ClientSecret  string
	WebhookSecret string
}

// EnvPrefix returns the environment variable prefix of platformID:
// upper case with every non-alphanumeric rune replaced by '_'.
func EnvPrefix(platformID string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, platformID)
}

// LoadPlatformSecrets reads <ID>_CLIENT_ID, <ID>_CLIENT_SECRET and
// <ID>_WEBHOOK_SECRET for every platform. Missing OAuth client credentials
// fail outside local development and are logged otherwise.
func LoadPlatformSecrets(cfg Config, platforms []platform.Config, logger *slog.Logger) (map[string]PlatformSecret, error) {
	if logger == nil {
		logger = slog.Default()
	}
	v := newViper()
	out := make(map[string]PlatformSecret, len(platforms))
	var missing []string
	for _, p := range platforms {
		prefix := strings.ToLower(EnvPrefix(p.ID))
		secret := PlatformSecret{
			ClientID:      strings.TrimSpace(v.GetString(prefix + "_client_id")),
			ClientSecret:  strings.TrimSpace(v.GetString(prefix + "_client_secret")),
			WebhookSecret: strings.TrimSpace(v.GetString(prefix + "_webhook_secret")),
		}
		if p.AuthMode == platform.AuthModeOAuth && (secret.ClientID == "" || secret.ClientSecret == "") {
			missing = append(missing, EnvPrefix(p.ID))
		}
		out[p.ID] = secret
	}
	if len(missing) == 0 {
		return out, nil
	}
	if !cfg.IsLocalDevelopment() {
		return nil, fmt.Errorf("missing OAuth client credentials for %s (set <ID>_CLIENT_ID and <ID>_CLIENT_SECRET)", strings.Join(missing, ", "))
	}
	logger.Warn("OAuth client credentials missing; connect will fail for these platforms", "platforms", missing)
	return out, nil
}
