package passkey

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls WebAuthn relying party settings.
type Config struct {
	RPDisplayName string        `env:"KEYLESS_SPACE_WEBAUTHN_RP_DISPLAY_NAME" envDefault:"keyless.space"`
	RPID          string        `env:"KEYLESS_SPACE_WEBAUTHN_RP_ID"           envDefault:"localhost"`
	RPOrigin      string        `env:"KEYLESS_SPACE_WEBAUTHN_RP_ORIGIN"       envDefault:"http://localhost:8086"`
	ChallengeTTL  time.Duration `env:"KEYLESS_SPACE_WEBAUTHN_CHALLENGE_TTL"   envDefault:"5m"`

	// SignCountTolerance is how far a reported sign counter may regress
	// before the authenticator is treated as cloned. Platform
	// authenticators with non-incrementing counters need some slack;
	// larger values weaken clone detection.
	SignCountTolerance uint32 `env:"KEYLESS_SPACE_WEBAUTHN_SIGN_COUNT_TOLERANCE" envDefault:"10"`
}

// LoadConfigFromEnv returns passkey configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			RPDisplayName:      "keyless.space",
			RPID:               "localhost",
			RPOrigin:           "http://localhost:8086",
			ChallengeTTL:       5 * time.Minute,
			SignCountTolerance: 10,
		}
	}
	return cfg
}
