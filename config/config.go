package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Mode      Mode            `toml:"-"`
	Region    string          `toml:"region"`
	Service   ServiceConfig   `toml:"service"`
	Endpoints EndpointsConfig `toml:"endpoints"`
	Database  DatabaseConfig  `toml:"database"`
	Auth      AuthConfig      `toml:"auth"`
	Session   SessionConfig   `toml:"session"`
	Passkey   PasskeyConfig   `toml:"passkey"`

	// Social OAuth providers keyed by provider tag ("google", "github", ...).
	Social map[string]SocialProviderConfig `toml:"social"`
}

type ServiceConfig struct {
	Mode       string `toml:"mode"`
	ListenAddr string `toml:"listen_addr"`
}

type EndpointsConfig struct {
	AWSEndpoint string `toml:"aws_endpoint"`
}

type DatabaseConfig struct {
	// ChallengesTable is the DynamoDB table backing the durable challenge
	// store. Empty means only the in-process fallback is available.
	ChallengesTable string `toml:"challenges_table"`

	// SQLDSN is the bun/sqlite DSN for users, bindings and passkey
	// credentials, e.g. "file:walletgate.db?cache=shared".
	SQLDSN string `toml:"sql_dsn"`
}

type AuthConfig struct {
	// Strict disables the local HMAC proof fallback and fails closed when the
	// remote verifier is unavailable.
	Strict bool `toml:"strict"`

	// RequireDurableChallenges refuses the in-process challenge map, failing
	// issue/consume outright when the durable backend is absent. Multi
	// instance deployments must set this.
	RequireDurableChallenges bool `toml:"require_durable_challenges"`

	// AllowedProviders is the provider allow-list; empty allows all (the
	// wallet method stays pinned to provider "wallet" either way).
	AllowedProviders []string `toml:"allowed_providers"`

	ChallengeTTL  duration `toml:"challenge_ttl"`
	OAuthStateTTL duration `toml:"oauth_state_ttl"`

	// LocalProofSecret keys the HMAC local proof scheme used when the remote
	// verifier is absent and Strict is off.
	LocalProofSecret string `toml:"local_proof_secret"`

	// Audience, when set, is appended to the local proof payload.
	Audience string `toml:"audience"`

	RemoteVerifier RemoteVerifierConfig `toml:"remote_verifier"`
}

type RemoteVerifierConfig struct {
	Endpoint string   `toml:"endpoint"`
	Secret   string   `toml:"secret"`
	Timeout  duration `toml:"timeout"`
}

type SessionConfig struct {
	Secret string   `toml:"secret"`
	Issuer string   `toml:"issuer"`
	TTL    duration `toml:"ttl"`
}

type PasskeyConfig struct {
	RPID     string   `toml:"rp_id"`
	RPName   string   `toml:"rp_name"`
	Endpoint string   `toml:"endpoint"`
	Timeout  duration `toml:"timeout"`
}

type SocialProviderConfig struct {
	ClientID string   `toml:"client_id"`
	AuthURL  string   `toml:"auth_url"`
	TokenURL string   `toml:"token_url"`
	UserURL  string   `toml:"user_url"`
	Scopes   []string `toml:"scopes"`

	// RedirectURL is where the provider sends the user back with the code.
	RedirectURL string `toml:"redirect_url"`

	// SecretID overrides the Secrets Manager name ("oauth/<provider>" by
	// default) holding the client secret.
	SecretID string `toml:"secret_id"`
}

func New() (*Config, error) {
	fileName := os.Getenv("CONFIG")
	var cfg Config
	if _, err := toml.DecodeFile(fileName, &cfg); err != nil {
		return nil, err
	}

	var mode Mode
	switch cfg.Service.Mode {
	case "local":
		mode = LocalMode
	case "dev", "development":
		mode = DevelopmentMode
	case "prod", "production":
		mode = ProductionMode
	default:
		return nil, fmt.Errorf("config service.mode value is invalid, must be one of \"local\", \"development\", \"dev\", \"production\" or \"prod\"")
	}
	cfg.Mode = mode
	cfg.Service.Mode = mode.String()

	cfg.ApplyDefaults()

	if cfg.Auth.RequireDurableChallenges && cfg.Database.ChallengesTable == "" {
		return nil, fmt.Errorf("config auth.require_durable_challenges is set but database.challenges_table is empty")
	}
	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("config session.secret is required")
	}
	if cfg.Auth.Strict && cfg.Auth.RemoteVerifier.Endpoint == "" {
		return nil, fmt.Errorf("config auth.strict requires auth.remote_verifier.endpoint")
	}

	return &cfg, nil
}

func (cfg *Config) ApplyDefaults() {
	if cfg.Service.ListenAddr == "" {
		cfg.Service.ListenAddr = ":7743"
	}
	if cfg.Auth.ChallengeTTL.Duration == 0 {
		cfg.Auth.ChallengeTTL.Duration = 5 * time.Minute
	}
	if cfg.Auth.OAuthStateTTL.Duration == 0 {
		cfg.Auth.OAuthStateTTL.Duration = 10 * time.Minute
	}
	if cfg.Auth.RemoteVerifier.Timeout.Duration == 0 {
		cfg.Auth.RemoteVerifier.Timeout.Duration = 10 * time.Second
	}
	if cfg.Passkey.Timeout.Duration == 0 {
		cfg.Passkey.Timeout.Duration = 10 * time.Second
	}
	if cfg.Session.TTL.Duration == 0 {
		cfg.Session.TTL.Duration = 24 * time.Hour
	}
	if cfg.Session.Issuer == "" {
		cfg.Session.Issuer = "walletgate"
	}
}

type Mode uint32

const (
	LocalMode Mode = iota
	DevelopmentMode
	ProductionMode
)

func (m Mode) String() string {
	switch m {
	case LocalMode:
		return "local"
	case DevelopmentMode:
		return "development"
	case ProductionMode:
		return "production"
	default:
		return ""
	}
}

// duration lets TOML carry values like "5m" or "10s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}
