package core

import (
	"fmt"
	"strings"
)

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	OAuth       OAuthConfig   `koanf:"oauth" mapstructure:"oauth"`
	Install     InstallConfig `koanf:"install" mapstructure:"install"`
	Refresh     RefreshConfig `koanf:"refresh" mapstructure:"refresh"`
}

type OAuthConfig struct {
	ClientID              string `koanf:"client_id" mapstructure:"client_id"`
	ClientSecret          string `koanf:"client_secret" mapstructure:"client_secret"`
	AppID                 string `koanf:"app_id" mapstructure:"app_id"`
	TokenURL              string `koanf:"token_url" mapstructure:"token_url"`
	LocationTokenURL      string `koanf:"location_token_url" mapstructure:"location_token_url"`
	InstalledLocationsURL string `koanf:"installed_locations_url" mapstructure:"installed_locations_url"`
	RedirectURI           string `koanf:"redirect_uri" mapstructure:"redirect_uri"`
}

type InstallConfig struct {
	ChunkSize int    `koanf:"chunk_size" mapstructure:"chunk_size"`
	PageLimit int    `koanf:"page_limit" mapstructure:"page_limit"`
	Queue     string `koanf:"queue" mapstructure:"queue"`
}

type RefreshConfig struct {
	LookaheadSeconds int `koanf:"lookahead_seconds" mapstructure:"lookahead_seconds"`
	BudgetSeconds    int `koanf:"budget_seconds" mapstructure:"budget_seconds"`
	IntervalSeconds  int `koanf:"interval_seconds" mapstructure:"interval_seconds"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "crm-install",
		OAuth: OAuthConfig{
			TokenURL:              "https://services.leadconnectorhq.com/oauth/token",
			LocationTokenURL:      "https://services.leadconnectorhq.com/oauth/locationToken",
			InstalledLocationsURL: "https://services.leadconnectorhq.com/oauth/installedLocations",
		},
		Install: InstallConfig{
			ChunkSize: 100,
			PageLimit: 1000,
			Queue:     "installs",
		},
		Refresh: RefreshConfig{
			LookaheadSeconds: 7200,
			BudgetSeconds:    120,
			IntervalSeconds:  3600,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.OAuth.TokenURL) == "" {
		return fmt.Errorf("core: oauth.token_url is required")
	}
	if c.Install.ChunkSize < 1 {
		return fmt.Errorf("core: install.chunk_size must be positive")
	}
	if c.Install.PageLimit < 1 {
		return fmt.Errorf("core: install.page_limit must be positive")
	}
	if c.Refresh.LookaheadSeconds < 0 {
		return fmt.Errorf("core: refresh.lookahead_seconds must not be negative")
	}
	if c.Refresh.BudgetSeconds < 0 {
		return fmt.Errorf("core: refresh.budget_seconds must not be negative")
	}
	return nil
}
