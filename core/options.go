package core

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-config/cfgx"
	goerrors "github.com/goliatone/go-errors"
	opts "github.com/goliatone/go-options"
)

type ErrorFactory func(message string, category ...goerrors.Category) *goerrors.Error

type ErrorMapper func(err error) *goerrors.Error

// DefaultErrorMapper normalizes arbitrary errors into the install error
// envelope.
func DefaultErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}
	return installErrorMapper(err)
}

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

type staticRawConfigLoader struct {
	Values map[string]any
}

func (l staticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.Values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = staticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	cfg, err := cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// GoOptionsResolver merges defaults, loaded file config and runtime overrides
// in ascending priority, then revalidates the result.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	defaultLayer := configToLayerMap(defaults, true)
	loadedLayer := configToLayerMap(loaded, false)
	runtimeLayer := configToLayerMap(runtime, false)

	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			defaultLayer,
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			loadedLayer,
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			runtimeLayer,
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	if err := resolved.Validate(); err != nil {
		return Config{}, err
	}
	return resolved, nil
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.ServiceName) != "" {
		layer["service_name"] = cfg.ServiceName
	}

	oauth := map[string]any{}
	if includeZero || strings.TrimSpace(cfg.OAuth.ClientID) != "" {
		oauth["client_id"] = cfg.OAuth.ClientID
	}
	if includeZero || strings.TrimSpace(cfg.OAuth.ClientSecret) != "" {
		oauth["client_secret"] = cfg.OAuth.ClientSecret
	}
	if includeZero || strings.TrimSpace(cfg.OAuth.AppID) != "" {
		oauth["app_id"] = cfg.OAuth.AppID
	}
	if includeZero || strings.TrimSpace(cfg.OAuth.TokenURL) != "" {
		oauth["token_url"] = cfg.OAuth.TokenURL
	}
	if includeZero || strings.TrimSpace(cfg.OAuth.LocationTokenURL) != "" {
		oauth["location_token_url"] = cfg.OAuth.LocationTokenURL
	}
	if includeZero || strings.TrimSpace(cfg.OAuth.InstalledLocationsURL) != "" {
		oauth["installed_locations_url"] = cfg.OAuth.InstalledLocationsURL
	}
	if includeZero || strings.TrimSpace(cfg.OAuth.RedirectURI) != "" {
		oauth["redirect_uri"] = cfg.OAuth.RedirectURI
	}
	if len(oauth) > 0 {
		layer["oauth"] = oauth
	}

	install := map[string]any{}
	if includeZero || cfg.Install.ChunkSize > 0 {
		install["chunk_size"] = cfg.Install.ChunkSize
	}
	if includeZero || cfg.Install.PageLimit > 0 {
		install["page_limit"] = cfg.Install.PageLimit
	}
	if includeZero || strings.TrimSpace(cfg.Install.Queue) != "" {
		install["queue"] = cfg.Install.Queue
	}
	if len(install) > 0 {
		layer["install"] = install
	}

	refresh := map[string]any{}
	if includeZero || cfg.Refresh.LookaheadSeconds > 0 {
		refresh["lookahead_seconds"] = cfg.Refresh.LookaheadSeconds
	}
	if includeZero || cfg.Refresh.BudgetSeconds > 0 {
		refresh["budget_seconds"] = cfg.Refresh.BudgetSeconds
	}
	if includeZero || cfg.Refresh.IntervalSeconds > 0 {
		refresh["interval_seconds"] = cfg.Refresh.IntervalSeconds
	}
	if len(refresh) > 0 {
		layer["refresh"] = refresh
	}

	return layer
}
