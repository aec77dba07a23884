package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	crminstall "github.com/goliatone/go-crm-install"
)

// Dialects the embedded CRM schema ships. Postgres files sit at the
// migration root; sqlite alternatives live in the sqlite/ subdirectory.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const (
	defaultSourceLabel = "go-crm-install"
	migrationsPath     = "data/sql/migrations"
)

// Set is one dialect's migration filesystem, rooted so every entry is a
// plain .sql file.
type Set struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc receives one dialect's filesystem. go-persistence-bun's
// Client.RegisterSQLMigrations is the usual target.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type registration struct {
	sourceLabel string
	targets     []string
}

type Option func(*registration)

func WithSourceLabel(label string) Option {
	return func(r *registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.sourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects. A test
// running on sqlite passes DialectSQLite and skips the postgres set.
func WithValidationTargets(targets ...string) Option {
	return func(r *registration) {
		next := make([]string, 0, len(targets))
		for _, target := range targets {
			trimmed := strings.TrimSpace(strings.ToLower(target))
			if trimmed != "" {
				next = append(next, trimmed)
			}
		}
		if len(next) > 0 {
			r.targets = next
		}
	}
}

// Sets splits the embedded schema per dialect and validates that each set
// carries at least one *.up.sql file.
func Sets() ([]Set, error) {
	root, err := fs.Sub(crminstall.GetCoreMigrationsFS(), migrationsPath)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", migrationsPath, err)
	}
	sqliteFS, err := fs.Sub(root, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	sets := []Set{
		{Dialect: DialectPostgres, Path: migrationsPath, FS: root},
		{Dialect: DialectSQLite, Path: migrationsPath + "/sqlite", FS: sqliteFS},
	}
	for _, set := range sets {
		matches, globErr := fs.Glob(set.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", set.Dialect, set.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s set %q has no *.up.sql files", set.Dialect, set.Path)
		}
	}
	return sets, nil
}

// Register hands each requested dialect set to registerFn. The returned
// slice lists the sets that were registered.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) ([]Set, error) {
	if registerFn == nil {
		return nil, fmt.Errorf("migrations: register function is required")
	}

	reg := registration{
		sourceLabel: defaultSourceLabel,
		targets:     []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}

	sets, err := Sets()
	if err != nil {
		return nil, err
	}

	registered := make([]Set, 0, len(sets))
	for _, set := range sets {
		if !slices.Contains(reg.targets, set.Dialect) {
			continue
		}
		if err := registerFn(ctx, set.Dialect, reg.sourceLabel, set.FS); err != nil {
			return registered, fmt.Errorf("migrations: register %s (%s): %w", set.Dialect, set.Path, err)
		}
		registered = append(registered, set)
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("migrations: no dialect set matched targets %v", reg.targets)
	}
	return registered, nil
}
