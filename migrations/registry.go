// Package migrations adapts the embedded messaging schema for migration
// runners. Register walks the dialect filesystems and hands each one to the
// caller's runner; go-persistence-bun's migration registration is the usual
// target.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strings"

	messaging "github.com/marianoberton/go-messaging"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

// FilesystemSpec is one dialect's migration files rooted at Path.
type FilesystemSpec struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration reports what Register wired: the source label handed to the
// runner and the dialect filesystems that passed validation.
type Registration struct {
	SourceLabel       string
	ValidationTargets []string
	Filesystems       []FilesystemSpec
}

// RegisterFunc receives one validated dialect filesystem.
type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

// WithDialectSourceLabel overrides the label migrations are recorded under.
func WithDialectSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithValidationTargets restricts registration to the named dialects. Tests
// register sqlite only; production wiring registers both.
func WithValidationTargets(targets ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(targets); len(normalized) > 0 {
			r.ValidationTargets = normalized
		}
	}
}

// WithFilesystems replaces the embedded tree, for callers that ship their
// own schema variants.
func WithFilesystems(filesystems ...FilesystemSpec) Option {
	return func(r *Registration) {
		kept := make([]FilesystemSpec, 0, len(filesystems))
		for _, spec := range filesystems {
			dialect := strings.TrimSpace(strings.ToLower(spec.Dialect))
			if dialect == "" || spec.FS == nil {
				continue
			}
			kept = append(kept, FilesystemSpec{Dialect: dialect, Path: spec.Path, FS: spec.FS})
		}
		if len(kept) > 0 {
			r.Filesystems = kept
		}
	}
}

// Filesystems splits the migration tree into its dialect roots: postgres at
// the top level, sqlite in the sqlite/ subtree. Each root must hold at least
// one *.up.sql file. Passing a source overrides the embedded tree.
func Filesystems(sources ...fs.FS) ([]FilesystemSpec, error) {
	root := messaging.MigrationsFS()
	if len(sources) > 0 && sources[0] != nil {
		root = sources[0]
	}
	base, basePath, err := locateSchemaRoot(root)
	if err != nil {
		return nil, err
	}

	filesystems := []FilesystemSpec{{Dialect: DialectPostgres, Path: basePath, FS: base}}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite subtree: %w", err)
	}
	filesystems = append(filesystems, FilesystemSpec{
		Dialect: DialectSQLite,
		Path:    path.Join(basePath, "sqlite"),
		FS:      sqliteFS,
	})

	for _, spec := range filesystems {
		matches, globErr := fs.Glob(spec.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", spec.Dialect, spec.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", spec.Dialect, spec.Path)
		}
	}
	return filesystems, nil
}

// Register validates the dialect filesystems and hands each targeted one to
// registerFn.
func Register(ctx context.Context, registerFn RegisterFunc, opts ...Option) (Registration, error) {
	registration := Registration{
		SourceLabel:       "go-messaging",
		ValidationTargets: []string{DialectPostgres, DialectSQLite},
	}
	filesystems, err := Filesystems()
	if err != nil {
		return registration, err
	}
	registration.Filesystems = filesystems

	for _, opt := range opts {
		if opt != nil {
			opt(&registration)
		}
	}

	switch {
	case registerFn == nil:
		return registration, fmt.Errorf("migrations: register function is required")
	case strings.TrimSpace(registration.SourceLabel) == "":
		return registration, fmt.Errorf("migrations: source label is required")
	case len(registration.ValidationTargets) == 0:
		return registration, fmt.Errorf("migrations: validation targets are required")
	case len(registration.Filesystems) == 0:
		return registration, fmt.Errorf("migrations: filesystems are required")
	}

	targets := normalizeDialects(registration.ValidationTargets)
	for _, spec := range registration.Filesystems {
		if !slices.Contains(targets, spec.Dialect) {
			continue
		}
		if spec.FS == nil {
			return registration, fmt.Errorf("migrations: filesystem for %s is nil", spec.Dialect)
		}
		if err := registerFn(ctx, spec.Dialect, registration.SourceLabel, spec.FS); err != nil {
			return registration, fmt.Errorf("migrations: register %s (%s): %w", spec.Dialect, spec.Path, err)
		}
	}
	return registration, nil
}

// locateSchemaRoot accepts either the repository-rooted embed or a
// filesystem already rooted at the SQL files themselves.
func locateSchemaRoot(root fs.FS) (fs.FS, string, error) {
	sub, err := fs.Sub(root, "data/sql/migrations")
	if err == nil {
		return sub, "data/sql/migrations", nil
	}
	entries, readErr := fs.ReadDir(root, ".")
	if readErr == nil {
		for _, entry := range entries {
			if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
				return root, ".", nil
			}
		}
	}
	return nil, "", fmt.Errorf("migrations: data/sql/migrations not found: %w", err)
}

func normalizeDialects(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		dialect := strings.TrimSpace(strings.ToLower(value))
		if dialect == "" || slices.Contains(out, dialect) {
			continue
		}
		out = append(out, dialect)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
