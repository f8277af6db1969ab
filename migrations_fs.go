package messaging

import (
	"embed"
	"io/fs"
)

// migrationsFS is the embedded messaging schema: postgres migrations at the
// root of data/sql/migrations with sqlite alternatives underneath.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// MigrationsFS returns the embedded migration tree.
func MigrationsFS() fs.FS {
	return migrationsFS
}
