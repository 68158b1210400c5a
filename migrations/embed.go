// Package migrations embeds SQL migration files into the binary.
//
// MOBAflow runs migrations without the SQL files present on the
// filesystem; they're compiled into the executable.
package migrations

import (
	"embed"

	"github.com/ahuelsmann/MOBAflow-sub003/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
