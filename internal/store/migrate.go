package store

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate brings the schema up to date by applying every embedded
// migration in filename order. Statements use IF NOT EXISTS throughout,
// so running against an already-migrated database is a no-op.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, name := range migrationFiles() {
		sqlText, err := migrationsFS.ReadFile(name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		if _, err := db.Exec(ctx, string(sqlText)); err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
	}
	return nil
}

func migrationFiles() []string {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		// Glob only fails on a malformed pattern, and ours is constant.
		panic(err)
	}
	sort.Strings(names)
	return names
}
