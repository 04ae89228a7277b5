package local

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/observability/logger"
	migrations "github.com/dropDatabas3/identityd/migrations/postgres"
)

// Direction de una migración.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Migrate aplica las migraciones embebidas de local_account. up corre en
// orden ascendente; down en orden inverso. steps > 0 limita la cantidad.
// Las migraciones up son idempotentes.
func Migrate(ctx context.Context, db Querier, dir Direction, steps int, log *zap.Logger) ([]string, error) {
	sub, err := fs.Sub(migrations.LocalFS, migrations.LocalDir)
	if err != nil {
		return nil, err
	}
	return migrateFS(ctx, db, sub, dir, steps, log)
}

func migrateFS(ctx context.Context, db Querier, fsys fs.FS, dir Direction, steps int, log *zap.Logger) ([]string, error) {
	if log == nil {
		log = logger.L()
	}
	var suffix string
	switch dir {
	case Up:
		suffix = "_up.sql"
	case Down:
		suffix = "_down.sql"
	default:
		return nil, fmt.Errorf("unknown direction %q. Use: up | down", dir)
	}

	files, err := listSQL(fsys, suffix)
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	if dir == Down {
		reverseInPlace(files)
	}
	if steps > 0 && steps < len(files) {
		files = files[:steps]
	}

	applied := make([]string, 0, len(files))
	for _, f := range files {
		b, err := fs.ReadFile(fsys, f)
		if err != nil {
			return applied, fmt.Errorf("read %s: %w", f, err)
		}
		start := time.Now()
		if _, err := db.Exec(ctx, string(b)); err != nil {
			return applied, fmt.Errorf("exec %s: %w", f, err)
		}
		log.Info("migration applied", logger.String("file", path.Base(f)), logger.Duration(time.Since(start)))
		applied = append(applied, f)
	}
	return applied, nil
}

func listSQL(fsys fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

func reverseInPlace(ss []string) {
	for i, j := 0, len(ss)-1; i < j; i, j = i+1, j-1 {
		ss[i], ss[j] = ss[j], ss[i]
	}
}
