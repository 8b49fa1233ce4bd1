package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	chstore "solana-sniper/internal/storage/clickhouse"
	"solana-sniper/internal/storage/postgres"
)

// RunPostgres applies every embedded PostgreSQL file in lexical order.
// Files are idempotent, so this runs on every start.
func RunPostgres(ctx context.Context, pool *postgres.Pool) error {
	return apply(PostgresFS, "postgres", func(file, body string) error {
		if _, err := pool.Exec(ctx, body); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}
		return nil
	})
}

// RunClickhouse applies every embedded ClickHouse file in lexical order.
// The driver rejects multi-statement Exec, so files are split on semicolons;
// statements must not contain semicolons inside string literals.
func RunClickhouse(ctx context.Context, conn *chstore.Conn) error {
	return apply(ClickhouseFS, "clickhouse", func(file, body string) error {
		for _, stmt := range SplitStatements(body) {
			if err := conn.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s: %w", file, err)
			}
		}
		return nil
	})
}

func apply(fsys fs.FS, dir string, exec func(file, body string) error) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("read embedded %s migrations: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		data, err := fs.ReadFile(fsys, dir+"/"+file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		body := strings.TrimSpace(string(data))
		if body == "" {
			continue
		}
		if err := exec(file, body); err != nil {
			return err
		}
	}
	return nil
}

// SplitStatements drops "--" comment lines and splits on semicolons.
func SplitStatements(input string) []string {
	var kept []string
	for _, line := range strings.Split(input, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, part := range strings.Split(strings.Join(kept, "\n"), ";") {
		if stmt := strings.TrimSpace(part); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts
}
