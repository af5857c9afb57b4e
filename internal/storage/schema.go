package storage

import (
	"bytes"
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"
	"text/template"

	_ "github.com/lib/pq"

	"github.com/manja7304/stock-pipeline/internal/config"
)

//go:embed schema.sql
var schemaSQL string

var schemaTmpl = template.Must(template.New("schema").
	Funcs(template.FuncMap{"ident": quoteIdent}).
	Parse(schemaSQL))

// SchemaDDL renders the statements that create the schema, table and index
// for schema.table.
func SchemaDDL(schema, table string) ([]string, error) {
	if schema == "" {
		schema = "public"
	}
	if table == "" {
		table = DefaultTable
	}

	var buf bytes.Buffer
	if err := schemaTmpl.Execute(&buf, struct{ Schema, Table string }{schema, table}); err != nil {
		return nil, fmt.Errorf("render schema: %w", err)
	}

	var stmts []string
	for _, stmt := range strings.Split(buf.String(), ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			stmts = append(stmts, stmt)
		}
	}
	return stmts, nil
}

// EnsureSchema creates the target table if it does not exist. It is part of
// the one-time setup path, never of a regular run.
func (c *Client) EnsureSchema(ctx context.Context, schema, table string) error {
	stmts, err := SchemaDDL(schema, table)
	if err != nil {
		return err
	}
	for _, stmt := range stmts {
		if err := c.DB.WithContext(ctx).Exec(stmt).Error; err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// CreateDatabase connects to the server's maintenance database and creates
// cfg.DBName if it doesn't exist.
func CreateDatabase(ctx context.Context, cfg config.PostgresConfig) error {
	db, err := sql.Open("postgres", cfg.MaintenanceDSN())
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer db.Close()

	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1);`
	if err := db.QueryRowContext(ctx, query, cfg.DBName).Scan(&exists); err != nil {
		return fmt.Errorf("check db exists failed: %w", err)
	}
	if exists {
		return nil
	}

	if _, err := db.ExecContext(ctx, "CREATE DATABASE "+quoteIdent(cfg.DBName)); err != nil {
		return fmt.Errorf("create db failed: %w", err)
	}
	return nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
