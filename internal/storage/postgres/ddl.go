package postgres

import (
	"context"
	"fmt"
	"strings"

	"tabula/internal/core/basis"
	"tabula/internal/core/schema"
	"tabula/pkg/logger"
)

// columnType maps a metadata field type to its storage column type.
func columnType(t schema.FieldType) string {
	switch t {
	case schema.TypeString:
		return "text NOT NULL DEFAULT ''"
	case schema.TypeInteger:
		return "bigint NOT NULL DEFAULT 0"
	case schema.TypeNumber:
		return "numeric(20,6) NOT NULL DEFAULT 0"
	case schema.TypeBoolean:
		return "boolean NOT NULL DEFAULT false"
	case schema.TypeDate:
		return "timestamptz NOT NULL DEFAULT 'epoch'"
	case schema.TypeReference:
		return "uuid"
	default:
		return "text"
	}
}

func fieldDDL(fields []schema.FieldDef) string {
	var b strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&b, ",\n    %s %s", f.Name, columnType(f.Type))
	}
	return b.String()
}

// EnsureSchema creates the system tables and one table per registered
// entity, table part and register. Idempotent; existing tables are
// left untouched, so adding a field to a definition needs a manual
// migration.
func (g *Gateway) EnsureSchema(ctx context.Context, registry *schema.Registry) error {
	stmts := systemDDL()

	for _, def := range registry.List() {
		stmts = append(stmts, entityDDL(def)...)
	}
	for _, def := range registry.Registers() {
		stmts = append(stmts, registerDDL(def)...)
	}

	q := g.GetQuerier(ctx)
	for _, stmt := range stmts {
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	logger.Info(ctx, "schema ensured",
		"entities", len(registry.List()), "registers", len(registry.Registers()))
	return nil
}

func entityDDL(def *schema.EntityDef) []string {
	var stmts []string

	spendCols := ""
	if def.Kind == basis.KindDocument {
		spendCols = ",\n    spent boolean NOT NULL DEFAULT false" +
			",\n    spend_date timestamptz NOT NULL DEFAULT 'epoch'" +
			",\n    version_id uuid NOT NULL"
	}
	stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id uuid PRIMARY KEY,
    deletion_mark boolean NOT NULL DEFAULT false%s%s
)`, def.Table, spendCols, fieldDDL(def.Fields)))

	for _, part := range def.TableParts {
		stmts = append(stmts, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id uuid PRIMARY KEY,
    owner_id uuid NOT NULL%s
)`, part.Table, fieldDDL(part.Columns)),
			fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s (owner_id)`, part.Table, part.Table))
	}
	return stmts
}

func registerDDL(def *schema.RegisterDef) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id uuid PRIMARY KEY,
    period timestamptz NOT NULL,
    income boolean NOT NULL,
    owner_id uuid NOT NULL,
    owner_type text NOT NULL%s
)`, def.Table, fieldDDL(def.Fields)),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_owner ON %s (owner_id)`, def.Table, def.Table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_period ON %s (period)`, def.Table, def.Table),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    period timestamptz NOT NULL,
    resource text NOT NULL,
    income numeric(20,6) NOT NULL DEFAULT 0,
    expense numeric(20,6) NOT NULL DEFAULT 0,
    PRIMARY KEY (period, resource)
)`, def.BalanceTable()),
	}
}

func systemDDL() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    version_id uuid NOT NULL,
    user_id text NOT NULL DEFAULT '',
    basis_type text NOT NULL,
    basis_id uuid NOT NULL,
    op text NOT NULL,
    snapshot bytea NOT NULL,
    compression text NOT NULL DEFAULT 'none',
    created_at timestamptz NOT NULL DEFAULT now()
)`, versionsTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_basis ON %s (basis_type, basis_id, created_at DESC)`, versionsTable, versionsTable),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    basis_type text NOT NULL,
    basis_id uuid NOT NULL,
    search_text text NOT NULL,
    PRIMARY KEY (basis_type, basis_id)
)`, fullTextTable),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id uuid PRIMARY KEY,
    basis_type text NOT NULL,
    basis_id uuid NOT NULL,
    op text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT now()
)`, changesTable),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    id uuid PRIMARY KEY,
    register text NOT NULL,
    period timestamptz NOT NULL,
    owner_id uuid NOT NULL,
    action text NOT NULL,
    created_at timestamptz NOT NULL DEFAULT now()
)`, triggersTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created ON %s (created_at)`, triggersTable, triggersTable),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    user_id text NOT NULL,
    session_id text NOT NULL,
    document_id uuid NOT NULL,
    info text NOT NULL DEFAULT '',
    created_at timestamptz NOT NULL DEFAULT now()
)`, ignoresTable),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s (user_id, session_id)`, ignoresTable, ignoresTable),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    basis_type text NOT NULL,
    basis_id uuid NOT NULL,
    user_id text NOT NULL,
    session_id text NOT NULL,
    locked_at timestamptz NOT NULL DEFAULT now(),
    PRIMARY KEY (basis_type, basis_id)
)`, locksTable),
	}
}
