package postgres

import (
	"github.com/Masterminds/squirrel"

	"tabula/internal/storage"
)

// Shared system tables. Entity, table-part and register tables come
// from metadata definitions; these hold the cross-cutting state.
const (
	versionsTable = "sys_versions"
	fullTextTable = "sys_fulltext"
	changesTable  = "sys_changes"
	triggersTable = "sys_reg_triggers"
	ignoresTable  = "sys_doc_ignores"
	locksTable    = "sys_locks"
)

// Compile-time check that Gateway implements the storage surface.
var _ storage.Gateway = (*Gateway)(nil)

// Gateway is the PostgreSQL storage.Gateway. All operations run
// through the embedded TxManager's querier, so they join whatever
// transaction the context carries.
type Gateway struct {
	*TxManager
	builder squirrel.StatementBuilderType
}

// NewGateway creates a gateway over the pool.
func NewGateway(pool *Pool) *Gateway {
	return &Gateway{
		TxManager: NewTxManager(pool),
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}
