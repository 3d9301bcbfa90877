package core

import (
	"context"

	"numsync/entity"
)

// Row is one record from a raw tabular query: named, typed columns.
type Row map[string]entity.Value

// Querier is the read surface of the remote indexer. Implementations live
// outside the engine; the reference JSON-RPC client satisfies this.
type Querier interface {
	// Entities runs a point or bulk query for one model. clause is an
	// indexer-side filter expression; empty means unfiltered.
	Entities(ctx context.Context, model, clause string) ([]entity.Record, error)
	// EntitiesPage runs an offset-paged query with server-side ordering.
	EntitiesPage(ctx context.Context, model, clause string, limit, offset uint32, orderBy string, desc bool) ([]entity.Record, error)
	// Query runs a raw tabular query.
	Query(ctx context.Context, query string) ([]Row, error)
}

// Subscriber registers push subscriptions keyed by a filter clause. The
// returned channel closes when the subscription ends; the cancel func tears
// it down early.
type Subscriber interface {
	Subscribe(ctx context.Context, clause string) (<-chan entity.Record, func(), error)
}

// TokenLabeler resolves a token contract address to a human-readable label.
// Resolution is slow and remote; the engine invokes it at most once per
// token.
type TokenLabeler interface {
	Label(ctx context.Context, tokenAddress string) (string, error)
}
