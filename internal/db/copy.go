package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultBatchSize is the number of rows sent per COPY.
const DefaultBatchSize = 50000

// CopyFromSchema bulk-inserts rows into schema.table with the COPY protocol,
// batchSize rows at a time (0 means DefaultBatchSize). An empty schema
// targets the search path.
func CopyFromSchema(ctx context.Context, pool Pool, schema, table string, columns []string, rows [][]any, batchSize int) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	ident := pgx.Identifier{table}
	if schema != "" {
		ident = pgx.Identifier{schema, table}
	}
	name := ident.Sanitize()

	var total int64
	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))
		n, err := pool.CopyFrom(ctx, ident, columns, pgx.CopyFromRows(rows[start:end]))
		if err != nil {
			return total, eris.Wrapf(err, "db: COPY INTO %s", name)
		}
		total += n
		zap.L().Debug("db: copied batch",
			zap.String("table", name),
			zap.Int("batch_start", start),
			zap.Int64("rows", n),
		)
	}
	return total, nil
}
