package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/mdrouter/internal/domain"
)

// HistoryRepo — журнал вызовов поставщиков (Call History)
type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// Количество колонок в таблице call_history
const historyFields = 9

// WriteBatch сохраняет пачку исходов: один INSERT на кусок, укладывающийся в лимит параметров
func (r *HistoryRepo) WriteBatch(ctx context.Context, outcomes []domain.CallOutcome) error {
	for _, part := range chunks(outcomes, historyFields) {
		query, args := buildHistoryInsert(part)
		if _, err := r.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: failed to write call history: %w", err)
		}
	}
	return nil
}

func buildHistoryInsert(outcomes []domain.CallOutcome) (string, []any) {
	const numFields = historyFields
	var sb strings.Builder
	args := make([]any, 0, len(outcomes)*numFields)

	for i, o := range outcomes {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(placeholders(i*numFields, numFields))

		var errMsg *string
		if o.ErrorMessage != "" {
			errMsg = &o.ErrorMessage
		}
		args = append(args,
			o.ID, o.EndpointID, o.DataCategory, o.Timestamp, o.Success,
			o.ResponseTime, o.RecordCount, errMsg, o.Caller,
		)
	}

	query := fmt.Sprintf(
		"INSERT INTO call_history (id, endpoint_id, data_category, called_at, success, response_time, record_count, error_message, caller) VALUES %s ON CONFLICT (id) DO NOTHING",
		sb.String(),
	)
	return query, args
}
