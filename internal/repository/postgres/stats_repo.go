package postgres

/*
Файл stats_repo.go — хранилище статистики эндпоинтов (Stats Store).
Авторитетно для операционных полей; декларативные поля здесь — копия на момент последней записи.
*/

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xela07ax/mdrouter/internal/domain"
)

type StatsRepo struct {
	pool *pgxpool.Pool
}

func NewStatsRepo(pool *pgxpool.Pool) *StatsRepo {
	return &StatsRepo{pool: pool}
}

const selectEndpoints = `
	SELECT id, source_name, source_type, data_category, classification_level, target_store, table_name,
	       parameter_schema, test_parameters, quality_rules, update_schedule, tags, version, description,
	       status, connection,
	       quality_score, priority, health_status, avg_response_time, success_rate,
	       consecutive_failures, total_calls, failed_calls, last_success_time, last_failure_time
	FROM endpoint_stats
	ORDER BY created_at, id`

// LoadEndpoints выполняет "холодную загрузку" всех эндпоинтов при старте и перезагрузке
func (r *StatsRepo) LoadEndpoints(ctx context.Context) ([]domain.Endpoint, error) {
	rows, err := r.pool.Query(ctx, selectEndpoints)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to load endpoints: %w", err)
	}
	defer rows.Close()

	var results []domain.Endpoint
	for rows.Next() {
		var (
			ep                              domain.Endpoint
			schema, testParams, rules, conn []byte
			status, health                  string
		)
		if err := rows.Scan(
			&ep.ID, &ep.SourceName, &ep.SourceType, &ep.DataCategory, &ep.ClassificationLevel, &ep.TargetStore, &ep.TableName,
			&schema, &testParams, &rules, &ep.UpdateSchedule, &ep.Tags, &ep.Version, &ep.Description,
			&status, &conn,
			&ep.QualityScore, &ep.Priority, &health, &ep.AvgResponseTime, &ep.SuccessRate,
			&ep.ConsecutiveFailures, &ep.TotalCalls, &ep.FailedCalls, &ep.LastSuccessTime, &ep.LastFailureTime,
		); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan endpoint: %w", err)
		}

		if err := decodeJSON(schema, &ep.ParameterSchema); err != nil {
			return nil, fmt.Errorf("postgres: endpoint %s parameter_schema: %w", ep.ID, err)
		}
		if err := decodeJSON(testParams, &ep.TestParameters); err != nil {
			return nil, fmt.Errorf("postgres: endpoint %s test_parameters: %w", ep.ID, err)
		}
		if err := decodeJSON(rules, &ep.QualityRules); err != nil {
			return nil, fmt.Errorf("postgres: endpoint %s quality_rules: %w", ep.ID, err)
		}
		if err := decodeJSON(conn, &ep.Connection); err != nil {
			return nil, fmt.Errorf("postgres: endpoint %s connection: %w", ep.ID, err)
		}
		ep.Status = domain.EndpointStatus(status)
		ep.HealthStatus = domain.HealthStatus(health)

		results = append(results, ep)
	}
	return results, rows.Err()
}

// SaveStats пишет живые счетчики пачкой (upsert). Декларативные поля обновляются тоже,
// чтобы эндпоинты, пришедшие только из каталога, появились в хранилище целиком.
func (r *StatsRepo) SaveStats(ctx context.Context, eps []domain.Endpoint) error {
	if len(eps) == 0 {
		return nil
	}

	// Большие пачки режутся на куски, но пишутся одной транзакцией
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: failed to begin stats tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, part := range chunks(eps, len(statsColumns)) {
		query, args, err := buildStatsUpsert(part)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: failed to save stats: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: failed to commit stats: %w", err)
	}
	return nil
}

var statsColumns = []string{
	"id", "source_name", "source_type", "data_category", "classification_level", "target_store", "table_name",
	"parameter_schema", "test_parameters", "quality_rules", "update_schedule", "tags", "version", "description",
	"status", "connection",
	"quality_score", "priority", "health_status", "avg_response_time", "success_rate",
	"consecutive_failures", "total_calls", "failed_calls", "last_success_time", "last_failure_time",
}

// buildStatsUpsert динамически строит запрос для пакетной вставки
func buildStatsUpsert(eps []domain.Endpoint) (string, []any, error) {
	numFields := len(statsColumns)
	var sb strings.Builder
	args := make([]any, 0, len(eps)*numFields)

	for i, ep := range eps {
		schema, err := encodeJSON(ep.ParameterSchema)
		if err != nil {
			return "", nil, fmt.Errorf("endpoint %s parameter_schema: %w", ep.ID, err)
		}
		testParams, err := encodeJSON(ep.TestParameters)
		if err != nil {
			return "", nil, fmt.Errorf("endpoint %s test_parameters: %w", ep.ID, err)
		}
		rules, err := encodeJSON(ep.QualityRules)
		if err != nil {
			return "", nil, fmt.Errorf("endpoint %s quality_rules: %w", ep.ID, err)
		}
		conn, err := encodeJSON(ep.Connection)
		if err != nil {
			return "", nil, fmt.Errorf("endpoint %s connection: %w", ep.ID, err)
		}

		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString(placeholders(i*numFields, numFields))

		args = append(args,
			ep.ID, ep.SourceName, ep.SourceType, ep.DataCategory, ep.ClassificationLevel, ep.TargetStore, ep.TableName,
			schema, testParams, rules, ep.UpdateSchedule, ep.Tags, ep.Version, ep.Description,
			string(ep.Status), conn,
			ep.QualityScore, ep.Priority, string(ep.HealthStatus), ep.AvgResponseTime, ep.SuccessRate,
			ep.ConsecutiveFailures, ep.TotalCalls, ep.FailedCalls, ep.LastSuccessTime, ep.LastFailureTime,
		)
	}

	updates := make([]string, 0, numFields-1)
	for _, c := range statsColumns[1:] {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}

	query := fmt.Sprintf(
		"INSERT INTO endpoint_stats (%s) VALUES %s ON CONFLICT (id) DO UPDATE SET %s, updated_at = NOW()",
		strings.Join(statsColumns, ", "), sb.String(), strings.Join(updates, ", "),
	)
	return query, args, nil
}

// placeholders собирает "($n+1, ..., $n+count)"
func placeholders(offset, count int) string {
	var sb strings.Builder
	sb.WriteString("(")
	for j := 1; j <= count; j++ {
		if j > 1 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "$%d", offset+j)
	}
	sb.WriteString(")")
	return sb.String()
}

func decodeJSON(raw []byte, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func encodeJSON(v any) ([]byte, error) {
	return json.Marshal(v)
}
