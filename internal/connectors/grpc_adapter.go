package connectors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xela07ax/mdrouter/internal/domain"
)

// GRPCAdapter зовет унарный метод поставщика с google.protobuf.Struct на входе и выходе.
// Так не нужен сгенерированный клиент под каждого поставщика.
//
//	target, method (обязательны), timeout_ms.
//
// Ответ: {"columns": [...], "rows": [{...}, ...]}.
type GRPCAdapter struct {
	id      string
	method  string
	timeout time.Duration
	conn    *grpc.ClientConn
}

// NewGRPCAdapter создает экземпляр адаптера. Соединение ленивое: сеть трогается на первом вызове.
func NewGRPCAdapter(ep domain.Endpoint) (Handler, error) {
	if err := requireConnection(ep, "target", "method"); err != nil {
		return nil, err
	}

	timeout := 15 * time.Second
	if v := ep.Connection["timeout_ms"]; v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "timeout_ms must be a positive integer"}
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	conn, err := grpc.NewClient(ep.Connection["target"], grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, &ConfigError{EndpointID: ep.ID, SourceType: ep.SourceType, Reason: "invalid grpc target: " + err.Error()}
	}

	return &GRPCAdapter{
		id:      ep.ID,
		method:  ep.Connection["method"],
		timeout: timeout,
		conn:    conn,
	}, nil
}

func (a *GRPCAdapter) Fetch(ctx context.Context, args map[string]any) (*domain.Table, error) {
	// 1. Конвертируем аргументы в Protobuf Struct
	req, err := structpb.NewStruct(args)
	if err != nil {
		return nil, fmt.Errorf("failed to create proto struct: %w", err)
	}

	// 2. Свой предел на уровне вызова, даже если у вызывающего дедлайна нет
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	ctx = metadata.AppendToOutgoingContext(ctx, "x-source", "mdrouter", "x-endpoint-id", a.id)

	// 3. Выполняем gRPC вызов
	resp := &structpb.Struct{}
	if err := a.conn.Invoke(ctx, a.method, req, resp); err != nil {
		return nil, fmt.Errorf("vendor grpc call failed: %w", err)
	}

	return structToTable(resp)
}

// Close закрывает соединение (вызывается реестром при сбросе обработчика)
func (a *GRPCAdapter) Close() error {
	return a.conn.Close()
}

func structToTable(resp *structpb.Struct) (*domain.Table, error) {
	m := resp.AsMap()

	var columns []string
	if cols, ok := m["columns"].([]any); ok {
		for _, c := range cols {
			columns = append(columns, fmt.Sprint(c))
		}
	}

	raw, ok := m["rows"].([]any)
	if !ok && m["rows"] != nil {
		return nil, fmt.Errorf("vendor rows are %T, expected a list", m["rows"])
	}

	rows := make([]map[string]any, 0, len(raw))
	for i, item := range raw {
		row, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("vendor row %d is %T, expected an object", i, item)
		}
		rows = append(rows, row)
	}
	return domain.NewTable(columns, rows), nil
}
