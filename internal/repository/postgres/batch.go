package postgres

// maxBindParams — предел параметров одного запроса в протоколе Postgres
const maxBindParams = 65535

// chunks режет пачку так, чтобы один multi-row INSERT не превысил maxBindParams
func chunks[T any](items []T, fieldsPerRow int) [][]T {
	size := maxBindParams / fieldsPerRow
	out := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > size {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	if len(items) > 0 {
		out = append(out, items)
	}
	return out
}
