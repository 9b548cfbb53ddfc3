package domain

import "slices"

// Table — табличный результат Fetch: упорядоченные колонки + строки (колонка -> значение)
type Table struct {
	Columns []string         `json:"columns"`
	Rows    []map[string]any `json:"rows"`
}

// NewTable собирает таблицу; порядок колонок берется из аргумента,
// а если он пуст — из ключей первой строки (отсортированных).
func NewTable(columns []string, rows []map[string]any) *Table {
	if len(columns) == 0 && len(rows) > 0 {
		for k := range rows[0] {
			columns = append(columns, k)
		}
		slices.Sort(columns)
	}
	return &Table{Columns: columns, Rows: rows}
}

// Len — количество записей; nil-таблица пуста
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn проверяет наличие колонки
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	return slices.Contains(t.Columns, name)
}

// MissingColumns возвращает колонки из списка, которых нет в таблице
func (t *Table) MissingColumns(required []string) []string {
	var missing []string
	for _, c := range required {
		if !t.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	return missing
}

// Head возвращает первую строку (или nil)
func (t *Table) Head() map[string]any {
	if t.Len() == 0 {
		return nil
	}
	return t.Rows[0]
}
