package models

// QueryResult is the generic tabular result: column names plus row values
// in column order.
type QueryResult struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// RowCount returns the number of rows.
func (r *QueryResult) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// ScalarInt64 returns the first column of the first row as an int64.
// It returns false when the result is empty or the value is not integral.
func (r *QueryResult) ScalarInt64() (int64, bool) {
	if r.RowCount() == 0 || len(r.Rows[0]) == 0 {
		return 0, false
	}
	switch v := r.Rows[0][0].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case int16:
		return int64(v), true
	default:
		return 0, false
	}
}
