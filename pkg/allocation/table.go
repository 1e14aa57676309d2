package allocation

import (
	"time"

	"github.com/kube-reporting/allocation-exporter/pkg/schema"
)

// Table is the normalized form of a period: typed, column complete rows in
// column order. Cells hold a string, a float64 or a time.Time according to
// the column type.
type Table struct {
	Columns []schema.Column
	Rows    [][]interface{}
}

func (t *Table) Len() int {
	return len(t.Rows)
}

// Records renders the rows back into flat records keyed by output column
// name, with timestamps in store form.
func (t *Table) Records() []map[string]interface{} {
	records := make([]map[string]interface{}, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]interface{}, len(t.Columns))
		for i, c := range t.Columns {
			v := row[i]
			if ts, ok := v.(time.Time); ok {
				v = ts.UTC().Format(schema.StoreTimestampLayout)
			}
			rec[c.OutputName] = v
		}
		records = append(records, rec)
	}
	return records
}
