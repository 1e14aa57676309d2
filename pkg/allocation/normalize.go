package allocation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/apd/v3"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/kubecost"
	"github.com/kube-reporting/allocation-exporter/pkg/schema"
)

var (
	// timestampColumns are rewritten from the source to the store format.
	timestampColumns = []string{"window.start", "window.end", "start", "end"}

	instanceIDRegexp = regexp.MustCompile(`^(aws:///[a-z0-9-]+/)?i-[0-9a-f]{8}([0-9a-f]{9})?$`)
)

const instanceProvider = "AWS"

// Flatten turns nested objects into dotted column paths. Arrays are kept as
// their JSON encoding.
func Flatten(record map[string]interface{}) map[string]interface{} {
	flat := make(map[string]interface{}, len(record))
	flatten("", record, flat)
	return flat
}

func flatten(prefix string, obj map[string]interface{}, out map[string]interface{}) {
	for k, v := range obj {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			flatten(key, val, out)
		case []interface{}:
			b, err := json.Marshal(val)
			if err != nil {
				out[key] = fmt.Sprint(val)
				continue
			}
			out[key] = string(b)
		default:
			out[key] = val
		}
	}
}

// Normalizer converts records into rows of a ColumnSet.
type Normalizer struct {
	columns *schema.ColumnSet
}

// NewNormalizer returns a Normalizer producing the columns of the set,
// written under their output names.
func NewNormalizer(columns *schema.ColumnSet) *Normalizer {
	return &Normalizer{columns: columns}
}

// NormalizeEntries normalizes every record of entries, in entry order and
// then aggregation key order.
func (n *Normalizer) NormalizeEntries(entries []kubecost.Entry) (*Table, error) {
	var records []map[string]interface{}
	for _, entry := range entries {
		keys := make([]string, 0, len(entry))
		for k := range entry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if record, ok := entry[k].(map[string]interface{}); ok {
				records = append(records, record)
			}
		}
	}
	return n.Normalize(records)
}

// Normalize produces one row per record with exactly the columns of the set,
// in order.
func (n *Normalizer) Normalize(records []map[string]interface{}) (*Table, error) {
	cols := n.columns.Columns()
	table := &Table{
		Columns: cols,
		Rows:    make([][]interface{}, 0, len(records)),
	}

	for _, record := range records {
		flat := Flatten(record)
		for _, c := range timestampColumns {
			if s, ok := flat[c].(string); ok {
				flat[c] = schema.FormatStoreTimestamp(s)
			}
		}
		synthesize(flat)

		row := make([]interface{}, len(cols))
		for i, c := range cols {
			v, ok := flat[c.Name]
			if !ok {
				v = flat[c.OutputName]
			}
			value, err := coerce(c, v)
			if err != nil {
				return nil, err
			}
			row[i] = value
		}
		table.Rows = append(table.Rows, row)
	}
	return table, nil
}

// synthesize fills the derived columns. A concatenated column is only
// rebuilt when at least one of its sources is present, so normalizing an
// already normalized record leaves it unchanged.
func synthesize(flat map[string]interface{}) {
	for _, s := range schema.SynthesizedColumns {
		present := false
		var b strings.Builder
		for _, src := range s.Sources {
			v, ok := flat[src]
			if !ok {
				continue
			}
			present = true
			if str, ok := v.(string); ok {
				b.WriteString(str)
			}
		}
		if present {
			flat[s.Column] = b.String()
		}
	}

	provider, _ := flat["properties.provider"].(string)
	providerID, _ := flat["properties.providerID"].(string)
	if provider == "" && instanceIDRegexp.MatchString(providerID) {
		flat["properties.provider"] = instanceProvider
	}
}

func coerce(c schema.Column, v interface{}) (interface{}, error) {
	if v == nil {
		return c.Default, nil
	}
	switch c.Type {
	case schema.Double:
		return coerceDouble(c, v)
	case schema.Timestamp:
		return coerceTimestamp(c, v)
	default:
		return coerceString(v), nil
	}
}

func coerceString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case time.Time:
		return val.UTC().Format(schema.StoreTimestampLayout)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(b)
	}
}

func coerceDouble(c schema.Column, v interface{}) (interface{}, error) {
	var s string
	switch val := v.(type) {
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return nil, exporterrors.TypeCoercion("column %q: %v is not a finite number", c.Name, val)
		}
		return val, nil
	case float32:
		return coerceDouble(c, float64(val))
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case json.Number:
		s = val.String()
	case string:
		s = strings.TrimSpace(val)
		if s == "" {
			return c.Default, nil
		}
	default:
		return nil, exporterrors.TypeCoercion("column %q: %v (%T) is not numeric", c.Name, v, v)
	}

	d, _, err := apd.NewFromString(s)
	if err != nil {
		return nil, exporterrors.TypeCoercion("column %q: %q is not numeric", c.Name, s)
	}
	if d.Form != apd.Finite {
		return nil, exporterrors.TypeCoercion("column %q: %q is not a finite number", c.Name, s)
	}
	f, err := d.Float64()
	if err != nil {
		return nil, exporterrors.TypeCoercion("column %q: %q does not fit a double: %v", c.Name, s, err)
	}
	return f, nil
}

func coerceTimestamp(c schema.Column, v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case time.Time:
		return val.UTC(), nil
	case string:
		if val == "" {
			return c.Default, nil
		}
		t, err := schema.ParseStoreTimestamp(val)
		if err != nil {
			return nil, exporterrors.TypeCoercion("column %q: %q is not a timestamp", c.Name, val)
		}
		return t, nil
	default:
		return nil, exporterrors.TypeCoercion("column %q: %v (%T) is not a timestamp", c.Name, v, v)
	}
}
