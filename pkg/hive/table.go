package hive

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"

	"github.com/kube-reporting/allocation-exporter/pkg/schema"
)

// PartitionColumns are the partition keys of the table, in path order.
var PartitionColumns = []string{"account_id", "region", "year", "month"}

var (
	tableNameRegex   = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)?$`)
	invalidNameRunes = regexp.MustCompile(`[^a-z0-9_]`)
)

type Column struct {
	Name string
	Type string
}

type TableParameters struct {
	Name            string
	Columns         []Column
	PartitionedBy   []Column
	Location        string
	TableProperties map[string]string
}

// PartitionSpec maps partition column to value.
type PartitionSpec map[string]string

const createTableTemplate = `CREATE EXTERNAL TABLE IF NOT EXISTS {| .Name |} (
{|- range $i, $c := .Columns |}{| if $i |},{| end |}
  ` + "`{| $c.Name |}`" + ` {| $c.Type |}
{|- end |}
)
PARTITIONED BY (
{|- range $i, $c := .PartitionedBy |}{| if $i |},{| end |}
  ` + "`{| $c.Name |}`" + ` {| $c.Type |}
{|- end |}
)
STORED AS PARQUET
LOCATION '{| .Location |}'
{|- with .TableProperties |}
TBLPROPERTIES ({| $sep := "" |}{| range $k, $v := . |}{| $sep |}'{| $k |}' = '{| $v |}'{| $sep = ", " |}{| end |})
{|- end |}`

const addPartitionTemplate = `ALTER TABLE {| .Table |} ADD IF NOT EXISTS PARTITION (
{|- range $i, $k := .Keys |}{| if $i |}, {| end |}` + "`{| $k |}`" + ` = '{| index $.Spec $k | replace "'" "\\'" |}'{| end |}) LOCATION '{| .Location |}'`

var (
	createTableTmpl  = newTemplate("create-table", createTableTemplate)
	addPartitionTmpl = newTemplate("add-partition", addPartitionTemplate)
)

func newTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Delims("{|", "|}").Funcs(sprig.TxtFuncMap()).Parse(text))
}

func renderTemplate(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("error executing template: %v", err)
	}
	return buf.String(), nil
}

// CreateTableSQL renders the CREATE statement for params.
func CreateTableSQL(params TableParameters) (string, error) {
	if !tableNameRegex.MatchString(params.Name) {
		return "", fmt.Errorf("invalid table name %q", params.Name)
	}
	return renderTemplate(createTableTmpl, params)
}

// AddPartitionSQL renders the statement registering a partition of table at
// location. Keys are emitted in PartitionColumns order.
func AddPartitionSQL(table string, spec PartitionSpec, location string) (string, error) {
	if !tableNameRegex.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	for _, k := range PartitionColumns {
		if _, ok := spec[k]; !ok {
			return "", fmt.Errorf("partition spec is missing %s", k)
		}
	}
	return renderTemplate(addPartitionTmpl, map[string]interface{}{
		"Table":    table,
		"Keys":     PartitionColumns,
		"Spec":     map[string]string(spec),
		"Location": location,
	})
}

// ColumnName turns an artifact column name into a Hive identifier. Hive
// lowercases identifiers and does not accept dots.
func ColumnName(name string) string {
	return invalidNameRunes.ReplaceAllString(strings.ToLower(name), "_")
}

// ColumnType maps a schema type to its Hive type.
func ColumnType(t schema.Type) string {
	switch t {
	case schema.Double:
		return "double"
	case schema.Timestamp:
		return "timestamp"
	default:
		return "string"
	}
}

// Columns converts the artifact columns to Hive columns. Distinct artifact
// columns that collapse to the same Hive identifier are an error.
func Columns(columns []schema.Column) ([]Column, error) {
	seen := make(map[string]string, len(columns))
	out := make([]Column, len(columns))
	for i, c := range columns {
		name := ColumnName(c.OutputName)
		if prev, ok := seen[name]; ok {
			return nil, fmt.Errorf("columns %q and %q both map to Hive column %q", prev, c.OutputName, name)
		}
		seen[name] = c.OutputName
		out[i] = Column{Name: name, Type: ColumnType(c.Type)}
	}
	return out, nil
}

// S3Location returns the s3a:// URL of prefix in bucket, with a trailing slash.
func S3Location(bucket, prefix string) (string, error) {
	bucket = path.Join(bucket, prefix)
	if bucket[len(bucket)-1] != '/' {
		bucket = bucket + "/"
	}
	locationURL, err := url.Parse("s3a://" + bucket)
	if err != nil {
		return "", err
	}
	return locationURL.String(), nil
}
