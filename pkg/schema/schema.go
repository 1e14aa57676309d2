// Package schema defines the fixed, ordered and typed column set that every
// exported allocation row conforms to.
package schema

import (
	"fmt"
	"strings"
	"time"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
)

// Type is the logical type of a column.
type Type int

const (
	String Type = iota
	Double
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Double:
		return "double"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

const (
	LabelsPrefix      = "properties.labels."
	AnnotationsPrefix = "properties.annotations."
)

// Column is one output column. Name is the flattened path as the source
// reports it; OutputName is what the column is called in the artifact.
type Column struct {
	Name       string
	OutputName string
	Type       Type
	Default    interface{}
}

// EpochTimestamp is the default for timestamp columns.
var EpochTimestamp = time.Unix(0, 0).UTC()

func column(name string, t Type) Column {
	c := Column{Name: name, OutputName: name, Type: t}
	switch t {
	case Double:
		c.Default = float64(0)
	case Timestamp:
		c.Default = EpochTimestamp
	default:
		c.Default = ""
	}
	return c
}

var baseColumns = []struct {
	name string
	typ  Type
}{
	{"name", String},
	{"window.start", Timestamp},
	{"window.end", Timestamp},
	{"minutes", Double},
	{"cpuCores", Double},
	{"cpuCoreRequestAverage", Double},
	{"cpuCoreUsageAverage", Double},
	{"cpuCoreHours", Double},
	{"cpuCost", Double},
	{"cpuCostAdjustment", Double},
	{"cpuEfficiency", Double},
	{"gpuCount", Double},
	{"gpuHours", Double},
	{"gpuCost", Double},
	{"gpuCostAdjustment", Double},
	{"networkTransferBytes", Double},
	{"networkReceiveBytes", Double},
	{"networkCost", Double},
	{"networkCostAdjustment", Double},
	{"loadBalancerCost", Double},
	{"loadBalancerCostAdjustment", Double},
	{"pvBytes", Double},
	{"pvByteHours", Double},
	{"pvCost", Double},
	{"pvCostAdjustment", Double},
	{"ramBytes", Double},
	{"ramByteRequestAverage", Double},
	{"ramByteUsageAverage", Double},
	{"ramByteHours", Double},
	{"ramCost", Double},
	{"ramCostAdjustment", Double},
	{"ramEfficiency", Double},
	{"sharedCost", Double},
	{"externalCost", Double},
	{"totalCost", Double},
	{"totalEfficiency", Double},
	{"properties.provider", String},
	{"properties.region", String},
	{"properties.cluster", String},
	{"properties.clusterid", String},
	{"properties.eksClusterName", String},
	{"properties.container", String},
	{"properties.namespace", String},
	{"properties.pod", String},
	{"properties.node", String},
	{"properties.node_instance_type", String},
	{"properties.node_availability_zone", String},
	{"properties.node_capacity_type", String},
	{"properties.node_architecture", String},
	{"properties.node_os", String},
	{"properties.node_nodegroup", String},
	{"properties.node_nodegroup_image", String},
	{"properties.controller", String},
	{"properties.controllerKind", String},
	{"properties.providerID", String},
}

// BaseColumns returns the static part of the schema, in output order.
func BaseColumns() []Column {
	cols := make([]Column, 0, len(baseColumns))
	for _, c := range baseColumns {
		cols = append(cols, column(c.name, c.typ))
	}
	return cols
}

// ColumnSet is an ordered list of columns, indexed by both source and
// output name. It is read-only once built.
type ColumnSet struct {
	columns []Column
	index   map[string]int
}

// NewColumnSet merges the base schema with one string column per declared
// label and annotation key. Dynamic columns are named by the mangled key the
// source reports and written out under the key as declared. Labels and
// annotations are mapped separately, so the same mangled key may appear
// under both prefixes.
func NewColumnSet(labels, annotations []string) (*ColumnSet, ColumnMapping, error) {
	cols := BaseColumns()
	mapping := ColumnMapping{
		LabelsPrefix:      make(KeyMapping),
		AnnotationsPrefix: make(KeyMapping),
	}

	add := func(prefix, kind string, keys []string) error {
		seen := make(map[string]string, len(keys))
		for _, key := range keys {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			mangled := Mangle(key)
			if prev, exists := seen[mangled]; exists {
				if prev == key {
					return exporterrors.Configuration("%s %q is declared more than once", kind, key)
				}
				return exporterrors.Configuration("%s %q and %q both map to the column key %q", kind, prev, key, mangled)
			}
			seen[mangled] = key
			if mangled != key {
				mapping[prefix][mangled] = key
			}
			c := column(prefix+mangled, String)
			c.OutputName = prefix + key
			cols = append(cols, c)
		}
		return nil
	}
	if err := add(LabelsPrefix, "label", labels); err != nil {
		return nil, nil, err
	}
	if err := add(AnnotationsPrefix, "annotation", annotations); err != nil {
		return nil, nil, err
	}

	cs := &ColumnSet{
		columns: cols,
		index:   make(map[string]int, len(cols)*2),
	}
	for i, c := range cols {
		if _, exists := cs.index[c.Name]; exists {
			return nil, nil, exporterrors.Configuration("column %q is declared more than once", c.OutputName)
		}
		cs.index[c.Name] = i
	}
	for i, c := range cols {
		if j, exists := cs.index[c.OutputName]; exists && j != i {
			return nil, nil, exporterrors.Configuration("column %q is declared more than once", c.OutputName)
		}
		cs.index[c.OutputName] = i
	}
	return cs, mapping, nil
}

// Columns returns a copy of the columns in output order.
func (cs *ColumnSet) Columns() []Column {
	cols := make([]Column, len(cs.columns))
	copy(cols, cs.columns)
	return cols
}

func (cs *ColumnSet) Len() int {
	return len(cs.columns)
}

// Lookup returns the position of the column called name, which may be
// either its source or its output name.
func (cs *ColumnSet) Lookup(name string) (int, bool) {
	i, ok := cs.index[name]
	return i, ok
}

// Names returns the source names in order.
func (cs *ColumnSet) Names() []string {
	names := make([]string, len(cs.columns))
	for i, c := range cs.columns {
		names[i] = c.Name
	}
	return names
}

// OutputNames returns the artifact column names in order.
func (cs *ColumnSet) OutputNames() []string {
	names := make([]string, len(cs.columns))
	for i, c := range cs.columns {
		names[i] = c.OutputName
	}
	return names
}
