package hive

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	hivedriver "github.com/taozle/go-hive-driver"

	"github.com/kube-reporting/allocation-exporter/pkg/artifact"
	"github.com/kube-reporting/allocation-exporter/pkg/db"
	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/schema"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

// DefaultTableProperties make the engine resolve Parquet columns by position,
// since Hive column names are sanitized versions of the artifact's.
var DefaultTableProperties = map[string]string{
	"parquet.column.index.access": "true",
}

// ConnectOptions describes how to reach HiveServer2.
type ConnectOptions struct {
	Host           string
	Username       string
	Password       string
	ConnectTimeout time.Duration
}

// DSN returns the driver connection string for opts.
func (o ConnectOptions) DSN() string {
	u := url.URL{Scheme: "hive", Host: o.Host}
	q := url.Values{}
	if o.Username != "" {
		u.User = url.UserPassword(o.Username, o.Password)
		q.Set("auth", "sasl")
	}
	if o.ConnectTimeout > 0 {
		// whole seconds, rounded up so sub-second timeouts are not dropped
		q.Set("connect_timeout", strconv.Itoa(int((o.ConnectTimeout+time.Second-1)/time.Second)))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open returns a database handle to HiveServer2. No connection is made until
// the first statement.
func Open(opts ConnectOptions) (*sql.DB, error) {
	connector, err := hivedriver.NewConnector(opts.DSN())
	if err != nil {
		return nil, exporterrors.Configuration("invalid Hive connection options: %v", err)
	}
	return sql.OpenDB(connector), nil
}

// Registrar makes uploaded artifacts queryable by registering their month
// partition in an external table, creating the table on first use.
type Registrar struct {
	logger  log.FieldLogger
	execer  db.Execer
	table   string
	bucket  string
	prefix  string
	params  TableParameters
	mu      sync.Mutex
	ensured bool
}

// NewRegistrar returns a Registrar for artifacts with the given columns stored
// under prefix in bucket.
func NewRegistrar(logger log.FieldLogger, execer db.Execer, table, bucket, prefix string, columns []schema.Column) (*Registrar, error) {
	if !tableNameRegex.MatchString(table) {
		return nil, exporterrors.Configuration("invalid Hive table name %q", table)
	}
	cols, err := Columns(columns)
	if err != nil {
		return nil, exporterrors.Configuration("%v", err)
	}
	location, err := S3Location(bucket, prefix)
	if err != nil {
		return nil, exporterrors.Configuration("invalid table location: %v", err)
	}
	partitions := make([]Column, len(PartitionColumns))
	for i, name := range PartitionColumns {
		partitions[i] = Column{Name: name, Type: "string"}
	}
	return &Registrar{
		logger: logger.WithField("component", "hive"),
		execer: execer,
		table:  table,
		bucket: bucket,
		prefix: prefix,
		params: TableParameters{
			Name:            table,
			Columns:         cols,
			PartitionedBy:   partitions,
			Location:        location,
			TableProperties: DefaultTableProperties,
		},
	}, nil
}

// EnsureTable creates the table if it doesn't exist yet. It only issues the
// statement once per Registrar.
func (r *Registrar) EnsureTable(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensured {
		return nil
	}
	query, err := CreateTableSQL(r.params)
	if err != nil {
		return exporterrors.Configuration("%v", err)
	}
	if _, err := r.execer.ExecContext(ctx, query); err != nil {
		return exporterrors.StoreWrite(exporterrors.StageRegister, fmt.Errorf("can't create table %s: %v", r.table, err))
	}
	r.logger.Infof("ensured table %s exists", r.table)
	r.ensured = true
	return nil
}

// RegisterPartition adds the month partition holding the artifact of ent for
// p. Registering an existing partition is a no-op.
func (r *Registrar) RegisterPartition(ctx context.Context, ent entity.Entity, p window.Period) error {
	if err := r.EnsureTable(ctx); err != nil {
		return err
	}
	spec := PartitionSpec{
		"account_id": ent.AccountID,
		"region":     ent.Region,
		"year":       p.Year(),
		"month":      p.Month(),
	}
	location, err := S3Location(r.bucket, artifact.MonthPrefix(r.prefix, ent, p))
	if err != nil {
		return exporterrors.StoreWrite(exporterrors.StageRegister, err)
	}
	query, err := AddPartitionSQL(r.table, spec, location)
	if err != nil {
		return exporterrors.StoreWrite(exporterrors.StageRegister, err)
	}
	if _, err := r.execer.ExecContext(ctx, query); err != nil {
		return exporterrors.StoreWrite(exporterrors.StageRegister, fmt.Errorf("can't add partition %s to %s: %v", location, r.table, err))
	}
	r.logger.WithField("period", p.Date).Debugf("registered partition %s", location)
	return nil
}
