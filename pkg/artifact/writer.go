package artifact

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"github.com/zeebo/xxh3"

	"github.com/kube-reporting/allocation-exporter/pkg/allocation"
	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/schema"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

const (
	// ChecksumMetadataKey holds the hex xxh3 of the uploaded file.
	ChecksumMetadataKey = "xxh3"
	RowsMetadataKey     = "rows"

	parallelism = 4
)

// Uploader stores a file under a key.
type Uploader interface {
	Put(ctx context.Context, key string, body io.ReadSeeker, metadata map[string]string) error
}

// Writer serializes a period's table to a local Parquet file and uploads it
// to its partition path.
type Writer struct {
	logger   log.FieldLogger
	uploader Uploader
	prefix   string
	dir      string
}

// NewWriter returns a Writer staging files in dir, or the system temporary
// directory when dir is empty.
func NewWriter(logger log.FieldLogger, uploader Uploader, prefix, dir string) *Writer {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Writer{
		logger:   logger.WithField("component", "writer"),
		uploader: uploader,
		prefix:   prefix,
		dir:      dir,
	}
}

// Write uploads table as the artifact of ent for p and returns its key. The
// file is written under a temporary name and only renamed once complete;
// local files are removed whatever the outcome.
func (w *Writer) Write(ctx context.Context, ent entity.Entity, p window.Period, table *allocation.Table) (string, error) {
	name := ArtifactName(ent, p)
	key := PartitionPath(w.prefix, ent, p)
	tmpPath := filepath.Join(w.dir, "."+name+".tmp")
	finalPath := filepath.Join(w.dir, name)
	defer os.Remove(tmpPath)
	defer os.Remove(finalPath)

	logger := w.logger.WithFields(log.Fields{"period": p.Date, "key": key})

	start := time.Now()
	if err := WriteParquet(tmpPath, table); err != nil {
		return "", exporterrors.StoreWrite(exporterrors.StageWrite, fmt.Errorf("can't write %s: %v", tmpPath, err))
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", exporterrors.StoreWrite(exporterrors.StageWrite, err)
	}

	f, err := os.Open(finalPath)
	if err != nil {
		return "", exporterrors.StoreWrite(exporterrors.StageWrite, err)
	}
	defer f.Close()

	sum, err := checksum(f)
	if err != nil {
		return "", exporterrors.StoreWrite(exporterrors.StageWrite, err)
	}
	logger.Debugf("wrote %d rows to %s in %s", table.Len(), finalPath, time.Since(start))

	metadata := map[string]string{
		ChecksumMetadataKey: sum,
		RowsMetadataKey:     strconv.Itoa(table.Len()),
	}
	logger.Infof("uploading %s", name)
	if err := w.uploader.Put(ctx, key, f, metadata); err != nil {
		return "", exporterrors.StoreWrite(exporterrors.StageWrite, err)
	}
	return key, nil
}

// checksum hashes f and rewinds it.
func checksum(f io.ReadSeeker) (string, error) {
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// ParquetSchema returns the column metadata of a table, in column order.
func ParquetSchema(columns []schema.Column) []string {
	md := make([]string, len(columns))
	for i, c := range columns {
		switch c.Type {
		case schema.Double:
			md[i] = fmt.Sprintf("name=%s, type=DOUBLE", c.OutputName)
		case schema.Timestamp:
			md[i] = fmt.Sprintf("name=%s, type=INT64, convertedtype=TIMESTAMP_MILLIS", c.OutputName)
		default:
			md[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY", c.OutputName)
		}
	}
	return md
}

// WriteParquet writes table as a snappy compressed Parquet file at path.
func WriteParquet(path string, table *allocation.Table) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewCSVWriter(ParquetSchema(table.Columns), fw, parallelism)
	if err != nil {
		fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range table.Rows {
		// the writer keeps a reference to rec until WriteStop
		rec := make([]interface{}, len(table.Columns))
		for i, c := range table.Columns {
			rec[i] = parquetValue(c, row[i])
		}
		if err := pw.Write(rec); err != nil {
			fw.Close()
			return err
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return err
	}
	return fw.Close()
}

func parquetValue(c schema.Column, v interface{}) interface{} {
	switch c.Type {
	case schema.Timestamp:
		if t, ok := v.(time.Time); ok {
			return t.UnixNano() / int64(time.Millisecond)
		}
		return schema.EpochTimestamp.Unix() * 1000
	case schema.Double:
		if f, ok := v.(float64); ok {
			return f
		}
		return float64(0)
	default:
		if s, ok := v.(string); ok {
			return s
		}
		return ""
	}
}
