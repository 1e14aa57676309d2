package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Execer runs statements that return no rows. *sql.DB satisfies it.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	Close() error
}

type loggingExecer struct {
	execer     Execer
	logger     log.FieldLogger
	logQueries bool
}

// NewLoggingExecer wraps execer, logging each statement at debug level when
// logQueries is set.
func NewLoggingExecer(execer Execer, logger log.FieldLogger, logQueries bool) Execer {
	return &loggingExecer{
		execer:     execer,
		logger:     logger,
		logQueries: logQueries,
	}
}

func (e *loggingExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := e.execer.ExecContext(ctx, query, args...)
	if e.logQueries {
		logger := e.logger.WithField("duration", time.Since(start))
		if err != nil {
			logger = logger.WithError(err)
		}
		logger.Debugf("EXEC: %s [%s]", query, argsString(args...))
	}
	return res, err
}

func (e *loggingExecer) Close() error {
	return e.execer.Close()
}

// argsString pretty prints arguments passed into it for logging query
// arguments
func argsString(args ...interface{}) string {
	var margs string
	for i, a := range args {
		var v interface{} = a
		if x, ok := v.(driver.Valuer); ok {
			y, err := x.Value()
			if err == nil {
				v = y
			}
		}
		switch v.(type) {
		case string, []byte:
			v = fmt.Sprintf("%q", v)
		default:
			v = fmt.Sprintf("%v", v)
		}
		margs += fmt.Sprintf("%d:%s", i+1, v)
		if i+1 < len(args) {
			margs += " "
		}
	}
	return margs
}
