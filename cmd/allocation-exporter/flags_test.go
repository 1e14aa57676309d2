package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/allocation-exporter/pkg/exporter"
)

type testFlags struct {
	bucket   string
	labels   []string
	paginate bool
	timeout  time.Duration
	days     int
}

func newTestFlagSet() (*pflag.FlagSet, *testFlags) {
	var tf testFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.StringVar(&tf.bucket, "s3-bucket-name", "", "")
	fs.StringSliceVar(&tf.labels, "labels", nil, "")
	fs.Var(newYesNo(true, &tf.paginate), "kubecost-allocation-api-paginate", "")
	fs.Var(newSeconds(10*time.Second, &tf.timeout), "connection-timeout", "")
	fs.IntVar(&tf.days, "backfill-period-days", 15, "")
	return fs, &tf
}

func TestYesNo(t *testing.T) {
	tests := map[string]struct {
		value       string
		expected    bool
		expectedErr bool
	}{
		"yes":        {value: "yes", expected: true},
		"upper Y":    {value: "Y", expected: true},
		"true":       {value: "true", expected: true},
		"no":         {value: "No", expected: false},
		"n":          {value: "n", expected: false},
		"false":      {value: "false", expected: false},
		"whitespace": {value: " yes ", expected: true},
		"invalid":    {value: "maybe", expectedErr: true},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			var b bool
			v := newYesNo(!tt.expected, &b)
			err := v.Set(tt.value)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, b)
		})
	}
}

func TestSeconds(t *testing.T) {
	tests := map[string]struct {
		value       string
		expected    time.Duration
		expectedErr bool
	}{
		"integer":  {value: "60", expected: 60 * time.Second},
		"fraction": {value: "2.5", expected: 2500 * time.Millisecond},
		"duration": {value: "1m30s", expected: 90 * time.Second},
		"invalid":  {value: "soon", expectedErr: true},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			var d time.Duration
			v := newSeconds(time.Second, &d)
			err := v.Set(tt.value)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
	var d time.Duration
	assert.Equal(t, "10", newSeconds(10*time.Second, &d).String())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "S3_BUCKET_NAME", envName("", "s3-bucket-name"))
	assert.Equal(t, "EXPORTER_S3_BUCKET_NAME", envName("EXPORTER", "s3-bucket-name"))
}

func TestSetFlagsFromEnv(t *testing.T) {
	fs, tf := newTestFlagSet()
	require.NoError(t, fs.Parse([]string{"--s3-bucket-name=from-cli"}))

	t.Setenv("S3_BUCKET_NAME", "from-env")
	t.Setenv("LABELS", "app,team")
	t.Setenv("KUBECOST_ALLOCATION_API_PAGINATE", "no")
	t.Setenv("CONNECTION_TIMEOUT", "5")

	require.NoError(t, SetFlagsFromEnv(fs, ""))
	assert.Equal(t, "from-cli", tf.bucket)
	assert.Equal(t, []string{"app", "team"}, tf.labels)
	assert.False(t, tf.paginate)
	assert.Equal(t, 5*time.Second, tf.timeout)
	assert.Equal(t, 15, tf.days)
}

func TestSetFlagsFromEnvInvalidValue(t *testing.T) {
	fs, _ := newTestFlagSet()
	t.Setenv("BACKFILL_PERIOD_DAYS", "many")

	err := SetFlagsFromEnv(fs, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKFILL_PERIOD_DAYS")
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, ioutil.WriteFile(path, []byte(content), 0600))
	return path
}

func TestSetFlagsFromFile(t *testing.T) {
	tests := map[string]struct {
		args        []string
		env         map[string]string
		content     string
		check       func(t *testing.T, tf *testFlags)
		expectedErr string
	}{
		"applies values": {
			content: strings.Join([]string{
				"s3-bucket-name: from-file",
				"labels: [app, team]",
				"kubecost-allocation-api-paginate: false",
				"connection-timeout: 2.5",
				"backfill-period-days: 30",
			}, "\n"),
			check: func(t *testing.T, tf *testFlags) {
				assert.Equal(t, "from-file", tf.bucket)
				assert.Equal(t, []string{"app", "team"}, tf.labels)
				assert.False(t, tf.paginate)
				assert.Equal(t, 2500*time.Millisecond, tf.timeout)
				assert.Equal(t, 30, tf.days)
			},
		},
		"command line wins": {
			args:    []string{"--backfill-period-days=7"},
			content: "backfill-period-days: 30",
			check: func(t *testing.T, tf *testFlags) {
				assert.Equal(t, 7, tf.days)
			},
		},
		"environment wins": {
			env:     map[string]string{"S3_BUCKET_NAME": "from-env"},
			content: "s3-bucket-name: from-file",
			check: func(t *testing.T, tf *testFlags) {
				assert.Equal(t, "from-env", tf.bucket)
			},
		},
		"unknown option": {
			content:     "s3-bucket: typo",
			expectedErr: `unknown option "s3-bucket"`,
		},
		"invalid value": {
			content:     "kubecost-allocation-api-paginate: sometimes",
			expectedErr: "invalid value for kubecost-allocation-api-paginate",
		},
		"malformed yaml": {
			content:     "labels: [app",
			expectedErr: "unable to parse config file",
		},
	}
	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			fs, tf := newTestFlagSet()
			require.NoError(t, fs.Parse(tt.args))
			require.NoError(t, SetFlagsFromEnv(fs, ""))

			err := SetFlagsFromFile(fs, writeConfigFile(t, tt.content))
			if tt.expectedErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectedErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, tf)
		})
	}
}

func TestSetFlagsFromFileMissing(t *testing.T) {
	fs, _ := newTestFlagSet()
	err := SetFlagsFromFile(fs, filepath.Join(os.TempDir(), "does-not-exist", "config.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to read config file")
}

func TestDumpConfigMasksSecrets(t *testing.T) {
	c := exporter.Config{
		ClusterID:    "arn:aws:eks:us-east-1:111111111111:cluster/cluster-one",
		HivePassword: "hunter2",
	}
	c.Kubecost.TLS.CABundle = []byte("-----BEGIN CERTIFICATE-----")

	out := dumpConfig(c)
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "BEGIN CERTIFICATE")
	assert.Contains(t, out, "<redacted>")
	assert.Contains(t, out, "cluster-one")
	assert.Equal(t, "hunter2", c.HivePassword)
}

func TestKeysAndValuesFields(t *testing.T) {
	fields := keysAndValuesFields([]interface{}{"entry", 1, 2, "skipped", "dangling"})
	assert.Equal(t, 1, fields["entry"])
	assert.Len(t, fields, 1)
}
