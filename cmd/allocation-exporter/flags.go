package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// yesNo is a boolean flag that also accepts the yes/no/y/n spellings used by
// existing deployments, case-insensitively.
type yesNo bool

func newYesNo(value bool, p *bool) *yesNo {
	*p = value
	return (*yesNo)(p)
}

func (b *yesNo) String() string {
	if *b {
		return "yes"
	}
	return "no"
}

func (b *yesNo) Set(s string) error {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		*b = true
	case "no", "n", "false", "0":
		*b = false
	default:
		return fmt.Errorf("must be one of yes, no, y or n, got %q", s)
	}
	return nil
}

func (b *yesNo) Type() string {
	return "yes|no"
}

// seconds is a duration flag given as a number of seconds, fractions
// allowed. Go duration strings are accepted too.
type seconds time.Duration

func newSeconds(value time.Duration, p *time.Duration) *seconds {
	*p = value
	return (*seconds)(p)
}

func (s *seconds) String() string {
	return fmt.Sprintf("%g", time.Duration(*s).Seconds())
}

func (s *seconds) Set(v string) error {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		*s = seconds(time.Duration(f * float64(time.Second)))
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("must be a number of seconds or a duration, got %q", v)
	}
	*s = seconds(d)
	return nil
}

func (s *seconds) Type() string {
	return "seconds"
}

// SetFlagsFromEnv parses all registered flags in the given flagset,
// and if they are not already set it attempts to set their values from
// environment variables. Environment variables take the name of the flag but
// are UPPERCASE, and any dashes are replaced by underscores. Environment
// variables are prefixed by the given string followed by an underscore when
// prefix is not empty. For example, if prefix=PREFIX: some-flag => PREFIX_SOME_FLAG
func SetFlagsFromEnv(fs *pflag.FlagSet, prefix string) (err error) {
	alreadySet := make(map[string]bool)
	fs.Visit(func(f *pflag.Flag) {
		alreadySet[f.Name] = true
	})
	fs.VisitAll(func(f *pflag.Flag) {
		if !alreadySet[f.Name] {
			key := envName(prefix, f.Name)
			val := os.Getenv(key)
			if val != "" {
				if serr := fs.Set(f.Name, val); serr != nil {
					err = fmt.Errorf("invalid value %q for %s: %v", val, key, serr)
				}
			}
		}
	})
	return err
}

func envName(prefix, flagName string) string {
	key := strings.ToUpper(strings.Replace(flagName, "-", "_", -1))
	if prefix == "" {
		return key
	}
	return prefix + "_" + key
}

// SetFlagsFromFile reads a YAML document mapping flag names to values and
// applies each value whose flag was not already set on the command line or
// from the environment. Lists are joined with commas.
func SetFlagsFromFile(fs *pflag.FlagSet, path string) error {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return fmt.Errorf("unable to read config file: %v", err)
	}
	var values map[string]interface{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("unable to parse config file %s: %v", path, err)
	}
	for name, v := range values {
		f := fs.Lookup(name)
		if f == nil {
			return fmt.Errorf("unknown option %q in config file %s", name, path)
		}
		if f.Changed {
			continue
		}
		if err := fs.Set(name, yamlValueString(v)); err != nil {
			return fmt.Errorf("invalid value for %s in config file %s: %v", name, path, err)
		}
	}
	return nil
}

func yamlValueString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = fmt.Sprint(item)
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}
