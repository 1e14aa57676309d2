// Package artifact lays out and writes the per-day Parquet files in the
// store.
package artifact

import (
	"fmt"
	"path"
	"strings"

	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

// Extension of every artifact.
const Extension = "snappy.parquet"

func join(prefix string, elems ...string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		elems = append([]string{prefix}, elems...)
	}
	return strings.Join(elems, "/")
}

// EntityPrefix is the directory holding every artifact of ent:
// <prefix>/account_id=<account>/region=<region>/
func EntityPrefix(prefix string, ent entity.Entity) string {
	return join(prefix,
		"account_id="+ent.AccountID,
		"region="+ent.Region,
	) + "/"
}

// MonthPrefix is the directory holding the artifacts of ent for the month
// of p: <entity prefix>/year=<YYYY>/month=<MM>/
func MonthPrefix(prefix string, ent entity.Entity, p window.Period) string {
	return EntityPrefix(prefix, ent) + fmt.Sprintf("year=%s/month=%s/", p.Year(), p.Month())
}

// ArtifactName is the file name of the artifact of ent for p.
func ArtifactName(ent entity.Entity, p window.Period) string {
	return fmt.Sprintf("%s_%s.%s", p.Date, ent.Name, Extension)
}

// PartitionPath is the full key of the artifact of ent for p.
func PartitionPath(prefix string, ent entity.Entity, p window.Period) string {
	return MonthPrefix(prefix, ent, p) + ArtifactName(ent, p)
}

// Name is what ParseArtifactKey extracts from a key.
type Name struct {
	Date      string
	Entity    string
	Extension string
}

// ParseArtifactKey parses the <date>_<entity>.<ext> file name at the end of
// key.
func ParseArtifactKey(key string) (Name, bool) {
	base := path.Base(key)
	if len(base) < len(window.DateFormat)+2 || base[len(window.DateFormat)] != '_' {
		return Name{}, false
	}
	date := base[:len(window.DateFormat)]
	if _, err := window.ParsePeriod(date); err != nil {
		return Name{}, false
	}
	rest := base[len(window.DateFormat)+1:]
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 {
		return Name{}, false
	}
	return Name{
		Date:      date,
		Entity:    rest[:dot],
		Extension: rest[dot+1:],
	}, true
}
