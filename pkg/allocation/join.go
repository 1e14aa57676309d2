// Package allocation joins allocation records with node assets and
// normalizes them into the fixed output schema.
package allocation

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/kube-reporting/allocation-exporter/pkg/entity"
	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/kubecost"
	"github.com/kube-reporting/allocation-exporter/pkg/schema"
)

// DefaultAssetProvider is the provider segment of node asset keys on EKS.
const DefaultAssetProvider = "AWS"

// AssetKey composes the key the assets API uses for a Kubernetes node.
func AssetKey(provider, account, cluster, providerID, node string) string {
	return strings.Join([]string{
		provider,
		"__undefined__",
		account,
		"Compute",
		cluster,
		"Node",
		"Kubernetes",
		providerID,
		node,
	}, "/")
}

// AssetIndex looks node assets up by key.
type AssetIndex struct {
	byKey map[string]map[string]interface{}
	// byProviderID is only built when legacy matching is enabled.
	byProviderID map[string]map[string]interface{}
}

// NewAssetIndex indexes the assets of entries. With legacyMatch, assets can
// also be found by the second to last segment of their key, which older
// versions matched against the allocation's providerID.
func NewAssetIndex(entries []kubecost.Entry, legacyMatch bool) *AssetIndex {
	idx := &AssetIndex{byKey: make(map[string]map[string]interface{})}
	if legacyMatch {
		idx.byProviderID = make(map[string]map[string]interface{})
	}
	for _, entry := range entries {
		keys := make([]string, 0, len(entry))
		for k := range entry {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			asset, ok := entry[k].(map[string]interface{})
			if !ok {
				continue
			}
			if _, exists := idx.byKey[k]; !exists {
				idx.byKey[k] = asset
			}
			if idx.byProviderID == nil {
				continue
			}
			segments := strings.Split(k, "/")
			if len(segments) < 2 {
				continue
			}
			if _, exists := idx.byProviderID[segments[len(segments)-2]]; !exists {
				idx.byProviderID[segments[len(segments)-2]] = asset
			}
		}
	}
	return idx
}

func (idx *AssetIndex) Len() int {
	return len(idx.byKey)
}

// Lookup returns the asset stored under key, falling back to the legacy
// providerID match when enabled.
func (idx *AssetIndex) Lookup(key, providerID string) (map[string]interface{}, bool) {
	if asset, ok := idx.byKey[key]; ok {
		return asset, true
	}
	if idx.byProviderID != nil {
		asset, ok := idx.byProviderID[providerID]
		return asset, ok
	}
	return nil, false
}

// JoinStats counts the outcome of a join.
type JoinStats struct {
	Matched int
	Missed  int
}

// Joiner attaches the cluster identity and node asset attributes to
// allocation records.
type Joiner struct {
	logger   log.FieldLogger
	entity   entity.Entity
	provider string
}

func NewJoiner(logger log.FieldLogger, ent entity.Entity, assetProvider string) *Joiner {
	if assetProvider == "" {
		assetProvider = DefaultAssetProvider
	}
	return &Joiner{
		logger:   logger.WithField("component", "joiner"),
		entity:   ent,
		provider: assetProvider,
	}
}

// Join enriches every record of entries in place. A nil index only adds the
// cluster identity. Records whose asset cannot be found get the default of
// every asset attribute.
func (j *Joiner) Join(entries []kubecost.Entry, index *AssetIndex) JoinStats {
	var stats JoinStats
	for _, entry := range entries {
		for name, v := range entry {
			record, ok := v.(map[string]interface{})
			if !ok {
				continue
			}
			props, ok := record["properties"].(map[string]interface{})
			if !ok {
				continue
			}
			if _, ok := props["cluster"]; ok {
				props["clusterid"] = j.entity.ID
				props["eksClusterName"] = j.entity.Name
			}
			if index == nil {
				continue
			}

			providerID, hasProviderID := props["providerID"].(string)
			cluster, hasCluster := props["cluster"].(string)
			node, hasNode := props["node"].(string)
			if !hasProviderID || !hasCluster || !hasNode {
				continue
			}

			key := AssetKey(j.provider, j.entity.AccountID, cluster, providerID, node)
			asset, found := index.Lookup(key, providerID)
			if found {
				stats.Matched++
			} else {
				stats.Missed++
				j.logger.Debug(exporterrors.New(exporterrors.KindJoinMiss, exporterrors.StageJoin,
					fmt.Errorf("no asset %q for allocation %q, using defaults", key, name)))
			}
			for _, attr := range schema.AssetAttributes {
				props[attr.Property] = attr.Default
				if !found {
					continue
				}
				if value, ok := lookupString(asset, attr.Path); ok {
					props[attr.Property] = value
				}
			}
		}
	}
	return stats
}

// lookupString follows path through nested objects and returns the leaf
// rendered as a string.
func lookupString(obj map[string]interface{}, path []string) (string, bool) {
	var cur interface{} = obj
	for _, p := range path {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		if cur, ok = m[p]; !ok {
			return "", false
		}
	}
	switch v := cur.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case json.Number:
		return v.String(), true
	case map[string]interface{}, []interface{}:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}
