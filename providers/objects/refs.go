package objects

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/meghashyamc/omnisearch/query"
)

const (
	globalIDPrefix  = "GlobalObjectId_V1-"
	assetPathPrefix = "assets/"
	hashedPrefix    = "#"
)

// Reference operands are tried in this order. The last parser always
// succeeds so a ref clause never fails to parse.
var refParsers = []query.TypeParser{
	parseGlobalID,
	parseAssetPath,
	parseNumericID,
	parseHashed,
}

func parseGlobalID(raw string) (query.Value, bool) {
	if len(raw) <= len(globalIDPrefix) || !strings.EqualFold(raw[:len(globalIDPrefix)], globalIDPrefix) {
		return query.Value{}, false
	}
	return parseNumericID(raw[len(globalIDPrefix):])
}

func parseAssetPath(raw string) (query.Value, bool) {
	path := strings.ToLower(strings.ReplaceAll(raw, "\\", "/"))
	if !strings.HasPrefix(path, assetPathPrefix) {
		return query.Value{}, false
	}
	return query.StringValue(path), true
}

func parseNumericID(raw string) (query.Value, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return query.Value{}, false
	}
	return query.StringValue(strconv.FormatInt(id, 10)), true
}

func parseHashed(raw string) (query.Value, bool) {
	return query.StringValue(hashedPrefix + strconv.FormatUint(xxhash.Sum64String(strings.ToLower(raw)), 16)), true
}

// canonicalRef maps a reference in any accepted form to the key ref
// filters compare against. Object references become the object's identity.
func canonicalRef(raw string) string {
	for _, parse := range refParsers {
		if v, ok := parse(raw); ok {
			return v.Str()
		}
	}
	return ""
}

// objectRef returns the object id a reference points at, if it points at
// an object rather than an asset or an opaque name.
func objectRef(raw string) (int64, bool) {
	v, ok := parseGlobalID(raw)
	if !ok {
		v, ok = parseNumericID(raw)
	}
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(v.Str(), 10, 64)
	return id, err == nil
}
