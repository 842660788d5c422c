package query

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"

	"github.com/meghashyamc/omnisearch/db/itemcache"
	"github.com/stretchr/testify/require"
)

func assetID(a testAsset) string { return strconv.FormatInt(a.id, 10) }

func assetWords(a testAsset) []string { return strings.Fields(a.name) }

func newTestEngine(resolve NestedResolver, opts Options) *Engine[testAsset] {
	return NewEngine(newTestRegistry(resolve), assetID, assetWords, opts)
}

func matchedIDs(matches []Match[testAsset]) []int64 {
	ids := make([]int64, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.Item.id)
	}
	return ids
}

var engineTestAssets = []testAsset{
	{id: 1, name: "foo wall", typ: "Texture", layer: 3, tags: []string{"outdoor"}, refs: []string{"5"}},
	{id: 2, name: "foo crate", typ: "Mesh", layer: 5, tags: []string{"indoor", "props"}, refs: []string{"6"}},
	{id: 3, name: "bar floor", typ: "Texture", layer: 8},
}

func TestFilterScenarios(t *testing.T) {
	testCases := []struct {
		name     string
		query    string
		expected []int64
	}{
		{name: "TextAndFilter", query: "foo t:Texture", expected: []int64{1}},
		{name: "NegatedFilter", query: "-t:Texture", expected: []int64{2}},
		{name: "EnumPrefix", query: "t:tex", expected: []int64{1, 3}},
		{name: "Or", query: "wall or crate", expected: []int64{1, 2}},
		{name: "Grouping", query: "foo -(t:Mesh or layer>4)", expected: []int64{1}},
		{name: "StringsMembership", query: "tag=props", expected: []int64{2}},
		{name: "StringsNotEqual", query: "tag!=props", expected: []int64{1, 3}},
		{name: "StringsColonMembership", query: "tag:props", expected: []int64{2}},
		{name: "StringsColonNotSubstring", query: "tag:prop", expected: []int64{}},
		{name: "StringsContains", query: "tag~=indoor", expected: []int64{2}},
		{name: "QuotedPhrase", query: `"foo crate"`, expected: []int64{2}},
		{name: "NoMatch", query: "nothing", expected: []int64{}},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			engine := newTestEngine(nil, Options{})
			matches, errs := engine.Filter(context.Background(), testCase.query, engineTestAssets)
			assert.Empty(errs)
			assert.ElementsMatch(testCase.expected, matchedIDs(matches))
		})
	}
}

func TestFilterTypedScenarios(t *testing.T) {
	assert := require.New(t)
	items := []testAsset{
		{id: 1, name: "foo", typ: "Texture"},
		{id: 2, name: "foobar", typ: "Material"},
		{id: 3, name: "bar", typ: "Texture"},
	}
	engine := newTestEngine(nil, Options{})

	matches, _ := engine.Filter(context.Background(), "foo t:Texture", items)
	assert.Equal([]int64{1}, matchedIDs(matches))

	matches, _ = engine.Filter(context.Background(), "-t:Texture", items)
	assert.Equal([]int64{2}, matchedIDs(matches))
}

func TestFilterNestedResolvedOnce(t *testing.T) {
	assert := require.New(t)

	calls := 0
	var seen string
	resolve := func(ctx context.Context, text string) ([]string, error) {
		calls++
		seen = text
		return []string{"5"}, nil
	}
	engine := newTestEngine(resolve, Options{})

	matches, errs := engine.Filter(context.Background(), "ref={t:Texture}", engineTestAssets)
	assert.Empty(errs)
	assert.Equal([]int64{1}, matchedIDs(matches))
	assert.Equal(1, calls)
	assert.Equal("t:Texture", seen)

	matches, _ = engine.Filter(context.Background(), "ref!={t:Texture}", engineTestAssets)
	assert.ElementsMatch([]int64{2, 3}, matchedIDs(matches))
	assert.Equal(2, calls)
}

func TestFilterNestedFailure(t *testing.T) {
	assert := require.New(t)

	engine := newTestEngine(func(context.Context, string) ([]string, error) {
		return nil, errors.New("scene unavailable")
	}, Options{})
	matches, errs := engine.Filter(context.Background(), "ref={t:Texture}", engineTestAssets)
	assert.Empty(matches)
	assert.Len(errs, 1)
	assert.Contains(errs[0].Reason, "scene unavailable")

	engine = newTestEngine(func(context.Context, string) ([]string, error) { panic("boom") }, Options{})
	matches, errs = engine.Filter(context.Background(), "ref={t:Texture}", engineTestAssets)
	assert.Empty(matches)
	assert.Len(errs, 1)
}

func TestFilterOrderingIsStrict(t *testing.T) {
	assert := require.New(t)
	engine := newTestEngine(nil, Options{})

	matches, _ := engine.Filter(context.Background(), "layer>3", engineTestAssets)
	assert.ElementsMatch([]int64{2, 3}, matchedIDs(matches))

	matches, _ = engine.Filter(context.Background(), "layer>=3", engineTestAssets)
	assert.ElementsMatch([]int64{1, 2, 3}, matchedIDs(matches))

	matches, _ = engine.Filter(context.Background(), "layer<5", engineTestAssets)
	assert.ElementsMatch([]int64{1}, matchedIDs(matches))
}

func TestDoubleNegation(t *testing.T) {
	engine := newTestEngine(nil, Options{})
	ctx := context.Background()

	for _, clause := range []string{"t:Texture", "foo", "layer>4", "tag=props", "wall or crate"} {
		t.Run(clause, func(t *testing.T) {
			assert := require.New(t)
			plain := engine.Compile(ctx, engine.Parse(clause))
			twice := engine.Compile(ctx, engine.Parse("-(-("+clause+"))"))
			for _, item := range engineTestAssets {
				keepPlain, scorePlain := plain.Evaluate(item)
				keepTwice, scoreTwice := twice.Evaluate(item)
				assert.Equal(keepPlain, keepTwice, "item %d", item.id)
				assert.Equal(scorePlain, scoreTwice, "item %d", item.id)
			}
		})
	}
}

func TestFilterIsIdempotent(t *testing.T) {
	assert := require.New(t)
	engine := newTestEngine(nil, Options{Cache: itemcache.New()})

	first, _ := engine.Filter(context.Background(), "foo or layer>4", engineTestAssets)
	second, _ := engine.Filter(context.Background(), "foo or layer>4", engineTestAssets)
	assert.Equal(first, second)
}

func TestFaultyExtractorNeverMatches(t *testing.T) {
	assert := require.New(t)
	engine := newTestEngine(nil, Options{})

	var matches []Match[testAsset]
	assert.NotPanics(func() {
		matches, _ = engine.Filter(context.Background(), "broken:o", engineTestAssets)
	})
	assert.Equal([]int64{1}, matchedIDs(matches))
}

func TestFuzzyTerms(t *testing.T) {
	assert := require.New(t)
	items := []testAsset{{id: 1, name: "foobar"}, {id: 2, name: "baz"}}

	engine := newTestEngine(nil, Options{})
	matches, _ := engine.Filter(context.Background(), "fbr", items)
	assert.Empty(matches)

	matches, _ = engine.Filter(context.Background(), "+fuzzy fbr", items)
	assert.Equal([]int64{1}, matchedIDs(matches))

	ev := engine.Compile(context.Background(), engine.Parse("fbr")).WithFuzzy(true)
	assert.Equal([]int64{1}, matchedIDs(ev.Apply(items)))

	strict := newTestEngine(nil, Options{FuzzyMinScore: fuzzyThreshold(1000)})
	matches, _ = strict.Filter(context.Background(), "+fuzzy fbr", items)
	assert.Empty(matches)
}

func fuzzyThreshold(v int64) *int64 { return &v }

func TestFuzzyThreshold(t *testing.T) {
	testCases := []struct {
		name     string
		opts     Options
		expected int64
	}{
		{name: "Default", opts: Options{}, expected: DefaultFuzzyMinScore},
		{name: "Zero", opts: Options{FuzzyMinScore: fuzzyThreshold(0)}, expected: 0},
		{name: "Positive", opts: Options{FuzzyMinScore: fuzzyThreshold(5)}, expected: 5},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			assert := require.New(t)
			assert.Equal(testCase.expected, newTestEngine(nil, testCase.opts).fuzzyMin)
		})
	}
}

func TestEmptyAndInvalidQueries(t *testing.T) {
	assert := require.New(t)

	all := newTestEngine(nil, Options{MatchAllIfEmpty: true})
	matches, errs := all.Filter(context.Background(), "  ", engineTestAssets)
	assert.Empty(errs)
	assert.Len(matches, len(engineTestAssets))

	none := newTestEngine(nil, Options{})
	matches, _ = none.Filter(context.Background(), "", engineTestAssets)
	assert.Empty(matches)

	matches, errs = all.Filter(context.Background(), "(", engineTestAssets)
	assert.NotEmpty(errs)
	assert.Empty(matches)
}

func TestScoresOrderMatches(t *testing.T) {
	assert := require.New(t)
	items := []testAsset{
		{id: 1, name: "foobar"},
		{id: 2, name: "foo"},
	}
	engine := newTestEngine(nil, Options{})

	matches, _ := engine.Filter(context.Background(), "foo", items)
	assert.Equal([]int64{2, 1}, matchedIDs(matches))
	assert.Greater(matches[0].Score, matches[1].Score)
}

func TestWordsAreCachedPerItem(t *testing.T) {
	assert := require.New(t)

	calls := 0
	words := func(a testAsset) []string {
		calls++
		return strings.Fields(a.name)
	}
	cache := itemcache.New()
	engine := NewEngine(newTestRegistry(nil), assetID, words, Options{Cache: cache, Scope: "asset:"})

	engine.Filter(context.Background(), "foo", engineTestAssets)
	engine.Filter(context.Background(), "wall", engineTestAssets)
	assert.Equal(len(engineTestAssets), calls)

	cache.Invalidate("asset:1")
	engine.Filter(context.Background(), "wall", engineTestAssets)
	assert.Equal(len(engineTestAssets)+1, calls)
}
