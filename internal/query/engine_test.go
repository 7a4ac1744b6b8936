package query

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockd/internal/store"
	"stockd/internal/types"
)

const fixture = `[
	{"identifier":"1301_T","name":"Kyokuyo","sector":"Fishery, Agriculture & Forestry","size_class":7},
	{"identifier":"7203_T","name":"Toyota Motor","sector":"Transportation Equipment","size_class":1},
	{"identifier":"6201_T","name":"Toyota Industries","sector":"Transportation Equipment","size_class":2},
	{"identifier":" 7203_T ","name":"Toyota Duplicate","sector":"Transportation Equipment","size_class":1},
	{"identifier":"6758_T","name":"Sony Group","sector":"Electric Appliances","size_class":1.0},
	{"identifier":"9999_X","name":"Unclassified","sector":"Other","size_class":"1"},
	{"identifier":"0000_X"}
]`

func load(t *testing.T, src string) []types.Record {
	t.Helper()
	var rs []types.Record
	require.NoError(t, json.Unmarshal([]byte(src), &rs))
	return rs
}

func newEngine(t *testing.T) (*Engine, []types.Record) {
	t.Helper()
	rs := load(t, fixture)
	return NewEngine(store.New(rs), types.DefaultSchema()), rs
}

func ids(rs []types.Record) []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Text("identifier")
	}
	return out
}

func TestByCodeEveryRecordFindsItselfOrFirstDuplicate(t *testing.T) {
	e, rs := newEngine(t)
	for _, r := range rs {
		code := r.Text("identifier")
		got, ok := e.ByCode(code).First()
		require.True(t, ok, "code=%q", code)
		assert.Equal(t, types.DefaultSchema().IdentifierOf(r), types.DefaultSchema().IdentifierOf(got))
	}
}

func TestByCodeFirstMatchWins(t *testing.T) {
	e, rs := newEngine(t)

	got, ok := e.ByCode("7203_T").First()
	require.True(t, ok)
	assert.True(t, got.Equal(rs[1]), "duplicate identifiers resolve to the first in load order")

	got, ok = e.ByCode("\t7203_T  ").First()
	require.True(t, ok)
	assert.True(t, got.Equal(rs[1]))
}

func TestByCodeNotFound(t *testing.T) {
	e, _ := newEngine(t)

	out := e.ByCode("9999_T")
	assert.False(t, out.Found())
	assert.Equal(t, "stock code 9999_T not found", out.Reason())
	assert.Empty(t, out.Records())

	out = e.ByCode("")
	assert.False(t, out.Found(), "no record has an empty identifier")
}

func TestByCodeNumericIdentifier(t *testing.T) {
	e := NewEngine(store.New(load(t, `[{"identifier":1301,"name":"Kyokuyo"}]`)), types.DefaultSchema())
	assert.True(t, e.ByCode("1301").Found())
	assert.True(t, e.ByCode(" 1301 ").Found())
}

func TestSearchByNameIsCaseInsensitive(t *testing.T) {
	e, _ := newEngine(t)

	lower := e.SearchByName("toyota")
	upper := e.SearchByName("TOYOTA")
	require.True(t, lower.Found())
	if diff := cmp.Diff(lower.Records(), upper.Records()); diff != "" {
		t.Fatalf("case changed results (-lower +upper):\n%s", diff)
	}
	assert.Equal(t, []string{"7203_T", "6201_T", " 7203_T "}, ids(lower.Records()))
}

func TestSearchByNameSubstring(t *testing.T) {
	e, _ := newEngine(t)
	assert.Equal(t, []string{"6758_T"}, ids(e.SearchByName("ony gr").Records()))
}

func TestSearchByNameEmptyMatchesEveryNamedRecord(t *testing.T) {
	e, rs := newEngine(t)
	out := e.SearchByName("")
	require.True(t, out.Found())
	assert.Len(t, out.Records(), len(rs), "the empty string is contained in every name, including a missing one")
}

func TestSearchByNameNotFound(t *testing.T) {
	e, _ := newEngine(t)
	out := e.SearchByName("honda")
	assert.False(t, out.Found())
	assert.Equal(t, "no stocks with a name containing 'honda'", out.Reason())
}

func TestByIndustry(t *testing.T) {
	e, _ := newEngine(t)

	out := e.ByIndustry("transportation")
	require.True(t, out.Found())
	assert.Equal(t, []string{"7203_T", "6201_T", " 7203_T "}, ids(out.Records()))

	out = e.ByIndustry("FISHERY")
	assert.Equal(t, []string{"1301_T"}, ids(out.Records()))

	out = e.ByIndustry("Mining")
	assert.False(t, out.Found())
	assert.Equal(t, "no stocks in industry 'Mining'", out.Reason())
}

func TestByIndustryJapanese(t *testing.T) {
	rs := load(t, `[
		{"コード":"1301","銘柄名":"極洋","33業種区分":"水産・農林業","規模コード":7},
		{"コード":"7203","銘柄名":"トヨタ自動車","33業種区分":"輸送用機器","規模コード":1}
	]`)
	e := NewEngine(store.New(rs), types.JPXSchema())

	assert.Equal(t, 1, len(e.ByIndustry("水産").Records()))
	assert.Equal(t, 1, len(e.SearchByName("トヨタ").Records()))
	assert.Equal(t, 1, len(e.BySize(7, true, "7").Records()))
}

func TestBySizeExactSubsetInLoadOrder(t *testing.T) {
	e, rs := newEngine(t)

	for _, n := range []int64{-1, 0, 1, 2, 3, 7} {
		var want []string
		for _, r := range rs {
			if v, ok := r.Int64("size_class"); ok && v == n {
				want = append(want, r.Text("identifier"))
			}
		}
		out := e.BySize(n, true, "x")
		if len(want) == 0 {
			assert.False(t, out.Found(), "n=%d", n)
			continue
		}
		assert.Equal(t, want, ids(out.Records()), "n=%d", n)
	}

	assert.Equal(t, []string{"7203_T", " 7203_T ", "6758_T"}, ids(e.BySize(1, true, "1").Records()),
		"integral floats match, numeric strings do not")
}

func TestBySizeNonInteger(t *testing.T) {
	e, _ := newEngine(t)
	out := e.BySize(0, false, "1.5")
	assert.False(t, out.Found())
	assert.Equal(t, "no stocks with size code 1.5", out.Reason())
}

func TestAll(t *testing.T) {
	e, rs := newEngine(t)
	out := e.All()
	require.True(t, out.Found())
	if diff := cmp.Diff(rs, out.Records()); diff != "" {
		t.Fatalf("all records mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyStoreReportsNoData(t *testing.T) {
	e := NewEngine(store.New(nil), types.DefaultSchema())
	for name, out := range map[string]Outcome{
		"code":     e.ByCode("1301_T"),
		"name":     e.SearchByName("a"),
		"industry": e.ByIndustry("a"),
		"size":     e.BySize(1, true, "1"),
		"all":      e.All(),
	} {
		assert.False(t, out.Found(), name)
		assert.Equal(t, NoData, out.Reason(), name)
	}
}

func TestNilStore(t *testing.T) {
	e := NewEngine(nil, types.DefaultSchema())
	assert.False(t, e.All().Found())
}
