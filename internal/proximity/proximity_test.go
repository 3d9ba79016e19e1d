package proximity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/voter-geo/internal/address"
	"github.com/sells-group/voter-geo/internal/voter"
	"github.com/sells-group/voter-geo/pkg/geocode"
)

func rec(id, first, last, street, zip string, coords ...float64) voter.Record {
	r := voter.Record{ID: id, FirstName: first, LastName: last, StreetAddress: street, State: "NC", Zip: zip, Status: "active"}
	if len(coords) == 2 {
		lat, lng := coords[0], coords[1]
		r.Lat, r.Lng = &lat, &lng
	}
	return r
}

func ids(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Record.ID
	}
	return out
}

func TestHaversine(t *testing.T) {
	d := Haversine(geocode.Point{Lat: 0, Lng: 0}, geocode.Point{Lat: 0, Lng: 1})
	assert.InDelta(t, 111195.0, d, 1.0)

	assert.Equal(t, 0.0, Haversine(geocode.Point{Lat: 35.22, Lng: -80.84}, geocode.Point{Lat: 35.22, Lng: -80.84}))

	// antipodal points stay finite
	d = Haversine(geocode.Point{Lat: 0, Lng: 0}, geocode.Point{Lat: 0, Lng: 180})
	assert.InDelta(t, 20015114.0, d, 10.0)
}

func TestRankByDistance_Order(t *testing.T) {
	center := geocode.Point{Lat: 35.0, Lng: -80.0}
	records := []voter.Record{
		rec("far", "A", "A", "1 Far Rd", "28202", 35.1, -80.0),
		rec("none", "B", "B", "2 Oak St", "28202"),
		rec("near", "C", "C", "3 Oak St", "28202", 35.001, -80.0),
	}

	got := RankByDistance(center, records, RingExactZip)
	assert.Equal(t, []string{"near", "far", "none"}, ids(got))
	assert.True(t, got[0].HasDistance)
	assert.InDelta(t, 111.2, got[0].DistanceMeters, 1.0)
	assert.False(t, got[2].HasDistance)
	assert.Equal(t, NoDistance, got[2].DistanceMeters)
}

func TestRankByDistance_TieBreakDeterministic(t *testing.T) {
	center := geocode.Point{Lat: 35.0, Lng: -80.0}
	// ~1 m apart: a tie, so street then house number decides
	records := []voter.Record{
		rec("oak-12", "A", "A", "12 Oak St", "28202", 35.00100, -80.0),
		rec("elm-9", "B", "B", "9 Elm Ave", "28202", 35.00101, -80.0),
		rec("oak-4", "C", "C", "4 Oak St", "28202", 35.00099, -80.0),
	}

	want := []string{"elm-9", "oak-4", "oak-12"}
	for i := range 5 {
		// permute the input; the output must not change
		perm := append([]voter.Record(nil), records[i%3:]...)
		perm = append(perm, records[:i%3]...)
		assert.Equal(t, want, ids(RankByDistance(center, perm, RingExactZip)), "permutation %d", i)
	}
}

func TestRankByDistance_OutsideEpsilonUsesDistance(t *testing.T) {
	center := geocode.Point{Lat: 35.0, Lng: -80.0}
	records := []voter.Record{
		rec("a-street", "A", "A", "1 Aspen St", "28202", 35.0002, -80.0), // ~22 m
		rec("z-street", "B", "B", "1 Zed St", "28202", 35.0001, -80.0),   // ~11 m
	}
	assert.Equal(t, []string{"z-street", "a-street"}, ids(RankByDistance(center, records, RingExactZip)))
}

func TestRankByDistance_MissingCoordsOrderedByStreet(t *testing.T) {
	records := []voter.Record{
		rec("3", "A", "A", "30 Oak St", "28202"),
		rec("1", "A", "A", "5 Oak St", "28202"),
		rec("2", "A", "A", "1 Birch Ln", "28202"),
	}
	got := RankByDistance(geocode.Point{}, records, RingExactZip)
	assert.Equal(t, []string{"2", "1", "3"}, ids(got))
}

func TestRankLexical_Fallback(t *testing.T) {
	query := address.Parse("123 Oak St, Apt 2, 28202")
	records := []voter.Record{
		rec("other", "A", "A", "5 Pine Rd", "28202"),
		rec("oak-200", "B", "B", "200 Oak St", "28202"),
		rec("oak-120", "C", "C", "120 Oak St", "28202"),
		rec("partial", "D", "D", "7 Oak Hill Dr", "28202"),
		rec("nohouse", "E", "E", "Oak St", "28202"),
	}

	got := RankLexical(query, records, RingExactZip)
	require.Len(t, got, len(records), "no record is dropped")
	assert.Equal(t, []string{"oak-120", "oak-200", "nohouse", "partial", "other"}, ids(got))
	assert.Equal(t, ScoreExact, got[0].Score)
	assert.Equal(t, ScoreSubstring, got[3].Score)
	assert.Equal(t, ScoreOther, got[4].Score)
}

func TestRankLexical_NoQueryStreetIsStillTotal(t *testing.T) {
	records := []voter.Record{
		rec("b", "Zed", "Smith", "1 Oak St", "28202"),
		rec("a", "Amy", "Smith", "1 Oak St", "28202"),
		rec("c", "Amy", "Jones", "1 Oak St", "28202"),
	}
	got := RankLexical(address.Parse("28202"), records, RingExactZip)
	assert.Equal(t, []string{"c", "a", "b"}, ids(got))

	again := RankLexical(address.Parse("28202"), []voter.Record{records[2], records[0], records[1]}, RingExactZip)
	assert.Equal(t, ids(got), ids(again))
}

func TestConcat_RingOrdering(t *testing.T) {
	center := geocode.Point{Lat: 35.0, Lng: -80.0}
	exact := RankByDistance(center, []voter.Record{
		rec("same-far", "A", "A", "1 Oak St", "28202", 35.5, -80.0),
		rec("same-none", "B", "B", "2 Oak St", "28202"),
	}, RingExactZip)
	prefix := RankByDistance(center, []voter.Record{
		rec("cross-near", "C", "C", "3 Elm Ave", "28203", 35.0001, -80.0),
	}, RingPrefix)

	got := Concat(exact, prefix)
	assert.Equal(t, []string{"same-far", "same-none", "cross-near"}, ids(got))
	for i, r := range got {
		if r.Ring == RingPrefix {
			for _, later := range got[i:] {
				assert.Equal(t, RingPrefix, later.Ring)
			}
			break
		}
	}
}

func TestDedup(t *testing.T) {
	results := RankLexical(address.Parsed{}, []voter.Record{
		rec("1", "Ann", "Lee", "10 Oak St", "28202"),
		rec("2", "ANN", "lee", "10  oak st", "28202"),
		rec("3", "Ann", "Lee", "12 Oak St", "28202"),
	}, RingExactZip)

	got := Dedup(results)
	assert.Equal(t, []string{"1", "3"}, ids(got))
}

func TestDedup_AcrossRingsKeepsFirst(t *testing.T) {
	a := RankLexical(address.Parsed{}, []voter.Record{rec("exact", "Ann", "Lee", "10 Oak St", "28202")}, RingExactZip)
	b := RankLexical(address.Parsed{}, []voter.Record{rec("prefix", "Ann", "Lee", "10 Oak St", "28203")}, RingPrefix)
	got := Dedup(Concat(a, b))
	require.Len(t, got, 1)
	assert.Equal(t, "exact", got[0].Record.ID)
}

func TestPaginate(t *testing.T) {
	records := make([]voter.Record, 137)
	for i := range records {
		records[i] = rec(fmt.Sprintf("%03d", i), "F", fmt.Sprintf("L%03d", i), fmt.Sprintf("%d Oak St", i+1), "28202")
	}
	results := RankLexical(address.Parsed{}, records, RingExactZip)

	page, total, hasMore := Paginate(results, 50, 100)
	assert.Len(t, page, 37)
	assert.Equal(t, 137, total)
	assert.False(t, hasMore)

	page, total, hasMore = Paginate(results, 50, 50)
	assert.Len(t, page, 50)
	assert.Equal(t, 137, total)
	assert.True(t, hasMore)

	page, _, hasMore = Paginate(results, 50, 200)
	assert.Empty(t, page)
	assert.False(t, hasMore)

	page, _, _ = Paginate(results, 50, -5)
	assert.Len(t, page, 50)
}
