package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/voter-geo/pkg/geocode"
)

func TestReadAddresses(t *testing.T) {
	input := "\ufeffid,street,city,state,zip\n" +
		"1,120 Oak St,Charlotte,NC,28202\n" +
		"2, 5 Pine Rd ,Charlotte,NC,28203\n" +
		"3,short,row\n" +
		",1 Main St,Raleigh,NC,27601\n"

	addrs, stats, err := ReadAddresses(context.Background(), strings.NewReader(input), Dialect{})
	require.NoError(t, err)

	assert.Equal(t, []geocode.AddressInput{
		{ID: "1", Street: "120 Oak St", City: "Charlotte", State: "NC", ZipCode: "28202"},
		{ID: "2", Street: "5 Pine Rd", City: "Charlotte", State: "NC", ZipCode: "28203"},
	}, addrs)
	assert.Equal(t, ReadStats{Rows: 4, Kept: 2, Skipped: 2}, stats)
}

func TestReadAddresses_NoHeader(t *testing.T) {
	addrs, stats, err := ReadAddresses(context.Background(),
		strings.NewReader("7,1 Main St,Raleigh,NC,27601\n"), Dialect{})
	require.NoError(t, err)
	require.Len(t, addrs, 1)
	assert.Equal(t, "7", addrs[0].ID)
	assert.Equal(t, 1, stats.Kept)
}

func TestReadVoters_NCExtract(t *testing.T) {
	input := "ncid\tvoter_reg_num\tfirst_name\tlast_name\tres_street_address\tres_city_desc\tstate_cd\tzip_code\tvoter_status_desc\tbirth_year\n" +
		"AA1\t000123\tANN\tLEE\t120  OAK   ST\tCHARLOTTE\tnc\t28202-1234\tACTIVE\t1980\n" +
		"\t000124\tBOB\tRAY\t5 PINE RD\tCHARLOTTE\tNC\t28202\tACTIVE\t1990\n"

	recs, stats, err := ReadVoters(context.Background(), strings.NewReader(input), Dialect{Delimiter: '\t'})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, ReadStats{Rows: 2, Kept: 1, Skipped: 1}, stats)

	r := recs[0]
	assert.Equal(t, "AA1", r.ID)
	assert.Equal(t, "000123", r.RegistrationID)
	assert.Equal(t, "120 OAK ST", r.StreetAddress)
	assert.Equal(t, "NC", r.State)
	assert.Equal(t, "28202", r.Zip)
	assert.Equal(t, "active", r.Status)
	require.NotNil(t, r.BirthDate)
	assert.Equal(t, 1980, r.BirthDate.Year())
	assert.False(t, r.HasCoordinates())
}

func TestReadVoters_CoordinatesAndBirthDate(t *testing.T) {
	input := "id,first_name,last_name,street_address,city,state,zip,status,birth_date,lat,lng\n" +
		"1,Ann,Lee,120 Oak St,Charlotte,NC,28202,active,1980-05-17,35.227,-80.843\n" +
		"2,Bob,Ray,5 Pine Rd,Charlotte,NC,28202,active,not-a-date,,\n"

	recs, _, err := ReadVoters(context.Background(), strings.NewReader(input), Dialect{})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	require.True(t, recs[0].HasCoordinates())
	assert.InDelta(t, 35.227, *recs[0].Lat, 1e-9)
	assert.Equal(t, "1980-05-17", recs[0].BirthDate.Format("2006-01-02"))

	assert.False(t, recs[1].HasCoordinates())
	assert.Nil(t, recs[1].BirthDate)
}

func TestReadVoters_MissingColumns(t *testing.T) {
	_, _, err := ReadVoters(context.Background(),
		strings.NewReader("first_name,last_name\nAnn,Lee\nBob,Ray\n"), Dialect{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing columns: id, street_address, zip")
}

func TestReadVoters_Empty(t *testing.T) {
	_, _, err := ReadVoters(context.Background(), strings.NewReader(""), Dialect{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
