package geocode

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/voter-geo/internal/resilience"
)

func newTestClient(srv *httptest.Server, opts ...Option) Client {
	base := []Option{
		WithBaseURL(srv.URL),
		WithHTTPClient(srv.Client()),
		WithRateLimit(1000),
	}
	return NewClient(append(base, opts...)...)
}

func TestParseBatchResponse_ScenarioRow(t *testing.T) {
	resp := ParseBatchResponse(`0-0,"Match","Match",,,"-80.84,35.22"`)
	require.Contains(t, resp.Points, "0-0")
	require.NotNil(t, resp.Points["0-0"])
	assert.InDelta(t, 35.22, resp.Points["0-0"].Lat, 1e-9)
	assert.InDelta(t, -80.84, resp.Points["0-0"].Lng, 1e-9)
	assert.Zero(t, resp.Malformed)
}

func TestParseBatchResponse_LongitudeFirst(t *testing.T) {
	// Longitude comes first in the provider's coordinate column. Swapping the
	// two would put Charlotte in Antarctica.
	resp := ParseBatchResponse(`"7","100 N Tryon St, Charlotte, NC, 28202","Match","Exact","100 N TRYON ST, CHARLOTTE, NC, 28202","-80.843,35.227","123","L"`)
	pt := resp.Points["7"]
	require.NotNil(t, pt)
	assert.InDelta(t, 35.227, pt.Lat, 1e-9)
	assert.InDelta(t, -80.843, pt.Lng, 1e-9)
}

func TestParseBatchResponse_MixedRows(t *testing.T) {
	body := strings.Join([]string{
		`"0","1 Main St, Town, NC, 28202","Match","Non_Exact","1 MAIN ST","-73.9857,40.7484","999","R"`,
		`"1","123 Nowhere St, Faketown, XX, 00000","No_Match"`,
		`"2","5 Tie Rd, Town, NC, 28202","Tie"`,
		`"3","bad coords","Match","Exact","X","not-a-number,1.0","1","L"`,
		`"4","too short","Match"`,
		`garbage`,
		``,
		`"5","Oak, Suite ""B"", Town","Match","Exact","M","-80.1,35.1","2","L"`,
	}, "\n")

	resp := ParseBatchResponse(body)

	require.NotNil(t, resp.Points["0"])
	assert.InDelta(t, 40.7484, resp.Points["0"].Lat, 1e-9)

	assert.Contains(t, resp.Points, "1")
	assert.Nil(t, resp.Points["1"])
	assert.Contains(t, resp.Points, "2")
	assert.Nil(t, resp.Points["2"])

	assert.NotContains(t, resp.Points, "3")
	assert.NotContains(t, resp.Points, "4")

	require.NotNil(t, resp.Points["5"], "quoted field with embedded commas must parse")
	assert.InDelta(t, 35.1, resp.Points["5"].Lat, 1e-9)

	assert.Equal(t, 3, resp.Malformed)
	assert.Equal(t, 2, resp.Matched())
}

func TestParseLngLat(t *testing.T) {
	pt, err := ParseLngLat(" -77.0365 , 38.8977 ")
	require.NoError(t, err)
	assert.InDelta(t, 38.8977, pt.Lat, 1e-9)
	assert.InDelta(t, -77.0365, pt.Lng, 1e-9)

	_, err = ParseLngLat("-77.0365")
	assert.Error(t, err)
	_, err = ParseLngLat("38.9,-277.0")
	assert.Error(t, err)
}

func TestSplitCSVLine(t *testing.T) {
	got := splitCSVLine(`"a,b",c,"say ""hi""",,`)
	assert.Equal(t, []string{"a,b", "c", `say "hi"`, "", ""}, got)
}

func TestBuildBatchRequest(t *testing.T) {
	addrs := []AddressInput{
		{ID: "0-0", Street: "123 Oak St", City: "Charlotte", State: "NC", ZipCode: "28202"},
		{ID: "0-1", Street: "9 Elm, Unit 4", City: "Charlotte", State: "NC", ZipCode: "28203"},
	}
	body, contentType, err := BuildBatchRequest(addrs, "Public_AR_Current")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set("Content-Type", contentType)
	require.NoError(t, req.ParseMultipartForm(1<<20))

	assert.Equal(t, "Public_AR_Current", req.FormValue("benchmark"))

	f, _, err := req.FormFile("addressFile")
	require.NoError(t, err)
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2, "no header row")
	assert.Equal(t, []string{"0-0", "123 Oak St", "Charlotte", "NC", "28202"}, rows[0])
	assert.Equal(t, "9 Elm, Unit 4", rows[1][1])
}

func TestBatchGeocode_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, censusBatchPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, `"0-0","x","Match","Exact","X","-80.84,35.22","1","L"
"0-1","y","No_Match"
"9-9","stray","Match","Exact","X","-1,1","1","L"`)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	resp, err := c.BatchGeocode(context.Background(), []AddressInput{
		{ID: "0-0", Street: "123 Oak St", City: "Charlotte", State: "NC", ZipCode: "28202"},
		{ID: "0-1", Street: "1 Nowhere", City: "Charlotte", State: "NC", ZipCode: "28202"},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Points["0-0"])
	assert.InDelta(t, 35.22, resp.Points["0-0"].Lat, 1e-9)
	assert.Nil(t, resp.Points["0-1"])
	assert.NotContains(t, resp.Points, "9-9", "ids not in the batch are dropped")
	assert.Equal(t, 1, resp.Malformed)
}

func TestBatchGeocode_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv).BatchGeocode(context.Background(), []AddressInput{{ID: "0-0", Street: "1 Main"}})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, http.StatusBadGateway, resilience.StatusCode(err))
}

func TestBatchGeocode_Timeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := newTestClient(srv, WithBatchTimeout(50*time.Millisecond))
	_, err := c.BatchGeocode(context.Background(), []AddressInput{{ID: "0-0", Street: "1 Main"}})
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err), "a timed out batch is retried like a 5xx")
}

func TestBatchGeocode_Empty(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()

	resp, err := newTestClient(srv).BatchGeocode(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Points)
	assert.Zero(t, calls.Load())
}

func TestCensusOneLine_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, censusOneLinePath, r.URL.Path)
		assert.Equal(t, "123 Oak St, Charlotte, NC, 28202", r.URL.Query().Get("address"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":{"addressMatches":[{"coordinates":{"x":-80.84,"y":35.22},"matchedAddress":"123 OAK ST, CHARLOTTE, NC, 28202","addressComponents":{"zip":"28202"}}]}}`)
	}))
	defer srv.Close()

	result, err := newTestClient(srv).Geocode(context.Background(), AddressInput{
		Street: "123 Oak St", City: "Charlotte", State: "NC", ZipCode: "28202",
	})
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, 35.22, result.Point.Lat, 1e-9)
	assert.InDelta(t, -80.84, result.Point.Lng, 1e-9)
	assert.Equal(t, "census", result.Source)
	assert.Equal(t, "28202", result.Zip)
}

func TestCensusOneLine_NoMatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"result":{"addressMatches":[]}}`)
	}))
	defer srv.Close()

	result, err := newTestClient(srv).Geocode(context.Background(), AddressInput{Street: "1 Nowhere"})
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestCensusOneLine_EmptyAddressSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { calls.Add(1) }))
	defer srv.Close()

	result, err := newTestClient(srv).Geocode(context.Background(), AddressInput{})
	require.NoError(t, err)
	assert.False(t, result.Matched)
	assert.Zero(t, calls.Load())
}

func TestFormatOneLine(t *testing.T) {
	tests := []struct {
		addr     AddressInput
		expected string
	}{
		{AddressInput{Street: "123 Main St", City: "Springfield", State: "IL", ZipCode: "62701"}, "123 Main St, Springfield, IL, 62701"},
		{AddressInput{Street: "456 Oak Ave", City: "Portland", State: "OR"}, "456 Oak Ave, Portland, OR"},
		{AddressInput{ZipCode: "80202"}, "80202"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatOneLine(tt.addr))
	}
}
