package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectRows(t *testing.T, rowCh <-chan Row, errCh <-chan error) ([]Row, error) {
	t.Helper()
	var rows []Row
	for row := range rowCh {
		rows = append(rows, row)
	}
	for err := range errCh {
		if err != nil {
			return rows, err
		}
	}
	return rows, nil
}

func TestStreamRows_Basic(t *testing.T) {
	input := "1,120 Oak St,Charlotte,NC,28202\n2,5 Pine Rd,Charlotte,NC,28203\n"
	rowCh, errCh := StreamRows(context.Background(), strings.NewReader(input), Dialect{})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, Row{Line: 1, Fields: []string{"1", "120 Oak St", "Charlotte", "NC", "28202"}}, rows[0])
	assert.Equal(t, 2, rows[1].Line)
}

func TestStreamRows_TabDelimitedWithBOM(t *testing.T) {
	input := "\ufeffncid\tzip_code\nAA1\t28202\n"
	rowCh, errCh := StreamRows(context.Background(), strings.NewReader(input), Dialect{Delimiter: '\t'})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"ncid", "zip_code"}, rows[0].Fields)
	assert.Equal(t, []string{"AA1", "28202"}, rows[1].Fields)
}

func TestStreamRows_SkipsBlankRowsAndKeepsLineNumbers(t *testing.T) {
	input := "id,zip\n\n , \n7,28202\n# note\n8,28203\n"
	rowCh, errCh := StreamRows(context.Background(), strings.NewReader(input), Dialect{Comment: '#'})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, "7", rows[1].Field(0))
	assert.Equal(t, 6, rows[2].Line)
}

func TestRow_Field(t *testing.T) {
	r := Row{Fields: []string{"a", "b"}}
	assert.Equal(t, "b", r.Field(1))
	assert.Empty(t, r.Field(2))
	assert.Empty(t, r.Field(-1))
}

func TestStreamRows_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	for range 10000 {
		sb.WriteString("1,1 Main St,Raleigh,NC,27601\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rowCh, errCh := StreamRows(ctx, strings.NewReader(sb.String()), Dialect{})

	count := 0
	for range rowCh {
		count++
		if count >= 5 {
			cancel()
			break
		}
	}
	for range rowCh {
	}

	var gotErr error
	for err := range errCh {
		if err != nil {
			gotErr = err
		}
	}
	// The reader may finish before it notices the cancel.
	if gotErr != nil {
		assert.Contains(t, gotErr.Error(), "context cancelled")
	}
}

func TestStreamRows_LazyQuotesAndTrim(t *testing.T) {
	input := ` 1 , 12 "B" Oak St , Charlotte ,NC,28202` + "\n"
	rowCh, errCh := StreamRows(context.Background(), strings.NewReader(input), Dialect{LazyQuotes: true})
	rows, err := collectRows(t, rowCh, errCh)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "1", rows[0].Field(0))
	assert.Equal(t, "Charlotte", rows[0].Field(2))
}

func TestStreamRows_MalformedRow(t *testing.T) {
	input := "1,\"unterminated,Charlotte,NC,28202\n"
	rowCh, errCh := StreamRows(context.Background(), strings.NewReader(input), Dialect{})
	_, err := collectRows(t, rowCh, errCh)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: read row")
}
