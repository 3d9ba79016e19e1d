package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse_Scenario(t *testing.T) {
	p := Parse("123 Oak St, Apt 2, 28202")
	assert.Equal(t, "123", p.House)
	assert.Equal(t, "oak", p.Street)
	assert.Equal(t, "28202", p.Zip)
}

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Parsed
	}{
		{"123 Oak St, Apt 2, 28202", Parsed{House: "123", Street: "oak", Zip: "28202"}},
		{"4500 PARK ROAD, Charlotte NC 28209-1234", Parsed{House: "4500", Street: "park", Zip: "28209"}},
		{"77 Sunset Blvd Suite 300", Parsed{House: "77", Street: "sunset"}},
		{"9 Elm Ct #4", Parsed{House: "9", Street: "elm"}},
		{"12 Harbor Loop", Parsed{House: "12", Street: "harbor"}},
		{"Loop", Parsed{Street: "loop"}},
		{"Main Street", Parsed{Street: "main"}},
		{"28202", Parsed{Zip: "28202"}},
		{"1600 n tryon st unit 5", Parsed{House: "1600", Street: "n tryon"}},
		{"007 Bond Ln", Parsed{House: "7", Street: "bond"}},
		{"123 Oak St 28202", Parsed{House: "123", Street: "oak", Zip: "28202"}},
		{"123 Oak St Charlotte NC 28202", Parsed{House: "123", Street: "oak", Zip: "28202"}},
		{"123 Oak 28202-1234", Parsed{House: "123", Street: "oak", Zip: "28202"}},
		{"5 St James Pl Charlotte NC", Parsed{House: "5", Street: "st james"}},
		{"300 Park Road Apt 2 Charlotte", Parsed{House: "300", Street: "park"}},
		{"", Parsed{}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.in))
		})
	}
}

func TestParseStreetLine_CaseInsensitiveSuffixes(t *testing.T) {
	for _, line := range []string{"10 Oak ST", "10 oak St", "10 OAK AVE", "10 Oak Pkwy", "10 oak hwy apt 9"} {
		house, street := ParseStreetLine(line)
		assert.Equal(t, "10", house, line)
		assert.Equal(t, "oak", street, line)
	}
}

func TestParsed_HouseNumber(t *testing.T) {
	n, ok := Parsed{House: "123"}.HouseNumber()
	assert.True(t, ok)
	assert.Equal(t, 123, n)

	_, ok = Parsed{}.HouseNumber()
	assert.False(t, ok)
}
