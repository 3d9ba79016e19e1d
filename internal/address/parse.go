package address

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	zipPattern   = regexp.MustCompile(`\b(\d{5})(?:-\d{4})?\b`)
	housePattern = regexp.MustCompile(`^\s*(\d+)[a-zA-Z]?\b`)
	tokenSplit   = regexp.MustCompile(`[^a-z0-9#]+`)
)

var streetSuffixes = map[string]bool{
	"st": true, "street": true,
	"ave": true, "av": true, "avenue": true,
	"blvd": true, "boulevard": true,
	"dr": true, "drive": true,
	"ln": true, "lane": true,
	"ct": true, "court": true,
	"way": true,
	"rd": true, "road": true,
	"pl": true, "place": true,
	"cir": true, "circle": true,
	"ter": true, "terrace": true,
	"trl": true, "trail": true,
	"pkwy": true, "parkway": true,
	"hwy": true, "highway": true,
	"loop": true,
}

var unitMarkers = map[string]bool{
	"apt": true, "unit": true, "#": true, "suite": true, "ste": true,
}

// Parsed holds the pieces of an address used for ranking.
type Parsed struct {
	House  string // leading house number, "" when absent
	Street string // lowercase street name without suffix or unit, "" when absent
	Zip    string // 5-digit zip, "" when absent
}

// HouseNumber returns House as an int, and false when there is none.
func (p Parsed) HouseNumber() (int, bool) {
	if p.House == "" {
		return 0, false
	}
	n, err := strconv.Atoi(p.House)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Parse extracts the zip, house number and street name from free text such as
// "123 Oak St, Apt 2, Charlotte NC 28202".
func Parse(text string) Parsed {
	var p Parsed
	if m := zipPattern.FindAllStringSubmatch(text, -1); len(m) > 0 {
		p.Zip = m[len(m)-1][1]
	}

	// Only the first comma-separated segment carries the street line.
	line := text
	if i := strings.IndexByte(line, ','); i >= 0 {
		line = line[:i]
	}
	house, street := ParseStreetLine(line)
	if house == p.Zip && street == "" {
		// A bare zip is not a house number.
		house = ""
	}
	p.House, p.Street = house, street
	return p
}

// ParseStreetLine splits a street line ("123 N Oak St Apt 4") into the house
// number and the street name with suffix and unit removed.
func ParseStreetLine(line string) (house, street string) {
	line = strings.ToLower(strings.TrimSpace(line))
	if m := housePattern.FindStringSubmatch(line); m != nil {
		house = strings.TrimLeft(m[1], "0")
		if house == "" {
			house = "0"
		}
		line = line[len(m[0]):]
	}

	// Keep '#' as its own token so "#4" and "# 4" both mark a unit.
	line = strings.ReplaceAll(line, "#", " # ")
	var words []string
	afterZip := false
	for _, tok := range tokenSplit.Split(line, -1) {
		if tok == "" {
			continue
		}
		if unitMarkers[tok] {
			break
		}
		// zip and zip+4 tokens never belong to the street name
		if isDigits(tok, 5) || (afterZip && isDigits(tok, 4)) {
			afterZip = true
			continue
		}
		afterZip = false
		// The first suffix after a name word ends the street, so whatever
		// follows ("oak st charlotte nc") is city and state. A leading
		// suffix-like word ("st james pl") is part of the name.
		if streetSuffixes[tok] && len(words) > 0 {
			break
		}
		words = append(words, tok)
	}
	return house, strings.Join(words, " ")
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
