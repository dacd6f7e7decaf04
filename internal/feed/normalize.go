package feed

import (
	"strings"
	"time"
	"unicode"
)

// Attributes is one raw per-incident attribute bag as the feed delivers it.
type Attributes map[string]any

// Normalize converts a raw attribute bag into a typed Record.
//
// Rules carried over from the upstream feed conventions:
//   - every string attribute is trimmed
//   - *DateTime attributes are epoch milliseconds; they become time.Time here
//   - the display hashtag is derived from the incident name
func Normalize(attrs Attributes) Record {
	r := Record{
		ID:               str(attrs, "UniqueFireIdentifier"),
		Name:             str(attrs, "Name"),
		State:            str(attrs, "POOState"),
		Acres:            num(attrs, "DailyAcres"),
		PercentContained: num(attrs, "PercentContained"),
		Cost:             num(attrs, "EstimatedCostToDate"),
		Personnel:        int(num(attrs, "TotalIncidentPersonnel")),
		PopulationNearby: int(num(attrs, "EstPopulationNearby")),
		Latitude:         num(attrs, "Latitude"),
		Longitude:        num(attrs, "Longitude"),
		Discovered:       millis(attrs, "FireDiscoveryDateTime"),
		Updated:          millis(attrs, "ModifiedOnDateTime"),
	}
	if r.Name == "" {
		r.Name = str(attrs, "Fire_Name")
	}
	r.Hashtag = Hashtag(r.Name)
	return r
}

// Hashtag derives the display tag for an incident name:
// "#<TitleCasedName>Fire", collapsing redundant Complex/Fire suffixes.
func Hashtag(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	tag := "#" + titleCaseJoin(name) + "Fire"
	for strings.HasSuffix(tag, "ComplexFire") {
		tag = strings.TrimSuffix(tag, "Fire")
	}
	for strings.HasSuffix(tag, "FireFire") {
		tag = strings.TrimSuffix(tag, "Fire")
	}
	return tag
}

func titleCaseJoin(s string) string {
	var b strings.Builder
	upperNext := true
	for _, r := range s {
		if unicode.IsSpace(r) || r == '-' || r == '_' {
			upperNext = true
			continue
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		if upperNext {
			b.WriteRune(unicode.ToUpper(r))
			upperNext = false
		} else {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func str(attrs Attributes, key string) string {
	v, ok := attrs[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func num(attrs Attributes, key string) float64 {
	v, ok := attrs[key]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case interface{ Float64() (float64, error) }:
		// json.Number without importing encoding/json here.
		f, _ := n.Float64()
		return f
	}
	return 0
}

func millis(attrs Attributes, key string) time.Time {
	ms := num(attrs, key)
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(int64(ms)).UTC()
}
