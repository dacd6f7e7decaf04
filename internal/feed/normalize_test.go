package feed

import (
	"testing"
	"time"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	r := Normalize(Attributes{
		"UniqueFireIdentifier":  "2026-CAKNF-001",
		"Name":                  "  Horse Creek ",
		"POOState":              "US-CA",
		"DailyAcres":            float64(1520.5),
		"PercentContained":      float64(35),
		"EstimatedCostToDate":   float64(1.2e6),
		"TotalIncidentPersonnel": float64(431),
		"EstPopulationNearby":   float64(1200),
		"Latitude":              float64(41.7),
		"Longitude":             float64(-122.6),
		"FireDiscoveryDateTime": float64(1756600000000),
		"ModifiedOnDateTime":    float64(1756650000000),
	})

	if r.ID != "2026-CAKNF-001" {
		t.Fatalf("ID = %q", r.ID)
	}
	if r.Name != "Horse Creek" {
		t.Errorf("Name = %q, want trimmed", r.Name)
	}
	if r.Hashtag != "#HorseCreekFire" {
		t.Errorf("Hashtag = %q", r.Hashtag)
	}
	if r.Acres != 1520.5 || r.PercentContained != 35 {
		t.Errorf("Acres/Contained = %v/%v", r.Acres, r.PercentContained)
	}
	if r.Personnel != 431 || r.PopulationNearby != 1200 {
		t.Errorf("Personnel/Population = %d/%d", r.Personnel, r.PopulationNearby)
	}
	want := time.UnixMilli(1756650000000).UTC()
	if !r.Updated.Equal(want) {
		t.Errorf("Updated = %v, want %v", r.Updated, want)
	}
}

func TestNormalizeNameFallback(t *testing.T) {
	t.Parallel()

	r := Normalize(Attributes{
		"UniqueFireIdentifier": "2026-ORDEF-002",
		"Fire_Name":            "Antler",
	})
	if r.Name != "Antler" {
		t.Fatalf("Name = %q, want fallback Fire_Name", r.Name)
	}
	if r.Hashtag != "#AntlerFire" {
		t.Errorf("Hashtag = %q", r.Hashtag)
	}
}

func TestHashtag(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"Horse Creek", "#HorseCreekFire"},
		{"rum creek", "#RumCreekFire"},
		{"August Complex", "#AugustComplex"},
		{"Camp Fire", "#CampFire"},
		{"O'Neill  Forebay", "#OneillForebayFire"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Hashtag(tt.name); got != tt.want {
			t.Errorf("Hashtag(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
