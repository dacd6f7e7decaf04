package feed

import "time"

// Record is one normalized incident from the situation feed.
//
// The feed delivers schema-less attribute bags; normalization pins the fields
// the pipeline cares about to typed values at ingestion so the differ never
// has to special-case key suffixes at runtime.
type Record struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	State   string `yaml:"state,omitempty" json:"state,omitempty"`
	Hashtag string `yaml:"hashtag,omitempty" json:"hashtag,omitempty"`

	// Acres is the reported daily burned extent.
	Acres            float64 `yaml:"acres" json:"acres"`
	PercentContained float64 `yaml:"percent_contained" json:"percent_contained"`
	Cost             float64 `yaml:"cost,omitempty" json:"cost,omitempty"`
	Personnel        int     `yaml:"personnel,omitempty" json:"personnel,omitempty"`

	// PopulationNearby is the feed's estimate of nearby population exposure.
	// Zero when the feed variant does not supply it.
	PopulationNearby int `yaml:"population_nearby,omitempty" json:"population_nearby,omitempty"`

	Latitude  float64 `yaml:"lat,omitempty" json:"lat,omitempty"`
	Longitude float64 `yaml:"lon,omitempty" json:"lon,omitempty"`

	Discovered time.Time `yaml:"discovered,omitempty" json:"discovered,omitempty"`
	Updated    time.Time `yaml:"updated,omitempty" json:"updated,omitempty"`
}

// Snapshot is the full set of incident states at one poll instant, keyed by
// incident ID. Immutable once captured for a cycle.
type Snapshot map[string]Record

// Clone returns a shallow copy (Record has no reference fields).
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Ring is one closed polygon ring of lon/lat pairs.
type Ring [][2]float64

// Perimeter is the mapped fire boundary for one incident.
type Perimeter struct {
	ID    string
	Rings []Ring
}
