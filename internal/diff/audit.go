package diff

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "go.yaml.in/yaml/v3"

	"firemon/internal/feed"
)

// Auditor writes human-readable diff records for every cycle and every
// detected change, significant or not. The audit trail is what operators
// correlate publish failures against.
type Auditor struct {
	dir string
}

func NewAuditor(dir string) *Auditor {
	return &Auditor{dir: dir}
}

type fieldDelta struct {
	From any `yaml:"from"`
	To   any `yaml:"to"`
}

type changeAudit struct {
	ID     string                `yaml:"id"`
	Name   string                `yaml:"name"`
	New    bool                  `yaml:"new"`
	At     time.Time             `yaml:"at"`
	Fields map[string]fieldDelta `yaml:"fields,omitempty"`
}

// Change writes one per-change audit file, keyed by the change's update ID.
func (a *Auditor) Change(c Change) error {
	rec := changeAudit{
		ID:     c.ID,
		Name:   c.Current.Name,
		New:    c.New(),
		At:     time.Now().UTC(),
		Fields: map[string]fieldDelta{},
	}
	if c.Previous != nil {
		old := *c.Previous
		for _, f := range c.Fields {
			rec.Fields[f] = fieldDelta{From: fieldValue(old, f), To: fieldValue(c.Current, f)}
		}
	}
	return a.write("diff-"+UpdateID(c)+".yaml", rec)
}

type cycleAudit struct {
	Cycle    string    `yaml:"cycle"`
	At       time.Time `yaml:"at"`
	Previous int       `yaml:"previous_incidents"`
	Current  int       `yaml:"current_incidents"`
	Changes  []string  `yaml:"changes,omitempty"`
}

// Cycle writes the once-per-cycle global diff summary, independent of
// per-change significance gating.
func (a *Auditor) Cycle(cycleID string, previous, current feed.Snapshot, changes []Change) error {
	rec := cycleAudit{
		Cycle:    cycleID,
		At:       time.Now().UTC(),
		Previous: len(previous),
		Current:  len(current),
	}
	for _, c := range changes {
		if c.New() {
			rec.Changes = append(rec.Changes, c.ID+" (new)")
			continue
		}
		rec.Changes = append(rec.Changes, fmt.Sprintf("%s %v", c.ID, c.Fields))
	}
	return a.write("global-diff-"+cycleID+".yaml", rec)
}

func (a *Auditor) write(name string, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(a.dir, name), b, 0o644)
}

func fieldValue(r feed.Record, field string) any {
	switch field {
	case "Name":
		return r.Name
	case "State":
		return r.State
	case "Hashtag":
		return r.Hashtag
	case "Acres":
		return r.Acres
	case "PercentContained":
		return r.PercentContained
	case "Cost":
		return r.Cost
	case "Personnel":
		return r.Personnel
	case "PopulationNearby":
		return r.PopulationNearby
	case "Location":
		return [2]float64{r.Latitude, r.Longitude}
	case "Discovered":
		return r.Discovered
	case "Updated":
		return r.Updated
	}
	return nil
}
