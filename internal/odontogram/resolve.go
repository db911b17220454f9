package odontogram

import (
	"time"
)

// Entry is one dental record as seen by the chart.
type Entry struct {
	Tooth         int
	Condition     Condition
	TreatmentDate time.Time
	Notes         string
}

type rule struct {
	when   Condition
	status Condition
}

// precedence is ordered from strongest to weakest. A tooth shows the status of
// the strongest rule matched by any of its records, whatever their dates.
var precedence = []rule{
	{when: Extraction, status: Missing},
	{when: Caries, status: Caries},
	{when: RootCanal, status: RootCanal},
}

// Resolve reduces a tooth's record conditions to one display status.
func Resolve(conditions []Condition) Condition {
	if len(conditions) == 0 {
		return Healthy
	}

	best := len(precedence)
	for _, c := range conditions {
		for rank := 0; rank < best; rank++ {
			if precedence[rank].when == c {
				best = rank
				break
			}
		}
	}

	if best < len(precedence) {
		return precedence[best].status
	}
	return conditions[0]
}

// ResolveEntries is Resolve over the conditions of entries.
func ResolveEntries(entries []Entry) Condition {
	conditions := make([]Condition, len(entries))
	for i, e := range entries {
		conditions[i] = e.Condition
	}
	return Resolve(conditions)
}

// Group buckets entries by tooth number, keeping input order inside a bucket.
func Group(entries []Entry) map[int][]Entry {
	groups := make(map[int][]Entry)
	for _, e := range entries {
		groups[e.Tooth] = append(groups[e.Tooth], e)
	}
	return groups
}
