package services

import "math"

// Progress is the aggregate completion state of a checklist.
type Progress struct {
	Completed  int                        `json:"completed"`
	Total      int                        `json:"total"`
	Percentage int                        `json:"percentage"`
	Sections   map[string]SectionProgress `json:"sections,omitempty"`
}

type SectionProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// ComputeProgress reduces the question collection to {completed, total,
// percentage} with per-section subtotals. Optional questions are excluded
// from the denominator; an empty collection yields zero, never NaN.
func ComputeProgress(qs []*Question) Progress {
	p := Progress{Sections: map[string]SectionProgress{}}
	for _, q := range qs {
		if q.Meta.Optional {
			continue
		}
		p.Total++
		sp := p.Sections[q.Section]
		sp.Total++
		if q.Completed {
			p.Completed++
			sp.Completed++
		}
		p.Sections[q.Section] = sp
	}
	if p.Total > 0 {
		p.Percentage = int(math.Round(float64(p.Completed) / float64(p.Total) * 100))
	}
	if len(p.Sections) == 0 {
		p.Sections = nil
	}
	return p
}
