package analysis

import (
	"sort"

	"github.com/skillscope/skillscope/internal/ai"
	"github.com/skillscope/skillscope/internal/skills"
)

// frequencyTable counts labels by their folded form while remembering the
// first-seen display spelling. Ranking ties are broken by first-seen order.
type frequencyTable struct {
	counts map[string]int
	labels map[string]string
	order  []string
}

func newFrequencyTable() *frequencyTable {
	return &frequencyTable{
		counts: make(map[string]int),
		labels: make(map[string]string),
	}
}

func (t *frequencyTable) add(fold, label string) {
	if _, ok := t.counts[fold]; !ok {
		t.labels[fold] = label
		t.order = append(t.order, fold)
	}
	t.counts[fold]++
}

func (t *frequencyTable) empty() bool {
	return len(t.counts) == 0
}

// ranked returns all entries sorted by frequency descending. The sort is
// stable over first-seen order.
func (t *frequencyTable) ranked() []SkillCount {
	out := make([]SkillCount, 0, len(t.order))
	for _, fold := range t.order {
		out = append(out, SkillCount{Skill: t.labels[fold], Frequency: t.counts[fold]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Frequency > out[j].Frequency
	})
	return out
}

// mode returns the most frequent label, first seen winning ties, or "" when
// the table is empty.
func (t *frequencyTable) mode() string {
	best := ""
	bestCount := 0
	for _, fold := range t.order {
		if t.counts[fold] > bestCount {
			best = t.labels[fold]
			bestCount = t.counts[fold]
		}
	}
	return best
}

// merge folds all batch results into one skill table and one education table.
// Skills are normalized once here; within a posting each skill counts at most
// once. Counting is commutative, so batch completion order does not matter.
func merge(batches [][]ai.Entry) (skillTable, educationTable *frequencyTable) {
	skillTable = newFrequencyTable()
	educationTable = newFrequencyTable()

	for _, entries := range batches {
		for _, entry := range entries {
			seen := make(map[string]struct{}, len(entry.Skills))
			for _, raw := range entry.Skills {
				display := skills.Normalize(raw)
				fold := skills.Fold(display)
				if fold == "" {
					continue
				}
				if _, dup := seen[fold]; dup {
					continue
				}
				seen[fold] = struct{}{}
				skillTable.add(fold, display)
			}

			if entry.EducationLevel != "" && entry.EducationLevel != ai.EducationUnspecified {
				educationTable.add(entry.EducationLevel, entry.EducationLevel)
			}
		}
	}

	return skillTable, educationTable
}
