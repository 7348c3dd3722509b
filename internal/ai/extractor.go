package ai

import "context"

// EducationUnspecified is the label the model must use when a posting does not
// state a diploma requirement. Entries carrying it are excluded from the
// education tally.
const EducationUnspecified = "Non spécifié"

// EducationLevels is the closed label set the extraction model may answer with,
// EducationUnspecified included.
var EducationLevels = []string{
	"CAP/BEP",
	"Bac",
	"Bac+2 / BTS",
	"Bac+3 / Licence",
	"Bac+5 / Master",
	"Doctorat",
	EducationUnspecified,
}

// Entry is the extraction outcome for a single posting within a batch. Index
// refers to the posting's position in the submitted batch.
type Entry struct {
	Index          int
	Skills         []string
	EducationLevel string
}

// Extractor turns a batch of posting descriptions into per-posting skill lists
// and education labels. An error means the whole batch produced nothing usable;
// callers drop the batch and continue.
type Extractor interface {
	Extract(ctx context.Context, jobTitle string, descriptions []string) ([]Entry, error)
}
