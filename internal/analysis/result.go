package analysis

// SkillCount is one row of the ranked skill table.
type SkillCount struct {
	Skill     string `json:"skill"`
	Frequency int    `json:"frequency"`
}

// Result is the unit cached and handed to the presentation layer. Immutable
// once produced.
type Result struct {
	Skills            []SkillCount `json:"skills"`
	TopDiploma        string       `json:"top_diploma"`
	ActualOffersCount int          `json:"actual_offers_count"`
}
