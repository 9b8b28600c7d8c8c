package questionnaire

// Source identifies where a questionnaire came from. Built-in content ships
// with the product, custom content is authored by the org, imported content
// comes from third-party HR benchmarking packs.
type Source string

const (
	SourceBuiltIn  Source = "built_in"
	SourceCustom   Source = "custom"
	SourceImported Source = "imported"
)

// Priority orders questionnaire sources for deterministic selection.
// Lower wins.
func (s Source) Priority() int {
	switch s {
	case SourceBuiltIn:
		return 0
	case SourceCustom:
		return 1
	case SourceImported:
		return 2
	default:
		return 3
	}
}

// Theme is a single data-collection direction within a questionnaire.
type Theme struct {
	ID               string   `json:"id"`
	Intent           string   `json:"intent"`
	DataGoal         string   `json:"data_goal"`
	ExamplePhrasings []string `json:"example_phrasings"`
	Position         int      `json:"position"`
}

// Questionnaire groups ordered themes under a category matching an
// interaction type. Verbatim questionnaires force exact phrasing reuse
// instead of AI-adapted rewording.
type Questionnaire struct {
	ID       string  `json:"id"`
	OrgID    string  `json:"org_id"`
	Name     string  `json:"name"`
	Category string  `json:"category"`
	Source   Source  `json:"source"`
	Verbatim bool    `json:"verbatim"`
	Active   bool    `json:"active"`
	Themes   []Theme `json:"themes"`
}

// ThemeByID returns the theme with the given ID, or nil.
func (q *Questionnaire) ThemeByID(id string) *Theme {
	for i := range q.Themes {
		if q.Themes[i].ID == id {
			return &q.Themes[i]
		}
	}
	return nil
}
