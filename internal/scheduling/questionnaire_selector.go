package scheduling

import (
	"sort"

	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
)

// SelectQuestionnaire picks the questionnaire for an interaction type.
//
// Matches on category; when nothing matches, the first active questionnaire
// overall is the fallback. Matches are ordered by source priority
// (built_in < custom < imported < unknown) and the first wins. Deterministic,
// no randomness.
func SelectQuestionnaire(questionnaires []questionnaire.Questionnaire, it conversation.InteractionType) *questionnaire.Questionnaire {
	var matches []questionnaire.Questionnaire
	var firstActive *questionnaire.Questionnaire

	for i := range questionnaires {
		q := questionnaires[i]
		if !q.Active {
			continue
		}
		if firstActive == nil {
			firstActive = &questionnaires[i]
		}
		if q.Category == string(it) {
			matches = append(matches, q)
		}
	}

	if len(matches) == 0 {
		return firstActive
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Source.Priority() < matches[j].Source.Priority()
	})
	return &matches[0]
}
