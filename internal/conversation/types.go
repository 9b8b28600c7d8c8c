package conversation

import "time"

// InteractionType categorizes a feedback exchange.
type InteractionType string

const (
	InteractionPeerReview     InteractionType = "peer_review"
	InteractionSelfReflection InteractionType = "self_reflection"
	InteractionThreeSixty     InteractionType = "three_sixty"
	InteractionPulseCheck     InteractionType = "pulse_check"
)

// MaxMessages bounds conversation length per interaction type. This is the
// real termination guarantee, independent of the decision engine.
func MaxMessages(t InteractionType) int {
	switch t {
	case InteractionPeerReview:
		return 5
	case InteractionSelfReflection:
		return 4
	case InteractionThreeSixty:
		return 5
	case InteractionPulseCheck:
		return 3
	default:
		return 4
	}
}

// ThemeBudget is how many themes a new conversation selects.
func ThemeBudget(t InteractionType) int {
	if t == InteractionSelfReflection {
		return 3
	}
	return 2
}

// Phase tracks where a conversation is in its lifecycle. Transitions run
// opening -> {exploring|follow_up}* -> closing; closing is terminal.
type Phase string

const (
	PhaseOpening   Phase = "opening"
	PhaseExploring Phase = "exploring"
	PhaseFollowUp  Phase = "follow_up"
	PhaseClosing   Phase = "closing"
)

// State is the single mutable aggregate driving a conversation. It is owned
// exclusively by the orchestrator; the state store is a passive byte-cache.
type State struct {
	ConversationID  string `json:"conversation_id"`
	OrgID           string `json:"org_id"`
	ReviewerID      string `json:"reviewer_id"`
	SubjectID       string `json:"subject_id"`
	QuestionnaireID string `json:"questionnaire_id"`
	ScheduleEntryID string `json:"schedule_entry_id,omitempty"`

	Platform  string `json:"platform"`
	ChannelID string `json:"channel_id"`
	ThreadID  string `json:"thread_id,omitempty"`

	InteractionType InteractionType `json:"interaction_type"`

	SelectedThemes    []string `json:"selected_themes"`
	CurrentThemeIndex int      `json:"current_theme_index"`

	MessageCount int `json:"message_count"`
	MaxMessages  int `json:"max_messages"`

	Phase    Phase         `json:"phase"`
	Messages []ChatMessage `json:"messages"`

	CreatedAt time.Time `json:"created_at"`
}

// CurrentThemeID returns the active theme ID, or "" when exhausted.
func (s *State) CurrentThemeID() string {
	if s.CurrentThemeIndex < 0 || s.CurrentThemeIndex >= len(s.SelectedThemes) {
		return ""
	}
	return s.SelectedThemes[s.CurrentThemeIndex]
}

// Append adds a message to the transcript.
func (s *State) Append(role, content string) {
	s.Messages = append(s.Messages, ChatMessage{Role: role, Content: content})
}
