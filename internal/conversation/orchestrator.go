package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
	"github.com/pulsekit/pulsekit/pkg/logging"
)

// InitiateRequest carries everything needed to open a conversation.
// It mirrors the "initiate" job payload.
type InitiateRequest struct {
	OrgID           string
	ReviewerID      string
	SubjectID       string
	InteractionType InteractionType
	Platform        string
	ChannelID       string
	QuestionnaireID string
	ScheduleEntryID string
}

// ReplyResult is the outcome of processing one reviewer reply.
type ReplyResult struct {
	State    *State
	Closed   bool
	Decision Decision
}

// Orchestrator is the per-conversation state machine. It composes the
// questionnaire repository, question generator, and decision engine to
// initiate, advance, and close conversations. It never persists state
// itself; callers own storage and delivery.
type Orchestrator struct {
	questionnaires questionnaire.Repository
	directory      directory.Repository
	questions      *QuestionGenerator
	decisions      *DecisionEngine
	logger         *logging.Logger
}

// NewOrchestrator wires the conversation state machine.
func NewOrchestrator(
	questionnaires questionnaire.Repository,
	dir directory.Repository,
	questions *QuestionGenerator,
	decisions *DecisionEngine,
	logger *logging.Logger,
) *Orchestrator {
	if questionnaires == nil {
		panic("conversation: questionnaire repository is required")
	}
	if questions == nil || decisions == nil {
		panic("conversation: question generator and decision engine are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Orchestrator{
		questionnaires: questionnaires,
		directory:      dir,
		questions:      questions,
		decisions:      decisions,
		logger:         logger,
	}
}

// Initiate builds a new conversation state with its opening question
// appended to the transcript. The caller persists the state and delivers
// the opening message through the chat adapter.
func (o *Orchestrator) Initiate(ctx context.Context, req InitiateRequest) (*State, error) {
	q, err := o.questionnaires.GetByID(ctx, req.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("conversation: initiate: %w", err)
	}

	themes := selectThemes(q.Themes, ThemeBudget(req.InteractionType))

	state := &State{
		ConversationID:  fmt.Sprintf("conv_%s", uuid.NewString()),
		OrgID:           req.OrgID,
		ReviewerID:      req.ReviewerID,
		SubjectID:       req.SubjectID,
		QuestionnaireID: q.ID,
		ScheduleEntryID: req.ScheduleEntryID,
		Platform:        req.Platform,
		ChannelID:       req.ChannelID,
		InteractionType: req.InteractionType,
		SelectedThemes:  themes,
		MaxMessages:     MaxMessages(req.InteractionType),
		Phase:           PhaseOpening,
		CreatedAt:       time.Now().UTC(),
	}

	reviewerName, subjectName := o.resolveNames(ctx, req.ReviewerID, req.SubjectID)

	opening, err := o.questions.Next(ctx, QuestionInput{
		Theme:           o.themeAt(q, state, 0),
		Verbatim:        q.Verbatim,
		ReviewerName:    reviewerName,
		SubjectName:     subjectName,
		InteractionType: req.InteractionType,
		Opening:         true,
	})
	if err != nil {
		return nil, err
	}

	state.Append(ChatRoleAssistant, opening)
	state.MessageCount = 1
	return state, nil
}

// HandleReply advances the conversation by one turn. It appends the
// reviewer's message, consults the decision engine, and either produces the
// next question or closes the conversation. The returned result tells the
// caller whether to persist the state or delete it and enqueue analysis.
func (o *Orchestrator) HandleReply(ctx context.Context, state *State, userMessage string) (*ReplyResult, error) {
	state.Append(ChatRoleUser, userMessage)
	state.MessageCount++

	decision := o.decisions.Decide(ctx, state, userMessage)

	if decision == DecisionClose || state.MessageCount >= state.MaxMessages {
		o.close(state)
		return &ReplyResult{State: state, Closed: true, Decision: DecisionClose}, nil
	}

	if decision == DecisionNextTheme && state.CurrentThemeIndex+1 < len(state.SelectedThemes) {
		state.CurrentThemeIndex++
		state.Phase = PhaseExploring
	} else {
		state.Phase = PhaseFollowUp
	}

	q, err := o.questionnaires.GetByID(ctx, state.QuestionnaireID)
	if err != nil {
		return nil, fmt.Errorf("conversation: handle reply: %w", err)
	}

	reviewerName, subjectName := o.resolveNames(ctx, state.ReviewerID, state.SubjectID)

	question, err := o.questions.Next(ctx, QuestionInput{
		Theme:           o.themeAt(q, state, state.CurrentThemeIndex),
		Verbatim:        q.Verbatim,
		ReviewerName:    reviewerName,
		SubjectName:     subjectName,
		InteractionType: state.InteractionType,
		Opening:         false,
		Transcript:      state.Messages,
	})
	if err != nil {
		return nil, err
	}

	state.Append(ChatRoleAssistant, question)
	state.MessageCount++
	return &ReplyResult{State: state, Closed: false, Decision: decision}, nil
}

// ForceClose terminates a conversation unconditionally, appending the fixed
// closing message. Used by the explicit "close" job.
func (o *Orchestrator) ForceClose(state *State) *ReplyResult {
	o.close(state)
	return &ReplyResult{State: state, Closed: true, Decision: DecisionClose}
}

func (o *Orchestrator) close(state *State) {
	state.Append(ChatRoleAssistant, ClosingMessage(state.InteractionType))
	state.Phase = PhaseClosing
}

// themeAt resolves the theme for the given selection index, or nil when the
// selection is exhausted or empty.
func (o *Orchestrator) themeAt(q *questionnaire.Questionnaire, state *State, idx int) *questionnaire.Theme {
	if idx < 0 || idx >= len(state.SelectedThemes) {
		return nil
	}
	return q.ThemeByID(state.SelectedThemes[idx])
}

func (o *Orchestrator) resolveNames(ctx context.Context, reviewerID, subjectID string) (string, string) {
	reviewerName := displayName(ctx, o.directory, reviewerID)
	subjectName := reviewerName
	if subjectID != reviewerID {
		subjectName = displayName(ctx, o.directory, subjectID)
	}
	return reviewerName, subjectName
}

func displayName(ctx context.Context, dir directory.Repository, userID string) string {
	if dir == nil {
		return userID
	}
	u, err := dir.GetUser(ctx, userID)
	if err != nil || u.DisplayName == "" {
		return userID
	}
	return u.DisplayName
}

// selectThemes takes the first n themes in existing sort order, not shuffled.
func selectThemes(themes []questionnaire.Theme, budget int) []string {
	if budget > len(themes) {
		budget = len(themes)
	}
	out := make([]string, 0, budget)
	for _, t := range themes[:budget] {
		out = append(out, t.ID)
	}
	return out
}
