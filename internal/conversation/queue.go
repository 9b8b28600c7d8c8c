package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Queue is the generic delayed-message broker contract. Delivery
// guarantees (retry, backoff, at-least-once) belong to the broker.
type Queue interface {
	Send(ctx context.Context, body string, delay time.Duration) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// QueueMessage is one received broker message. ReceiptHandle acknowledges
// it on Delete.
type QueueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobType string

const (
	jobTypeInitiate jobType = "initiate"
	jobTypeReply    jobType = "reply"
	jobTypeClose    jobType = "close"
	jobTypeAnalyze  jobType = "analyze"
)

// InitiatePayload opens a conversation for a scheduled interaction.
type InitiatePayload struct {
	OrgID           string          `json:"orgId"`
	ReviewerID      string          `json:"reviewerId"`
	SubjectID       string          `json:"subjectId"`
	InteractionType InteractionType `json:"interactionType"`
	Platform        string          `json:"platform"`
	ChannelID       string          `json:"channelId"`
	QuestionnaireID string          `json:"questionnaireId"`
	ScheduleEntryID string          `json:"scheduleEntryId"`
}

// ReplyPayload carries one inbound reviewer message.
type ReplyPayload struct {
	ConversationID string `json:"conversationId"`
	OrgID          string `json:"orgId"`
	UserMessage    string `json:"userMessage"`
}

// ClosePayload force-closes a conversation.
type ClosePayload struct {
	ConversationID string `json:"conversationId"`
}

// AnalyzePayload hands a closed conversation to the analysis pipeline.
type AnalyzePayload struct {
	ConversationID string `json:"conversationId"`
	OrgID          string `json:"orgId"`
}

type queuePayload struct {
	ID       string           `json:"id"`
	Kind     jobType          `json:"kind"`
	Initiate *InitiatePayload `json:"initiate,omitempty"`
	Reply    *ReplyPayload    `json:"reply,omitempty"`
	Close    *ClosePayload    `json:"close,omitempty"`
	Analyze  *AnalyzePayload  `json:"analyze,omitempty"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}
	return payload, string(body), nil
}

func decodePayload(body string) (queuePayload, error) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return queuePayload{}, fmt.Errorf("conversation: failed to decode payload: %w", err)
	}
	return payload, nil
}
