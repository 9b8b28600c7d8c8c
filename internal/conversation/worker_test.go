package conversation

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pulsekit/pulsekit/internal/channels"
)

type captureSender struct {
	mu   sync.Mutex
	msgs []channels.Message
}

func (c *captureSender) SendMessage(_ context.Context, msg channels.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *captureSender) sent() []channels.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]channels.Message(nil), c.msgs...)
}

type captureArchiver struct {
	mu     sync.Mutex
	states []*State
}

func (c *captureArchiver) ArchiveState(_ context.Context, state *State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.states = append(c.states, state)
	return nil
}

type captureAnalysis struct {
	mu       sync.Mutex
	payloads []AnalyzePayload
}

func (c *captureAnalysis) PublishAnalyze(_ context.Context, req AnalyzePayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, req)
	return nil
}

type captureJobs struct {
	mu        sync.Mutex
	completed []string
	convIDs   []string
	failed    []string
}

func (c *captureJobs) PutPending(_ context.Context, _ *JobRecord) error { return nil }

func (c *captureJobs) MarkCompleted(_ context.Context, jobID, conversationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed = append(c.completed, jobID)
	c.convIDs = append(c.convIDs, conversationID)
	return nil
}

func (c *captureJobs) MarkFailed(_ context.Context, jobID, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed = append(c.failed, jobID)
	return nil
}

type workerFixture struct {
	worker   *Worker
	queue    *MemoryQueue
	states   *StateStore
	sender   *captureSender
	archiver *captureArchiver
	analysis *captureAnalysis
	jobs     *captureJobs
}

func newWorkerFixture(t *testing.T, llm LLMClient) *workerFixture {
	t.Helper()

	_, client := newTestRedis(t)
	states := NewStateStore(client, time.Hour)
	lock := NewLock(client, 30*time.Second)
	queue := NewMemoryQueue(16)
	sender := &captureSender{}
	archiver := &captureArchiver{}
	analysis := &captureAnalysis{}
	jobs := &captureJobs{}

	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2"))

	worker := NewWorker(orch, queue, states, lock, sender, nil,
		WithJobStore(jobs),
		WithTranscriptArchiver(archiver),
		WithAnalysisEnqueuer(analysis),
	)
	return &workerFixture{
		worker:   worker,
		queue:    queue,
		states:   states,
		sender:   sender,
		archiver: archiver,
		analysis: analysis,
		jobs:     jobs,
	}
}

// drain processes every message currently on the queue.
func (f *workerFixture) drain(t *testing.T) {
	t.Helper()
	for {
		msgs, err := f.queue.Receive(context.Background(), 10, 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(msgs) == 0 {
			return
		}
		for _, msg := range msgs {
			f.worker.handleMessage(context.Background(), msg)
		}
	}
}

func TestWorkerInitiatePersistsAndDelivers(t *testing.T) {
	llm := &stubLLM{responses: []string{"Hi Alex! How was the week with Dana?"}}
	f := newWorkerFixture(t, llm)

	pub := NewPublisher(f.queue, nil)
	err := pub.PublishInitiate(context.Background(), InitiatePayload{
		OrgID:           "org_1",
		ReviewerID:      "user_rev",
		SubjectID:       "user_sub",
		InteractionType: InteractionPeerReview,
		Platform:        "slack",
		ChannelID:       "D123",
		QuestionnaireID: "q1",
	}, 0)
	if err != nil {
		t.Fatal(err)
	}

	f.drain(t)

	sent := f.sender.sent()
	if len(sent) != 1 {
		t.Fatalf("sent messages = %d, want 1", len(sent))
	}
	if sent[0].Platform != "slack" || sent[0].ChannelID != "D123" {
		t.Errorf("delivery = %+v", sent[0])
	}
	if !strings.Contains(sent[0].Text, "Hi Alex!") {
		t.Errorf("opening text = %q", sent[0].Text)
	}

	state, err := f.states.Get(context.Background(), f.lastConversationID(t))
	if err != nil {
		t.Fatal(err)
	}
	if state == nil || state.Phase != PhaseOpening || state.MessageCount != 1 {
		t.Errorf("persisted state = %+v", state)
	}
	if len(f.jobs.completed) != 1 {
		t.Errorf("completed jobs = %d, want 1", len(f.jobs.completed))
	}
}

// lastConversationID returns the conversation ID the job store saw on the
// most recent completed job.
func (f *workerFixture) lastConversationID(t *testing.T) string {
	t.Helper()
	f.jobs.mu.Lock()
	defer f.jobs.mu.Unlock()
	if len(f.jobs.convIDs) == 0 {
		t.Fatal("no completed jobs recorded")
	}
	return f.jobs.convIDs[len(f.jobs.convIDs)-1]
}

func TestWorkerReplyMissingStateIsNoop(t *testing.T) {
	llm := &stubLLM{}
	f := newWorkerFixture(t, llm)

	pub := NewPublisher(f.queue, nil)
	err := pub.PublishReply(context.Background(), ReplyPayload{
		ConversationID: "conv_expired",
		OrgID:          "org_1",
		UserMessage:    "hello?",
	})
	if err != nil {
		t.Fatal(err)
	}

	f.drain(t)

	if len(f.sender.sent()) != 0 {
		t.Errorf("expected no deliveries for unknown conversation")
	}
	if len(f.jobs.failed) != 0 {
		t.Errorf("unknown conversation must not fail the job")
	}
	if len(f.jobs.completed) != 1 {
		t.Errorf("completed jobs = %d, want 1", len(f.jobs.completed))
	}
}

func TestWorkerReplyLifecycleToClose(t *testing.T) {
	// Scripted run: opening, then a classifier "close" on the first reply.
	llm := &stubLLM{responses: []string{"Hi Alex! How was the week?", "close"}}
	f := newWorkerFixture(t, llm)

	pub := NewPublisher(f.queue, nil)
	if err := pub.PublishInitiate(context.Background(), InitiatePayload{
		OrgID:           "org_1",
		ReviewerID:      "user_rev",
		SubjectID:       "user_sub",
		InteractionType: InteractionPeerReview,
		Platform:        "slack",
		ChannelID:       "D123",
		QuestionnaireID: "q1",
	}, 0); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	convID := f.lastConversationID(t)

	if err := pub.PublishReply(context.Background(), ReplyPayload{
		ConversationID: convID,
		OrgID:          "org_1",
		UserMessage:    "Nothing else from me, thanks.",
	}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	// State removed from the live store.
	state, err := f.states.Get(context.Background(), convID)
	if err != nil {
		t.Fatal(err)
	}
	if state != nil {
		t.Error("state still live after close")
	}

	// Transcript archived and analysis enqueued.
	if len(f.archiver.states) != 1 {
		t.Fatalf("archived transcripts = %d, want 1", len(f.archiver.states))
	}
	if len(f.analysis.payloads) != 1 || f.analysis.payloads[0].ConversationID != convID {
		t.Fatalf("analysis payloads = %+v", f.analysis.payloads)
	}

	// Farewell delivered.
	sent := f.sender.sent()
	last := sent[len(sent)-1]
	if last.Text != ClosingMessage(InteractionPeerReview) {
		t.Errorf("farewell = %q", last.Text)
	}
}

func TestWorkerForceClose(t *testing.T) {
	llm := &stubLLM{responses: []string{"Hi Alex! How was the week?"}}
	f := newWorkerFixture(t, llm)

	pub := NewPublisher(f.queue, nil)
	if err := pub.PublishInitiate(context.Background(), InitiatePayload{
		OrgID:           "org_1",
		ReviewerID:      "user_rev",
		SubjectID:       "user_sub",
		InteractionType: InteractionPulseCheck,
		Platform:        "slack",
		ChannelID:       "D123",
		QuestionnaireID: "q1",
	}, 0); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	convID := f.lastConversationID(t)

	if err := pub.PublishClose(context.Background(), ClosePayload{ConversationID: convID}); err != nil {
		t.Fatal(err)
	}
	f.drain(t)

	state, err := f.states.Get(context.Background(), convID)
	if err != nil {
		t.Fatal(err)
	}
	if state != nil {
		t.Error("state still live after forced close")
	}
	sent := f.sender.sent()
	if sent[len(sent)-1].Text != ClosingMessage(InteractionPulseCheck) {
		t.Errorf("farewell = %q", sent[len(sent)-1].Text)
	}
}

// recordingQueue records acknowledged receipt handles so tests can assert
// which messages the worker deleted.
type recordingQueue struct {
	*MemoryQueue
	mu      sync.Mutex
	deleted []string
}

func (q *recordingQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deleted = append(q.deleted, receiptHandle)
	return nil
}

func (q *recordingQueue) deletedHandles() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

func TestWorkerLeavesMessageOnTransientFailure(t *testing.T) {
	llm := &stubLLM{responses: []string{"Hi Alex! How was the week?"}}
	mr, client := newTestRedis(t)
	states := NewStateStore(client, time.Hour)
	lock := NewLock(client, 30*time.Second)
	queue := &recordingQueue{MemoryQueue: NewMemoryQueue(16)}
	sender := &captureSender{}
	jobs := &captureJobs{}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2"))

	worker := NewWorker(orch, queue, states, lock, sender, nil, WithJobStore(jobs))

	pub := NewPublisher(queue, nil)
	if err := pub.PublishReply(context.Background(), ReplyPayload{
		ConversationID: "conv_1",
		OrgID:          "org_1",
		UserMessage:    "It went well.",
	}); err != nil {
		t.Fatal(err)
	}
	msgs, err := queue.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("received %d messages, want 1", len(msgs))
	}

	// Take the state store down so the reply job fails mid-flight.
	mr.Close()

	worker.handleMessage(context.Background(), msgs[0])

	if deleted := queue.deletedHandles(); len(deleted) != 0 {
		t.Errorf("failed job deleted receipts %v, message must stay queued", deleted)
	}
	if len(jobs.failed) != 1 {
		t.Errorf("failed jobs = %d, want 1", len(jobs.failed))
	}
	if len(jobs.completed) != 0 {
		t.Errorf("completed jobs = %d, want 0", len(jobs.completed))
	}
}

func TestWorkerDeletesMessageOnSuccess(t *testing.T) {
	llm := &stubLLM{responses: []string{"Hi Alex! How was the week?"}}
	_, client := newTestRedis(t)
	states := NewStateStore(client, time.Hour)
	lock := NewLock(client, 30*time.Second)
	queue := &recordingQueue{MemoryQueue: NewMemoryQueue(16)}
	sender := &captureSender{}
	jobs := &captureJobs{}
	orch := newTestOrchestrator(t, llm, testQuestionnaire("q1", false, "t1", "t2"))

	worker := NewWorker(orch, queue, states, lock, sender, nil, WithJobStore(jobs))

	pub := NewPublisher(queue, nil)
	if err := pub.PublishInitiate(context.Background(), InitiatePayload{
		OrgID:           "org_1",
		ReviewerID:      "user_rev",
		SubjectID:       "user_sub",
		InteractionType: InteractionPeerReview,
		Platform:        "slack",
		ChannelID:       "D123",
		QuestionnaireID: "q1",
	}, 0); err != nil {
		t.Fatal(err)
	}
	msgs, err := queue.Receive(context.Background(), 1, 0)
	if err != nil {
		t.Fatal(err)
	}

	worker.handleMessage(context.Background(), msgs[0])

	deleted := queue.deletedHandles()
	if len(deleted) != 1 || deleted[0] != msgs[0].ReceiptHandle {
		t.Errorf("deleted receipts = %v, want [%s]", deleted, msgs[0].ReceiptHandle)
	}
	if len(jobs.completed) != 1 {
		t.Errorf("completed jobs = %d, want 1", len(jobs.completed))
	}
}
