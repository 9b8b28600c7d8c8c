package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/pulsekit/pulsekit/internal/conversation"
	"github.com/pulsekit/pulsekit/internal/directory"
	"github.com/pulsekit/pulsekit/internal/questionnaire"
)

type fakeEntryStore struct {
	entries    []ScheduleEntry
	createErr  error
	dispatched []uuid.UUID
}

func (f *fakeEntryStore) Create(_ context.Context, e *ScheduleEntry) error {
	if f.createErr != nil {
		return f.createErr
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	f.entries = append(f.entries, *e)
	return nil
}

func (f *fakeEntryStore) ListWindow(_ context.Context, orgID string, from, to time.Time) ([]ScheduleEntry, error) {
	var out []ScheduleEntry
	for _, e := range f.entries {
		if e.OrgID == orgID && !e.SendAt.Before(from) && !e.SendAt.After(to) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeEntryStore) MarkDispatched(_ context.Context, id uuid.UUID) error {
	for i := range f.entries {
		if f.entries[i].ID == id {
			f.entries[i].Status = StatusDispatched
		}
	}
	f.dispatched = append(f.dispatched, id)
	return nil
}

type fakePublisher struct {
	payloads []conversation.InitiatePayload
	delays   []time.Duration
	err      error
}

func (f *fakePublisher) PublishInitiate(_ context.Context, req conversation.InitiatePayload, delay time.Duration) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, req)
	f.delays = append(f.delays, delay)
	return nil
}

// Tuesday 10:00 UTC. The default fixture preference of 10:01 keeps the
// worst-case delay (1 minute plus 14 minutes of jitter) at the broker
// ceiling, so near-send tests always publish directly.
var schedulerNow = time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)

func schedulerDirectory(users ...directory.User) *directory.InMemoryRepository {
	dir := directory.NewInMemoryRepository()
	for _, u := range users {
		dir.PutUser(u)
	}
	return dir
}

func schedulerQuestionnaires() *questionnaire.InMemoryRepository {
	repo := questionnaire.NewInMemoryRepository()
	repo.Put(questionnaire.Questionnaire{
		ID: "q_peer", OrgID: "org_1", Category: "peer_review",
		Source: questionnaire.SourceBuiltIn, Active: true,
	})
	repo.Put(questionnaire.Questionnaire{
		ID: "q_self", OrgID: "org_1", Category: "self_reflection",
		Source: questionnaire.SourceBuiltIn, Active: true,
	})
	return repo
}

func newTestScheduler(t *testing.T, dir *directory.InMemoryRepository, entries *fakeEntryStore, pub InitiatePublisher) *Scheduler {
	t.Helper()
	subjects := NewSubjectSelector(dir, &stubRecents{}, seededRand(), nil)
	return NewScheduler(dir, schedulerQuestionnaires(), subjects, entries, pub, nil,
		WithRand(seededRand()),
		WithClock(func() time.Time { return schedulerNow }),
	)
}

func activeUser(id string) directory.User {
	return directory.User{
		ID: id, OrgID: "org_1", Platform: "slack", ChannelID: "D" + id,
		PreferredTime: "10:01", QuietDays: []time.Weekday{time.Sunday},
		Active: true, Onboarded: true,
	}
}

func TestSchedulerCreatesPeerReviewEntry(t *testing.T) {
	dir := schedulerDirectory(activeUser("alex"), activeUser("dana"))
	entries := &fakeEntryStore{}
	pub := &fakePublisher{}
	s := newTestScheduler(t, dir, entries, pub)

	res, err := s.RunForOrg(context.Background(), "org_1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 2 || res.Skipped != 0 {
		t.Fatalf("result = %+v, want 2 scheduled", res)
	}

	e := entries.entries[0]
	if e.UserID != "alex" || e.SubjectID != "dana" {
		t.Errorf("entry reviewer/subject = %s/%s, want alex/dana", e.UserID, e.SubjectID)
	}
	if e.InteractionType != conversation.InteractionPeerReview {
		t.Errorf("interaction type = %s, want peer_review", e.InteractionType)
	}
	if e.QuestionnaireID != "q_peer" {
		t.Errorf("questionnaire = %s, want q_peer", e.QuestionnaireID)
	}
	if !e.SendAt.After(schedulerNow) {
		t.Errorf("sendAt %v not after now %v", e.SendAt, schedulerNow)
	}
}

func TestSchedulerPublishesNearSends(t *testing.T) {
	dir := schedulerDirectory(activeUser("alex"), activeUser("dana"))
	entries := &fakeEntryStore{}
	pub := &fakePublisher{}
	s := newTestScheduler(t, dir, entries, pub)

	if _, err := s.RunForOrg(context.Background(), "org_1"); err != nil {
		t.Fatal(err)
	}

	if len(pub.payloads) != 2 {
		t.Fatalf("published = %d, want 2", len(pub.payloads))
	}
	p := pub.payloads[0]
	if p.ReviewerID != "alex" || p.SubjectID != "dana" || p.Platform != "slack" || p.ChannelID != "Dalex" {
		t.Errorf("payload = %+v", p)
	}
	if p.ScheduleEntryID != entries.entries[0].ID.String() {
		t.Errorf("schedule entry id = %s, want %s", p.ScheduleEntryID, entries.entries[0].ID)
	}
	if d := pub.delays[0]; d <= 0 || d > maxQueueDelay {
		t.Errorf("delay = %v, want within (0, %v]", d, maxQueueDelay)
	}
	if entries.entries[0].Status != StatusDispatched {
		t.Errorf("entry status = %s, want dispatched", entries.entries[0].Status)
	}
}

func TestSchedulerLeavesFarSendsPending(t *testing.T) {
	user := activeUser("alex")
	user.PreferredTime = "18:00" // eight hours out
	dir := schedulerDirectory(user, activeUser("dana"))
	entries := &fakeEntryStore{}
	pub := &fakePublisher{}
	s := newTestScheduler(t, dir, entries, pub)

	if _, err := s.RunForOrg(context.Background(), "org_1"); err != nil {
		t.Fatal(err)
	}

	for _, p := range pub.payloads {
		if p.ReviewerID == "alex" {
			t.Fatal("entry beyond the queue delay ceiling must wait for the dispatcher")
		}
	}
	if entries.entries[0].Status != StatusPending {
		t.Errorf("entry status = %s, want pending", entries.entries[0].Status)
	}
}

func TestSchedulerSkipsUserAtWeeklyQuota(t *testing.T) {
	dir := schedulerDirectory(activeUser("alex"), activeUser("dana"))
	entries := &fakeEntryStore{}
	for i := 0; i < 2; i++ {
		entries.entries = append(entries.entries, ScheduleEntry{
			ID: uuid.New(), OrgID: "org_1", UserID: "alex", SubjectID: "dana",
			InteractionType: conversation.InteractionPeerReview,
			SendAt:          schedulerNow.Add(-time.Duration(i+1) * time.Hour),
			Status:          StatusDispatched,
		})
	}
	s := newTestScheduler(t, dir, entries, &fakePublisher{})

	res, err := s.RunForOrg(context.Background(), "org_1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 1 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want alex skipped and dana scheduled", res)
	}
	for _, e := range entries.entries[2:] {
		if e.UserID == "alex" {
			t.Error("alex is at quota, no new entry expected")
		}
	}
}

func TestSchedulerRotatesToSelfReflection(t *testing.T) {
	dir := schedulerDirectory(activeUser("alex"), activeUser("dana"))
	entries := &fakeEntryStore{}
	entries.entries = append(entries.entries, ScheduleEntry{
		ID: uuid.New(), OrgID: "org_1", UserID: "alex", SubjectID: "dana",
		InteractionType: conversation.InteractionPeerReview,
		SendAt:          schedulerNow.Add(-time.Hour),
		Status:          StatusDispatched,
	})
	s := newTestScheduler(t, dir, entries, &fakePublisher{})

	if _, err := s.RunForOrg(context.Background(), "org_1"); err != nil {
		t.Fatal(err)
	}

	var created *ScheduleEntry
	for i := range entries.entries[1:] {
		if e := &entries.entries[1+i]; e.UserID == "alex" {
			created = e
		}
	}
	if created == nil {
		t.Fatal("no new entry for alex")
	}
	if created.InteractionType != conversation.InteractionSelfReflection {
		t.Errorf("interaction type = %s, want self_reflection", created.InteractionType)
	}
	if created.SubjectID != "alex" {
		t.Errorf("subject = %s, want the reviewer themselves", created.SubjectID)
	}
	if created.QuestionnaireID != "q_self" {
		t.Errorf("questionnaire = %s, want q_self", created.QuestionnaireID)
	}
}

func TestSchedulerSkipsQuietDay(t *testing.T) {
	user := activeUser("alex")
	user.QuietDays = []time.Weekday{time.Tuesday} // schedulerNow is a Tuesday
	dir := schedulerDirectory(user, activeUser("dana"))
	entries := &fakeEntryStore{}
	s := newTestScheduler(t, dir, entries, &fakePublisher{})

	res, err := s.RunForOrg(context.Background(), "org_1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Skipped != 1 {
		t.Fatalf("result = %+v, want alex skipped", res)
	}
	for _, e := range entries.entries {
		if e.UserID == "alex" {
			t.Error("no entry expected on a quiet day")
		}
	}
}

func TestSchedulerSkipsUserWithoutSubject(t *testing.T) {
	// A lone user has no peer to review.
	dir := schedulerDirectory(activeUser("alex"))
	entries := &fakeEntryStore{}
	s := newTestScheduler(t, dir, entries, &fakePublisher{})

	res, err := s.RunForOrg(context.Background(), "org_1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 0 || res.Skipped != 1 {
		t.Fatalf("result = %+v, want 1 skipped", res)
	}
}

func TestSchedulerEntryCreateFailureDegradesToSkip(t *testing.T) {
	dir := schedulerDirectory(activeUser("alex"), activeUser("dana"))
	entries := &fakeEntryStore{createErr: errors.New("db down")}
	s := newTestScheduler(t, dir, entries, &fakePublisher{})

	res, err := s.RunForOrg(context.Background(), "org_1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 0 || res.Skipped != 2 {
		t.Fatalf("result = %+v, want all skipped", res)
	}
}

func TestSchedulerPublishFailureLeavesEntryPending(t *testing.T) {
	dir := schedulerDirectory(activeUser("alex"), activeUser("dana"))
	entries := &fakeEntryStore{}
	pub := &fakePublisher{err: errors.New("queue unavailable")}
	s := newTestScheduler(t, dir, entries, pub)

	res, err := s.RunForOrg(context.Background(), "org_1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Scheduled != 2 {
		t.Fatalf("result = %+v, want entries still counted as scheduled", res)
	}
	for _, e := range entries.entries {
		if e.Status != StatusPending {
			t.Errorf("entry %s status = %s, want pending for dispatcher retry", e.ID, e.Status)
		}
	}
}

func TestWeekWindow(t *testing.T) {
	tests := []struct {
		now        time.Time
		wantMonday time.Time
	}{
		{time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},  // Wednesday
		{time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},    // Monday midnight
		{time.Date(2026, 8, 30, 23, 59, 0, 0, time.UTC), time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)},  // Sunday late
		{time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC), time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)},    // next Monday
	}
	for _, tt := range tests {
		from, to := weekWindow(tt.now)
		if !from.Equal(tt.wantMonday) {
			t.Errorf("weekWindow(%v) start = %v, want %v", tt.now, from, tt.wantMonday)
		}
		wantEnd := tt.wantMonday.AddDate(0, 0, 7).Add(-time.Millisecond)
		if !to.Equal(wantEnd) {
			t.Errorf("weekWindow(%v) end = %v, want %v", tt.now, to, wantEnd)
		}
		if !from.Before(tt.now.Add(time.Millisecond)) || to.Before(tt.now) {
			t.Errorf("weekWindow(%v) = [%v, %v] does not contain now", tt.now, from, to)
		}
	}
}
