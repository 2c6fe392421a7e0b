package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/orders-tracker/constants"
	"github.com/joseph-ayodele/orders-tracker/internal/entity"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeDirectory struct {
	emails map[uuid.UUID]string
}

func (d fakeDirectory) LookupEmail(_ context.Context, ownerID uuid.UUID) (string, error) {
	if e, ok := d.emails[ownerID]; ok {
		return e, nil
	}
	return "", errors.New("no such owner")
}

type fakeMailer struct {
	mu   sync.Mutex
	err  error
	sent []Email
	log  *[]string
}

func (m *fakeMailer) Send(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.log != nil {
		*m.log = append(*m.log, "email")
	}
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, e)
	return nil
}

type published struct {
	channel string
	event   string
	payload *UploadStatus
}

type fakePublisher struct {
	mu     sync.Mutex
	err    error
	events []published
	log    *[]string
}

func (p *fakePublisher) Publish(_ context.Context, key, event string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.log != nil {
		*p.log = append(*p.log, "push")
	}
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, published{channel: key, event: event, payload: payload.(*UploadStatus)})
	return nil
}

func completedJob(owner uuid.UUID) *entity.Job {
	done := time.Date(2026, 3, 1, 15, 4, 0, 0, time.UTC)
	return &entity.Job{
		ID:          uuid.New(),
		OwnerID:     owner,
		FileRef:     "uploads/march.xlsx",
		Status:      constants.JobStatusCompleted,
		CompletedAt: &done,
		Metrics:     &entity.Metrics{TotalRevenue: 1234.5, TotalItems: 3, AverageOrderValue: 411.5},
	}
}

func failedJob(owner uuid.UUID) *entity.Job {
	detail := "invalid format: missing quantity column(s) in the first row"
	return &entity.Job{
		ID:          uuid.New(),
		OwnerID:     owner,
		FileRef:     "bad.xlsx",
		Status:      constants.JobStatusFailed,
		ErrorDetail: &detail,
	}
}

func TestNotifyEmailsBeforePush(t *testing.T) {
	owner := uuid.New()
	var order []string
	mailer := &fakeMailer{log: &order}
	pub := &fakePublisher{log: &order}
	n := NewNotifier(fakeDirectory{map[uuid.UUID]string{owner: "ada@example.com"}}, mailer, pub, time.Second, discard)

	rep := n.Notify(context.Background(), completedJob(owner))
	if !rep.EmailSent || !rep.Pushed || rep.TargetEmail != "ada@example.com" {
		t.Fatalf("report = %+v", rep)
	}
	if strings.Join(order, ",") != "email,push" {
		t.Fatalf("order = %v", order)
	}
	if len(mailer.sent) != 1 || !strings.Contains(mailer.sent[0].Text, "Total Revenue: $1,234.50") {
		t.Fatalf("email = %+v", mailer.sent)
	}
	ev := pub.events[0]
	if ev.channel != owner.String() || ev.event != EventUploadStatus {
		t.Errorf("published to %s/%s", ev.channel, ev.event)
	}
	if !ev.payload.EmailSent || ev.payload.TargetEmail != "ada@example.com" || *ev.payload.TotalRevenue != 1234.5 {
		t.Errorf("payload = %+v", ev.payload)
	}
}

func TestNotifyReportsEmailFailureInPush(t *testing.T) {
	owner := uuid.New()
	pub := &fakePublisher{}
	mailer := &fakeMailer{err: &SendError{Channel: "email", Err: errors.New("connection refused")}}
	n := NewNotifier(fakeDirectory{map[uuid.UUID]string{owner: "ada@example.com"}}, mailer, pub, time.Second, discard)

	rep := n.Notify(context.Background(), failedJob(owner))
	if rep.EmailSent || rep.EmailErr == nil {
		t.Fatalf("report = %+v, want failed email", rep)
	}
	if !rep.Pushed || len(pub.events) != 1 {
		t.Fatalf("push was blocked by email failure: %+v", rep)
	}
	p := pub.events[0].payload
	if p.EmailSent {
		t.Error("payload claims email was sent")
	}
	if p.Status != constants.JobStatusFailed || !strings.HasPrefix(p.Error, "invalid format") {
		t.Errorf("payload = %+v", p)
	}
	if p.TargetEmail != "ada@example.com" {
		t.Errorf("targetEmail = %q", p.TargetEmail)
	}
}

func TestNotifyUnknownOwnerStillPushes(t *testing.T) {
	pub := &fakePublisher{}
	mailer := &fakeMailer{}
	n := NewNotifier(fakeDirectory{}, mailer, pub, time.Second, discard)

	rep := n.Notify(context.Background(), completedJob(uuid.New()))
	if rep.EmailSent || len(mailer.sent) != 0 {
		t.Fatalf("email sent without an address: %+v", rep)
	}
	if !rep.Pushed || pub.events[0].payload.TargetEmail != "" {
		t.Fatalf("report = %+v", rep)
	}
}

func TestNotifyPushFailureIsContained(t *testing.T) {
	owner := uuid.New()
	pub := &fakePublisher{err: errors.New("redis down")}
	n := NewNotifier(fakeDirectory{map[uuid.UUID]string{owner: "ada@example.com"}}, &fakeMailer{}, pub, time.Second, discard)

	rep := n.Notify(context.Background(), completedJob(owner))
	if !rep.EmailSent || rep.Pushed || rep.PushErr == nil {
		t.Fatalf("report = %+v", rep)
	}
}

func TestUploadStatusSchema(t *testing.T) {
	owner := uuid.New()
	ok, err := NewUploadStatus(completedJob(owner), true, "ada@example.com")
	if err != nil {
		t.Fatalf("NewUploadStatus: %v", err)
	}
	if err := ok.Validate(); err != nil {
		t.Fatalf("completed payload rejected: %v", err)
	}
	failed, _ := NewUploadStatus(failedJob(owner), false, "")
	if err := failed.Validate(); err != nil {
		t.Fatalf("failed payload rejected: %v", err)
	}

	bad := *ok
	bad.Error = "should not be here"
	if err := bad.Validate(); err == nil {
		t.Error("completed payload with error accepted")
	}
	bad = *failed
	bad.TotalRevenue = ok.TotalRevenue
	if err := bad.Validate(); err == nil {
		t.Error("failed payload with metrics accepted")
	}

	pending := completedJob(owner)
	pending.Status = constants.JobStatusProcessing
	if _, err := NewUploadStatus(pending, false, ""); err == nil {
		t.Error("payload built for non-terminal job")
	}
}

func TestRender(t *testing.T) {
	subject, text, html, err := Render(completedJob(uuid.New()))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "Upload Processing Completed: march.xlsx" {
		t.Errorf("subject = %q", subject)
	}
	for _, want := range []string{"File Name: march.xlsx", "Total Items: 3", "Average Order Value: $411.50", "Mar 1, 2026, 3:04 PM UTC"} {
		if !strings.Contains(text, want) {
			t.Errorf("text body missing %q:\n%s", want, text)
		}
	}
	if !strings.Contains(html, "$1,234.50") {
		t.Errorf("html body missing revenue:\n%s", html)
	}

	job := failedJob(uuid.New())
	evil := "<script>alert(1)</script>"
	job.ErrorDetail = &evil
	_, text, html, err = Render(job)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(text, "Reason: "+evil) {
		t.Errorf("text body = %s", text)
	}
	if strings.Contains(html, evil) {
		t.Error("html body does not escape the error detail")
	}
}
