package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"atelier-dm/internal/domain"
)

type stubNotificationRepo struct {
	rows   map[string]domain.Notification
	sent   []string
	getErr error
}

func (s *stubNotificationRepo) Create(_ context.Context, n domain.Notification) error {
	s.rows[n.ID] = n
	return nil
}

func (s *stubNotificationRepo) GetByID(_ context.Context, id string) (domain.Notification, error) {
	if s.getErr != nil {
		return domain.Notification{}, s.getErr
	}
	n, ok := s.rows[id]
	if !ok {
		return domain.Notification{}, pgx.ErrNoRows
	}
	return n, nil
}

func (s *stubNotificationRepo) DeleteUnsent(_ context.Context, _ string, _ []string) error {
	return nil
}

func (s *stubNotificationRepo) MarkSent(_ context.Context, id string) error {
	if n, ok := s.rows[id]; ok {
		n.IsSent = true
		s.rows[id] = n
	}
	s.sent = append(s.sent, id)
	return nil
}

type stubUserRepo struct {
	users map[string]domain.User
}

func (s *stubUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (s *stubUserRepo) ListByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	var out []domain.User
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type countingSender struct {
	sent []string
}

func (s *countingSender) SendMessageAlert(_ context.Context, toEmail, _, _ string) error {
	s.sent = append(s.sent, toEmail)
	return nil
}

func directMessageTask(t *testing.T, p DirectMessagePayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return asynq.NewTask(TaskTypeDirectMessage, raw)
}

func newWorkerFixture(notifications *stubNotificationRepo) (*Worker, *countingSender) {
	users := &stubUserRepo{users: map[string]domain.User{
		"u2": {ID: "u2", Email: "zoe@example.com"},
	}}
	sender := &countingSender{}
	w := NewWorker(zap.NewNop(), asynq.RedisClientOpt{Addr: "localhost:6379"}, notifications, users, sender)
	return w, sender
}

func TestWorkerDeliversAndMarksSent(t *testing.T) {
	notifications := &stubNotificationRepo{rows: map[string]domain.Notification{
		"n1": {ID: "n1", Type: domain.NotificationTypeDirectMessage, RecipientID: "u2", RelatedItemID: "m1"},
	}}
	w, sender := newWorkerFixture(notifications)

	task := directMessageTask(t, DirectMessagePayload{
		NotificationID: "n1", RecipientID: "u2", SenderID: "u1", MessageID: "m1", Content: "hola",
	})
	if err := w.handleDirectMessage(context.Background(), task); err != nil {
		t.Fatalf("expected delivery to succeed, got %v", err)
	}

	if len(sender.sent) != 1 || sender.sent[0] != "zoe@example.com" {
		t.Fatalf("expected alert for zoe@example.com, got %v", sender.sent)
	}
	if len(notifications.sent) != 1 || notifications.sent[0] != "n1" {
		t.Fatalf("expected n1 marked sent, got %v", notifications.sent)
	}
}

func TestWorkerDiscardsPrunedNotification(t *testing.T) {
	// La fila ya no existe: el lector marco el mensaje como leido antes de
	// que la tarea llegara al worker.
	notifications := &stubNotificationRepo{rows: map[string]domain.Notification{}}
	w, sender := newWorkerFixture(notifications)

	task := directMessageTask(t, DirectMessagePayload{
		NotificationID: "n1", RecipientID: "u2", SenderID: "u1", MessageID: "m1", Content: "hola",
	})
	if err := w.handleDirectMessage(context.Background(), task); err != nil {
		t.Fatalf("expected pruned task to be discarded without error, got %v", err)
	}

	if len(sender.sent) != 0 {
		t.Fatalf("expected no alert for a pruned notification, got %v", sender.sent)
	}
	if len(notifications.sent) != 0 {
		t.Fatalf("expected nothing marked sent, got %v", notifications.sent)
	}
}

func TestWorkerSkipsAlreadySentNotification(t *testing.T) {
	notifications := &stubNotificationRepo{rows: map[string]domain.Notification{
		"n1": {ID: "n1", RecipientID: "u2", RelatedItemID: "m1", IsSent: true},
	}}
	w, sender := newWorkerFixture(notifications)

	task := directMessageTask(t, DirectMessagePayload{
		NotificationID: "n1", RecipientID: "u2", SenderID: "u1", MessageID: "m1", Content: "hola",
	})
	if err := w.handleDirectMessage(context.Background(), task); err != nil {
		t.Fatalf("expected duplicate task to be a no-op, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected no redelivery, got %v", sender.sent)
	}
}
