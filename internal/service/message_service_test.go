package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"atelier-dm/internal/domain"
	"atelier-dm/internal/feed"
	"atelier-dm/internal/notify"
)

type mockMessageRepo struct {
	created   []domain.Message
	createErr error
	unread    []domain.Message
	unreadErr error
	marked    []string
	markErr   error
	listData  []domain.Message
}

func (m *mockMessageRepo) CreateWithTouch(_ context.Context, msg domain.Message) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, msg)
	return nil
}

func (m *mockMessageRepo) ListByConversationIDs(_ context.Context, _ []string) ([]domain.Message, error) {
	return m.listData, nil
}

func (m *mockMessageRepo) ListUnread(_ context.Context, _, _ string) ([]domain.Message, error) {
	if m.unreadErr != nil {
		return nil, m.unreadErr
	}
	return m.unread, nil
}

func (m *mockMessageRepo) MarkRead(_ context.Context, ids []string, _ time.Time) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.marked = append(m.marked, ids...)
	return nil
}

type mockNotificationRepo struct {
	created   []domain.Notification
	createErr error
	pruned    [][]string
	prunedFor []string
	pruneErr  error
}

func (m *mockNotificationRepo) Create(_ context.Context, n domain.Notification) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, n)
	return nil
}

func (m *mockNotificationRepo) GetByID(_ context.Context, id string) (domain.Notification, error) {
	for _, n := range m.created {
		if n.ID == id {
			return n, nil
		}
	}
	return domain.Notification{}, pgx.ErrNoRows
}

func (m *mockNotificationRepo) DeleteUnsent(_ context.Context, recipientID string, relatedItemIDs []string) error {
	if m.pruneErr != nil {
		return m.pruneErr
	}
	m.prunedFor = append(m.prunedFor, recipientID)
	m.pruned = append(m.pruned, relatedItemIDs)
	return nil
}

func (m *mockNotificationRepo) MarkSent(_ context.Context, _ string) error {
	return nil
}

type mockUserRepo struct {
	users  map[string]domain.User
	getErr error
}

func (m *mockUserRepo) GetByID(_ context.Context, id string) (domain.User, error) {
	if m.getErr != nil {
		return domain.User{}, m.getErr
	}
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, pgx.ErrNoRows
	}
	return u, nil
}

func (m *mockUserRepo) ListByIDs(_ context.Context, ids []string) ([]domain.User, error) {
	var out []domain.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

type mockQueue struct {
	queued []notify.DirectMessagePayload
	err    error
}

func (m *mockQueue) QueueNotification(_ context.Context, p notify.DirectMessagePayload) error {
	if m.err != nil {
		return m.err
	}
	m.queued = append(m.queued, p)
	return nil
}

func newSendFixture() (*MessageService, *mockMessageRepo, *mockConversationRepo, *mockNotificationRepo, *mockQueue, *mockPublisher) {
	messages := &mockMessageRepo{}
	conversations := newMockConversationRepo()
	conversations.byID["c1"] = domain.Conversation{ID: "c1", Participants: domain.ParticipantPair("u1", "u2")}
	notifications := &mockNotificationRepo{}
	users := &mockUserRepo{users: map[string]domain.User{
		"u1": {ID: "u1", DisplayName: "Ana"},
		"u2": {ID: "u2", DisplayName: "Zoe"},
	}}
	queue := &mockQueue{}
	pub := &mockPublisher{}
	svc := NewMessageService(zap.NewNop(), messages, conversations, notifications, users, queue, pub)
	return svc, messages, conversations, notifications, queue, pub
}

func TestMessageSend_RoundTrip(t *testing.T) {
	svc, messages, _, notifications, queue, pub := newSendFixture()

	msg, err := svc.Send(context.Background(), "c1", "u1", "hello", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.ID == "" || msg.CreatedAt.IsZero() {
		t.Fatalf("expected generated id and created_at")
	}
	if msg.Content != "hello" || msg.ReadAt != nil {
		t.Fatalf("expected unread 'hello', got content=%q read_at=%v", msg.Content, msg.ReadAt)
	}
	if msg.Sender == nil || msg.Sender.DisplayName != "Ana" {
		t.Fatalf("expected sender profile attached, got %+v", msg.Sender)
	}
	if len(messages.created) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(messages.created))
	}

	if len(notifications.created) != 1 {
		t.Fatalf("expected 1 notification row, got %d", len(notifications.created))
	}
	n := notifications.created[0]
	if n.RecipientID != "u2" || n.RelatedItemID != msg.ID || n.Type != domain.NotificationTypeDirectMessage || n.IsSent {
		t.Fatalf("unexpected notification %+v", n)
	}

	if len(queue.queued) != 1 || queue.queued[0].RecipientID != "u2" || queue.queued[0].MessageID != msg.ID {
		t.Fatalf("unexpected queued payloads %+v", queue.queued)
	}
	if len(pub.events) != 1 || pub.events[0].Table != feed.TableMessages {
		t.Fatalf("expected 1 message feed event, got %+v", pub.events)
	}
}

func TestMessageSend_MediaOnly(t *testing.T) {
	svc, messages, _, _, _, _ := newSendFixture()

	media := &domain.Media{URL: "https://cdn.example/im.png", Type: "image/png"}
	msg, err := svc.Send(context.Background(), "c1", "u2", "", media)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Media == nil || msg.Media.URL != media.URL {
		t.Fatalf("expected media preserved, got %+v", msg.Media)
	}
	if len(messages.created) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(messages.created))
	}
}

func TestMessageSend_NotificationFailureIsolated(t *testing.T) {
	svc, _, _, notifications, queue, _ := newSendFixture()
	notifications.createErr = errors.New("queue table unavailable")
	queue.err = errors.New("redis down")

	msg, err := svc.Send(context.Background(), "c1", "u1", "hola", nil)
	if err != nil {
		t.Fatalf("expected send to succeed despite notification failure, got %v", err)
	}
	if msg.Content != "hola" {
		t.Fatalf("expected persisted message, got %+v", msg)
	}
}

func TestMessageSend_ProfileFailureDegrades(t *testing.T) {
	svc, messages, _, _, _, _ := newSendFixture()
	svc.users = &mockUserRepo{getErr: errors.New("profiles unavailable")}

	msg, err := svc.Send(context.Background(), "c1", "u1", "hola", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if msg.Sender != nil {
		t.Fatalf("expected no sender attached, got %+v", msg.Sender)
	}
	if len(messages.created) != 1 {
		t.Fatalf("expected message persisted, got %d", len(messages.created))
	}
}

func TestMessageSend_Validation(t *testing.T) {
	svc, _, _, _, _, _ := newSendFixture()

	if _, err := svc.Send(context.Background(), "c1", "u1", "  ", nil); !errors.Is(err, ErrMessageInvalidInput) {
		t.Fatalf("expected ErrMessageInvalidInput, got %v", err)
	}
	if _, err := svc.Send(context.Background(), "", "u1", "hola", nil); !errors.Is(err, ErrMessageInvalidInput) {
		t.Fatalf("expected ErrMessageInvalidInput, got %v", err)
	}
}

func TestMessageSend_ConversationNotFound(t *testing.T) {
	svc, _, _, _, _, _ := newSendFixture()

	_, err := svc.Send(context.Background(), "missing", "u1", "hola", nil)
	if domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected not found kind, got %v (%v)", domain.KindOf(err), err)
	}
}

func TestMessageSend_SenderMustBeParticipant(t *testing.T) {
	svc, messages, _, _, _, _ := newSendFixture()

	_, err := svc.Send(context.Background(), "c1", "intruder", "hola", nil)
	if domain.KindOf(err) != domain.KindAuthorization {
		t.Fatalf("expected authorization kind, got %v (%v)", domain.KindOf(err), err)
	}
	if len(messages.created) != 0 {
		t.Fatalf("expected nothing persisted, got %d", len(messages.created))
	}
}

func TestMessageSend_StorageError(t *testing.T) {
	svc, messages, _, _, _, _ := newSendFixture()
	messages.createErr = errors.New("insert failed")

	_, err := svc.Send(context.Background(), "c1", "u1", "hola", nil)
	if domain.KindOf(err) != domain.KindStorage {
		t.Fatalf("expected storage kind, got %v (%v)", domain.KindOf(err), err)
	}
}
