package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/lmarchetti/taskhive-notifier/internal/notifications"
	"github.com/lmarchetti/taskhive-notifier/pkg/docstore/models"
	"github.com/lmarchetti/taskhive-notifier/pkg/events"
	"github.com/lmarchetti/taskhive-notifier/pkg/events/idempotency"
	"github.com/lmarchetti/taskhive-notifier/pkg/logger"
	"github.com/lmarchetti/taskhive-notifier/pkg/messaging"
	"github.com/lmarchetti/taskhive-notifier/pkg/metrics"
)

type stubDirectory struct {
	projects map[string]*models.Project
	users    map[string]*models.User
	userErrs map[string]error
}

func (s *stubDirectory) GetProject(ctx context.Context, projectID string) (*models.Project, error) {
	return s.projects[projectID], nil
}

func (s *stubDirectory) GetUser(ctx context.Context, uid string) (*models.User, error) {
	if err, ok := s.userErrs[uid]; ok {
		return nil, err
	}
	return s.users[uid], nil
}

func (s *stubDirectory) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return nil, nil
}

type recordingRepo struct {
	batches [][]notifications.Item
	err     error
}

func (r *recordingRepo) Create(ctx context.Context, recipientEmail string, notification *models.Notification) error {
	r.batches = append(r.batches, []notifications.Item{{RecipientEmail: recipientEmail, Notification: notification}})
	return r.err
}

func (r *recordingRepo) CreateBatch(ctx context.Context, items []notifications.Item) error {
	if r.err != nil {
		return r.err
	}
	r.batches = append(r.batches, items)
	return nil
}

type stubMulticaster struct {
	pushes []messaging.MulticastPush
	err    error
}

func (s *stubMulticaster) SendMulticast(ctx context.Context, push messaging.MulticastPush) (messaging.MulticastResult, error) {
	s.pushes = append(s.pushes, push)
	if s.err != nil {
		return messaging.MulticastResult{}, s.err
	}
	return messaging.MulticastResult{SuccessCount: len(push.Tokens)}, nil
}

type stubIdemStore struct{}

func (stubIdemStore) Get(context.Context, string) (string, error) { return "", nil }

func (stubIdemStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	return true, nil
}

func (stubIdemStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (stubIdemStore) Del(ctx context.Context, keys ...string) error { return nil }

func newTestConsumer(t *testing.T, dir *stubDirectory, repo *recordingRepo, push *stubMulticaster) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(stubIdemStore{}, time.Hour)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	consumer, err := NewConsumer(
		dir,
		repo,
		push,
		&pubsub.Subscriber{},
		manager,
		metrics.NewDispatchMetrics(nil),
		logger.New(logger.Options{ServiceName: "test"}),
	)
	if err != nil {
		t.Fatalf("NewConsumer: %v", err)
	}
	return consumer
}

func buildChatMessage(t *testing.T, projectID, messageID string, message models.ChatMessage) *pubsub.Message {
	t.Helper()
	after, err := json.Marshal(message)
	if err != nil {
		t.Fatalf("marshal chat message: %v", err)
	}
	body, err := json.Marshal(events.ChangeEnvelope{
		Version:  1,
		EventID:  "evt-1",
		Document: "projects/" + projectID + "/messages/" + messageID,
		Params:   map[string]string{"projectId": projectID, "messageId": messageID},
		After:    after,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         "m1",
		Data:       body,
		Attributes: map[string]string{events.AttrEventType: events.EventDocumentCreated},
	}
}

func threeCollaboratorProject() *models.Project {
	return &models.Project{
		Title: "Atlas",
		Collaborators: []models.Collaborator{
			{UID: "u1", Email: "u1@x.com"},
			{UID: "u2", Email: "u2@x.com"},
			{UID: "u3", Email: "u3@x.com"},
		},
	}
}

func TestChatMessageFansOutToEveryoneButTheSender(t *testing.T) {
	longText := "Hello everyone, this is a very long message exceeding eighty characters in total length for sure"
	dir := &stubDirectory{
		projects: map[string]*models.Project{"p1": threeCollaboratorProject()},
		users: map[string]*models.User{
			"u2": {Email: "u2@x.com", FCMToken: "t2"},
			"u3": {Email: "u3@x.com"},
		},
	}
	repo := &recordingRepo{}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, dir, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "p1", "msg1", models.ChatMessage{
		SenderID:   "u1",
		SenderName: "Alice",
		Text:       longText,
	}))

	if len(repo.batches) != 1 {
		t.Fatalf("expected one batch write, got %d", len(repo.batches))
	}
	batch := repo.batches[0]
	if len(batch) != 2 {
		t.Fatalf("expected notifications for u2 and u3, got %d", len(batch))
	}
	emails := map[string]bool{}
	for _, item := range batch {
		emails[item.RecipientEmail] = true
		if item.Notification.Type != "chat_message" {
			t.Fatalf("unexpected type %q", item.Notification.Type)
		}
		if item.Notification.MessageID != "msg1" || item.Notification.SenderID != "u1" {
			t.Fatalf("unexpected correlation fields %+v", item.Notification)
		}
		if !strings.HasSuffix(item.Notification.SubTitle, "...") {
			t.Fatalf("expected truncated preview, got %q", item.Notification.SubTitle)
		}
	}
	if !emails["u2@x.com"] || !emails["u3@x.com"] {
		t.Fatalf("unexpected recipients %v", emails)
	}

	if len(push.pushes) != 1 {
		t.Fatalf("expected one multicast, got %d", len(push.pushes))
	}
	sent := push.pushes[0]
	if len(sent.Tokens) != 1 || sent.Tokens[0] != "t2" {
		t.Fatalf("expected push only to u2's token, got %v", sent.Tokens)
	}
	if sent.Data["projectTitle"] != "Atlas" || sent.Data["senderId"] != "u1" {
		t.Fatalf("unexpected push data %v", sent.Data)
	}
}

func TestChatEmptyBodyUsesAttachmentPlaceholder(t *testing.T) {
	dir := &stubDirectory{
		projects: map[string]*models.Project{"p1": threeCollaboratorProject()},
		users:    map[string]*models.User{"u2": {Email: "u2@x.com", FCMToken: "t2"}},
	}
	repo := &recordingRepo{}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, dir, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "p1", "msg1", models.ChatMessage{
		SenderID:   "u1",
		SenderName: "Alice",
	}))

	if len(push.pushes) != 1 {
		t.Fatalf("expected one push, got %d", len(push.pushes))
	}
	if !strings.Contains(push.pushes[0].Body, "Attachment") {
		t.Fatalf("expected attachment placeholder, got %q", push.pushes[0].Body)
	}
}

func TestChatFallsBackToUserDocumentEmail(t *testing.T) {
	dir := &stubDirectory{
		projects: map[string]*models.Project{"p1": {
			Title: "Atlas",
			Collaborators: []models.Collaborator{
				{UID: "u1"},
				{UID: "u2"}, // no cached email on the collaborator record
			},
		}},
		users: map[string]*models.User{"u2": {Email: "from-user-doc@x.com"}},
	}
	repo := &recordingRepo{}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, dir, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "p1", "msg1", models.ChatMessage{
		SenderID: "u1",
		Text:     "hi",
	}))

	if len(repo.batches) != 1 || len(repo.batches[0]) != 1 {
		t.Fatalf("expected one notification, got %+v", repo.batches)
	}
	if repo.batches[0][0].RecipientEmail != "from-user-doc@x.com" {
		t.Fatalf("unexpected recipient %q", repo.batches[0][0].RecipientEmail)
	}
}

func TestChatRecipientWithoutEmailOrTokenIsExcluded(t *testing.T) {
	dir := &stubDirectory{
		projects: map[string]*models.Project{"p1": {
			Title: "Atlas",
			Collaborators: []models.Collaborator{
				{UID: "u1"},
				{UID: "u2"},
			},
		}},
		users: map[string]*models.User{},
	}
	repo := &recordingRepo{}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, dir, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "p1", "msg1", models.ChatMessage{
		SenderID: "u1",
		Text:     "hi",
	}))

	if len(repo.batches) != 0 || len(push.pushes) != 0 {
		t.Fatal("recipient with neither email nor token must be excluded from both paths")
	}
}

func TestChatSenderOnlyProjectIsSilent(t *testing.T) {
	dir := &stubDirectory{
		projects: map[string]*models.Project{"p1": {
			Title:         "Atlas",
			Collaborators: []models.Collaborator{{UID: "u1", Email: "u1@x.com"}},
		}},
	}
	repo := &recordingRepo{}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, dir, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "p1", "msg1", models.ChatMessage{
		SenderID: "u1",
		Text:     "talking to myself",
	}))

	if len(repo.batches) != 0 || len(push.pushes) != 0 {
		t.Fatal("expected silence when the sender is the only collaborator")
	}
}

func TestChatMissingProjectIsSilent(t *testing.T) {
	repo := &recordingRepo{}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, &stubDirectory{projects: map[string]*models.Project{}}, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "ghost", "msg1", models.ChatMessage{
		SenderID: "u1",
		Text:     "hi",
	}))

	if len(repo.batches) != 0 || len(push.pushes) != 0 {
		t.Fatal("expected silence for a missing project")
	}
}

func TestChatIsolatesFailedRecipientLookups(t *testing.T) {
	dir := &stubDirectory{
		projects: map[string]*models.Project{"p1": threeCollaboratorProject()},
		users:    map[string]*models.User{"u3": {Email: "u3@x.com", FCMToken: "t3"}},
		userErrs: map[string]error{"u2": errors.New("read timeout")},
	}
	repo := &recordingRepo{}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, dir, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "p1", "msg1", models.ChatMessage{
		SenderID: "u1",
		Text:     "hi",
	}))

	if len(repo.batches) != 1 || len(repo.batches[0]) != 1 {
		t.Fatalf("one failed lookup must not fail the batch, got %+v", repo.batches)
	}
	if repo.batches[0][0].RecipientEmail != "u3@x.com" {
		t.Fatalf("unexpected recipient %q", repo.batches[0][0].RecipientEmail)
	}
	if len(push.pushes) != 1 || len(push.pushes[0].Tokens) != 1 {
		t.Fatalf("expected push to the surviving token, got %+v", push.pushes)
	}
}

func TestChatBatchFailureSkipsNothingSilently(t *testing.T) {
	dir := &stubDirectory{
		projects: map[string]*models.Project{"p1": threeCollaboratorProject()},
		users:    map[string]*models.User{"u2": {Email: "u2@x.com", FCMToken: "t2"}},
	}
	repo := &recordingRepo{err: errors.New("transaction aborted")}
	push := &stubMulticaster{}
	consumer := newTestConsumer(t, dir, repo, push)

	consumer.process(context.Background(), buildChatMessage(t, "p1", "msg1", models.ChatMessage{
		SenderID: "u1",
		Text:     "hi",
	}))

	if len(push.pushes) != 0 {
		t.Fatal("a failed batch write must stop the handler before the push")
	}
}

func TestPreviewText(t *testing.T) {
	if got := previewText(""); got != attachmentPlaceholder {
		t.Fatalf("unexpected placeholder %q", got)
	}
	short := "hello"
	if got := previewText(short); got != short {
		t.Fatalf("short text must pass through, got %q", got)
	}
	long := strings.Repeat("a", 100)
	got := previewText(long)
	if len([]rune(got)) != previewLimit+3 || !strings.HasSuffix(got, "...") {
		t.Fatalf("unexpected truncation %q", got)
	}
	exact := strings.Repeat("b", previewLimit)
	if got := previewText(exact); got != exact {
		t.Fatalf("exact-limit text must not be truncated, got %q", got)
	}
}
