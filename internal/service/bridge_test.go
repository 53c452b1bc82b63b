package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"support_chat/internal/domain"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	failures int
	fileURL  string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures > 0 {
		b.failures--
		return tgbotapi.Message{}, errors.New("telegram unavailable")
	}
	b.sent = append(b.sent, c)
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func (b *fakeBot) GetFileDirectURL(string) (string, error) {
	return b.fileURL, nil
}

func (b *fakeBot) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

func newBridgeEnv(t *testing.T, bot *fakeBot) (*testEnv, *telegramBridge) {
	t.Helper()

	env := newTestEnv()
	bridge := NewTelegramBridge(bot, env.router, env.store, env.users, nil, logger.New("error")).(*telegramBridge)
	bridge.backoffBase = time.Millisecond
	return env, bridge
}

func textUpdate(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: 1,
		Message: &tgbotapi.Message{
			MessageID: 10,
			Text:      text,
			Chat:      &tgbotapi.Chat{ID: chatID},
			From:      &tgbotapi.User{ID: chatID, FirstName: "Ann", LastName: "Lee"},
		},
	}
}

func TestHandleUpdateProvisionsCustomer(t *testing.T) {
	bot := &fakeBot{}
	env, bridge := newBridgeEnv(t, bot)
	seedUsers(t, env)
	ctx := context.Background()

	require.NoError(t, bridge.HandleUpdate(ctx, textUpdate(555, "my car broke down")))

	customer, err := env.users.GetByTelegramID(ctx, 555)
	require.NoError(t, err)
	assert.Equal(t, "telegram_555", customer.ID)
	assert.Equal(t, domain.RoleCustomer, customer.Role)
	assert.Equal(t, "Ann Lee", customer.DisplayName)

	chat, err := env.store.FindOrCreate(ctx, customer)
	require.NoError(t, err)

	_, messages, err := env.store.Get(ctx, chat.ID, customer, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "my car broke down", messages[0].Content)
	assert.Equal(t, domain.SourceTelegram, messages[0].Source)
}

func TestHandleUpdateReusesExistingCustomer(t *testing.T) {
	bot := &fakeBot{}
	env, bridge := newBridgeEnv(t, bot)
	seedUsers(t, env)
	ctx := context.Background()

	require.NoError(t, bridge.HandleUpdate(ctx, textUpdate(777, "first")))
	require.NoError(t, bridge.HandleUpdate(ctx, textUpdate(777, "second")))

	customer, err := env.users.GetByTelegramID(ctx, 777)
	require.NoError(t, err)

	chat, err := env.store.FindOrCreate(ctx, customer)
	require.NoError(t, err)

	_, messages, err := env.store.Get(ctx, chat.ID, customer, 0, 0)
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

func TestHandleUpdateAcksUnroutableUpdates(t *testing.T) {
	bot := &fakeBot{}
	env, bridge := newBridgeEnv(t, bot)
	seedUsers(t, env)
	ctx := context.Background()

	// Смена статуса бота в чате
	err := bridge.HandleUpdate(ctx, tgbotapi.Update{
		MyChatMember: &tgbotapi.ChatMemberUpdated{
			Chat:          tgbotapi.Chat{ID: 1},
			OldChatMember: tgbotapi.ChatMember{Status: "member"},
			NewChatMember: tgbotapi.ChatMember{Status: "kicked"},
		},
	})
	assert.NoError(t, err)

	// Апдейт без сообщения
	assert.NoError(t, bridge.HandleUpdate(ctx, tgbotapi.Update{UpdateID: 2}))

	// Сообщение без текста и вложений
	assert.NoError(t, bridge.HandleUpdate(ctx, tgbotapi.Update{
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 3}},
	}))

	// Ни одного клиента не заведено
	_, err = env.users.GetByTelegramID(ctx, 1)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
	_, err = env.users.GetByTelegramID(ctx, 3)
	assert.ErrorIs(t, err, pkgerrors.ErrNotFound)
}

func TestPickAttachmentPrefersLargestPhoto(t *testing.T) {
	msg := &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", FileSize: 100},
			{FileID: "large", FileSize: 900},
			{FileID: "medium", FileSize: 400},
		},
	}

	messageType, fileID, _ := pickAttachment(msg)
	assert.Equal(t, domain.MessageTypeImage, messageType)
	assert.Equal(t, "large", fileID)
}

func TestPickAttachmentKinds(t *testing.T) {
	cases := []struct {
		name     string
		msg      *tgbotapi.Message
		wantType string
		wantID   string
	}{
		{"voice", &tgbotapi.Message{Voice: &tgbotapi.Voice{FileID: "v1"}}, domain.MessageTypeVoice, "v1"},
		{"audio", &tgbotapi.Message{Audio: &tgbotapi.Audio{FileID: "a1"}}, domain.MessageTypeAudio, "a1"},
		{"video", &tgbotapi.Message{Video: &tgbotapi.Video{FileID: "vid1"}}, domain.MessageTypeVideo, "vid1"},
		{"document", &tgbotapi.Message{Document: &tgbotapi.Document{FileID: "d1", FileName: "report.pdf"}}, domain.MessageTypeFile, "d1"},
		{"plain text", &tgbotapi.Message{Text: "hi"}, domain.MessageTypeText, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			messageType, fileID, _ := pickAttachment(tc.msg)
			assert.Equal(t, tc.wantType, messageType)
			assert.Equal(t, tc.wantID, fileID)
		})
	}
}

func TestSendToCustomerRetriesTransientFailure(t *testing.T) {
	bot := &fakeBot{failures: 2}
	env, bridge := newBridgeEnv(t, bot)
	seedUsers(t, env)
	ctx := context.Background()

	customer := &domain.User{ID: "telegram_900", Role: domain.RoleCustomer, TelegramID: 900}
	message := &domain.Message{ID: uuid.New(), Content: "reply"}

	err := bridge.SendToCustomer(ctx, customer, message)
	require.NoError(t, err)
	assert.Equal(t, 1, bot.sentCount())
}

func TestSendToCustomerMarksTerminalFailure(t *testing.T) {
	bot := &fakeBot{failures: 10}
	env, bridge := newBridgeEnv(t, bot)
	seedUsers(t, env)
	ctx := context.Background()

	customer := &domain.User{ID: "telegram_901", Role: domain.RoleCustomer, TelegramID: 901}
	require.NoError(t, env.users.Create(ctx, customer))

	chat, err := env.store.FindOrCreate(ctx, customer)
	require.NoError(t, err)

	message := &domain.Message{
		ID:             uuid.New(),
		ChatID:         chat.ID,
		FromUser:       "admin_1",
		Content:        "are you there?",
		MessageType:    domain.MessageTypeText,
		Source:         domain.SourceWeb,
		DeliveryStatus: domain.DeliveryStatusDelivered,
		CreatedAt:      time.Now(),
	}
	require.NoError(t, env.store.Append(ctx, message))

	err = bridge.SendToCustomer(ctx, customer, message)
	assert.ErrorIs(t, err, pkgerrors.ErrDeliveryFailed)

	// Запись в истории осталась, но помечена как недоставленная
	_, messages, err := env.store.Get(ctx, chat.ID, customer, 0, 0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, domain.DeliveryStatusFailed, messages[0].DeliveryStatus)
}

func TestSendToCustomerRequiresTelegramID(t *testing.T) {
	bot := &fakeBot{}
	_, bridge := newBridgeEnv(t, bot)

	webCustomer := &domain.User{ID: "customer_1", Role: domain.RoleCustomer}
	err := bridge.SendToCustomer(context.Background(), webCustomer, &domain.Message{ID: uuid.New()})
	assert.ErrorIs(t, err, pkgerrors.ErrBadRequest)
}

func TestBuildChattableMediaAndFallback(t *testing.T) {
	bot := &fakeBot{}
	_, bridge := newBridgeEnv(t, bot)

	photo := bridge.buildChattable(42, &domain.Message{
		MessageType: domain.MessageTypeImage,
		Content:     "see attached",
		FileURL:     "https://files.example.com/abc.png",
	})
	photoConfig, ok := photo.(tgbotapi.PhotoConfig)
	require.True(t, ok)
	assert.Equal(t, "see attached", photoConfig.Caption)

	// Локальный путь недоступен платформе, уходит текстом
	fallback := bridge.buildChattable(42, &domain.Message{
		MessageType: domain.MessageTypeImage,
		FileURL:     "/files/abc.png",
		FileName:    "abc.png",
	})
	messageConfig, ok := fallback.(tgbotapi.MessageConfig)
	require.True(t, ok)
	assert.Equal(t, "abc.png", messageConfig.Text)
}
