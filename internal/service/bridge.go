package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"support_chat/internal/domain"
	"support_chat/internal/repository"
	pkgerrors "support_chat/pkg/errors"
	"support_chat/pkg/logger"
)

// TelegramAPI — используемая мостом поверхность bot API,
// *tgbotapi.BotAPI ей удовлетворяет
type TelegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

type BridgeAdapter interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update) error
	ExternalSender
}

type telegramBridge struct {
	bot      TelegramAPI
	router   MessageRouter
	store    ChatStore
	userRepo repository.UserRepository
	storage  StorageService
	log      logger.Logger

	maxAttempts int
	backoffBase time.Duration
}

func NewTelegramBridge(
	bot TelegramAPI,
	router MessageRouter,
	store ChatStore,
	userRepo repository.UserRepository,
	storage StorageService,
	log logger.Logger,
) BridgeAdapter {
	return &telegramBridge{
		bot:         bot,
		router:      router,
		store:       store,
		userRepo:    userRepo,
		storage:     storage,
		log:         log,
		maxAttempts: 3,
		backoffBase: time.Second,
	}
}

// HandleUpdate нормализует webhook-апдейт во внутреннее сообщение и
// передает его роутеру. Апдейты без маршрутизируемого содержимого
// подтверждаются и пропускаются, чтобы платформа их не переотправляла.
func (b *telegramBridge) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.MyChatMember != nil {
		b.log.Info("Bot membership status changed",
			"chat_id", update.MyChatMember.Chat.ID,
			"old_status", update.MyChatMember.OldChatMember.Status,
			"new_status", update.MyChatMember.NewChatMember.Status,
		)
		return nil
	}
	if update.Message == nil || update.Message.Chat == nil {
		b.log.Debug("Unsupported update kind, skipping", "update_id", update.UpdateID)
		return nil
	}

	msg := update.Message
	frame, ok, err := b.normalize(ctx, msg)
	if err != nil {
		return err
	}
	if !ok {
		b.log.Debug("Update without routable content, skipping", "chat_id", msg.Chat.ID)
		return nil
	}

	customer, err := b.ensureCustomer(ctx, msg)
	if err != nil {
		return err
	}

	if _, err := b.router.RouteInbound(ctx, frame, customer, domain.SourceTelegram); err != nil {
		b.log.Error("Failed to route external message", "error", err, "customer_id", customer.ID)
		return err
	}

	return nil
}

// ensureCustomer находит клиента по telegram chat_id или заводит нового
// при первом контакте
func (b *telegramBridge) ensureCustomer(ctx context.Context, msg *tgbotapi.Message) (*domain.User, error) {
	chatID := msg.Chat.ID

	customer, err := b.userRepo.GetByTelegramID(ctx, chatID)
	if err == nil {
		return customer, nil
	}
	if !errors.Is(err, pkgerrors.ErrNotFound) {
		return nil, err
	}

	displayName := ""
	if msg.From != nil {
		displayName = strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	}

	customer = &domain.User{
		ID:          domain.TelegramUserID(chatID),
		Role:        domain.RoleCustomer,
		DisplayName: displayName,
		TelegramID:  chatID,
		CreatedAt:   time.Now(),
	}

	if err := b.userRepo.Create(ctx, customer); err != nil {
		// Параллельный апдейт того же клиента успел первым
		if errors.Is(err, pkgerrors.ErrUserAlreadyExists) {
			return b.userRepo.GetByTelegramID(ctx, chatID)
		}
		return nil, err
	}

	b.log.Info("Customer provisioned from external platform", "user_id", customer.ID, "telegram_id", chatID)
	return customer, nil
}

// normalize сводит содержимое telegram-сообщения к внутреннему фрейму.
// Медиа скачивается в локальное хранилище до записи.
func (b *telegramBridge) normalize(ctx context.Context, msg *tgbotapi.Message) (*domain.InboundFrame, bool, error) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		text = strings.TrimSpace(msg.Caption)
	}

	messageType, fileID, fileName := pickAttachment(msg)
	if text == "" && fileID == "" {
		return nil, false, nil
	}

	frame := &domain.InboundFrame{
		Content:     text,
		MessageType: messageType,
	}

	if fileID != "" {
		remoteURL, err := b.bot.GetFileDirectURL(fileID)
		if err != nil {
			b.log.Error("Failed to resolve external file", "error", err, "file_id", fileID)
			return nil, false, fmt.Errorf("resolve external file: %w", err)
		}
		storedName, localURL, err := b.storage.FetchRemote(ctx, remoteURL, fileName)
		if err != nil {
			return nil, false, err
		}
		frame.FileName = storedName
		frame.FileURL = localURL
	}

	return frame, true, nil
}

func pickAttachment(msg *tgbotapi.Message) (messageType, fileID, fileName string) {
	switch {
	case len(msg.Photo) > 0:
		best := msg.Photo[0]
		for _, p := range msg.Photo[1:] {
			if p.FileSize > best.FileSize {
				best = p
			}
		}
		return domain.MessageTypeImage, best.FileID, ""
	case msg.Voice != nil:
		return domain.MessageTypeVoice, msg.Voice.FileID, ""
	case msg.Audio != nil:
		return domain.MessageTypeAudio, msg.Audio.FileID, msg.Audio.FileName
	case msg.Video != nil:
		return domain.MessageTypeVideo, msg.Video.FileID, msg.Video.FileName
	case msg.Document != nil:
		return domain.MessageTypeFile, msg.Document.FileID, msg.Document.FileName
	default:
		return domain.MessageTypeText, "", ""
	}
}

// SendToCustomer доставляет ответ сотрудника во внешнюю платформу.
// До трех попыток с экспоненциальной паузой; окончательный провал
// помечается на сообщении, append не откатывается.
func (b *telegramBridge) SendToCustomer(ctx context.Context, customer *domain.User, message *domain.Message) error {
	if customer.TelegramID == 0 {
		return pkgerrors.ErrBadRequest
	}

	chattable := b.buildChattable(customer.TelegramID, message)

	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if _, lastErr = b.bot.Send(chattable); lastErr == nil {
			return nil
		}
		b.log.Warn("External send attempt failed", "attempt", attempt, "error", lastErr, "message_id", message.ID)

		if attempt == b.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = b.maxAttempts
		case <-time.After(b.backoffBase << (attempt - 1)):
		}
	}

	if err := b.store.MarkDeliveryFailed(ctx, message.ID); err != nil {
		b.log.Error("Failed to mark delivery failure", "error", err, "message_id", message.ID)
	}

	return fmt.Errorf("%w: %v", pkgerrors.ErrDeliveryFailed, lastErr)
}

func (b *telegramBridge) buildChattable(telegramID int64, message *domain.Message) tgbotapi.Chattable {
	// Медиа уходит ссылкой только если она доступна платформе извне,
	// иначе откатываемся на текст
	if message.FileURL != "" && strings.HasPrefix(message.FileURL, "http") {
		file := tgbotapi.FileURL(message.FileURL)
		switch message.MessageType {
		case domain.MessageTypeImage:
			photo := tgbotapi.NewPhoto(telegramID, file)
			photo.Caption = message.Content
			return photo
		case domain.MessageTypeVoice:
			voice := tgbotapi.NewVoice(telegramID, file)
			voice.Caption = message.Content
			return voice
		case domain.MessageTypeAudio:
			audio := tgbotapi.NewAudio(telegramID, file)
			audio.Caption = message.Content
			return audio
		case domain.MessageTypeVideo:
			video := tgbotapi.NewVideo(telegramID, file)
			video.Caption = message.Content
			return video
		default:
			doc := tgbotapi.NewDocument(telegramID, file)
			doc.Caption = message.Content
			return doc
		}
	}

	text := message.Content
	if text == "" && message.FileName != "" {
		text = message.FileName
	}
	return tgbotapi.NewMessage(telegramID, text)
}
