package telegram

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"memo/internal/logger"
	"memo/internal/models/user"
	"memo/internal/reminder"
	repo "memo/internal/repository"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	channelName = "telegram"
	dataSep     = ":"
)

var errUnknownMessage = errors.New("сообщение не найдено")

type BotAPI interface {
	Send(c tg.Chattable) (tg.Message, error)
	Request(c tg.Chattable) (*tg.APIResponse, error)
}

type UserLookup interface {
	GetByID(ctx context.Context, id string) (*user.User, error)
}

type sentMessage struct {
	userID    string
	chatID    int64
	messageID int
}

// Notifier дублирует напоминания в Telegram пользователям с привязанным чатом.
// Кнопки сообщения возвращаются в приложение как ActionRequest.
type Notifier struct {
	bot   BotAPI
	users UserLookup

	mu   sync.Mutex
	sent map[string]sentMessage
}

func New(bot BotAPI, users UserLookup) *Notifier {
	return &Notifier{
		bot:   bot,
		users: users,
		sent:  make(map[string]sentMessage),
	}
}

// NewBotAPI подключается к Telegram по токену бота.
func NewBotAPI(token string) (*tg.BotAPI, error) {
	bot, err := tg.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "подключение к telegram")
	}
	bot.Debug = false

	logger.Info("Telegram: Бот авторизован", zap.String("username", bot.Self.UserName))
	return bot, nil
}

func (n *Notifier) Name() string {
	return channelName
}

func (n *Notifier) Show(ctx context.Context, notif reminder.Notification) error {
	u, err := n.users.GetByID(ctx, notif.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "поиск пользователя")
	}
	if u.TelegramChatID == 0 {
		return nil
	}

	msg := tg.NewMessage(u.TelegramChatID, messageText(notif))
	msg.ReplyMarkup = keyboard(notif.TaskID)

	sent, err := n.bot.Send(msg)
	if err != nil {
		return errors.Wrapf(err, "отправка напоминания в чат %d", u.TelegramChatID)
	}

	n.mu.Lock()
	old, replaced := n.sent[notif.TaskID]
	n.sent[notif.TaskID] = sentMessage{userID: notif.UserID, chatID: u.TelegramChatID, messageID: sent.MessageID}
	n.mu.Unlock()

	if replaced {
		n.delete(old)
	}

	logger.Debug("Telegram: Напоминание отправлено",
		zap.String("task_id", notif.TaskID),
		zap.Int("message_id", sent.MessageID))
	return nil
}

func (n *Notifier) Dismiss(ctx context.Context, notif reminder.Notification) error {
	n.mu.Lock()
	m, ok := n.sent[notif.TaskID]
	delete(n.sent, notif.TaskID)
	n.mu.Unlock()

	if !ok {
		return nil
	}
	return n.delete(m)
}

// Listen превращает нажатия кнопок в действия до отмены ctx.
func (n *Notifier) Listen(ctx context.Context, updates <-chan tg.Update, out chan<- reminder.ActionRequest) {
	logger.Info("Telegram: Обработка обновлений запущена")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Telegram: Обработка обновлений останавливается")
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if u.CallbackQuery == nil {
				continue
			}

			req, err := n.resolve(u.CallbackQuery)
			n.answer(u.CallbackQuery, err)
			if err != nil {
				logger.Info("Telegram: Нажатие отклонено",
					zap.String("data", u.CallbackQuery.Data),
					zap.Error(err))
				continue
			}

			select {
			case out <- req:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (n *Notifier) resolve(cbq *tg.CallbackQuery) (reminder.ActionRequest, error) {
	name, taskID, found := strings.Cut(cbq.Data, dataSep)
	if !found || taskID == "" {
		return reminder.ActionRequest{}, errors.Errorf("неверные данные кнопки %q", cbq.Data)
	}
	action, err := reminder.ParseAction(name)
	if err != nil {
		return reminder.ActionRequest{}, err
	}

	var chatID int64
	switch {
	case cbq.Message != nil && cbq.Message.Chat != nil:
		chatID = cbq.Message.Chat.ID
	case cbq.From != nil:
		chatID = cbq.From.ID
	}

	n.mu.Lock()
	m, ok := n.sent[taskID]
	n.mu.Unlock()
	if !ok || m.chatID != chatID {
		return reminder.ActionRequest{}, errUnknownMessage
	}

	return reminder.ActionRequest{
		UserID: m.userID,
		TaskID: taskID,
		Action: action,
		Source: channelName,
	}, nil
}

func (n *Notifier) answer(cbq *tg.CallbackQuery, err error) {
	text := ""
	if err != nil {
		text = "Напоминание уже неактуально"
	}
	if _, err := n.bot.Request(tg.NewCallback(cbq.ID, text)); err != nil {
		logger.Warn("Telegram: Не удалось ответить на нажатие", zap.Error(err))
	}
}

func (n *Notifier) delete(m sentMessage) error {
	if _, err := n.bot.Request(tg.NewDeleteMessage(m.chatID, m.messageID)); err != nil {
		return errors.Wrapf(err, "удаление сообщения %d", m.messageID)
	}
	return nil
}

func messageText(notif reminder.Notification) string {
	if notif.DueText == "" {
		return "⏰ " + notif.Title
	}
	return fmt.Sprintf("⏰ %s\nСрок: %s", notif.Title, notif.DueText)
}

func keyboard(taskID string) tg.InlineKeyboardMarkup {
	return tg.NewInlineKeyboardMarkup(tg.NewInlineKeyboardRow(
		tg.NewInlineKeyboardButtonData("Готово", string(reminder.ActionDone)+dataSep+taskID),
		tg.NewInlineKeyboardButtonData("Отложить", string(reminder.ActionSnooze)+dataSep+taskID),
	))
}
