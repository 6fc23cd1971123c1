package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"dayplanner/internal/model"
	"dayplanner/internal/service"
	"dayplanner/internal/timebucket"
)

const (
	cbDonePrefix     = "done:"
	cbPriorityPrefix = "prio:"
	cbAcceptPrefix   = "accept:"
	cbRejectPrefix   = "reject:"
)

// Bot is the chat front end over the planner services.
type Bot struct {
	api         *tgbotapi.BotAPI
	prefs       *service.PreferencesService
	tasks       *service.TaskService
	suggestions *service.SuggestionService
	logger      *zap.SugaredLogger

	mu            sync.Mutex
	conversations map[int64]*conversationState
	lastDay       map[int64]string
}

func New(token string, prefs *service.PreferencesService, tasks *service.TaskService, suggestions *service.SuggestionService, logger *zap.SugaredLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, errors.Wrap(err, "create bot api")
	}
	logger.Infow("bot authorized", "account", api.Self.UserName)

	return &Bot{
		api:           api,
		prefs:         prefs,
		tasks:         tasks,
		suggestions:   suggestions,
		logger:        logger,
		conversations: make(map[int64]*conversationState),
		lastDay:       make(map[int64]string),
	}, nil
}

// Start polls updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := b.api.GetUpdatesChan(updateConfig)

	b.logger.Infow("bot polling updates")

	go func() {
		<-ctx.Done()
		b.api.StopReceivingUpdates()
	}()

	for update := range updates {
		switch {
		case update.CallbackQuery != nil:
			if err := b.handleCallback(ctx, update.CallbackQuery); err != nil {
				b.logger.Warnw("handle callback", "err", err)
			}
		case update.Message != nil:
			if update.Message.Chat == nil || !update.Message.Chat.IsPrivate() {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				b.logger.Warnw("handle message", "chat", update.Message.Chat.ID, "err", err)
			}
		}
	}
	return nil
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.From == nil {
		return nil
	}

	if !msg.IsCommand() && isCancelInput(msg.Text) {
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Cancelled. Send /add to start again.")
	}

	if msg.IsCommand() {
		b.logger.Debugw("command", "from", msg.From.ID, "command", msg.Command())
		return b.handleCommand(ctx, msg)
	}

	if handled, err := b.handleMenuAlias(ctx, msg); handled {
		return err
	}

	if b.hasConversation(msg.From.ID) {
		return b.handleConversation(ctx, msg)
	}

	return b.sendText(msg.Chat.ID, "I did not get that. Send /add to plan a task or /help for the command list.")
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) error {
	switch msg.Command() {
	case "start":
		return b.handleStart(ctx, msg)
	case "help":
		return b.sendText(msg.Chat.ID, helpText)
	case "link":
		return b.handleLink(ctx, msg)
	case "today":
		return b.handleList(ctx, msg, timebucket.Today)
	case "tomorrow":
		return b.handleList(ctx, msg, timebucket.Tomorrow)
	case "add":
		return b.startAddConversation(ctx, msg)
	case "done":
		return b.handleIndexed(ctx, msg, b.completeTask)
	case "priority":
		return b.handleIndexed(ctx, msg, b.togglePriority)
	case "delete":
		return b.handleIndexed(ctx, msg, b.deleteTask)
	case "suggest":
		return b.handleSuggest(ctx, msg)
	case "cancel":
		b.clearConversation(msg.From.ID)
		return b.sendText(msg.Chat.ID, "Cancelled.")
	default:
		return b.sendText(msg.Chat.ID, "Unknown command. See /help.")
	}
}

const helpText = "<b>Daily planner</b>\n" +
	"• /today, /tomorrow: your plan\n" +
	"• /add: plan a task step by step\n" +
	"• /done &lt;n&gt;: mark task n of the last list done\n" +
	"• /priority &lt;n&gt;: toggle priority (up to 3 a day)\n" +
	"• /delete &lt;n&gt;: remove a task\n" +
	"• /suggest: ideas for tomorrow\n" +
	"• /link &lt;email&gt;: connect your planner account\n" +
	"• /cancel: stop the current input"

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) error {
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi, %s! I keep your today and tomorrow plans at hand.\n\n", escape(name))
	if _, err := b.prefs.UserByTelegram(ctx, msg.From.ID); err != nil {
		text += "Connect your account first: /link you@example.com\n\n"
	}
	return b.sendText(msg.Chat.ID, text+helpText)
}

func (b *Bot) handleLink(ctx context.Context, msg *tgbotapi.Message) error {
	email := strings.TrimSpace(msg.CommandArguments())
	if email == "" {
		return b.sendText(msg.Chat.ID, "Send the email you signed up with: /link you@example.com")
	}
	user, err := b.prefs.LinkTelegram(ctx, email, msg.From.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return b.sendText(msg.Chat.ID, "No planner account uses that email.")
		}
		return b.sendError(msg.Chat.ID, err)
	}
	b.logger.Infow("telegram linked", "user", user.ID, "telegram", msg.From.ID)
	return b.sendText(msg.Chat.ID, fmt.Sprintf("Linked to %s. Try /today.", escape(user.Email)))
}

// linkedUser returns the planner user for the sender, or nil after telling the
// sender how to link.
func (b *Bot) linkedUser(ctx context.Context, chatID int64, from *tgbotapi.User) (*model.User, error) {
	user, err := b.prefs.UserByTelegram(ctx, from.ID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return nil, b.sendText(chatID, "Link your account first: /link you@example.com")
		}
		return nil, err
	}
	return user, nil
}

func (b *Bot) handleList(ctx context.Context, msg *tgbotapi.Message, day string) error {
	user, err := b.linkedUser(ctx, msg.Chat.ID, msg.From)
	if user == nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, msg.From.ID, user.ID, day)
}

func (b *Bot) sendTaskList(ctx context.Context, chatID, fromID int64, userID, day string) error {
	list, date, err := b.tasks.ListTasks(ctx, userID, day)
	if err != nil {
		return b.sendError(chatID, err)
	}
	b.setLastDay(fromID, day)

	if len(list) == 0 {
		return b.sendText(chatID, fmt.Sprintf("Nothing planned for %s (%s). Send /add.", day, date))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>%s</b> · %s\n\n", capitalize(day), date)
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, t := range list {
		sb.WriteString(escape(formatTask(i+1, t)))
		sb.WriteByte('\n')
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✅ %d", i+1), cbDonePrefix+t.ID),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("⭐ %d", i+1), cbPriorityPrefix+t.ID),
		))
	}

	out := tgbotapi.NewMessage(chatID, strings.TrimSpace(sb.String()))
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = b.api.Send(out)
	return err
}

type taskAction func(ctx context.Context, chatID int64, user *model.User, task model.Task) error

// handleIndexed resolves "/cmd n" against the list the sender viewed last.
func (b *Bot) handleIndexed(ctx context.Context, msg *tgbotapi.Message, action taskAction) error {
	user, err := b.linkedUser(ctx, msg.Chat.ID, msg.From)
	if user == nil {
		return err
	}
	day := b.getLastDay(msg.From.ID)
	list, _, err := b.tasks.ListTasks(ctx, user.ID, day)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	idx, err := parseIndex(msg.CommandArguments(), len(list))
	if err != nil {
		return b.sendText(msg.Chat.ID, fmt.Sprintf("%s. Use the numbers from /%s.", capitalize(err.Error()), day))
	}
	return action(ctx, msg.Chat.ID, user, list[idx])
}

func (b *Bot) completeTask(ctx context.Context, chatID int64, user *model.User, task model.Task) error {
	updated, err := b.tasks.SetCompleted(ctx, user.ID, task.ID, !task.Completed)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if updated.Completed {
		return b.sendText(chatID, fmt.Sprintf("✅ Done: %s", escape(updated.Activity)))
	}
	return b.sendText(chatID, fmt.Sprintf("↩️ Reopened: %s", escape(updated.Activity)))
}

func (b *Bot) togglePriority(ctx context.Context, chatID int64, user *model.User, task model.Task) error {
	updated, err := b.tasks.TogglePriority(ctx, user.ID, task.ID)
	if err != nil {
		return b.sendError(chatID, err)
	}
	if updated.IsPriority {
		return b.sendText(chatID, fmt.Sprintf("⭐ Priority: %s", escape(updated.Activity)))
	}
	return b.sendText(chatID, fmt.Sprintf("No longer a priority: %s", escape(updated.Activity)))
}

func (b *Bot) deleteTask(ctx context.Context, chatID int64, user *model.User, task model.Task) error {
	if err := b.tasks.DeleteTask(ctx, user.ID, task.ID); err != nil {
		return b.sendError(chatID, err)
	}
	b.logger.Infow("task deleted via bot", "user", user.ID, "task", task.ID)
	return b.sendText(chatID, fmt.Sprintf("🗑 Deleted: %s", escape(task.Activity)))
}

func (b *Bot) handleSuggest(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.linkedUser(ctx, msg.Chat.ID, msg.From)
	if user == nil {
		return err
	}
	list, err := b.suggestions.Generate(ctx, service.SuggestionRequest{UserID: user.ID, TodayOrTomorrow: timebucket.Tomorrow})
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}

	var sb strings.Builder
	sb.WriteString("💡 <b>Ideas for tomorrow</b>\n\n")
	var rows [][]tgbotapi.InlineKeyboardButton
	for i, s := range list {
		fmt.Fprintf(&sb, "%d. %s–%s %s\n", i+1,
			timebucket.FormatClock(s.StartTime), timebucket.FormatClock(s.StartTime+s.Duration), escape(s.Activity))
		if s.Description != "" {
			fmt.Fprintf(&sb, "   <i>%s</i>\n", escape(s.Description))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("➕ %d", i+1), cbAcceptPrefix+s.ID),
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("✖ %d", i+1), cbRejectPrefix+s.ID),
		))
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, strings.TrimSpace(sb.String()))
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(rows...)
	_, err = b.api.Send(out)
	return err
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) error {
	if cb == nil || cb.From == nil || cb.Message == nil {
		return nil
	}
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.logger.Debugw("callback ack", "err", err)
	}

	action, id, ok := parseCallback(cb.Data)
	if !ok {
		return nil
	}
	chatID := cb.Message.Chat.ID
	user, err := b.linkedUser(ctx, chatID, cb.From)
	if user == nil {
		return err
	}

	switch action {
	case cbDonePrefix, cbPriorityPrefix:
		task, err := b.tasks.GetTask(ctx, user.ID, id)
		if err != nil {
			return b.sendError(chatID, err)
		}
		if action == cbDonePrefix {
			return b.completeTask(ctx, chatID, user, *task)
		}
		return b.togglePriority(ctx, chatID, user, *task)
	case cbAcceptPrefix:
		task, err := b.suggestions.Accept(ctx, user.ID, id)
		if err != nil {
			return b.sendError(chatID, err)
		}
		return b.sendText(chatID, fmt.Sprintf("Added for %s: %s", task.Date, escape(formatTask(0, *task))))
	case cbRejectPrefix:
		if err := b.suggestions.Reject(ctx, user.ID, id); err != nil {
			return b.sendError(chatID, err)
		}
		return b.sendText(chatID, "Skipped.")
	}
	return nil
}

func (b *Bot) handleMenuAlias(ctx context.Context, msg *tgbotapi.Message) (bool, error) {
	switch strings.TrimSpace(msg.Text) {
	case menuToday:
		return true, b.handleList(ctx, msg, timebucket.Today)
	case menuTomorrow:
		return true, b.handleList(ctx, msg, timebucket.Tomorrow)
	case menuAdd:
		return true, b.startAddConversation(ctx, msg)
	case menuSuggest:
		return true, b.handleSuggest(ctx, msg)
	default:
		return false, nil
	}
}

// sendError shows validation and lookup failures to the user and returns
// anything else to the caller for logging.
func (b *Bot) sendError(chatID int64, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return b.sendText(chatID, "⚠️ "+escape(capitalize(strings.TrimSuffix(err.Error(), ": "+service.ErrValidation.Error()))))
	case errors.Is(err, service.ErrNotFound):
		return b.sendText(chatID, "Not found. It may have been removed or rolled over.")
	default:
		if sendErr := b.sendText(chatID, "Something went wrong, please try again later."); sendErr != nil {
			b.logger.Warnw("send error reply", "err", sendErr)
		}
		return err
	}
}

func (b *Bot) sendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = mainMenuKeyboard()
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) sendWithReplyMarkup(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.ReplyMarkup = markup
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) setLastDay(userID int64, day string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastDay[userID] = day
}

func (b *Bot) getLastDay(userID int64) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if day, ok := b.lastDay[userID]; ok {
		return day
	}
	return timebucket.Today
}
