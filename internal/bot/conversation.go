package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dayplanner/internal/service"
	"dayplanner/internal/timebucket"
)

type conversationStage int

const (
	stageActivity conversationStage = iota
	stageDescription
	stageDay
	stageStart
	stageDuration
	stageDone
)

type conversationState struct {
	stage conversationStage
	input service.TaskInput
}

// advance consumes one reply and moves to the next stage. A returned error is
// shown to the user and the stage stays put.
func (st *conversationState) advance(text string) error {
	text = strings.TrimSpace(text)
	switch st.stage {
	case stageActivity:
		if text == "" {
			return fmt.Errorf("the task needs a name")
		}
		st.input.Activity = text
		st.stage = stageDescription
	case stageDescription:
		if !isSkipInput(text) {
			st.input.Description = text
		}
		st.stage = stageDay
	case stageDay:
		switch strings.ToLower(text) {
		case strings.ToLower(btnToday), timebucket.Today:
			st.input.Day = timebucket.Today
		case strings.ToLower(btnTomorrow), timebucket.Tomorrow:
			st.input.Day = timebucket.Tomorrow
		default:
			return fmt.Errorf("pick today or tomorrow")
		}
		st.stage = stageStart
	case stageStart:
		start, err := timebucket.ParseClock(text)
		if err != nil || !onQuarter(start) {
			return fmt.Errorf("send the start as HH:MM on a quarter hour, e.g. 09:30")
		}
		st.input.StartTime = start
		st.stage = stageDuration
	case stageDuration:
		d, err := parseDuration(text)
		if err != nil {
			return err
		}
		st.input.Duration = d
		st.stage = stageDone
	}
	return nil
}

func (st *conversationState) prompt() (string, interface{}) {
	switch st.stage {
	case stageActivity:
		return "🆕 New task.\n<b>Step 1:</b> what is it?", cancelKeyboard()
	case stageDescription:
		return "<b>Step 2:</b> a short description (or skip).", skipKeyboard()
	case stageDay:
		return "<b>Step 3:</b> today or tomorrow?", dayKeyboard()
	case stageStart:
		return "<b>Step 4:</b> start time, e.g. <code>09:30</code>.", cancelKeyboard()
	default:
		return "<b>Step 5:</b> how long? Hours like <code>1.5</code> or <code>1:30</code>.", cancelKeyboard()
	}
}

func (b *Bot) startAddConversation(ctx context.Context, msg *tgbotapi.Message) error {
	user, err := b.linkedUser(ctx, msg.Chat.ID, msg.From)
	if user == nil {
		return err
	}
	st := &conversationState{stage: stageActivity}
	b.setConversation(msg.From.ID, st)
	text, markup := st.prompt()
	return b.sendWithReplyMarkup(msg.Chat.ID, text, markup)
}

func (b *Bot) handleConversation(ctx context.Context, msg *tgbotapi.Message) error {
	st := b.getConversation(msg.From.ID)
	if st == nil {
		return nil
	}
	if err := st.advance(msg.Text); err != nil {
		text, markup := st.prompt()
		return b.sendWithReplyMarkup(msg.Chat.ID, capitalize(err.Error())+".\n\n"+text, markup)
	}
	if st.stage != stageDone {
		text, markup := st.prompt()
		return b.sendWithReplyMarkup(msg.Chat.ID, text, markup)
	}

	b.clearConversation(msg.From.ID)
	user, err := b.linkedUser(ctx, msg.Chat.ID, msg.From)
	if user == nil {
		return err
	}
	task, err := b.tasks.CreateTask(ctx, user.ID, st.input)
	if err != nil {
		return b.sendError(msg.Chat.ID, err)
	}
	b.logger.Infow("task created via bot", "user", user.ID, "task", task.ID, "date", task.Date)
	if err := b.sendText(msg.Chat.ID, "✅ Saved: "+escape(formatTask(0, *task))); err != nil {
		return err
	}
	return b.sendTaskList(ctx, msg.Chat.ID, msg.From.ID, user.ID, st.input.Day)
}

func (b *Bot) setConversation(userID int64, state *conversationState) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conversations[userID] = state
}

func (b *Bot) getConversation(userID int64) *conversationState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conversations[userID]
}

func (b *Bot) hasConversation(userID int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.conversations[userID]
	return ok
}

func (b *Bot) clearConversation(userID int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.conversations, userID)
}
