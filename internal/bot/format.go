package bot

import (
	"fmt"
	"html"
	"math"
	"strconv"
	"strings"
	"unicode"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dayplanner/internal/model"
	"dayplanner/internal/timebucket"
)

const (
	btnSkip      = "⏭️ Skip"
	btnCancel    = "⏪ Cancel"
	btnToday     = "Today"
	btnTomorrow  = "Tomorrow"
	menuToday    = "📋 Today"
	menuTomorrow = "🗓 Tomorrow"
	menuAdd      = "➕ Add task"
	menuSuggest  = "💡 Suggest"
)

// formatTask renders one line of a task list; n <= 0 omits the number.
func formatTask(n int, t model.Task) string {
	mark := "▫️"
	if t.Completed {
		mark = "✅"
	}
	var sb strings.Builder
	if n > 0 {
		fmt.Fprintf(&sb, "%d. ", n)
	}
	fmt.Fprintf(&sb, "%s %s–%s %s", mark, timebucket.FormatClock(t.StartTime), timebucket.FormatClock(t.End()), t.Activity)
	if t.IsPriority {
		sb.WriteString(" ⭐")
	}
	return sb.String()
}

// parseIndex reads a 1-based list position and returns the 0-based index.
func parseIndex(arg string, n int) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, fmt.Errorf("give the task number")
	}
	i, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", arg)
	}
	if i < 1 || i > n {
		return 0, fmt.Errorf("there is no task %d", i)
	}
	return i - 1, nil
}

// parseDuration accepts decimal hours ("1.5") or H:MM ("1:30") on quarter hours.
func parseDuration(text string) (float64, error) {
	text = strings.TrimSpace(strings.ReplaceAll(text, ",", "."))
	var hours float64
	if h, m, ok := strings.Cut(text, ":"); ok {
		hh, err1 := strconv.Atoi(h)
		mm, err2 := strconv.Atoi(m)
		if err1 != nil || err2 != nil || hh < 0 || mm < 0 || mm >= 60 {
			return 0, fmt.Errorf("send the duration as hours, e.g. 1.5 or 1:30")
		}
		hours = float64(hh) + float64(mm)/60
	} else {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return 0, fmt.Errorf("send the duration as hours, e.g. 1.5 or 1:30")
		}
		hours = v
	}
	if hours <= 0 || !onQuarter(hours) {
		return 0, fmt.Errorf("the duration must be a positive number of quarter hours")
	}
	return hours, nil
}

func onQuarter(v float64) bool {
	q := v * 4
	return math.Abs(q-math.Round(q)) < 1e-9
}

func parseCallback(data string) (action, id string, ok bool) {
	for _, prefix := range []string{cbDonePrefix, cbPriorityPrefix, cbAcceptPrefix, cbRejectPrefix} {
		if rest, found := strings.CutPrefix(data, prefix); found && rest != "" {
			return prefix, rest, true
		}
	}
	return "", "", false
}

func isSkipInput(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == strings.ToLower(btnSkip) || t == "skip" || t == "-"
}

func isCancelInput(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	return t == strings.ToLower(btnCancel) || t == "cancel"
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func escape(text string) string {
	return html.EscapeString(text)
}

func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuToday),
			tgbotapi.NewKeyboardButton(menuTomorrow),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(menuAdd),
			tgbotapi.NewKeyboardButton(menuSuggest),
		),
	)
	kb.ResizeKeyboard = true
	return kb
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func skipKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnSkip)),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}

func dayKeyboard() tgbotapi.ReplyKeyboardMarkup {
	kb := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnToday),
			tgbotapi.NewKeyboardButton(btnTomorrow),
		),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
