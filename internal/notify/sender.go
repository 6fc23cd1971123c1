// Package notify delivers task reminders through external providers. Senders
// never return errors: every provider failure becomes a failed Result.
package notify

import (
	"context"
	"fmt"
	"html"
	"regexp"

	"dayplanner/internal/model"
	"dayplanner/internal/timebucket"
)

// Result is the uniform outcome of one send attempt.
type Result struct {
	Success   bool          `json:"success"`
	Type      model.Channel `json:"type"`
	Recipient string        `json:"recipient"`
	Error     string        `json:"error,omitempty"`
	// Permanent marks a failure that will not heal on retry, such as an expired
	// push subscription.
	Permanent bool `json:"permanent,omitempty"`
}

// Sender delivers one reminder over one channel.
type Sender interface {
	Channel() model.Channel
	// Enabled reports whether the user opted into this channel and has a destination for it.
	Enabled(prefs model.UserPreferences) bool
	Send(ctx context.Context, task model.Task, prefs model.UserPreferences) Result
}

func success(ch model.Channel, recipient string) Result {
	return Result{Success: true, Type: ch, Recipient: recipient}
}

func failure(ch model.Channel, recipient string, err error) Result {
	return Result{Type: ch, Recipient: recipient, Error: err.Error()}
}

var phonePattern = regexp.MustCompile(`^\+[1-9]\d{7,14}$`)

// ValidPhone reports whether number is in E.164 form.
func ValidPhone(number string) bool {
	return phonePattern.MatchString(number)
}

// Reminder is the rendered content of a task reminder.
type Reminder struct {
	Subject string
	Text    string
	HTML    string
}

// RenderReminder builds the reminder text shared by all channels.
func RenderReminder(task model.Task, leadMinutes int) Reminder {
	at := timebucket.FormatClock(task.StartTime)
	subject := fmt.Sprintf("Reminder: %s at %s", task.Activity, at)
	text := fmt.Sprintf("%s starts at %s (in %d minutes).", task.Activity, at, leadMinutes)
	if task.Description != "" {
		text += "\n" + task.Description
	}

	body := fmt.Sprintf("<p><b>%s</b> starts at %s (in %d minutes).</p>",
		html.EscapeString(task.Activity), at, leadMinutes)
	if task.Description != "" {
		body += fmt.Sprintf("<p>%s</p>", html.EscapeString(task.Description))
	}
	if task.IsPriority {
		subject = "⭐ " + subject
	}
	return Reminder{Subject: subject, Text: text, HTML: body}
}
