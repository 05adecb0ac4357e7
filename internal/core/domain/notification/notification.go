package notification

import (
	"encoding/json"
	"time"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/failure"
)

const (
	ActionStartLearning = "start-learning"
	ActionDismiss       = "dismiss"
)

type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
}

type Notification struct {
	Title   string         `json:"title"`
	Body    string         `json:"body"`
	Icon    string         `json:"icon"`
	Badge   string         `json:"badge"`
	Tag     string         `json:"tag"`
	Data    map[string]any `json:"data"`
	Actions []Action       `json:"actions"`
	// ShowAt is when the notification becomes visible; zero means now.
	ShowAt time.Time `json:"show_at,omitempty"`
}

// URL is the page opened by the start-learning action.
func (n Notification) URL() string {
	if u, ok := n.Data["url"].(string); ok && u != "" {
		return u
	}
	return "/"
}

func DefaultActions() []Action {
	return []Action{
		{Action: ActionStartLearning, Title: "Start Learning"},
		{Action: ActionDismiss, Title: "Later"},
	}
}

// Defaults is the content shown when a push carries no usable payload.
func Defaults() Notification {
	return Notification{
		Title:   "Time to learn!",
		Body:    "New learning adventures are waiting for you.",
		Icon:    "/icons/icon-192x192.png",
		Badge:   "/icons/badge-72x72.png",
		Tag:     "learning-reminder",
		Data:    map[string]any{"url": "/"},
		Actions: DefaultActions(),
	}
}

type pushWire struct {
	Title *string        `json:"title"`
	Body  *string        `json:"body"`
	Icon  *string        `json:"icon"`
	Badge *string        `json:"badge"`
	Tag   *string        `json:"tag"`
	Data  map[string]any `json:"data"`
}

// FromPushPayload merges a push payload over Defaults. Absent payloads give
// the defaults; malformed ones give the defaults plus a MalformedPushPayload
// error for the caller to log. Actions are never taken from the payload.
func FromPushPayload(raw []byte) (Notification, error) {
	n := Defaults()
	if len(raw) == 0 {
		return n, nil
	}
	var w pushWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return n, failure.New(failure.KindMalformedPush, "push", err)
	}
	if w.Title != nil {
		n.Title = *w.Title
	}
	if w.Body != nil {
		n.Body = *w.Body
	}
	if w.Icon != nil {
		n.Icon = *w.Icon
	}
	if w.Badge != nil {
		n.Badge = *w.Badge
	}
	if w.Tag != nil {
		n.Tag = *w.Tag
	}
	if w.Data != nil {
		n.Data = w.Data
	}
	n.Actions = DefaultActions()
	return n, nil
}

// ClickTarget returns the URL to open for a notification action, or false
// when the action only closes the notification.
func ClickTarget(n Notification, action string) (string, bool) {
	// A click on the notification body carries no action and opens it too.
	if action == ActionDismiss {
		return "", false
	}
	return n.URL(), true
}
