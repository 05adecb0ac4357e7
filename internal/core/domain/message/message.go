package message

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
)

type Type string

const (
	TypeSkipWaiting          Type = "SKIP_WAITING"
	TypeCacheProgress        Type = "CACHE_PROGRESS"
	TypeGetCacheStatus       Type = "GET_CACHE_STATUS"
	TypeClearCache           Type = "CLEAR_CACHE"
	TypeScheduleNotification Type = "SCHEDULE_NOTIFICATION"
)

var (
	ErrUnknownMessage   = errors.New("unknown message type")
	ErrMalformedPayload = errors.New("malformed message payload")
)

// Envelope is the wire form sent by the foreground UI.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply is the response to a command. Commands without a response return
// NoReply.
type Reply any

// NoReply marks commands that answer nothing.
var NoReply Reply = nil

// Handler has one method per command. Adding a command means adding a
// method here, which every implementation must then satisfy.
type Handler interface {
	SkipWaiting(ctx context.Context, cmd SkipWaiting) (Reply, error)
	CacheProgress(ctx context.Context, cmd CacheProgress) (Reply, error)
	GetCacheStatus(ctx context.Context, cmd GetCacheStatus) (Reply, error)
	ClearCache(ctx context.Context, cmd ClearCache) (Reply, error)
	ScheduleNotification(ctx context.Context, cmd ScheduleNotification) (Reply, error)
}

// Command is the closed set of foreground messages.
type Command interface {
	Type() Type
	Accept(ctx context.Context, h Handler) (Reply, error)
	sealed()
}

type SkipWaiting struct{}

func (SkipWaiting) Type() Type { return TypeSkipWaiting }
func (c SkipWaiting) Accept(ctx context.Context, h Handler) (Reply, error) {
	return h.SkipWaiting(ctx, c)
}
func (SkipWaiting) sealed() {}

// CacheProgress stores arbitrary progress data for a learner.
type CacheProgress struct {
	UserID string
	Data   json.RawMessage
}

func (CacheProgress) Type() Type { return TypeCacheProgress }
func (c CacheProgress) Accept(ctx context.Context, h Handler) (Reply, error) {
	return h.CacheProgress(ctx, c)
}
func (CacheProgress) sealed() {}

// Key is the Offline partition key holding this learner's progress.
func (c CacheProgress) Key() string {
	if strings.TrimSpace(c.UserID) == "" {
		return "progress-anonymous"
	}
	return "progress-" + c.UserID
}

type GetCacheStatus struct{}

func (GetCacheStatus) Type() Type { return TypeGetCacheStatus }
func (c GetCacheStatus) Accept(ctx context.Context, h Handler) (Reply, error) {
	return h.GetCacheStatus(ctx, c)
}
func (GetCacheStatus) sealed() {}

// CacheStatusReply maps partition name to its status.
type CacheStatusReply map[string]cache.PartitionStatus

type ClearCache struct{}

func (ClearCache) Type() Type { return TypeClearCache }
func (c ClearCache) Accept(ctx context.Context, h Handler) (Reply, error) {
	return h.ClearCache(ctx, c)
}
func (ClearCache) sealed() {}

type ClearCacheReply struct {
	Success bool `json:"success"`
}

type ScheduleNotification struct {
	Title string
	Body  string
	Delay time.Duration
	Tag   string
	Data  map[string]any
}

func (ScheduleNotification) Type() Type { return TypeScheduleNotification }
func (c ScheduleNotification) Accept(ctx context.Context, h Handler) (Reply, error) {
	return h.ScheduleNotification(ctx, c)
}
func (ScheduleNotification) sealed() {}

type scheduleWire struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Delay int64          `json:"delay"`
	Tag   string         `json:"tag"`
	Data  map[string]any `json:"data"`
}

type decoder func(json.RawMessage) (Command, error)

var decoders = map[Type]decoder{
	TypeSkipWaiting:    func(json.RawMessage) (Command, error) { return SkipWaiting{}, nil },
	TypeGetCacheStatus: func(json.RawMessage) (Command, error) { return GetCacheStatus{}, nil },
	TypeClearCache:     func(json.RawMessage) (Command, error) { return ClearCache{}, nil },
	TypeCacheProgress:  decodeCacheProgress,
	TypeScheduleNotification: func(raw json.RawMessage) (Command, error) {
		var w scheduleWire
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &w); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, TypeScheduleNotification, err)
			}
		}
		if w.Delay < 0 {
			w.Delay = 0
		}
		return ScheduleNotification{
			Title: w.Title,
			Body:  w.Body,
			Delay: time.Duration(w.Delay) * time.Millisecond,
			Tag:   w.Tag,
			Data:  w.Data,
		}, nil
	},
}

func decodeCacheProgress(raw json.RawMessage) (Command, error) {
	cmd := CacheProgress{Data: raw}
	if len(raw) == 0 {
		cmd.Data = json.RawMessage("null")
		return cmd, nil
	}
	// userId is optional and may be absent when the payload is not an object.
	var probe struct {
		UserID json.RawMessage `json:"userId"`
	}
	if err := json.Unmarshal(raw, &probe); err == nil && len(probe.UserID) > 0 {
		var s string
		if err := json.Unmarshal(probe.UserID, &s); err == nil {
			cmd.UserID = s
		} else if string(probe.UserID) != "null" {
			cmd.UserID = strings.Trim(string(probe.UserID), `"`)
		}
	} else if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: %s: invalid json", ErrMalformedPayload, TypeCacheProgress)
	}
	return cmd, nil
}

// Decode turns an envelope into its command.
func Decode(env Envelope) (Command, error) {
	dec, ok := decoders[env.Type]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, env.Type)
	}
	return dec(env.Payload)
}

// Types lists every decodable message type.
func Types() []Type {
	return []Type{TypeSkipWaiting, TypeCacheProgress, TypeGetCacheStatus, TypeClearCache, TypeScheduleNotification}
}
