package ports

import (
	"context"
	"net/http"

	"github.com/avatarctic/offline-sync-engine/internal/core/domain/cache"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/notification"
	"github.com/avatarctic/offline-sync-engine/internal/core/domain/request"
)

// DispatchResult is the outcome of one intercepted request.
type DispatchResult struct {
	Class   request.Class  `json:"class"`
	Source  request.Source `json:"source"`
	Payload *cache.Payload `json:"-"`
	// Stale is set when a cached entry past its max age was served.
	Stale bool `json:"stale"`
}

type DispatcherService interface {
	Dispatch(ctx context.Context, req *http.Request) (*DispatchResult, error)
}

// ReplayReport summarizes one drain of the sync queue.
type ReplayReport struct {
	Attempted int `json:"attempted"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

type ReplayService interface {
	Replay(ctx context.Context) (ReplayReport, error)
}

// PartitionSet is the current epoch's partitions.
type PartitionSet struct {
	Epoch   string
	Static  cache.Partition
	Dynamic cache.Partition
	Offline cache.Partition
}

// Partitions returns the set as a slice, static first.
func (s PartitionSet) Partitions() []cache.Partition {
	return []cache.Partition{s.Static, s.Dynamic, s.Offline}
}

// LifecycleState is the install/activation state of this engine instance.
type LifecycleState string

const (
	LifecycleUninstalled LifecycleState = "uninstalled"
	LifecycleInstalling  LifecycleState = "installing"
	LifecycleWaiting     LifecycleState = "waiting"
	LifecycleActive      LifecycleState = "active"
	LifecycleRedundant   LifecycleState = "redundant"
)

type LifecycleService interface {
	State() LifecycleState
	Install(ctx context.Context) error
	Activate(ctx context.Context) error
	SkipWaiting(ctx context.Context) error
	// Await blocks until activation has completed.
	Await(ctx context.Context) (PartitionSet, error)
	Current() PartitionSet
}

type PushService interface {
	HandlePush(ctx context.Context, payload []byte) (notification.Notification, error)
}
