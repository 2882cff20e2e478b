package watcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
	"github.com/clipforge/clipforge-go/internal/store"
)

// persistTimeout bounds each snapshot write triggered by a stream message
const persistTimeout = 5 * time.Second

// Channel is the status-channel surface a watch drives
type Channel interface {
	Open(projectID string)
	Close()
	Reconnect()
	Health() statuschannel.Health
}

// ChannelFactory builds the status channel for one watch, wiring the watch's
// message handler into it
type ChannelFactory func(projectID string, onMessage func(statuschannel.StatusMessage)) Channel

// SnapshotStore is the persistence surface a watch writes through.
// *store.Store satisfies it.
type SnapshotStore interface {
	UpsertSnapshot(ctx context.Context, snap store.Snapshot) error
	GetSnapshot(ctx context.Context, projectID string) (*store.Snapshot, error)
	ListSnapshots(ctx context.Context) ([]store.Snapshot, error)
	DeleteSnapshot(ctx context.Context, projectID string) error
}

// Status is the combined health view exposed for one watch
type Status struct {
	WatchID           string                       `json:"watch_id"`
	ProjectID         string                       `json:"project_id"`
	Phase             statuschannel.Phase          `json:"phase"`
	Connected         bool                         `json:"connected"`
	Connecting        bool                         `json:"connecting"`
	ReconnectAttempts int                          `json:"reconnect_attempts"`
	LastError         string                       `json:"last_error,omitempty"`
	LastMessage       *statuschannel.StatusMessage `json:"last_message,omitempty"`
	Processing        bool                         `json:"processing"`
	Completed         bool                         `json:"completed"`
	Failed            bool                         `json:"failed"`
	Snapshot          *store.Snapshot              `json:"snapshot,omitempty"`
}

// Watch follows the status stream of one project and persists each update
// as the project's latest snapshot
type Watch struct {
	id        string
	projectID string
	channel   Channel
	snapshots SnapshotStore
	log       *zap.SugaredLogger

	mu      sync.Mutex
	running bool
}

// NewWatch creates a watch for the given project
func NewWatch(projectID string, factory ChannelFactory, snapshots SnapshotStore, log *zap.SugaredLogger) (*Watch, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if factory == nil {
		return nil, fmt.Errorf("channel factory is required")
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	w := &Watch{
		id:        uuid.NewString(),
		projectID: projectID,
		snapshots: snapshots,
		log:       log,
	}
	w.channel = factory(projectID, w.handleMessage)
	if w.channel == nil {
		return nil, fmt.Errorf("channel factory returned nil")
	}
	return w, nil
}

// ID returns the watch's unique identifier
func (w *Watch) ID() string {
	return w.id
}

// ProjectID returns the watched project
func (w *Watch) ProjectID() string {
	return w.projectID
}

// Start opens the watch's status channel
func (w *Watch) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watch already running")
	}

	w.channel.Open(w.projectID)
	w.running = true
	w.log.Infow("Watch started", "watchId", w.id, "projectId", w.projectID)
	return nil
}

// Stop closes the watch's status channel. It is safe to call multiple times.
func (w *Watch) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}

	w.channel.Close()
	w.running = false
	w.log.Infow("Watch stopped", "watchId", w.id, "projectId", w.projectID)
	return nil
}

// Reconnect forces a fresh connection with a reset attempt budget
func (w *Watch) Reconnect() {
	w.channel.Reconnect()
}

// Status returns the combined channel health and persisted snapshot
func (w *Watch) Status() Status {
	health := w.channel.Health()

	status := Status{
		WatchID:           w.id,
		ProjectID:         w.projectID,
		Phase:             health.Phase,
		Connected:         health.Connected,
		Connecting:        health.Connecting,
		ReconnectAttempts: health.ReconnectAttempts,
		LastMessage:       health.LastMessage,
		Processing:        health.Processing(),
		Completed:         health.Completed(),
		Failed:            health.Failed(),
	}
	if health.LastError != nil {
		status.LastError = health.LastError.Error()
	}

	if w.snapshots != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		snap, err := w.snapshots.GetSnapshot(ctx, w.projectID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			w.log.Warnw("Failed to read snapshot", "projectId", w.projectID, "error", err)
		} else {
			status.Snapshot = snap
		}
	}

	return status
}

// handleMessage persists each stream message as the project's snapshot.
// Update messages replace the snapshot; backend error messages only set its
// last-error column so the displayable state survives.
func (w *Watch) handleMessage(msg statuschannel.StatusMessage) {
	if w.snapshots == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	switch msg.Type {
	case statuschannel.MessageTypeUpdate:
		snap := store.Snapshot{
			ProjectID:   w.projectID,
			Status:      msg.Status,
			Progress:    msg.Progress,
			CurrentStep: msg.CurrentStep,
			StepDetails: msg.StepDetails,
			LastError:   msg.ErrorMessage,
		}
		if err := w.snapshots.UpsertSnapshot(ctx, snap); err != nil {
			w.log.Errorw("Failed to persist snapshot", "projectId", w.projectID, "error", err)
		}
	case statuschannel.MessageTypeError:
		snap, err := w.snapshots.GetSnapshot(ctx, w.projectID)
		if errors.Is(err, store.ErrNotFound) {
			snap = &store.Snapshot{ProjectID: w.projectID}
		} else if err != nil {
			w.log.Errorw("Failed to read snapshot", "projectId", w.projectID, "error", err)
			return
		}

		snap.LastError = msg.Error
		snap.UpdatedAt = time.Time{}
		if err := w.snapshots.UpsertSnapshot(ctx, *snap); err != nil {
			w.log.Errorw("Failed to persist backend error", "projectId", w.projectID, "error", err)
		}
	}
}
