package watcher

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/clipforge/clipforge-go/internal/statuschannel"
)

// Service owns the set of active watches. It builds one status channel per
// watched project and keeps the registry and snapshot store consistent.
type Service struct {
	registry  *Registry
	snapshots SnapshotStore
	factory   ChannelFactory
	log       *zap.SugaredLogger
}

// NewService creates a watch service that dials the given backend with fresh
// stream credentials from tokens. opts applies to every channel the service
// opens.
func NewService(baseURL string, tokens statuschannel.TokenSource, snapshots SnapshotStore, opts statuschannel.Options, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	factory := func(projectID string, onMessage func(statuschannel.StatusMessage)) Channel {
		chOpts := opts
		chOpts.OnMessage = onMessage
		return statuschannel.New(baseURL, tokens, nil, log, chOpts)
	}

	return &Service{
		registry:  NewRegistry(),
		snapshots: snapshots,
		factory:   factory,
		log:       log,
	}
}

// NewServiceWithFactory creates a watch service whose channels come from the
// given factory instead of real websocket connections
func NewServiceWithFactory(factory ChannelFactory, snapshots SnapshotStore, log *zap.SugaredLogger) *Service {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Service{
		registry:  NewRegistry(),
		snapshots: snapshots,
		factory:   factory,
		log:       log,
	}
}

// WatchProject starts watching a project's status stream.
// Returns an error if the project is already watched.
func (s *Service) WatchProject(projectID string) (*Watch, error) {
	w, err := NewWatch(projectID, s.factory, s.snapshots, s.log)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create watch")
	}

	if err := s.registry.Register(w); err != nil {
		return nil, err
	}

	if err := w.Start(); err != nil {
		_ = s.registry.Unregister(projectID)
		return nil, errors.Wrap(err, "failed to start watch")
	}
	return w, nil
}

// Unwatch stops watching a project and removes its watch
func (s *Service) Unwatch(projectID string) error {
	return s.registry.Unregister(projectID)
}

// Get returns the watch for a project, or nil if the project is not watched
func (s *Service) Get(projectID string) *Watch {
	return s.registry.Get(projectID)
}

// Reconnect forces the project's channel to reconnect with a reset attempt
// budget
func (s *Service) Reconnect(projectID string) error {
	w := s.registry.Get(projectID)
	if w == nil {
		return errors.Errorf("watch for project %s not found", projectID)
	}
	w.Reconnect()
	return nil
}

// Statuses returns the status of every active watch, ordered by project id
func (s *Service) Statuses() []Status {
	watches := s.registry.List()

	statuses := make([]Status, 0, len(watches))
	for _, w := range watches {
		statuses = append(statuses, w.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].ProjectID < statuses[j].ProjectID
	})
	return statuses
}

// Count returns the number of active watches
func (s *Service) Count() int {
	return s.registry.Count()
}

// Close stops every watch
func (s *Service) Close() error {
	return s.registry.UnregisterAll()
}
