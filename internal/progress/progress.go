// Package progress tracks long-running activities (artifact downloads and
// sync runs) and broadcasts their state to connected WebSocket clients.
package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ActivityType identifies the type of activity being tracked.
type ActivityType string

const (
	ActivityTypeDownload ActivityType = "download"
	ActivityTypeSync     ActivityType = "sync"
)

// Status represents the current state of an activity.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Activity represents a trackable activity with progress.
type Activity struct {
	ID          string                 `json:"id"`
	Type        ActivityType           `json:"type"`
	Title       string                 `json:"title"`
	Subtitle    string                 `json:"subtitle"`
	Progress    int                    `json:"progress"` // 0-100, -1 for indeterminate
	Status      Status                 `json:"status"`
	StartedAt   time.Time              `json:"startedAt"`
	CompletedAt *time.Time             `json:"completedAt"`
	Metadata    map[string]interface{} `json:"metadata"`
}

func (a *Activity) clone() *Activity {
	out := *a
	out.Metadata = make(map[string]interface{}, len(a.Metadata))
	for k, v := range a.Metadata {
		out.Metadata[k] = v
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

// EventType identifies the type of progress event.
type EventType string

const (
	EventTypeStarted   EventType = "progress:started"
	EventTypeUpdate    EventType = "progress:update"
	EventTypeCompleted EventType = "progress:completed"
	EventTypeError     EventType = "progress:error"
	EventTypeCancelled EventType = "progress:cancelled"
)

// Broadcaster delivers messages to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload interface{}) error
}

// Manager tracks and broadcasts progress for all activities.
type Manager struct {
	hub        Broadcaster
	activities map[string]*Activity
	mu         sync.RWMutex
	logger     zerolog.Logger

	// How long finished activities stay listed.
	completedRetention time.Duration
	failedRetention    time.Duration
}

// NewManager creates a progress manager. hub may be nil.
func NewManager(hub Broadcaster, logger zerolog.Logger) *Manager {
	return &Manager{
		hub:                hub,
		activities:         make(map[string]*Activity),
		logger:             logger.With().Str("component", "progress").Logger(),
		completedRetention: 5 * time.Second,
		failedRetention:    10 * time.Second,
	}
}

// SetRetention changes how long finished activities stay listed.
func (m *Manager) SetRetention(completed, failed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completedRetention = completed
	m.failedRetention = failed
}

// StartActivity creates and starts tracking a new activity.
func (m *Manager) StartActivity(id string, activityType ActivityType, title string) *Activity {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity := &Activity{
		ID:        id,
		Type:      activityType,
		Title:     title,
		Subtitle:  "Starting...",
		Status:    StatusInProgress,
		StartedAt: time.Now(),
		Metadata:  make(map[string]interface{}),
	}

	m.activities[id] = activity
	m.broadcast(EventTypeStarted, activity)

	m.logger.Debug().
		Str("id", id).
		Str("type", string(activityType)).
		Str("title", title).
		Msg("Activity started")

	return activity.clone()
}

// UpdateActivity updates an existing activity's progress.
func (m *Manager) UpdateActivity(id, subtitle string, progress int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	activity.Subtitle = subtitle
	activity.Progress = progress

	m.broadcast(EventTypeUpdate, activity)
}

// UpdateActivityMetadata updates an activity's metadata.
func (m *Manager) UpdateActivityMetadata(id, key string, value interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	activity.Metadata[key] = value
}

// CompleteActivity marks an activity as completed.
func (m *Manager) CompleteActivity(id, subtitle string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusCompleted
	activity.Progress = 100
	activity.Subtitle = subtitle
	activity.CompletedAt = &now

	m.broadcast(EventTypeCompleted, activity)
	m.expire(id, m.completedRetention)

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Msg("Activity completed")
}

// FailActivity marks an activity as failed.
func (m *Manager) FailActivity(id, errorMsg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusFailed
	activity.Subtitle = errorMsg
	activity.CompletedAt = &now
	activity.Metadata["error"] = errorMsg

	m.broadcast(EventTypeError, activity)
	m.expire(id, m.failedRetention)

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Str("error", errorMsg).
		Msg("Activity failed")
}

// CancelActivity marks an activity as cancelled and stops tracking it.
func (m *Manager) CancelActivity(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	activity, exists := m.activities[id]
	if !exists {
		return
	}

	now := time.Now()
	activity.Status = StatusCancelled
	activity.Subtitle = "Cancelled"
	activity.CompletedAt = &now

	m.broadcast(EventTypeCancelled, activity)

	delete(m.activities, id)

	m.logger.Debug().
		Str("id", id).
		Str("title", activity.Title).
		Msg("Activity cancelled")
}

// GetActivity returns a copy of an activity by ID, or nil.
func (m *Manager) GetActivity(id string) *Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	activity, ok := m.activities[id]
	if !ok {
		return nil
	}
	return activity.clone()
}

// GetAllActivities returns copies of all tracked activities.
func (m *Manager) GetAllActivities() []*Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Activity, 0, len(m.activities))
	for _, activity := range m.activities {
		result = append(result, activity.clone())
	}
	return result
}

// GetActivitiesByType returns copies of all activities of a specific type.
func (m *Manager) GetActivitiesByType(activityType ActivityType) []*Activity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Activity, 0)
	for _, activity := range m.activities {
		if activity.Type == activityType {
			result = append(result, activity.clone())
		}
	}
	return result
}

// expire drops a finished activity after delay. Caller holds m.mu.
func (m *Manager) expire(id string, delay time.Duration) {
	if delay <= 0 {
		delete(m.activities, id)
		return
	}
	time.AfterFunc(delay, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if a, ok := m.activities[id]; ok && a.Status != StatusInProgress {
			delete(m.activities, id)
		}
	})
}

// broadcast sends an activity snapshot to all connected clients. Caller holds m.mu.
func (m *Manager) broadcast(eventType EventType, activity *Activity) {
	if m.hub == nil {
		return
	}

	if err := m.hub.Broadcast(string(eventType), activity.clone()); err != nil {
		m.logger.Warn().Err(err).Str("type", string(eventType)).Msg("Failed to broadcast activity")
	}
}
