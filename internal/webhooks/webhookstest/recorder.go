// Package webhookstest provides in-memory host collaborators for handler tests.
package webhookstest

import (
	"context"
	"sync"

	"github.com/fr0stylo/integrationgw/internal/app/ports"
)

// Recorder implements every host collaborator and records calls in order.
type Recorder struct {
	mu            sync.Mutex
	Calls         []string
	Repositories  []ports.RepositoryUpdate
	Analyses      []ports.AnalysisRequest
	Notifications []ports.Notification
	Projects      []ports.ProjectUpdate
	Deliveries    []ports.DeliveryEvent

	// Fail makes the named collaborator call return the error.
	Fail map[string]error
}

// NewRecorder constructs an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{Fail: map[string]error{}}
}

// Collaborators returns r bound to every collaborator slot.
func (r *Recorder) Collaborators() ports.Collaborators {
	return ports.Collaborators{
		Repositories: r,
		Analysis:     r,
		Notifier:     r,
		Projects:     r,
		Delivery:     r,
	}
}

func (r *Recorder) record(name string) error {
	r.Calls = append(r.Calls, name)
	return r.Fail[name]
}

// UpdateRepository records a repository update.
func (r *Recorder) UpdateRepository(_ context.Context, update ports.RepositoryUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Repositories = append(r.Repositories, update)
	return r.record("UpdateRepository")
}

// TriggerAnalysis records an analysis request.
func (r *Recorder) TriggerAnalysis(_ context.Context, req ports.AnalysisRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Analyses = append(r.Analyses, req)
	return r.record("TriggerAnalysis")
}

// Notify records a notification.
func (r *Recorder) Notify(_ context.Context, n ports.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Notifications = append(r.Notifications, n)
	return r.record("Notify")
}

// UpdateProject records a project update.
func (r *Recorder) UpdateProject(_ context.Context, update ports.ProjectUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Projects = append(r.Projects, update)
	return r.record("UpdateProject")
}

// PublishDelivery records a delivery event.
func (r *Recorder) PublishDelivery(_ context.Context, event ports.DeliveryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deliveries = append(r.Deliveries, event)
	return r.record("PublishDelivery")
}

// CallCount returns the number of recorded calls.
func (r *Recorder) CallCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Calls)
}
