package lifecycle

import (
	"time"

	"example.com/admissions/services/pipeline/internal/models"
)

// Snapshot is the in-memory view of one application the engine operates
// on: the aggregate row, its folded stage-event times and its document
// sets. It is loaded inside the same transaction that commits the result,
// so it is consistent for the duration of one event.
type Snapshot struct {
	Application *models.Application
	Times       map[string]time.Time
}

// NewSnapshot builds a snapshot from a loaded application aggregate.
func NewSnapshot(app *models.Application) *Snapshot {
	return &Snapshot{
		Application: app,
		Times:       app.EventTimes(),
	}
}

// Status returns the application's current status.
func (s *Snapshot) Status() Status {
	return Status(s.Application.Status)
}

// Has reports whether the named stage event has ever been stamped.
func (s *Snapshot) Has(name string) bool {
	_, ok := s.Times[name]
	return ok
}

// At returns the instant a stage event was stamped.
func (s *Snapshot) At(name string) (time.Time, bool) {
	t, ok := s.Times[name]
	return t, ok
}

// DocumentSet returns the requirement set configured for a stage, or nil.
func (s *Snapshot) DocumentSet(stage Stage) *models.RequiredDocumentSet {
	return s.Application.DocumentSet(string(stage))
}
