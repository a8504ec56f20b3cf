package publishers

import "time"

// Event kinds emitted by the pipeline.
const (
	KindRunCompleted     = "run_completed"
	KindDatasetPublished = "dataset_published"
)

// Event is the payload published to downstream sinks after pipeline activity.
type Event struct {
	Kind        string           `json:"kind"`
	Family      string           `json:"family"`
	Task        uint64           `json:"task"`
	Outcome     string           `json:"outcome,omitempty"`
	Dataset     string           `json:"dataset,omitempty"`
	NoticeCount int              `json:"notice_count,omitempty"`
	Accepted    int              `json:"accepted,omitempty"`
	Total       int              `json:"total,omitempty"`
	PhaseMillis map[string]int64 `json:"phase_millis,omitempty"`
	OccurredAt  time.Time        `json:"occurred_at"`
}

// NewRunEvent builds a run-completion event.
func NewRunEvent(family string, task uint64, outcome string, noticeCount, accepted, total int, phaseMillis map[string]int64) Event {
	return Event{
		Kind:        KindRunCompleted,
		Family:      family,
		Task:        task,
		Outcome:     outcome,
		NoticeCount: noticeCount,
		Accepted:    accepted,
		Total:       total,
		PhaseMillis: phaseMillis,
		OccurredAt:  time.Now().UTC(),
	}
}

// NewDatasetEvent builds an event for one newly created catalog entry.
func NewDatasetEvent(family string, task uint64, dataset string) Event {
	return Event{
		Kind:       KindDatasetPublished,
		Family:     family,
		Task:       task,
		Dataset:    dataset,
		OccurredAt: time.Now().UTC(),
	}
}
