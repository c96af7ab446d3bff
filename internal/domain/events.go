package domain

// ProgressEventType identifies one step in a job's progress stream.
type ProgressEventType string

const (
	EventPageStart    ProgressEventType = "page_start"
	EventPageComplete ProgressEventType = "page_complete"
	EventPageError    ProgressEventType = "page_error"
	EventAnalyzing    ProgressEventType = "analyzing"
	EventComplete     ProgressEventType = "complete"
	EventError        ProgressEventType = "error"
	EventCancelled    ProgressEventType = "cancelled"
)

// Terminal reports whether this event ends the stream. Exactly one terminal
// event is emitted per job, after which the stream is closed.
func (t ProgressEventType) Terminal() bool {
	return t == EventComplete || t == EventError || t == EventCancelled
}

// ProgressEvent is one entry in a job's append-only progress stream.
// The full report rides along only on the terminal complete event.
type ProgressEvent struct {
	Type        ProgressEventType `json:"type"`
	Message     string            `json:"message"`
	CurrentPage int               `json:"currentPage"`
	TotalPages  int               `json:"totalPages"`
	Status      ScanStatus        `json:"status"`
	SourceRef   string            `json:"sourceRef,omitempty"`
	Report      *ScanReport       `json:"report,omitempty"`
}
