package worker

// Sync modes carried in SyncRequested events.
const (
	ModeRebuild     = "rebuild"
	ModeIncremental = "incremental"
)

// SyncRequested asks the sync worker to refresh the index from the source.
type SyncRequested struct {
	Mode          string `json:"mode"`
	Force         bool   `json:"force,omitempty"`
	CorrelationID string `json:"correlation_id"`
}
