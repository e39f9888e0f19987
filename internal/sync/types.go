package sync

// DrainResult summarizes one pass over the mutation queue.
type DrainResult struct {
	// Ran is false when the drain was a no-op (already syncing or offline).
	Ran    bool `json:"ran"`
	Synced int  `json:"synced"`
	Failed int  `json:"failed"`
}

// Sync run statuses recorded in the history table.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusPartial   = "completed_with_failures"
)
