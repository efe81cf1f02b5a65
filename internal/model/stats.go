package model

import "time"

// StatusOther is the status statistics bucket for codes outside the
// configured active set.
const StatusOther = "other"

// StatusStat is one entry of the per-status breakdown.
type StatusStat struct {
	Count   int    `json:"count"`
	Name    string `json:"name,omitempty"`
	Missing int    `json:"missing"`
}

// MissingUser is an active remote person without any local account.
type MissingUser struct {
	DocNumber  string `json:"docnumber"`
	Status     string `json:"status"`
	StatusName string `json:"statusname"`
}

// SyncStats is the aggregate published after each reconciliation run and
// consumed by the notification report and the admin API.
type SyncStats struct {
	LastSyncTime     time.Time             `json:"last_sync_time"`
	ExecutionTime    time.Duration         `json:"sync_execution_time"`
	TotalAPIUsers    int                   `json:"total_api_users"`
	TotalProcessed   int                   `json:"total_processed_users"`
	TotalUnprocessed int                   `json:"total_unprocessed_users"`
	TotalMissing     int                   `json:"total_missing_users"`
	ActiveUsers      int                   `json:"active_users_count"`
	SuspendedUsers   int                   `json:"suspended_users_count"`
	StatusStatistics map[string]StatusStat `json:"status_statistics"`
	MissingUsers     []MissingUser         `json:"missing_users"`
	// MatchingSkipped is set when the run left every account untouched
	// because the time budget ran out, even if the whole roster was read.
	MatchingSkipped bool `json:"matching_skipped"`
}

// HasRun reports whether a reconciliation has ever been recorded.
func (s *SyncStats) HasRun() bool {
	return s != nil && !s.LastSyncTime.IsZero()
}
