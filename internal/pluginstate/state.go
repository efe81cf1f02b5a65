// Package pluginstate gives typed access to the plugin's key/value
// configuration: connection and notification settings edited by
// administrators, and the statistics published by each reconciliation run.
package pluginstate

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ingeweb/contactws/internal/model"
	"github.com/ingeweb/contactws/internal/repository"
)

// Plugin is the configuration scope every key lives under.
const Plugin = "auth_contactws"

// Settings keys.
const (
	KeyBaseURL                 = "baseurl"
	KeyAPIUsername             = "apiusername"
	KeyAPIPassword             = "apipassword"
	KeyEnableAdminNotification = "enable_admin_notifications"
	KeyNotificationAdminIDs    = "notification_admin_ids"
)

// Statistics keys, written at the end of each reconciliation run.
const (
	KeyLastSyncTime          = "last_sync_time"
	KeySyncExecutionTime     = "sync_execution_time"
	KeyActiveUsersCount      = "active_users_count"
	KeySuspendedUsersCount   = "suspended_users_count"
	KeyTotalAPIUsers         = "total_api_users"
	KeyTotalMissingUsers     = "total_missing_users"
	KeyTotalProcessedUsers   = "total_processed_users"
	KeyTotalUnprocessedUsers = "total_unprocessed_users"
	KeyMissingUsers          = "missing_users"
	KeyStatusStatistics      = "status_statistics"
	KeyLastAPIResponse       = "last_api_response"
	KeyMatchingSkipped       = "matching_skipped"
)

// Store reads and writes plugin state. It implements sarh.SettingsSource.
type Store struct {
	cfg repository.ConfigStore
}

func New(cfg repository.ConfigStore) *Store {
	return &Store{cfg: cfg}
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	v, _, err := s.cfg.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("pluginstate: reading %s: %w", key, err)
	}
	return v, nil
}

func (s *Store) ConnectionSettings(ctx context.Context) (model.ConnectionSettings, error) {
	var c model.ConnectionSettings
	var err error
	if c.BaseURL, err = s.get(ctx, KeyBaseURL); err != nil {
		return c, err
	}
	if c.APIUsername, err = s.get(ctx, KeyAPIUsername); err != nil {
		return c, err
	}
	if c.APIPassword, err = s.get(ctx, KeyAPIPassword); err != nil {
		return c, err
	}
	c.BaseURL = strings.TrimSpace(c.BaseURL)
	return c, nil
}

// SaveConnectionSettings writes the non-empty fields of c.
func (s *Store) SaveConnectionSettings(ctx context.Context, c model.ConnectionSettings) error {
	values := map[string]string{}
	if c.BaseURL != "" {
		values[KeyBaseURL] = strings.TrimSpace(c.BaseURL)
	}
	if c.APIUsername != "" {
		values[KeyAPIUsername] = c.APIUsername
	}
	if c.APIPassword != "" {
		values[KeyAPIPassword] = c.APIPassword
	}
	if err := s.cfg.SetMany(ctx, values); err != nil {
		return fmt.Errorf("pluginstate: saving connection settings: %w", err)
	}
	return nil
}

func (s *Store) NotificationSettings(ctx context.Context) (model.NotificationSettings, error) {
	var n model.NotificationSettings
	enabled, err := s.get(ctx, KeyEnableAdminNotification)
	if err != nil {
		return n, err
	}
	n.Enabled = parseBool(enabled)

	ids, err := s.get(ctx, KeyNotificationAdminIDs)
	if err != nil {
		return n, err
	}
	n.AdminIDs = ParseIDList(ids)
	return n, nil
}

func (s *Store) SaveNotificationSettings(ctx context.Context, n model.NotificationSettings) error {
	ids := make([]string, len(n.AdminIDs))
	for i, id := range n.AdminIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	err := s.cfg.SetMany(ctx, map[string]string{
		KeyEnableAdminNotification: formatBool(n.Enabled),
		KeyNotificationAdminIDs:    strings.Join(ids, ","),
	})
	if err != nil {
		return fmt.Errorf("pluginstate: saving notification settings: %w", err)
	}
	return nil
}

// SaveStats publishes the result of a reconciliation run.
func (s *Store) SaveStats(ctx context.Context, st *model.SyncStats) error {
	missing, err := json.Marshal(nonNilMissing(st.MissingUsers))
	if err != nil {
		return fmt.Errorf("pluginstate: encoding missing users: %w", err)
	}
	statusStats := st.StatusStatistics
	if statusStats == nil {
		statusStats = map[string]model.StatusStat{}
	}
	statuses, err := json.Marshal(statusStats)
	if err != nil {
		return fmt.Errorf("pluginstate: encoding status statistics: %w", err)
	}

	err = s.cfg.SetMany(ctx, map[string]string{
		KeyLastSyncTime:          strconv.FormatInt(st.LastSyncTime.Unix(), 10),
		KeySyncExecutionTime:     strconv.FormatFloat(st.ExecutionTime.Seconds(), 'f', 3, 64),
		KeyActiveUsersCount:      strconv.Itoa(st.ActiveUsers),
		KeySuspendedUsersCount:   strconv.Itoa(st.SuspendedUsers),
		KeyTotalAPIUsers:         strconv.Itoa(st.TotalAPIUsers),
		KeyTotalMissingUsers:     strconv.Itoa(st.TotalMissing),
		KeyTotalProcessedUsers:   strconv.Itoa(st.TotalProcessed),
		KeyTotalUnprocessedUsers: strconv.Itoa(st.TotalUnprocessed),
		KeyMissingUsers:          string(missing),
		KeyStatusStatistics:      string(statuses),
		KeyMatchingSkipped:       formatBool(st.MatchingSkipped),
	})
	if err != nil {
		return fmt.Errorf("pluginstate: saving statistics: %w", err)
	}
	return nil
}

// LoadStats reads the last published statistics. A store that never saw a
// run yields zero values and an empty LastSyncTime.
func (s *Store) LoadStats(ctx context.Context) (*model.SyncStats, error) {
	st := &model.SyncStats{StatusStatistics: map[string]model.StatusStat{}}

	ints := map[string]*int{
		KeyActiveUsersCount:      &st.ActiveUsers,
		KeySuspendedUsersCount:   &st.SuspendedUsers,
		KeyTotalAPIUsers:         &st.TotalAPIUsers,
		KeyTotalMissingUsers:     &st.TotalMissing,
		KeyTotalProcessedUsers:   &st.TotalProcessed,
		KeyTotalUnprocessedUsers: &st.TotalUnprocessed,
	}
	for key, dst := range ints {
		v, err := s.get(ctx, key)
		if err != nil {
			return nil, err
		}
		*dst, _ = strconv.Atoi(v)
	}

	v, err := s.get(ctx, KeyLastSyncTime)
	if err != nil {
		return nil, err
	}
	if ts, _ := strconv.ParseInt(v, 10, 64); ts > 0 {
		st.LastSyncTime = time.Unix(ts, 0)
	}

	if v, err = s.get(ctx, KeySyncExecutionTime); err != nil {
		return nil, err
	}
	if secs, perr := strconv.ParseFloat(v, 64); perr == nil {
		st.ExecutionTime = time.Duration(secs * float64(time.Second))
	}

	if v, err = s.get(ctx, KeyMissingUsers); err != nil {
		return nil, err
	}
	if v != "" {
		if err := json.Unmarshal([]byte(v), &st.MissingUsers); err != nil {
			return nil, fmt.Errorf("pluginstate: decoding missing users: %w", err)
		}
	}

	if v, err = s.get(ctx, KeyStatusStatistics); err != nil {
		return nil, err
	}
	if v != "" {
		if err := json.Unmarshal([]byte(v), &st.StatusStatistics); err != nil {
			return nil, fmt.Errorf("pluginstate: decoding status statistics: %w", err)
		}
	}

	if v, err = s.get(ctx, KeyMatchingSkipped); err != nil {
		return nil, err
	}
	st.MatchingSkipped = parseBool(v)
	return st, nil
}

// SaveRawResponse keeps the last roster body for diagnostics.
func (s *Store) SaveRawResponse(ctx context.Context, body []byte) error {
	if err := s.cfg.Set(ctx, KeyLastAPIResponse, string(body)); err != nil {
		return fmt.Errorf("pluginstate: saving last api response: %w", err)
	}
	return nil
}

// RawResponse returns the last roster body, "" if none was saved.
func (s *Store) RawResponse(ctx context.Context) (string, error) {
	return s.get(ctx, KeyLastAPIResponse)
}

// ParseIDList parses a comma separated list of numeric ids. Blank and
// malformed entries are dropped and duplicates collapse to one.
func ParseIDList(s string) []int64 {
	var ids []int64
	seen := map[int64]bool{}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func nonNilMissing(m []model.MissingUser) []model.MissingUser {
	if m == nil {
		return []model.MissingUser{}
	}
	return m
}
