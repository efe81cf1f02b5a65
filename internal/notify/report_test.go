package notify

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ingeweb/contactws/internal/model"
)

func newTestReporter(t *testing.T) *Reporter {
	t.Helper()
	r, err := NewReporter("Campus Contact", "https://campus.example.com", []int{1, 3, 5})
	require.NoError(t, err)
	r.location = time.UTC
	return r
}

func sampleStats() *model.SyncStats {
	return &model.SyncStats{
		LastSyncTime:   time.Date(2026, 4, 2, 3, 0, 0, 0, time.UTC),
		ExecutionTime:  45 * time.Second,
		TotalAPIUsers:  1200,
		TotalProcessed: 1200,
		TotalMissing:   3,
		ActiveUsers:    950,
		SuspendedUsers: 80,
		StatusStatistics: map[string]model.StatusStat{
			"1":     {Count: 900, Name: "Activo", Missing: 2},
			"3":     {Count: 50, Name: "En Proceso", Missing: 1},
			"5":     {Count: 0, Name: "Contratado"},
			"other": {Count: 250},
		},
	}
}

// ===== SEVERITY TESTS =====

func TestSeverityOf(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want Severity
	}{
		{d: 0, want: SeverityOK},
		{d: 60 * time.Second, want: SeverityOK},
		{d: 60*time.Second + time.Millisecond, want: SeverityModerate},
		{d: 180 * time.Second, want: SeverityModerate},
		{d: 181 * time.Second, want: SeveritySlow},
	}

	for _, tt := range tests {
		t.Run(tt.d.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, SeverityOf(tt.d))
		})
	}
}

// ===== RENDER TESTS =====

func TestRender_Summary(t *testing.T) {
	r := newTestReporter(t)

	rep, err := r.Render(sampleStats())
	require.NoError(t, err)

	assert.Equal(t, Subject, rep.Subject)
	assert.Contains(t, rep.HTML, "Last synchronization: 2026-04-02 03:00:00 UTC")
	assert.Contains(t, rep.HTML, `class="execution-ok"`)
	assert.Contains(t, rep.HTML, "Users in SARH: 1200")
	assert.NotContains(t, rep.HTML, "processed-bar", "no bar when every record was processed")
	assert.Contains(t, rep.HTML, "2 (0.22%)")
	assert.Contains(t, rep.HTML, "1 (2%)")
	assert.Contains(t, rep.HTML, "Other statuses")
	assert.Contains(t, rep.HTML, `href="https://campus.example.com"`)

	assert.Contains(t, rep.Text, "Active users: 950")
	assert.Contains(t, rep.Text, "Activo: 900 users, 2 without account (0.22%)")
	assert.Contains(t, rep.Text, "Contratado: 0 users, 0 without account\n")
	assert.Contains(t, rep.Text, "Other statuses: 250 users")
}

func TestRender_StatusOrderFollowsPolicy(t *testing.T) {
	r := newTestReporter(t)

	rep, err := r.Render(sampleStats())
	require.NoError(t, err)

	activo := strings.Index(rep.Text, "Activo:")
	proceso := strings.Index(rep.Text, "En Proceso:")
	other := strings.Index(rep.Text, "Other statuses:")
	assert.True(t, activo < proceso && proceso < other)
}

func TestRender_SlowTruncatedRun(t *testing.T) {
	r := newTestReporter(t)
	st := sampleStats()
	st.ExecutionTime = 241 * time.Second
	st.TotalProcessed = 300
	st.TotalUnprocessed = 900

	rep, err := r.Render(st)
	require.NoError(t, err)

	assert.Contains(t, rep.HTML, `class="execution-slow"`)
	assert.Contains(t, rep.HTML, "#d9534f;\">Execution time: 241 seconds")
	assert.Contains(t, rep.HTML, "processed-bar")
	assert.Contains(t, rep.HTML, "width: 25%")
	assert.Contains(t, rep.HTML, "300 (25%)")
	assert.Contains(t, rep.Text, "Users not processed: 900")
	assert.Contains(t, rep.Text, "(slow)")
}

func TestRender_MatchingSkippedWithEverythingProcessed(t *testing.T) {
	r := newTestReporter(t)
	st := sampleStats()
	st.TotalUnprocessed = 0
	st.MatchingSkipped = true

	rep, err := r.Render(st)
	require.NoError(t, err)

	assert.NotContains(t, rep.Text, "Users not processed")
	assert.Contains(t, rep.Text, "Account matching skipped: time budget exhausted")
	assert.Contains(t, rep.HTML, `class="matching-skipped"`)

	st.MatchingSkipped = false
	rep, err = r.Render(st)
	require.NoError(t, err)
	assert.NotContains(t, rep.Text, "Account matching skipped")
	assert.NotContains(t, rep.HTML, "matching-skipped")
}

func TestRender_NeverSynchronised(t *testing.T) {
	r := newTestReporter(t)

	rep, err := r.Render(nil)
	require.NoError(t, err)

	assert.Contains(t, rep.HTML, "Last synchronization: never")
	assert.NotContains(t, rep.HTML, "Execution time")
	assert.NotContains(t, rep.Text, "By status")
}

func TestRender_EscapesSiteName(t *testing.T) {
	r, err := NewReporter("<b>Campus</b>", "https://campus.example.com", []int{1})
	require.NoError(t, err)

	rep, err := r.Render(sampleStats())
	require.NoError(t, err)

	assert.NotContains(t, rep.HTML, "<b>Campus</b>")
	assert.Contains(t, rep.HTML, "&lt;b&gt;Campus&lt;/b&gt;")
}
