// Package notify renders the reconciliation report and sends it to the
// site administrators.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	"math"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/ingeweb/contactws/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Subject is used for every report.
const Subject = "SARH user synchronization report"

// Execution time thresholds for the report colouring.
const (
	SlowRun     = 180 * time.Second
	ModerateRun = 60 * time.Second
)

// Severity classifies how long a run took.
type Severity string

const (
	SeverityOK       Severity = "ok"
	SeverityModerate Severity = "moderate"
	SeveritySlow     Severity = "slow"
)

// SeverityOf maps an execution time to its severity. The bounds are
// exclusive: exactly 60s is still ok.
func SeverityOf(d time.Duration) Severity {
	switch {
	case d > SlowRun:
		return SeveritySlow
	case d > ModerateRun:
		return SeverityModerate
	}
	return SeverityOK
}

// Report is a rendered notification.
type Report struct {
	Subject string
	Text    string
	HTML    string
}

// StatusRow is one line of the per-status table.
type StatusRow struct {
	Name           string
	Count          int
	Missing        int
	MissingPercent float64
	Other          bool
}

// reportData feeds both templates.
type reportData struct {
	SiteName         string
	SiteURL          string
	LastSync         string
	ExecutionSeconds float64
	Severity         Severity
	TotalAPIUsers    int
	TotalProcessed   int
	TotalUnprocessed int
	ProcessedPercent int
	TotalMissing     int
	ActiveUsers      int
	SuspendedUsers   int
	Statuses         []StatusRow
	MatchingSkipped  bool
}

type Reporter struct {
	siteName       string
	siteURL        string
	activeStatuses []int
	location       *time.Location
	html           *htmltemplate.Template
	text           *texttemplate.Template
}

// NewReporter parses the embedded templates. activeStatuses fixes the
// order of the status table.
func NewReporter(siteName, siteURL string, activeStatuses []int) (*Reporter, error) {
	html, err := htmltemplate.ParseFS(templateFS, "templates/report.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("notify: parsing html template: %w", err)
	}
	text, err := texttemplate.ParseFS(templateFS, "templates/report.txt.tmpl")
	if err != nil {
		return nil, fmt.Errorf("notify: parsing text template: %w", err)
	}
	return &Reporter{
		siteName:       siteName,
		siteURL:        siteURL,
		activeStatuses: activeStatuses,
		location:       time.Local,
		html:           html,
		text:           text,
	}, nil
}

// Render builds the report for stats. A nil stats renders as a site that
// never synchronised.
func (r *Reporter) Render(stats *model.SyncStats) (*Report, error) {
	if stats == nil {
		stats = &model.SyncStats{}
	}
	data := r.data(stats)

	var html, text bytes.Buffer
	if err := r.html.Execute(&html, data); err != nil {
		return nil, fmt.Errorf("notify: rendering html report: %w", err)
	}
	if err := r.text.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("notify: rendering text report: %w", err)
	}
	return &Report{Subject: Subject, Text: text.String(), HTML: html.String()}, nil
}

func (r *Reporter) data(st *model.SyncStats) reportData {
	d := reportData{
		SiteName:         r.siteName,
		SiteURL:          r.siteURL,
		LastSync:         "never",
		ExecutionSeconds: round2(st.ExecutionTime.Seconds()),
		Severity:         SeverityOf(st.ExecutionTime),
		TotalAPIUsers:    st.TotalAPIUsers,
		TotalProcessed:   st.TotalProcessed,
		TotalUnprocessed: st.TotalUnprocessed,
		TotalMissing:     st.TotalMissing,
		ActiveUsers:      st.ActiveUsers,
		SuspendedUsers:   st.SuspendedUsers,
		MatchingSkipped:  st.MatchingSkipped,
	}
	if st.HasRun() {
		d.LastSync = st.LastSyncTime.In(r.location).Format("2006-01-02 15:04:05 MST")
	}
	if st.TotalAPIUsers > 0 {
		d.ProcessedPercent = int(math.Round(float64(st.TotalProcessed) / float64(st.TotalAPIUsers) * 100))
	}

	for _, code := range r.activeStatuses {
		s, ok := st.StatusStatistics[strconv.Itoa(code)]
		if !ok {
			continue
		}
		name := s.Name
		if name == "" {
			name = strconv.Itoa(code)
		}
		d.Statuses = append(d.Statuses, row(name, s, false))
	}
	if s, ok := st.StatusStatistics[model.StatusOther]; ok && s.Count > 0 {
		d.Statuses = append(d.Statuses, row("Other statuses", s, true))
	}
	return d
}

func row(name string, s model.StatusStat, other bool) StatusRow {
	r := StatusRow{Name: name, Count: s.Count, Missing: s.Missing, Other: other}
	if s.Count > 0 {
		r.MissingPercent = round2(float64(s.Missing) / float64(s.Count) * 100)
	}
	return r
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
