package reconcile

import (
	"strconv"
	"time"

	"github.com/ingeweb/contactws/internal/config"
	"github.com/ingeweb/contactws/internal/model"
)

// defaultStatusNames label the buckets until the roster supplies its own
// label for a code.
var defaultStatusNames = map[int]string{
	1: "Activo",
	3: "En Proceso",
	5: "Contratado",
}

// Classification is the outcome of one pass over the roster.
type Classification struct {
	// Active maps each identifier with at least one active record to the
	// status code of the last active record seen for it.
	Active    map[string]int
	Stats     map[string]model.StatusStat
	Missing   []model.MissingUser
	Processed int
	// Truncated is set when the time budget ran out before the end of the
	// roster. The remaining records are counted as unprocessed.
	Truncated bool
}

// Classify walks records in order until expired reports true. existing is
// the set of identifiers that have a local account.
func Classify(records []model.RemoteUser, policy config.Policy, existing map[string]struct{}, expired func() bool) Classification {
	c := Classification{
		Active: make(map[string]int),
		Stats:  newStatusStats(policy),
	}

	for _, rec := range records {
		if expired() {
			c.Truncated = true
			break
		}
		c.Processed++

		doc := rec.Document()
		code, ok := rec.Status()
		active := ok && policy.IsActive(code)

		bucket := model.StatusOther
		if active {
			bucket = strconv.Itoa(code)
		}
		st := c.Stats[bucket]
		st.Count++
		if label := rec.StatusLabel(); active && label != "" {
			st.Name = label
		}
		c.Stats[bucket] = st

		if !active {
			continue
		}
		if doc != "" {
			c.Active[doc] = code
		}

		// Every active record without an account counts, repeated
		// document numbers included, each under its own status.
		if _, found := existing[doc]; found && doc != "" {
			continue
		}

		c.Missing = append(c.Missing, model.MissingUser{
			DocNumber:  doc,
			Status:     strconv.Itoa(code),
			StatusName: rec.StatusLabel(),
		})
		st = c.Stats[bucket]
		st.Missing++
		c.Stats[bucket] = st
	}
	return c
}

func newStatusStats(policy config.Policy) map[string]model.StatusStat {
	stats := make(map[string]model.StatusStat, len(policy.ActiveStatuses)+1)
	for _, code := range policy.ActiveStatuses {
		stats[strconv.Itoa(code)] = model.StatusStat{Name: defaultStatusNames[code]}
	}
	stats[model.StatusOther] = model.StatusStat{}
	return stats
}

// deadline returns a budget check against clock, measured from start.
func deadline(clock func() time.Time, start time.Time, budget time.Duration) func() bool {
	return func() bool {
		return clock().Sub(start) > budget
	}
}
