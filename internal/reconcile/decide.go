package reconcile

import (
	"sort"
	"time"

	"github.com/ingeweb/contactws/internal/model"
)

// Plan lists the accounts whose suspended flag must flip.
type Plan struct {
	Suspend   []model.Account
	Unsuspend []model.Account
	// Duplicates counts identifiers shared by more than one account.
	Duplicates int
}

// Empty reports whether the plan mutates nothing.
func (p Plan) Empty() bool {
	return len(p.Suspend) == 0 && len(p.Unsuspend) == 0
}

// Decide computes the desired state of every account against the active
// identifiers and returns only the accounts whose current state differs.
//
// An account is active when its identifier is active. When several accounts
// share an active identifier only the most recently used one (see Winner)
// stays active. Accounts without an identifier are never active.
func Decide(accounts []model.Account, active map[string]int) Plan {
	groups := make(map[string][]model.Account)
	var order []string
	var plan Plan

	for _, a := range accounts {
		if a.IDNumber == "" {
			plan.add(a, false)
			continue
		}
		if _, seen := groups[a.IDNumber]; !seen {
			order = append(order, a.IDNumber)
		}
		groups[a.IDNumber] = append(groups[a.IDNumber], a)
	}

	for _, id := range order {
		group := groups[id]
		_, isActive := active[id]

		if len(group) == 1 {
			plan.add(group[0], isActive)
			continue
		}

		plan.Duplicates++
		winner := int64(-1)
		if isActive {
			winner = Winner(group).ID
		}
		for _, a := range group {
			plan.add(a, a.ID == winner)
		}
	}

	sortByID(plan.Suspend)
	sortByID(plan.Unsuspend)
	return plan
}

func (p *Plan) add(a model.Account, wantActive bool) {
	switch {
	case wantActive && a.Suspended:
		p.Unsuspend = append(p.Unsuspend, a)
	case !wantActive && !a.Suspended:
		p.Suspend = append(p.Suspend, a)
	}
}

// Winner picks the account to keep among accounts sharing an identifier:
// latest last access, then latest last login, then latest creation. A set
// timestamp always ranks above an unset one. Remaining ties go to the
// higher id so the choice is stable across runs.
func Winner(group []model.Account) model.Account {
	best := group[0]
	for _, a := range group[1:] {
		if moreRecent(a, best) {
			best = a
		}
	}
	return best
}

func moreRecent(a, b model.Account) bool {
	if c := compareTime(a.LastAccess, b.LastAccess); c != 0 {
		return c > 0
	}
	if c := compareTime(a.LastLogin, b.LastLogin); c != 0 {
		return c > 0
	}
	if c := compareTime(a.TimeCreated, b.TimeCreated); c != 0 {
		return c > 0
	}
	return a.ID > b.ID
}

// compareTime orders unset (zero) times below every set time.
func compareTime(a, b time.Time) int {
	switch {
	case a.IsZero() && b.IsZero():
		return 0
	case a.IsZero():
		return -1
	case b.IsZero():
		return 1
	}
	return a.Compare(b)
}

func sortByID(accounts []model.Account) {
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
}
