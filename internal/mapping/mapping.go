// Package mapping turns SARH directory records into local account fields.
//
// The mapping table has two inputs: the declared schema (the fixed list of
// standard fields and required profile fields) and the profile fields the
// host actually defines. BuildTable intersects them once; Map is then a pure
// function over a record and never fails. Missing or null remote values map
// to "", and malformed dates degrade to "".
package mapping

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"github.com/ingeweb/contactws/internal/model"
)

// ProfilePrefix marks custom profile fields in the flat representation.
const ProfilePrefix = "profile_field_"

// Case is the case transform applied to a standard field.
type Case int

const (
	CaseKeep Case = iota
	CaseLower
	CaseUpper
)

// StandardField maps a host user column to a remote field.
type StandardField struct {
	Local  string
	Remote string
	Case   Case
}

// StandardFields is the identity part of the schema.
var StandardFields = []StandardField{
	{Local: "username", Remote: model.RemoteUsername, Case: CaseLower},
	{Local: "firstname", Remote: model.RemoteFirstName, Case: CaseUpper},
	{Local: "lastname", Remote: model.RemoteLastName, Case: CaseUpper},
	{Local: "email", Remote: model.RemoteEmail, Case: CaseLower},
	{Local: "idnumber", Remote: model.RemoteDocument, Case: CaseKeep},
}

// CustomField declares a profile field the plugin wants to populate.
type CustomField struct {
	Shortname string
	Remote    string
}

// RequiredProfileFields are populated when the host defines them.
var RequiredProfileFields = []CustomField{
	{Shortname: "nombrecampana", Remote: model.RemoteCampaign},
	{Shortname: "nombrecentro", Remote: model.RemoteCenter},
	{Shortname: "cargo", Remote: model.RemotePosition},
	{Shortname: "jefeinmediato", Remote: model.RemoteSupervisor},
	{Shortname: "fechacontrato", Remote: model.RemoteContractDate},
}

// Entry is one resolved custom field of a Table.
type Entry struct {
	Shortname string
	Remote    string
	Kind      Kind
	Options   []string // menu options, KindMenu only
}

// Table is an immutable mapping table. It is safe for concurrent use.
type Table struct {
	custom []Entry
}

// BuildTable keeps the declared custom fields that exist among available,
// matching shortnames case-insensitively. The shortnames of declared fields
// the host lacks are returned in skipped, in declaration order.
func BuildTable(declared []CustomField, available []model.ProfileField) (*Table, []string) {
	byName := make(map[string]model.ProfileField, len(available))
	for _, f := range available {
		byName[strings.ToLower(f.Shortname)] = f
	}

	t := &Table{}
	var skipped []string
	for _, d := range declared {
		f, ok := byName[strings.ToLower(d.Shortname)]
		if !ok {
			skipped = append(skipped, d.Shortname)
			continue
		}
		e := Entry{Shortname: f.Shortname, Remote: d.Remote, Kind: KindFor(f.Datatype)}
		if e.Kind == KindMenu {
			e.Options = parseOptions(f.Param1)
		}
		t.custom = append(t.custom, e)
	}
	return t, skipped
}

// Entries returns a copy of the custom field entries.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.custom...)
}

// Standard holds the identity fields stored on the host user row.
type Standard struct {
	Username  string `json:"username"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Email     string `json:"email"`
	IDNumber  string `json:"idnumber"`
}

// Get returns the value of a standard field by its host column name.
func (s Standard) Get(local string) string {
	switch local {
	case "username":
		return s.Username
	case "firstname":
		return s.FirstName
	case "lastname":
		return s.LastName
	case "email":
		return s.Email
	case "idnumber":
		return s.IDNumber
	}
	return ""
}

func (s *Standard) set(local, v string) {
	switch local {
	case "username":
		s.Username = v
	case "firstname":
		s.FirstName = v
	case "lastname":
		s.LastName = v
	case "email":
		s.Email = v
	case "idnumber":
		s.IDNumber = v
	}
}

// Mapped is the result of mapping one record. Standard fields and custom
// profile fields are kept apart because the host stores them separately.
type Mapped struct {
	Standard Standard          `json:"standard"`
	Custom   map[string]string `json:"custom"` // keyed by profile field shortname
}

// Flatten renders m in the host's flat shape: standard columns by name and
// custom fields under ProfilePrefix.
func (m Mapped) Flatten() map[string]string {
	out := make(map[string]string, len(StandardFields)+len(m.Custom))
	for _, f := range StandardFields {
		out[f.Local] = m.Standard.Get(f.Local)
	}
	for k, v := range m.Custom {
		out[ProfilePrefix+k] = v
	}
	return out
}

// Map applies the table to rec.
func (t *Table) Map(rec model.RemoteUser) Mapped {
	// Casers keep state and are not safe for concurrent use.
	lower := cases.Lower(language.Und)
	upper := cases.Upper(language.Und)
	fold := cases.Fold()

	var m Mapped
	for _, f := range StandardFields {
		v := strings.TrimSpace(norm.NFC.String(rec.Text(f.Remote)))
		switch f.Case {
		case CaseLower:
			v = lower.String(v)
		case CaseUpper:
			v = upper.String(v)
		}
		m.Standard.set(f.Local, v)
	}

	m.Custom = make(map[string]string, len(t.custom))
	for _, e := range t.custom {
		raw := rec.Text(e.Remote)
		var v string
		switch e.Kind {
		case KindDate:
			v = normaliseDate(raw)
		case KindText:
			v = sanitise(raw, false)
		case KindTextArea:
			v = sanitise(raw, true)
		case KindMenu:
			if len(e.Options) == 0 {
				v = sanitise(raw, false)
			} else {
				v = matchOption(sanitise(raw, false), e.Options, fold)
			}
		default:
			v = strings.TrimSpace(raw)
		}
		m.Custom[e.Shortname] = v
	}
	return m
}
