package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Field names used by the SARH directory in user records.
const (
	RemoteUsername     = "Usuario"
	RemoteFirstName    = "NombreCompleto"
	RemoteLastName     = "ApellidoCompleto"
	RemoteEmail        = "Email"
	RemoteDocument     = "NumeroDocumento"
	RemoteCampaign     = "NombreCampana"
	RemoteCenter       = "NombreCentro"
	RemotePosition     = "Cargo"
	RemoteSupervisor   = "JefeInmediato"
	RemoteContractDate = "FechaContrato"
	RemoteStatus       = "Estado"
	RemoteStatusLabel  = "NEstado"
)

// RemoteUser is one record returned by the SARH directory. It is kept as a
// map because the directory adds fields over time and a missing key must
// read as an empty value rather than fail decoding.
type RemoteUser map[string]any

// Text returns the field as a string. Missing keys and JSON null read as "".
func (r RemoteUser) Text(field string) string {
	v, ok := r[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(t)
	}
}

func (r RemoteUser) Username() string {
	return r.Text(RemoteUsername)
}

// Document returns the trimmed document number, the identifier that links a
// remote person to local accounts.
func (r RemoteUser) Document() string {
	return strings.TrimSpace(r.Text(RemoteDocument))
}

// Status returns the numeric status code. ok is false when the field is
// absent or not an integer.
func (r RemoteUser) Status() (int, bool) {
	s := strings.TrimSpace(r.Text(RemoteStatus))
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

func (r RemoteUser) StatusLabel() string {
	return strings.TrimSpace(r.Text(RemoteStatusLabel))
}
