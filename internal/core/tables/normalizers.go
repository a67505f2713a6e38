package tables

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/csvtable/internal/core"
)

// UsStateType reads a US state as its 2-letter code, accepting full names
// in any case.
var UsStateType = core.Type{
	Name:   "us_state",
	Parse:  parseUsState,
	Format: formatUsState,
}

func init() {
	core.RegisterType(UsStateType)
}

// UsStates maps US state full names to their abbreviations.
var UsStates = map[string]string{
	"alabama":        "AL",
	"alaska":         "AK",
	"arizona":        "AZ",
	"arkansas":       "AR",
	"california":     "CA",
	"colorado":       "CO",
	"connecticut":    "CT",
	"delaware":       "DE",
	"florida":        "FL",
	"georgia":        "GA",
	"hawaii":         "HI",
	"idaho":          "ID",
	"illinois":       "IL",
	"indiana":        "IN",
	"iowa":           "IA",
	"kansas":         "KS",
	"kentucky":       "KY",
	"louisiana":      "LA",
	"maine":          "ME",
	"maryland":       "MD",
	"massachusetts":  "MA",
	"michigan":       "MI",
	"minnesota":      "MN",
	"mississippi":    "MS",
	"missouri":       "MO",
	"montana":        "MT",
	"nebraska":       "NE",
	"nevada":         "NV",
	"new hampshire":  "NH",
	"new jersey":     "NJ",
	"new mexico":     "NM",
	"new york":       "NY",
	"north carolina": "NC",
	"north dakota":   "ND",
	"ohio":           "OH",
	"oklahoma":       "OK",
	"oregon":         "OR",
	"pennsylvania":   "PA",
	"rhode island":   "RI",
	"south carolina": "SC",
	"south dakota":   "SD",
	"tennessee":      "TN",
	"texas":          "TX",
	"utah":           "UT",
	"vermont":        "VT",
	"virginia":       "VA",
	"washington":     "WA",
	"west virginia":  "WV",
	"wisconsin":      "WI",
	"wyoming":        "WY",
}

// NormalizeUsState converts a US state name to its 2-letter code. Codes are
// returned upper-cased; unrecognized input is returned trimmed.
func NormalizeUsState(s string) string {
	s = strings.TrimSpace(s)
	if code, ok := UsStates[strings.ToLower(s)]; ok {
		return code
	}
	if upper := strings.ToUpper(s); usCodes[upper] {
		return upper
	}
	return s
}

var usCodes = func() map[string]bool {
	m := make(map[string]bool, len(UsStates))
	for _, code := range UsStates {
		m[code] = true
	}
	return m
}()

func parseUsState(s string) (any, error) {
	code := NormalizeUsState(s)
	if !usCodes[code] {
		return nil, fmt.Errorf("unknown US state %q", s)
	}
	return code, nil
}

func formatUsState(v any) (string, error) {
	code, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("cannot format %T as a US state", v)
	}
	return code, nil
}
