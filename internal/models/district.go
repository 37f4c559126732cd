package models

// District is a regional one-call notification center. Districts come from
// the static registry and are read-only inputs to the submission path.
type District struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	State    string `yaml:"state"`
	Country  string `yaml:"country"`
	Area     string `yaml:"area"`
	Phone    string `yaml:"phone"`
	AltPhone string `yaml:"alt_phone"`

	// Methods is the district's ordered fallback chain.
	Methods []string `yaml:"methods"`

	WebPortal      string `yaml:"web_portal"`
	Email          string `yaml:"email"`
	APIAvailable   bool   `yaml:"api_available"`
	EmailAvailable bool   `yaml:"email_available"`
	Notes          string `yaml:"notes"`
}

// HasMethod reports whether m appears in the district's channel list.
func (d *District) HasMethod(m Method) bool {
	for _, raw := range d.Methods {
		if parsed, err := ParseMethod(raw); err == nil && parsed == m {
			return true
		}
	}
	return false
}

// MethodList returns the district's channel list parsed into Methods.
// Entries that don't parse are kept as-is via the raw strings slice the
// orchestrator walks, so this is a best-effort view.
func (d *District) MethodList() []Method {
	out := make([]Method, 0, len(d.Methods))
	for _, raw := range d.Methods {
		if m, err := ParseMethod(raw); err == nil {
			out = append(out, m)
		}
	}
	return out
}
