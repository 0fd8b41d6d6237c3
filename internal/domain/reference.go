package domain

// Reference is a manufacturer reference code in canonical form.
// Canonical is the raw code uppercased with all separators removed and is
// used as the cache key, so it must be stable across runs.
type Reference struct {
	Raw       string   `json:"raw"`
	Canonical string   `json:"canonical"`
	Parts     []string `json:"parts"`
}

// IsEmpty reports whether the reference normalized to nothing searchable.
func (r Reference) IsEmpty() bool {
	return r.Canonical == ""
}

// IsComposite reports whether the reference joins multiple manufacturer
// codes (e.g. "ABC123+DEF456"). Parts always holds the full canonical form
// first, followed by the individual segments for composite references.
func (r Reference) IsComposite() bool {
	return len(r.Parts) > 1
}

// Segments returns the individual codes of a composite reference,
// excluding the leading concatenated form. Empty for simple references.
func (r Reference) Segments() []string {
	if len(r.Parts) <= 1 {
		return nil
	}
	return r.Parts[1:]
}
