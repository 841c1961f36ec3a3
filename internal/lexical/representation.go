package lexical

import "strings"

// Representation is the derived lexical index of one text field: its analyzed
// terms in document order. Term positions are the slice indexes, which is what
// phrase matching relies on.
type Representation struct {
	Terms []string
}

// ParseRepresentation rebuilds a representation from its stored String form.
func ParseRepresentation(s string) Representation {
	return Representation{Terms: strings.Fields(s)}
}

// String is the stored form: terms joined by single spaces.
func (r Representation) String() string {
	return strings.Join(r.Terms, " ")
}

// Empty reports whether the field produced no terms.
func (r Representation) Empty() bool {
	return len(r.Terms) == 0
}
