// Package entity defines the closed PII entity taxonomy and the Span type
// shared by the rule-based and statistical recognizers. All offsets are raw
// character offsets into the original document so downstream replacement is
// byte-for-byte exact.
package entity

import (
	"fmt"
	"sort"
)

// Type is a PII entity class. The enumeration is closed: external recognizer
// labels are mapped onto it at ingestion via MapLabel.
type Type string

// Supported entity types.
const (
	Person       Type = "PERSON"
	Location     Type = "LOCATION"
	Organization Type = "ORGANIZATION"
	Date         Type = "DATE"
	Email        Type = "EMAIL"
	Phone        Type = "PHONE"
	Address      Type = "ADDRESS"
	IDNumber     Type = "ID_NUMBER"
	CreditCard   Type = "CREDIT_CARD"
	IPAddress    Type = "IP_ADDRESS"
	Other        Type = "OTHER"
)

// Tag returns the literal mask placeholder for the type, e.g. "[PERSON]".
func (t Type) Tag() string { return "[" + string(t) + "]" }

// Span is a detected PII occurrence in a document.
// Invariant: 0 <= Start < End <= len(document) and Text == document[Start:End].
// Spans are immutable once the detector has merged them.
type Span struct {
	Type       Type    `json:"type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Validate checks the span invariant against the document it was cut from.
func (s Span) Validate(document string) error {
	if s.Start < 0 || s.Start >= s.End || s.End > len(document) {
		return fmt.Errorf("span [%d,%d) out of range for document of length %d", s.Start, s.End, len(document))
	}
	if document[s.Start:s.End] != s.Text {
		return fmt.Errorf("span text %q does not match document[%d:%d]", s.Text, s.Start, s.End)
	}
	return nil
}

// SpanSet is an ordered sequence of spans. After detection it is sorted by
// Start and pairwise non-overlapping; it is owned by a single detector
// invocation and never shared.
type SpanSet []Span

// Sorted reports whether the set is ordered by Start ascending.
func (ss SpanSet) Sorted() bool {
	return sort.SliceIsSorted(ss, func(i, j int) bool { return ss[i].Start < ss[j].Start })
}

// NonOverlapping reports whether no span starts before the previous one ends.
// Assumes the set is sorted by Start.
func (ss SpanSet) NonOverlapping() bool {
	for i := 1; i < len(ss); i++ {
		if ss[i].Start < ss[i-1].End {
			return false
		}
	}
	return true
}

// Types returns the distinct entity types present, in first-seen order.
func (ss SpanSet) Types() []Type {
	seen := make(map[Type]bool, len(ss))
	var out []Type
	for _, s := range ss {
		if !seen[s.Type] {
			seen[s.Type] = true
			out = append(out, s.Type)
		}
	}
	return out
}

// labelMap maps native recognizer labels (spaCy, Presidio and our own
// recognizer names) onto the closed Type enumeration.
var labelMap = map[string]Type{
	"PERSON":        Person,
	"PER":           Person,
	"GPE":           Location,
	"LOC":           Location,
	"LOCATION":      Location,
	"ORG":           Organization,
	"ORGANIZATION":  Organization,
	"DATE":          Date,
	"DATE_TIME":     Date,
	"EMAIL":         Email,
	"EMAIL_ADDRESS": Email,
	"PHONE":         Phone,
	"PHONE_NUMBER":  Phone,
	"ADDRESS":       Address,
	"ID_NUMBER":     IDNumber,
	"NRP":           IDNumber,
	"CREDIT_CARD":   CreditCard,
	"IP_ADDRESS":    IPAddress,
}

// MapLabel maps a native recognizer label onto the closed enumeration.
// Unknown labels return ok == false and are dropped by callers.
func MapLabel(label string) (Type, bool) {
	t, ok := labelMap[label]
	return t, ok
}

// MapLabelLoose is like MapLabel but buckets unknown labels as Other
// instead of dropping them.
func MapLabelLoose(label string) Type {
	if t, ok := labelMap[label]; ok {
		return t
	}
	return Other
}
