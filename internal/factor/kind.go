package factor

import (
	"fmt"
	"sort"
	"strings"
)

// Kind identifies a category of authentication proof beyond the password.
type Kind string

const (
	// Biometric is a face match performed by the external matching service.
	Biometric Kind = "BIOMETRIC"
	// RotatingCode is a time-based one-time code from an enrolled generator.
	RotatingCode Kind = "ROTATING_CODE"
)

// Kinds lists every factor kind the engine understands.
func Kinds() []Kind {
	return []Kind{Biometric, RotatingCode}
}

// ParseKind normalizes raw client input into a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToUpper(strings.TrimSpace(s))) {
	case Biometric:
		return Biometric, nil
	case RotatingCode:
		return RotatingCode, nil
	default:
		return "", fmt.Errorf("factor: unknown kind %q", s)
	}
}

// Set is an unordered collection of factor kinds.
type Set map[Kind]struct{}

// NewSet builds a Set from the given kinds.
func NewSet(kinds ...Kind) Set {
	s := make(Set, len(kinds))
	for _, k := range kinds {
		s[k] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s Set) Has(k Kind) bool {
	_, ok := s[k]
	return ok
}

// Add inserts k. Adding an existing kind is a no-op.
func (s Set) Add(k Kind) {
	s[k] = struct{}{}
}

// ContainsAll reports whether every kind in other is present in s.
func (s Set) ContainsAll(other Set) bool {
	for k := range other {
		if !s.Has(k) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Kinds returns the members in stable order.
func (s Set) Kinds() []Kind {
	out := make([]Kind, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the members as sorted strings, for claims and JSON payloads.
func (s Set) Strings() []string {
	kinds := s.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// String renders the set in "A+B" form, used for audit method fields.
func (s Set) String() string {
	if len(s) == 0 {
		return ""
	}
	return strings.Join(s.Strings(), "+")
}
