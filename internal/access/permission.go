// Package access decides whether a session may open a screen or use a control.
package access

import (
	"sort"
	"strings"
)

// PermissionSet is the immutable set of permission codes granted to a session.
// The zero value grants nothing.
type PermissionSet struct {
	codes map[string]struct{}
}

// NewPermissionSet builds a set from raw codes. Codes are trimmed and empty
// entries are ignored; matching is exact and case-sensitive.
func NewPermissionSet(codes ...string) PermissionSet {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		set[code] = struct{}{}
	}
	return PermissionSet{codes: set}
}

// Has reports whether code was granted.
func (s PermissionSet) Has(code string) bool {
	if code == "" {
		return false
	}
	_, ok := s.codes[code]
	return ok
}

// Len returns the number of granted codes.
func (s PermissionSet) Len() int {
	return len(s.codes)
}

// Codes returns a sorted copy of the granted codes.
func (s PermissionSet) Codes() []string {
	out := make([]string, 0, len(s.codes))
	for code := range s.codes {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
