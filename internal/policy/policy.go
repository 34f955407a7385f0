// Package policy implements the allow-list that decides which applications
// may hold the foreground of the kiosk.
package policy

import (
	"strings"

	"github.com/eliteGoblin/focusd/kioskd/internal/domain"
)

// separator delimits sub-components of an application identifier.
const separator = "."

// AllowList is an immutable allow-list with sub-component prefix matching.
// The locked application is always a member.
type AllowList struct {
	locked    domain.AppID
	entries   []domain.AppID
	excursion []domain.AppID
}

// NewAllowList builds the allow-list. Duplicates and empty entries are dropped.
func NewAllowList(locked domain.AppID, entries ...domain.AppID) *AllowList {
	return NewAllowListWithExcursions(locked, entries, nil)
}

// NewAllowListWithExcursions also takes the apps that are only permitted
// while a sanctioned excursion is in progress.
func NewAllowListWithExcursions(locked domain.AppID, entries, excursion []domain.AppID) *AllowList {
	return &AllowList{
		locked:    locked,
		entries:   dedupe(append([]domain.AppID{locked}, entries...)),
		excursion: dedupe(excursion),
	}
}

// Locked returns the locked application.
func (a *AllowList) Locked() domain.AppID {
	return a.locked
}

// IsPermitted reports whether id equals an entry or is a sub-component of one.
func (a *AllowList) IsPermitted(id domain.AppID) bool {
	return matchesAny(id, a.entries)
}

// IsPermittedIn applies IsPermitted and, while Suspended, the excursion list.
func (a *AllowList) IsPermittedIn(id domain.AppID, state domain.LockState) bool {
	if a.IsPermitted(id) {
		return true
	}
	return state == domain.StateSuspended && matchesAny(id, a.excursion)
}

// Entries returns a copy of the allow-list, locked application first.
func (a *AllowList) Entries() []domain.AppID {
	out := make([]domain.AppID, len(a.entries))
	copy(out, a.entries)
	return out
}

// Excursions returns a copy of the excursion list.
func (a *AllowList) Excursions() []domain.AppID {
	out := make([]domain.AppID, len(a.excursion))
	copy(out, a.excursion)
	return out
}

// Matches reports whether id equals entry or starts with entry followed by a separator.
// "com.foo.bar" matches "com.foo"; "com.foobar" does not.
func Matches(id, entry domain.AppID) bool {
	if entry == "" {
		return false
	}
	if id == entry {
		return true
	}
	return strings.HasPrefix(string(id), string(entry)+separator)
}

func matchesAny(id domain.AppID, entries []domain.AppID) bool {
	for _, e := range entries {
		if Matches(id, e) {
			return true
		}
	}
	return false
}

func dedupe(ids []domain.AppID) []domain.AppID {
	seen := make(map[domain.AppID]bool, len(ids))
	out := make([]domain.AppID, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// Ensure AllowList implements domain.AllowPolicy.
var _ domain.AllowPolicy = (*AllowList)(nil)
