package acl

import (
	"context"
	"slices"
	"sync"

	"github.com/backkem/cosem/pkg/datamodel"
)

// Checker performs access control checks against a list of entries.
type Checker struct {
	entries []Entry
	mu      sync.RWMutex
}

// NewChecker creates a checker with the given entries. Every entry is
// validated.
func NewChecker(entries ...Entry) (*Checker, error) {
	c := &Checker{}
	for _, e := range entries {
		if err := c.AddEntry(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetEntries replaces all entries. Entries are copied.
func (c *Checker) SetEntries(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = slices.Clone(entries)
}

// Entries returns a copy of all entries.
func (c *Checker) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.entries)
}

// AddEntry adds an entry. Returns error if the entry is invalid.
func (c *Checker) AddEntry(entry Entry) error {
	if err := ValidateEntry(&entry); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = append(c.entries, entry)
	return nil
}

// Check evaluates whether the association has the required privilege on
// the object. The first matching entry grants access.
func (c *Checker) Check(a datamodel.Association, path RequestPath, required Privilege) Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.entries {
		entry := &c.entries[i]

		if entry.AuthMode == AuthModeHLS && !a.Authenticated {
			continue
		}
		if !entry.Privilege.Grants(required) {
			continue
		}
		if len(entry.Clients) > 0 && !slices.Contains(entry.Clients, a.ClientSAP) {
			continue
		}
		if !targetMatches(entry, &path) {
			continue
		}
		return ResultAllowed
	}
	return ResultDenied
}

// CheckContext checks the association carried by ctx. Internal operations
// are always allowed.
func (c *Checker) CheckContext(ctx context.Context, path RequestPath, required Privilege) Result {
	a, ok := datamodel.AssociationFrom(ctx)
	if !ok {
		return ResultAllowed
	}
	return c.Check(a, path, required)
}

// targetMatches checks the request path against the entry's targets.
// Empty targets list = wildcard.
func targetMatches(entry *Entry, path *RequestPath) bool {
	if len(entry.Targets) == 0 {
		return true
	}
	for i := range entry.Targets {
		if entry.Targets[i].Matches(path.Class, path.LogicalName) {
			return true
		}
	}
	return false
}
