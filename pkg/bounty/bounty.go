// Package bounty holds the domain types shared by the indexer store and the
// query facade.
package bounty

import (
	"strconv"
	"time"
)

// Bounty is the projected, read-optimized view of a ledger bounty record.
// It is derived from the ledger's event feed and must never be used as a
// source of truth for fund-transfer decisions.
type Bounty struct {
	// ID is the ledger-assigned bounty id in decimal string form. The
	// string key keeps the store interoperable with token/id namespaces.
	ID         string     `json:"id"`
	IssueURL   string     `json:"issue_url"`
	Funder     string     `json:"funder"`
	Amount     string     `json:"amount"`
	Resolved   bool       `json:"resolved"`
	Resolver   string     `json:"resolver,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// Key converts a ledger bounty id into the store key form.
func Key(id uint64) string {
	return strconv.FormatUint(id, 10)
}
