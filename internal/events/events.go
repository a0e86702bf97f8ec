// Package events fans ledger change notifications out to subscribers.
package events

import (
	"context"

	"github.com/odyssey-erp/cashbook/internal/ledger"
)

// Func adapts a function to ledger.Notifier.
type Func func(ctx context.Context, change ledger.Change)

// LedgerChanged calls f.
func (f Func) LedgerChanged(ctx context.Context, change ledger.Change) { f(ctx, change) }

// Multi delivers each change to every notifier in order.
type Multi []ledger.Notifier

// LedgerChanged implements ledger.Notifier.
func (m Multi) LedgerChanged(ctx context.Context, change ledger.Change) {
	for _, n := range m {
		if n != nil {
			n.LedgerChanged(ctx, change)
		}
	}
}

// Join builds a Multi, dropping nil entries. It returns nil when nothing is left.
func Join(notifiers ...ledger.Notifier) ledger.Notifier {
	var out Multi
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	}
	return out
}
