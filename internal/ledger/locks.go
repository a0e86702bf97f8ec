package ledger

import "sort"

// LockChecker answers lock membership queries.
type LockChecker interface {
	IsLocked(month Month, accountCode string, branch Branch) bool
}

// LockGuard owns the set of locked (month, account, branch) keys. It is not
// safe for concurrent use on its own; Service serialises access.
type LockGuard struct {
	keys map[LockKey]struct{}
}

// NewLockGuard builds a guard seeded with the given keys.
func NewLockGuard(keys ...LockKey) *LockGuard {
	g := &LockGuard{keys: make(map[LockKey]struct{}, len(keys))}
	for _, k := range keys {
		g.keys[k] = struct{}{}
	}
	return g
}

// IsLocked reports whether the triple is closed.
func (g *LockGuard) IsLocked(month Month, accountCode string, branch Branch) bool {
	_, ok := g.keys[LockKey{Month: month, AccountCode: accountCode, Branch: branch}]
	return ok
}

// Lock closes the triple. Locking twice is a no-op.
func (g *LockGuard) Lock(key LockKey) {
	g.keys[key] = struct{}{}
}

// Unlock reopens the triple. Unlocking an open triple is a no-op.
func (g *LockGuard) Unlock(key LockKey) {
	delete(g.keys, key)
}

// Guard returns a *LockedError when the transaction's key is locked.
func (g *LockGuard) Guard(t Transaction) error {
	key := t.LockKey()
	if _, ok := g.keys[key]; ok {
		return &LockedError{Key: key}
	}
	return nil
}

// Keys lists the locked keys ordered by month, account code, then branch.
func (g *LockGuard) Keys() []LockKey {
	out := make([]LockKey, 0, len(g.keys))
	for k := range g.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		if out[i].AccountCode != out[j].AccountCode {
			return out[i].AccountCode < out[j].AccountCode
		}
		return out[i].Branch < out[j].Branch
	})
	return out
}
