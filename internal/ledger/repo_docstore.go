package ledger

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/odyssey-erp/cashbook/internal/docstore"
)

// ErrOrphanedDocuments reports documents left behind by a failed batch insert.
var ErrOrphanedDocuments = errors.New("ledger: orphaned documents after failed insert")

const (
	docTransactions = "cashbook/transactions"
	docAccounts     = "cashbook/accounts"
	docLocks        = "cashbook/locks"
)

// DocumentRepository persists the ledger in the remote document store. Each
// entity is a JSON object under a generated key, which becomes its id.
type DocumentRepository struct {
	client *docstore.Client
}

// NewDocumentRepository constructs a repository over client.
func NewDocumentRepository(client *docstore.Client) *DocumentRepository {
	return &DocumentRepository{client: client}
}

// Load reads the three collections. Document keys are sorted so that
// push-generated keys replay in creation order.
func (r *DocumentRepository) Load(ctx context.Context) (Snapshot, error) {
	var snap Snapshot

	var txns map[string]Transaction
	if err := r.client.Get(ctx, docTransactions, nil, &txns); err != nil {
		return Snapshot{}, err
	}
	for _, key := range sortedKeys(txns) {
		t := txns[key]
		t.ID = key
		snap.Transactions = append(snap.Transactions, t)
	}

	var accounts map[string]Account
	if err := r.client.Get(ctx, docAccounts, nil, &accounts); err != nil {
		return Snapshot{}, err
	}
	for _, key := range sortedKeys(accounts) {
		a := accounts[key]
		a.ID = key
		snap.Accounts = append(snap.Accounts, a)
	}

	var locks map[string]LockKey
	if err := r.client.Get(ctx, docLocks, nil, &locks); err != nil {
		return Snapshot{}, err
	}
	for _, key := range sortedKeys(locks) {
		snap.Locks = append(snap.Locks, locks[key])
	}
	return snap, nil
}

// InsertTransactions posts each transaction and returns the generated keys.
// A failure part-way deletes the documents already posted by this call.
func (r *DocumentRepository) InsertTransactions(ctx context.Context, txns []Transaction) ([]string, error) {
	ids := make([]string, 0, len(txns))
	for _, t := range txns {
		t.ID = ""
		key, err := r.client.Post(ctx, docTransactions, t)
		if err != nil {
			err = fmt.Errorf("insert transaction %d of %d: %w", len(ids)+1, len(txns), err)
			return nil, r.rollback(ctx, docTransactions, ids, err)
		}
		ids = append(ids, key)
	}
	return ids, nil
}

// UpdateTransaction replaces the document.
func (r *DocumentRepository) UpdateTransaction(ctx context.Context, t Transaction) error {
	id := t.ID
	t.ID = ""
	return r.client.Put(ctx, docTransactions+"/"+id, t)
}

// DeleteTransaction removes the document.
func (r *DocumentRepository) DeleteTransaction(ctx context.Context, id string) error {
	return r.client.Delete(ctx, docTransactions+"/"+id)
}

// InsertAccounts posts each account and returns the generated keys. A failure
// part-way deletes the documents already posted by this call.
func (r *DocumentRepository) InsertAccounts(ctx context.Context, accounts []Account) ([]string, error) {
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		a.ID = ""
		key, err := r.client.Post(ctx, docAccounts, a)
		if err != nil {
			err = fmt.Errorf("insert account %d of %d: %w", len(ids)+1, len(accounts), err)
			return nil, r.rollback(ctx, docAccounts, ids, err)
		}
		ids = append(ids, key)
	}
	return ids, nil
}

// UpdateAccount replaces the document.
func (r *DocumentRepository) UpdateAccount(ctx context.Context, a Account) error {
	id := a.ID
	a.ID = ""
	return r.client.Put(ctx, docAccounts+"/"+id, a)
}

// DeleteAccount removes the document.
func (r *DocumentRepository) DeleteAccount(ctx context.Context, id string) error {
	return r.client.Delete(ctx, docAccounts+"/"+id)
}

// SaveLock writes the lock under a key derived from the triple.
func (r *DocumentRepository) SaveLock(ctx context.Context, key LockKey) error {
	return r.client.Put(ctx, docLocks+"/"+lockDocKey(key), key)
}

// DeleteLock removes the lock document.
func (r *DocumentRepository) DeleteLock(ctx context.Context, key LockKey) error {
	return r.client.Delete(ctx, docLocks+"/"+lockDocKey(key))
}

// rollback deletes the documents posted before cause. Keys that cannot be
// deleted are reported alongside cause so the caller can log them.
func (r *DocumentRepository) rollback(ctx context.Context, collection string, keys []string, cause error) error {
	ctx = context.WithoutCancel(ctx)
	var failed []string
	for _, key := range keys {
		if err := r.client.Delete(ctx, collection+"/"+key); err != nil {
			failed = append(failed, key)
		}
	}
	if len(failed) > 0 {
		return errors.Join(cause, fmt.Errorf("%w: %s/%v", ErrOrphanedDocuments, collection, failed))
	}
	return cause
}

// lockDocKey encodes the triple as a path-safe key. Account codes contain
// dots, which document keys do not allow.
func lockDocKey(key LockKey) string {
	raw, _ := json.Marshal([3]string{string(key.Month), key.AccountCode, string(key.Branch)})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
