package ledger

// Store holds transactions and accounts in insertion order. It performs no
// validation or locking; Service is the only writer.
type Store struct {
	txns     []Transaction
	accounts []Account
}

// NewStore seeds a store with the provided records.
func NewStore(txns []Transaction, accounts []Account) *Store {
	s := &Store{
		txns:     make([]Transaction, len(txns)),
		accounts: make([]Account, len(accounts)),
	}
	copy(s.txns, txns)
	copy(s.accounts, accounts)
	return s
}

// Transactions returns a copy of every transaction in insertion order.
func (s *Store) Transactions() []Transaction {
	out := make([]Transaction, len(s.txns))
	copy(out, s.txns)
	return out
}

// Accounts returns a copy of every account in insertion order.
func (s *Store) Accounts() []Account {
	out := make([]Account, len(s.accounts))
	copy(out, s.accounts)
	return out
}

// Transaction looks up a transaction by id.
func (s *Store) Transaction(id string) (Transaction, bool) {
	if i := s.txnIndex(id); i >= 0 {
		return s.txns[i], true
	}
	return Transaction{}, false
}

// Account looks up an account by id.
func (s *Store) Account(id string) (Account, bool) {
	if i := s.accountIndex(id); i >= 0 {
		return s.accounts[i], true
	}
	return Account{}, false
}

// AccountByCode returns the first active account with the code, falling back
// to an inactive one.
func (s *Store) AccountByCode(code string) (Account, bool) {
	var fallback *Account
	for i := range s.accounts {
		if s.accounts[i].Code != code {
			continue
		}
		if s.accounts[i].Status == AccountActive {
			return s.accounts[i], true
		}
		if fallback == nil {
			fallback = &s.accounts[i]
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return Account{}, false
}

// ReferencedBy counts transactions using the account code.
func (s *Store) ReferencedBy(code string) int {
	n := 0
	for _, t := range s.txns {
		if t.AccountCode == code {
			n++
		}
	}
	return n
}

func (s *Store) appendTransaction(t Transaction) { s.txns = append(s.txns, t) }

func (s *Store) replaceTransaction(t Transaction) bool {
	i := s.txnIndex(t.ID)
	if i < 0 {
		return false
	}
	s.txns[i] = t
	return true
}

func (s *Store) deleteTransaction(id string) bool {
	i := s.txnIndex(id)
	if i < 0 {
		return false
	}
	s.txns = append(s.txns[:i], s.txns[i+1:]...)
	return true
}

func (s *Store) appendAccount(a Account) { s.accounts = append(s.accounts, a) }

func (s *Store) replaceAccount(a Account) bool {
	i := s.accountIndex(a.ID)
	if i < 0 {
		return false
	}
	s.accounts[i] = a
	return true
}

func (s *Store) deleteAccount(id string) bool {
	i := s.accountIndex(id)
	if i < 0 {
		return false
	}
	s.accounts = append(s.accounts[:i], s.accounts[i+1:]...)
	return true
}

func (s *Store) txnIndex(id string) int {
	for i := range s.txns {
		if s.txns[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) accountIndex(id string) int {
	for i := range s.accounts {
		if s.accounts[i].ID == id {
			return i
		}
	}
	return -1
}
