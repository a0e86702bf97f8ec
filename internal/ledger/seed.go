package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// DemoAccounts returns the starter chart of accounts.
func DemoAccounts() []Account {
	acc := func(code, name, category string, typ TxType, branch Branch, market Market) Account {
		return Account{Code: code, Name: name, Category: category, Type: typ, Branch: branch, Market: market, Status: AccountActive}
	}
	return []Account{
		acc("1.1US", "Thu tiền từ bill", "Thu", TypeRevenue, BranchHanoi, MarketUS),
		acc("1.1CA", "Thu tiền từ bill", "Thu", TypeRevenue, BranchHanoi, MarketCanada),
		acc("2.1US", "Phí FFM", "Chi phí vận hành", TypeExpense, BranchHanoi, MarketUS),
		acc("2.2UC", "Phí FFM", "Chi phí vận hành", TypeExpense, BranchHCM, MarketAustralia),
		acc("7.1", "Chi lương", "Chi phí nhân sự", TypeExpense, BranchHanoi, MarketNone),
		acc("8", "BHXH", "Chi phí bảo hiểm", TypeExpense, BranchCompany, MarketNone),
		acc("9.2", "Thuê VP + điện nước", "Chi phí cố định", TypeExpense, BranchHCM, MarketNone),
		acc("1.2US", "Thu tiền từ bill", "Thu", TypeRevenue, BranchHCM, MarketUS),
		acc("1.2UC", "Thu tiền từ bill", "Thu", TypeRevenue, BranchHCM, MarketAustralia),
		acc("3.1CA", "Chi thuê TK DKZ", "Phí thuê tài khoản", TypeExpense, BranchHanoi, MarketCanada),
		acc("6", "Chi Ads", "Chi phí ADS", TypeExpense, BranchOther, MarketNone),
		acc("7.2", "Chi lương", "Chi phí nhân sự", TypeExpense, BranchHCM, MarketNone),
	}
}

// DemoTransactions returns sample movements for November and December 2025.
func DemoTransactions() []Transaction {
	tx := func(date string, typ TxType, source string, branch Branch, market Market, code, desc string, amount int64, method, proof string) Transaction {
		return Transaction{
			Date: date, Type: typ, Source: source, Branch: branch, Market: market,
			AccountCode: code, Description: desc, Amount: decimal.NewFromInt(amount), Method: method, ProofURL: proof,
		}
	}
	return []Transaction{
		tx("2025-11-15", TypeRevenue, "Thu tiền từ bill", BranchHanoi, MarketUS, "1.1US", "Bill MGT T11", 450000000, "CK", ""),
		tx("2025-11-20", TypeExpense, "Chi FFM", BranchHanoi, MarketUS, "2.1US", "Chi FFM T11", 150000000, "CK", ""),
		tx("2025-11-25", TypeExpense, "Chi Ads", BranchOther, MarketNone, "6", "Chi Ads T11", 120000000, "CK", ""),
		tx("2025-12-01", TypeRevenue, "Thu tiền từ bill", BranchHanoi, MarketUS, "1.1US", "Bill MGT", 120000000, "CK về TK Công ty", "link_anh_1"),
		tx("2025-12-01", TypeRevenue, "Thu tiền từ bill", BranchHanoi, MarketCanada, "1.1CA", "Bill BEE", 85000000, "CK về TK CN 1", "link_anh_2"),
		tx("2025-12-01", TypeExpense, "Chi FFM từ DT bill", BranchHanoi, MarketUS, "2.1US", "Chi FFM MGT", 100000000, "Cấn trừ từ DT Bill", "link_anh_5"),
		tx("2025-12-01", TypeExpense, "Chi thuê TK từ DT bill", BranchHanoi, MarketCanada, "3.1CA", "Chi thuê TK DKZ", 80000000, "Cấn trừ từ DT Bill", "link_anh_6"),
		tx("2025-12-02", TypeRevenue, "Thu tiền từ bill", BranchHCM, MarketUS, "1.2US", "Bill MGT", 98000000, "CK về TK Công ty", "link_anh_3"),
		tx("2025-12-02", TypeExpense, "Chi Ads từ TK CTy", BranchOther, MarketNone, "6", "Chi Ads cho MG", 68000000, "CK từ TK Công ty", "link_anh_7"),
		tx("2025-12-03", TypeRevenue, "Thu tiền từ bill", BranchHCM, MarketAustralia, "1.2UC", "Bill BEE", 65000000, "CK về TK CN 2", "link_anh_4"),
		tx("2025-12-03", TypeExpense, "Chi lương từ TK CTy", BranchHCM, MarketNone, "7.2", "Chi lương", 65000000, "CK từ TK Công ty", "link_anh_8"),
		tx("2025-12-15", TypeRevenue, "Thu tiền từ bill", BranchHanoi, MarketUS, "1.1US", "Bill MGT đợt 2", 200000000, "CK", ""),
		tx("2025-12-20", TypeExpense, "Chi Lương", BranchHanoi, MarketNone, "7.1", "Lương HN T12", 90000000, "CK", ""),
	}
}

// SeedDemo loads the demo data when the ledger is empty. It goes through the
// regular mutators so persistence and notifications apply.
func (s *Service) SeedDemo(ctx context.Context) (bool, error) {
	snap := s.Snapshot()
	if len(snap.Transactions) > 0 || len(snap.Accounts) > 0 {
		return false, nil
	}
	for _, a := range DemoAccounts() {
		if _, err := s.AddAccount(ctx, a); err != nil {
			return false, fmt.Errorf("ledger: seed account %s: %w", a.Code, err)
		}
	}
	for _, t := range DemoTransactions() {
		if _, err := s.AddTransaction(ctx, t); err != nil {
			return false, fmt.Errorf("ledger: seed transaction %s: %w", t.Description, err)
		}
	}
	return true, nil
}
