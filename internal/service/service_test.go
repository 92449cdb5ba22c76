package service

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rommsen/budgetbuddy/internal/banking"
	"github.com/rommsen/budgetbuddy/internal/database"
	"github.com/rommsen/budgetbuddy/internal/database/repository"
	"github.com/rommsen/budgetbuddy/internal/ynab"
)

type mockBank struct{ mock.Mock }

func (m *mockBank) StartAuth(ctx context.Context, sessionID string) (banking.ChallengeRef, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(banking.ChallengeRef), args.Error(1)
}

func (m *mockBank) ConfirmTan(ctx context.Context, sessionID string) error {
	return m.Called(ctx, sessionID).Error(0)
}

func (m *mockBank) FetchTransactions(ctx context.Context, sessionID string) ([]banking.Transaction, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).([]banking.Transaction), args.Error(1)
}

type mockBudget struct{ mock.Mock }

func (m *mockBudget) ListCategories(ctx context.Context, budgetID string) ([]ynab.Category, error) {
	args := m.Called(ctx, budgetID)
	return args.Get(0).([]ynab.Category), args.Error(1)
}

func (m *mockBudget) ImportTransactions(ctx context.Context, req ynab.ImportRequest) (ynab.ImportResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ynab.ImportResult), args.Error(1)
}

func (m *mockBudget) ForceImport(ctx context.Context, req ynab.ImportRequest) (ynab.ImportResult, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(ynab.ImportResult), args.Error(1)
}

func newTestService(t *testing.T) (*SyncService, *mockBank, *mockBudget) {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.RunEmbeddedMigrations(db))

	log := logrus.New()
	log.SetOutput(io.Discard)

	bank := &mockBank{}
	budget := &mockBudget{}
	svc := &SyncService{
		Sessions:     repository.NewSessionRepo(db),
		Transactions: repository.NewTransactionRepo(db),
		Rules:        repository.NewRuleRepo(db),
		History:      repository.NewHistoryRepo(db),
		Bank:         bank,
		Budget:       budget,
		BudgetID:     "budget-1",
		AccountID:    "account-1",
		Log:          log,
	}
	return svc, bank, budget
}

// loadCategories primes the in-process category name cache.
func loadCategories(t *testing.T, svc *SyncService, budget *mockBudget, cats []ynab.Category) {
	t.Helper()
	budget.On("ListCategories", mock.Anything, "budget-1").Return(cats, nil).Once()
	_, err := svc.Categories(context.Background())
	require.NoError(t, err)
}

func seedSession(t *testing.T, svc *SyncService, status repository.SessionStatus) repository.Session {
	t.Helper()
	sess := repository.Session{ID: uuid.NewString(), Status: status}
	require.NoError(t, svc.Sessions.Create(context.Background(), sess))
	return sess
}

func seedTx(t *testing.T, svc *SyncService, tx repository.Transaction) repository.Transaction {
	t.Helper()
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.Status == "" {
		tx.Status = repository.TxPending
	}
	if tx.DuplicateStatus == "" {
		tx.DuplicateStatus = repository.NotDuplicate
	}
	if tx.Currency == "" {
		tx.Currency = "EUR"
	}
	if tx.BookingDate.IsZero() {
		tx.BookingDate = time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	}
	require.NoError(t, svc.Transactions.BulkInsert(context.Background(), []repository.Transaction{tx}))
	return tx
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestStartSyncAwaitsTan(t *testing.T) {
	svc, bank, _ := newTestService(t)
	ctx := context.Background()

	bank.On("StartAuth", mock.Anything, mock.AnythingOfType("string")).
		Return(banking.ChallengeRef{ID: "ch-1", Type: "P_TAN_PUSH"}, nil).Once()

	sess, err := svc.StartSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionAwaitingTan, sess.Status)
	require.NotNil(t, sess.ChallengeRef)
	assert.Equal(t, "ch-1", *sess.ChallengeRef)
	bank.AssertExpectations(t)
}

func TestStartSyncBankFailureFailsSession(t *testing.T) {
	svc, bank, _ := newTestService(t)
	ctx := context.Background()

	bank.On("StartAuth", mock.Anything, mock.AnythingOfType("string")).
		Return(banking.ChallengeRef{}, banking.ErrAuthFailed).Once()

	_, err := svc.StartSync(ctx)
	require.ErrorIs(t, err, banking.ErrAuthFailed)

	// A failed session is terminal, so nothing active remains.
	active, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestConfirmTanWrongState(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess := seedSession(t, svc, repository.SessionReviewing)

	err := svc.ConfirmTan(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestConfirmTanNotApprovedFailsSession(t *testing.T) {
	svc, bank, _ := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, svc, repository.SessionAwaitingTan)

	bank.On("ConfirmTan", mock.Anything, sess.ID).Return(banking.ErrTanNotApproved).Once()

	err := svc.ConfirmTan(ctx, sess.ID)
	require.ErrorIs(t, err, banking.ErrTanNotApproved)

	got, err := svc.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionFailed, got.Status)
	require.NotNil(t, got.FailureReason)
	assert.Contains(t, *got.FailureReason, "TAN")
}

func TestConfirmTanFetchesAppliesRulesAndClassifies(t *testing.T) {
	svc, bank, budget := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, svc, repository.SessionAwaitingTan)

	loadCategories(t, svc, budget, []ynab.Category{{ID: "cat-groceries", Name: "Groceries"}})

	override := "REWE"
	require.NoError(t, svc.Rules.Add(ctx, repository.Rule{
		ID: "r1", Name: "rewe", Pattern: "rewe", PatternType: "contains",
		TargetField: "payee", CategoryID: "cat-groceries", PayeeOverride: &override,
	}))

	booked := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	exact := banking.Transaction{ID: "bank-dup", Payee: "Stadtwerke", BookingDate: booked, Amount: amt("-80.00"), Currency: "EUR"}
	require.NoError(t, svc.History.Record(ctx, repository.ImportedRecord{
		ID:         "h1",
		SourceHash: sourceHash(exact.ID, exact.BookingDate, exact.Amount.String(), exact.Currency),
		Payee:      exact.Payee, BookingDate: booked, Amount: exact.Amount, Currency: "EUR", YnabID: "y-99",
	}))
	require.NoError(t, svc.History.Record(ctx, repository.ImportedRecord{
		ID: "h2", SourceHash: "other-hash", Payee: "REWE MARKT GMBH",
		BookingDate: booked.AddDate(0, 0, -3), Amount: amt("-12.30"), Currency: "EUR", YnabID: "y-100",
	}))

	bank.On("ConfirmTan", mock.Anything, sess.ID).Return(nil).Once()
	bank.On("FetchTransactions", mock.Anything, sess.ID).Return([]banking.Transaction{
		{ID: "bank-1", Payee: "REWE Markt GmbH Koeln", Memo: "Lastschrift", BookingDate: booked, Amount: amt("-42.17"), Currency: "EUR"},
		exact,
		{ID: "bank-3", Payee: "REWE MARKT GMBH KOELN", BookingDate: booked, Amount: amt("-12.30"), Currency: "EUR"},
		{ID: "bank-4", Payee: "Unknown Shop", BookingDate: booked, Amount: amt("-5.00"), Currency: "EUR"},
	}, nil).Once()

	require.NoError(t, svc.ConfirmTan(ctx, sess.ID))

	got, err := svc.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionReviewing, got.Status)
	assert.Equal(t, 4, got.TransactionCount)

	txs, err := svc.SessionTransactions(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, txs, 4)
	byBank := map[string]repository.Transaction{}
	for _, tx := range txs {
		byBank[tx.BankID] = tx
	}

	ruled := byBank["bank-1"]
	assert.Equal(t, repository.TxAutoCategorized, ruled.Status)
	require.NotNil(t, ruled.CategoryID)
	assert.Equal(t, "cat-groceries", *ruled.CategoryID)
	require.NotNil(t, ruled.CategoryName)
	assert.Equal(t, "Groceries", *ruled.CategoryName)
	assert.Equal(t, "REWE", ruled.Payee, "rule payee override applied")

	confirmed := byBank["bank-dup"]
	assert.Equal(t, repository.ConfirmedDuplicate, confirmed.DuplicateStatus)
	require.NotNil(t, confirmed.DuplicateDetail)
	assert.Equal(t, "y-99", *confirmed.DuplicateDetail)

	possible := byBank["bank-3"]
	assert.Equal(t, repository.PossibleDuplicate, possible.DuplicateStatus)
	require.NotNil(t, possible.DuplicateDetail)
	assert.Contains(t, *possible.DuplicateDetail, "REWE MARKT GMBH")

	clean := byBank["bank-4"]
	assert.Equal(t, repository.NotDuplicate, clean.DuplicateStatus)
	assert.Equal(t, repository.TxPending, clean.Status)
	bank.AssertExpectations(t)
}

func TestCategorizeSkipDominance(t *testing.T) {
	svc, _, budget := newTestService(t)
	ctx := context.Background()
	loadCategories(t, svc, budget, []ynab.Category{{ID: "cat-1", Name: "Groceries"}})

	sess := seedSession(t, svc, repository.SessionReviewing)
	tx := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Payee: "REWE", Amount: amt("-12.30")})

	catID := "cat-1"
	got, err := svc.Categorize(ctx, tx.ID, &catID)
	require.NoError(t, err)
	assert.Equal(t, repository.TxManualCategorized, got.Status)
	require.NotNil(t, got.CategoryName)
	assert.Equal(t, "Groceries", *got.CategoryName)

	got, err = svc.Skip(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TxSkipped, got.Status)

	// Skip is sticky: categorizing while skipped keeps the skip.
	got, err = svc.Categorize(ctx, tx.ID, &catID)
	require.NoError(t, err)
	assert.Equal(t, repository.TxSkipped, got.Status)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, "cat-1", *got.CategoryID)

	got, err = svc.Unskip(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TxManualCategorized, got.Status, "unskip derives from the kept category")
}

func TestCategorizeUnknownCategoryNeedsAttention(t *testing.T) {
	svc, _, budget := newTestService(t)
	ctx := context.Background()
	loadCategories(t, svc, budget, []ynab.Category{{ID: "cat-1", Name: "Groceries"}})

	sess := seedSession(t, svc, repository.SessionReviewing)
	tx := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Amount: amt("-5.00")})

	unknown := "cat-gone"
	got, err := svc.Categorize(ctx, tx.ID, &unknown)
	require.NoError(t, err)
	assert.Equal(t, repository.TxNeedsAttention, got.Status)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, "cat-gone", *got.CategoryID)
	assert.Nil(t, got.CategoryName)
}

func TestCategorizeClearsSplits(t *testing.T) {
	svc, _, budget := newTestService(t)
	ctx := context.Background()
	loadCategories(t, svc, budget, []ynab.Category{{ID: "cat-1", Name: "Groceries"}, {ID: "cat-2", Name: "Household"}})

	sess := seedSession(t, svc, repository.SessionReviewing)
	tx := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Amount: amt("-100.00")})

	_, err := svc.Split(ctx, tx.ID, []repository.Split{
		{CategoryID: "cat-1", Amount: amt("-60.00")},
		{CategoryID: "cat-2", Amount: amt("-40.00")},
	})
	require.NoError(t, err)

	catID := "cat-1"
	got, err := svc.Categorize(ctx, tx.ID, &catID)
	require.NoError(t, err)
	assert.Empty(t, got.Splits, "single category and splits are mutually exclusive")
	require.NotNil(t, got.CategoryID)
}

func TestSplitRequiresTwoAllocations(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, svc, repository.SessionReviewing)
	tx := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Amount: amt("-100.00")})

	_, err := svc.Split(ctx, tx.ID, []repository.Split{{CategoryID: "cat-1", Amount: amt("-100.00")}})
	require.ErrorIs(t, err, ErrSplitTooSmall)

	got, err := svc.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Splits)
	assert.Equal(t, repository.TxPending, got.Status)
}

func TestSplitRequiresCategories(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, svc, repository.SessionReviewing)
	tx := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Amount: amt("-100.00")})

	_, err := svc.Split(ctx, tx.ID, []repository.Split{
		{CategoryID: "cat-1", Amount: amt("-60.00")},
		{Amount: amt("-40.00")},
	})
	require.ErrorIs(t, err, ErrSplitUncategorized)

	got, err := svc.Transactions.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Splits)
	assert.Equal(t, repository.TxPending, got.Status)
}

func TestSplitFillsCategoryNames(t *testing.T) {
	svc, _, budget := newTestService(t)
	ctx := context.Background()
	loadCategories(t, svc, budget, []ynab.Category{{ID: "cat-1", Name: "Groceries"}, {ID: "cat-2", Name: "Household"}})

	sess := seedSession(t, svc, repository.SessionReviewing)
	tx := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Amount: amt("-100.00")})

	got, err := svc.Split(ctx, tx.ID, []repository.Split{
		{CategoryID: "cat-1", Amount: amt("-60.00")},
		{CategoryID: "cat-2", Amount: amt("-40.00")},
	})
	require.NoError(t, err)
	assert.Equal(t, repository.TxManualCategorized, got.Status)
	assert.Nil(t, got.CategoryID, "splits drive the import now")
	require.Len(t, got.Splits, 2)
	assert.Equal(t, "Groceries", got.Splits[0].CategoryName)
	assert.Equal(t, "Household", got.Splits[1].CategoryName)
}

func TestBulkCategorizePreservesSkip(t *testing.T) {
	svc, _, budget := newTestService(t)
	ctx := context.Background()
	loadCategories(t, svc, budget, []ynab.Category{{ID: "cat-1", Name: "Groceries"}})

	sess := seedSession(t, svc, repository.SessionReviewing)
	a := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Amount: amt("-5.00")})
	b := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-2", Amount: amt("-6.00"), Status: repository.TxSkipped})

	got, err := svc.BulkCategorize(ctx, []string{a.ID, b.ID}, "cat-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, repository.TxAutoCategorized, got[0].Status)
	assert.Equal(t, repository.TxSkipped, got[1].Status)
	require.NotNil(t, got[1].CategoryID)
	assert.Equal(t, "cat-1", *got[1].CategoryID)
}

func TestImportPartialSuccess(t *testing.T) {
	svc, _, budget := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, svc, repository.SessionReviewing)

	cat := "cat-1"
	name := "Groceries"
	ready := seedTx(t, svc, repository.Transaction{
		SessionID: sess.ID, BankID: "bank-1", Amount: amt("-12.30"),
		Status: repository.TxManualCategorized, CategoryID: &cat, CategoryName: &name,
	})
	split := seedTx(t, svc, repository.Transaction{
		SessionID: sess.ID, BankID: "bank-2", Amount: amt("-100.00"), Status: repository.TxManualCategorized,
	})
	require.NoError(t, svc.Transactions.ReplaceSplits(ctx, split.ID, repository.TxManualCategorized, []repository.Split{
		{CategoryID: "cat-1", Amount: amt("-60.00")},
		{CategoryID: "cat-2", Amount: amt("-40.00")},
	}))
	skipped := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-3", Amount: amt("-5.00"), Status: repository.TxSkipped})
	pending := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-4", Amount: amt("-6.00")})
	attention := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-5", Amount: amt("-7.00"), Status: repository.TxNeedsAttention})

	budget.On("ImportTransactions", mock.Anything, mock.MatchedBy(func(req ynab.ImportRequest) bool {
		if req.BudgetID != "budget-1" || req.AccountID != "account-1" || len(req.Items) != 2 {
			return false
		}
		ids := map[string]bool{req.Items[0].TransactionID: true, req.Items[1].TransactionID: true}
		return ids[ready.ID] && ids[split.ID]
	})).Return(ynab.ImportResult{
		CreatedCount:            1,
		CreatedIDs:              map[string]string{ready.ID: "y-1"},
		DuplicateTransactionIDs: []string{split.ID},
	}, nil).Once()

	result, err := svc.Import(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CreatedCount)
	assert.Equal(t, []string{split.ID}, result.DuplicateTransactionIDs)

	got, err := svc.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.SessionCompleted, got.Status)
	assert.Equal(t, 5, got.TransactionCount)
	assert.Equal(t, 1, got.ImportedCount)
	assert.Equal(t, 1, got.SkippedCount)

	imported, err := svc.Transactions.Get(ctx, ready.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TxImported, imported.Status)

	dup, err := svc.Transactions.Get(ctx, split.ID)
	require.NoError(t, err)
	assert.NotEqual(t, repository.TxImported, dup.Status)
	assert.Equal(t, repository.ConfirmedDuplicate, dup.DuplicateStatus)

	for _, tx := range []repository.Transaction{skipped, pending, attention} {
		row, err := svc.Transactions.Get(ctx, tx.ID)
		require.NoError(t, err)
		assert.NotEqual(t, repository.TxImported, row.Status)
	}

	// Only the created row landed in the import history.
	recs, err := svc.History.ListSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	wantHash := sourceHash(ready.BankID, ready.BookingDate, ready.Amount.String(), ready.Currency)
	assert.Equal(t, wantHash, recs[0].SourceHash)
	assert.Equal(t, "y-1", recs[0].YnabID, "the created YNAB id backs the duplicate reference")
	assert.True(t, recs[0].Amount.Equal(amt("-12.30")))
	budget.AssertExpectations(t)
}

func TestImportWrongState(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess := seedSession(t, svc, repository.SessionAwaitingTan)

	_, err := svc.Import(context.Background(), sess.ID)
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestForceImportDuplicates(t *testing.T) {
	svc, _, budget := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, svc, repository.SessionCompleted)
	require.NoError(t, svc.Sessions.SetCounters(ctx, sess.ID, 5, 3, 1))

	cat := "cat-1"
	a := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-7", Amount: amt("-5.00"), CategoryID: &cat})
	b := seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-9", Amount: amt("-6.00"), CategoryID: &cat})

	budget.On("ForceImport", mock.Anything, mock.MatchedBy(func(req ynab.ImportRequest) bool {
		return len(req.Items) == 2 && req.Items[0].TransactionID == a.ID && req.Items[1].TransactionID == b.ID
	})).Return(ynab.ImportResult{
		CreatedCount: 2,
		CreatedIDs:   map[string]string{a.ID: "y-7", b.ID: "y-9"},
	}, nil).Once()

	count, err := svc.ForceImportDuplicates(ctx, sess.ID, []string{a.ID, b.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := svc.Sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.ImportedCount, "force import adds to the running total")

	row, err := svc.Transactions.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TxImported, row.Status)

	recs, err := svc.History.ListSince(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	ynabIDs := []string{recs[0].YnabID, recs[1].YnabID}
	assert.ElementsMatch(t, []string{"y-7", "y-9"}, ynabIDs)
	budget.AssertExpectations(t)
}

func TestCancelSyncDiscardsSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	sess := seedSession(t, svc, repository.SessionReviewing)
	seedTx(t, svc, repository.Transaction{SessionID: sess.ID, BankID: "bank-1", Amount: amt("-5.00")})

	require.NoError(t, svc.CancelSync(ctx, sess.ID))

	active, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
	_, err = svc.Sessions.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestCreateRuleRejectsBlankPattern(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateRule(context.Background(), RuleCreateRequest{Name: "x", CategoryID: "cat-1"})
	require.Error(t, err)

	rules, err := svc.Rules.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rules)
}
