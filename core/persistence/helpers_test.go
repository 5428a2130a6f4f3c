package persistence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/asaidimu/go-quire/core/ids"
	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
	"github.com/asaidimu/go-quire/sqlite"
)

var epoch = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func unit(code string) sandbox.Unit {
	return sandbox.Unit{Source: code, Compiled: code}
}

func unitPtr(code string) *sandbox.Unit {
	u := unit(code)
	return &u
}

const (
	expenseSummary      = `module.exports = function (e) { return { "{position:1,sortable:true}title": e.title, "{position:2,sortable:true,default-sort:desc}amount": e.amount }; };`
	expenseBlockingKeys = `module.exports = function (e) { return [e.title.toLowerCase() + "|" + e.amount]; };`
)

func expensesSchema() *schema.Schema {
	return &schema.Schema{
		RootType: "Expense",
		Types: map[string]*schema.TypeDefinition{
			"Expense": schema.Struct(map[string]*schema.TypeDefinition{
				"title":   schema.String(),
				"amount":  schema.Number(),
				"receipt": schema.File(),
			}, "receipt"),
		},
	}
}

func expensesWithCurrency() *schema.Schema {
	return &schema.Schema{
		RootType: "Expense",
		Types: map[string]*schema.TypeDefinition{
			"Expense": schema.Struct(map[string]*schema.TypeDefinition{
				"title":    schema.String(),
				"amount":   schema.Number(),
				"currency": schema.String(),
				"receipt":  schema.File(),
			}, "receipt"),
		},
	}
}

func expensesSettings() persistence.VersionSettings {
	return persistence.VersionSettings{
		Summary:      unit(expenseSummary),
		BlockingKeys: unitPtr(expenseBlockingKeys),
	}
}

func newTestStore(t *testing.T) *sqlite.SQLiteInteractor {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlite.NewSQLiteInteractor(db, zaptest.NewLogger(t), nil)
}

func newTestPersistence(t *testing.T, opts ...persistence.Option) *persistence.Persistence {
	t.Helper()
	return newTestPersistenceOn(t, newTestStore(t), opts...)
}

func newTestPersistenceOn(t *testing.T, store *sqlite.SQLiteInteractor, opts ...persistence.Option) *persistence.Persistence {
	t.Helper()
	logger := zaptest.NewLogger(t)
	base := []persistence.Option{
		persistence.WithLogger(logger),
		persistence.WithIDGenerator(&ids.SequentialGenerator{}),
		persistence.WithClock(func() time.Time { return epoch }),
		persistence.WithSandbox(sandbox.New(sandbox.Options{Timeout: 200 * time.Millisecond, Logger: logger})),
	}
	p, err := persistence.NewPersistence(store, append(base, opts...)...)
	require.NoError(t, err)
	require.NoError(t, p.Open(context.Background()))
	return p
}

func createExpenses(t *testing.T, p *persistence.Persistence) *persistence.CollectionView {
	t.Helper()
	col, err := p.CreateCollection(context.Background(),
		persistence.CollectionSettings{Name: "Expenses", Icon: "receipt"},
		expensesSchema(), expensesSettings())
	require.NoError(t, err)
	return col
}

func createDocument(t *testing.T, p *persistence.Persistence, collectionID string, content map[string]any) *persistence.DocumentView {
	t.Helper()
	res, err := p.CreateDocument(context.Background(), collectionID, content, persistence.CreateOptions{})
	require.NoError(t, err)
	require.Nil(t, res.PossibleDuplicate)
	require.NotNil(t, res.Document)
	return res.Document
}
