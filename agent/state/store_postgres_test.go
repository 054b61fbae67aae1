package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStoreFromDB(db, WithClock(fixedNow)), mock
}

func TestPostgresStoreGetConversation(t *testing.T) {
	store, mock := newMockPostgresStore(t)
	ctx := context.Background()

	rows := sqlmock.NewRows([]string{"id", "state", "metadata", "cart", "version", "updated_at"}).
		AddRow("c-1", "BUILDING_ORDER", []byte(`{"greeted":true}`), []byte(`[{"product_name":"Cola","quantity":2,"unit_price":2.5}]`), 3, fixedNow())
	mock.ExpectQuery(`SELECT (.+) FROM "conversations" AS "c"`).WillReturnRows(rows)

	conv, err := store.GetConversation(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, StateBuildingOrder, conv.State)
	assert.Equal(t, int64(3), conv.Version)
	assert.True(t, conv.Metadata.Bool(MetaGreeted))
	require.Len(t, conv.Cart, 1)
	assert.Equal(t, 5.0, conv.Totals().Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreGetConversationNotFound(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT (.+) FROM "conversations" AS "c"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "state", "metadata", "cart", "version", "updated_at"}))

	_, err := store.GetConversation(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrConversationNotFound), "err = %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreHistoryIsChronological(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	later := fixedNow().Add(time.Minute)
	rows := sqlmock.NewRows([]string{"id", "conversation_id", "role", "content", "created_at"}).
		AddRow(2, "c-1", RoleAssistant, "second", later).
		AddRow(1, "c-1", RoleCustomer, "first", fixedNow())
	mock.ExpectQuery(`SELECT (.+) FROM "conversation_messages" AS "m" (.+) ORDER BY m.id DESC LIMIT 2`).WillReturnRows(rows)

	msgs, err := store.GetRecentHistory(context.Background(), "c-1", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreFailedCartOpRollsBack(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "conversations" (.+) ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM "conversations" AS "c" (.+) FOR UPDATE`).
		WillReturnRows(seededRow("c-1"))
	mock.ExpectRollback()

	_, err := store.AtomicUpdateCart(context.Background(), "c-1", CartOpRemove, CartItem{ProductName: "Pizza"})
	assert.True(t, errors.Is(err, ErrItemNotInCart), "err = %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func seededRow(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "state", "metadata", "cart", "version", "updated_at"}).
		AddRow(id, "GREETING", []byte(`{}`), []byte(`[]`), 0, fixedNow())
}

func TestPostgresStoreFirstWriteSeedsRowBeforeLocking(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "conversations" (.+) ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT (.+) FROM "conversations" AS "c" (.+) FOR UPDATE`).
		WillReturnRows(seededRow("c-new"))
	mock.ExpectExec(`UPDATE "conversations" AS "c" SET (.+) WHERE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	totals, err := store.AtomicUpdateCart(context.Background(), "c-new", CartOpAdd, CartItem{ProductName: "Cola", Quantity: 2, UnitPrice: 2.5})
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Count)
	assert.Equal(t, 5.0, totals.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreExistingRowIsNotReseeded(t *testing.T) {
	store, mock := newMockPostgresStore(t)

	existing := sqlmock.NewRows([]string{"id", "state", "metadata", "cart", "version", "updated_at"}).
		AddRow("c-1", "BUILDING_ORDER", []byte(`{"greeted":true}`), []byte(`[{"product_name":"Cola","quantity":1,"unit_price":2.5}]`), 4, fixedNow())

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "conversations" (.+) ON CONFLICT \(id\) DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM "conversations" AS "c" (.+) FOR UPDATE`).WillReturnRows(existing)
	mock.ExpectExec(`UPDATE "conversations" AS "c" SET (.+) WHERE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	totals, err := store.AtomicUpdateCart(context.Background(), "c-1", CartOpAdd, CartItem{ProductName: "cola", Quantity: 3, UnitPrice: 2.5})
	require.NoError(t, err)
	assert.Equal(t, 1, totals.Count)
	assert.Equal(t, 7.5, totals.Total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRejectsEmptyID(t *testing.T) {
	store, _ := newMockPostgresStore(t)

	_, err := store.GetConversation(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidConversation)
	assert.ErrorIs(t, store.AppendMessages(context.Background(), " "), ErrInvalidConversation)
}
