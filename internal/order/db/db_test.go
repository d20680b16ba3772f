package db_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"ms-enrollment/internal/models"
	"ms-enrollment/internal/order"
	"ms-enrollment/internal/order/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	// Connect to an in-memory SQLite DB for testing
	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	// A single connection keeps every query on the same in-memory database
	sqldb.SetMaxOpenConns(1)

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if err := db.CreateSchema(context.Background(), bunDB); err != nil {
		t.Fatalf("Failed to create schema: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func newOrder(userID string, createdAt time.Time) *models.Order {
	return &models.Order{
		UserID:        userID,
		CourseID:      "pilates-101",
		CourseVariant: models.VariantGroup,
		Total:         10000,
		State:         models.StateCreated,
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     createdAt.UTC(),
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	o := newOrder("user-1", time.Now())
	require.NoError(t, orderDB.CreateOrder(ctx, o))
	assert.NotZero(t, o.OrderID)

	got, err := orderDB.GetOrderByID(ctx, o.OrderID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, models.StateCreated, got.State)
	assert.Equal(t, int64(10000), got.Total)
	assert.Empty(t, got.TransferAccountLast5)
	assert.Nil(t, got.TransferTime)

	// Non-existent order
	missing, err := orderDB.GetOrderByID(ctx, o.OrderID+100)
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGetOrderCreatedSince(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	fresh := newOrder("user-1", now.Add(-time.Hour))
	stale := newOrder("user-1", now.Add(-25*time.Hour))
	require.NoError(t, orderDB.CreateOrder(ctx, fresh))
	require.NoError(t, orderDB.CreateOrder(ctx, stale))

	since := now.Add(-models.PaymentWindow)

	got, err := orderDB.GetOrderCreatedSince(ctx, fresh.OrderID, since)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, fresh.OrderID, got.OrderID)

	got, err = orderDB.GetOrderCreatedSince(ctx, stale.OrderID, since)
	require.NoError(t, err)
	assert.Nil(t, got, "orders older than the payment window are invisible")
}

func TestListOrdersByUser(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()
	now := time.Now().UTC()

	older := newOrder("user-1", now.Add(-2*time.Hour))
	newer := newOrder("user-1", now.Add(-time.Hour))
	other := newOrder("user-2", now)
	for _, o := range []*models.Order{older, newer, other} {
		require.NoError(t, orderDB.CreateOrder(ctx, o))
	}

	orders, err := orderDB.ListOrdersByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, newer.OrderID, orders[0].OrderID)
	assert.Equal(t, older.OrderID, orders[1].OrderID)

	none, err := orderDB.ListOrdersByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestTransitionState(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	o := newOrder("user-1", time.Now())
	require.NoError(t, orderDB.CreateOrder(ctx, o))

	transferTime := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	ok, err := orderDB.TransitionState(ctx, order.Transition{
		OrderID:              o.OrderID,
		From:                 models.StateCreated,
		To:                   models.StatePayed,
		At:                   time.Now(),
		TransferAccountLast5: "54321",
		TransferTime:         &transferTime,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := orderDB.GetOrderByID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.StatePayed, got.State)
	assert.Equal(t, "54321", got.TransferAccountLast5)
	require.NotNil(t, got.TransferTime)
	assert.True(t, transferTime.Equal(*got.TransferTime))
	assert.Equal(t, int64(10000), got.Total)

	// Expected prior state no longer holds
	ok, err = orderDB.TransitionState(ctx, order.Transition{
		OrderID: o.OrderID,
		From:    models.StateCreated,
		To:      models.StatePayed,
		At:      time.Now(),
	})
	require.NoError(t, err)
	assert.False(t, ok)

	// Unknown order
	ok, err = orderDB.TransitionState(ctx, order.Transition{OrderID: 999, From: models.StatePayed, To: models.StateMessaged, At: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransitionStateRaceHasOneWinner(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	o := newOrder("user-1", time.Now())
	require.NoError(t, orderDB.CreateOrder(ctx, o))

	const attempts = 8
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := orderDB.TransitionState(ctx, order.Transition{
				OrderID: o.OrderID,
				From:    models.StateCreated,
				To:      models.StatePayed,
				At:      time.Now(),
			})
			assert.NoError(t, err)
			results <- ok
		}()
	}
	wg.Wait()
	close(results)

	winners := 0
	for ok := range results {
		if ok {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestCountOrdersByState(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, orderDB.CreateOrder(ctx, newOrder("user-1", time.Now())))
	}
	paid := newOrder("user-1", time.Now())
	paid.State = models.StatePayed
	require.NoError(t, orderDB.CreateOrder(ctx, paid))

	counts, err := orderDB.CountOrdersByState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[models.StateCreated])
	assert.Equal(t, 1, counts[models.StatePayed])
	assert.Zero(t, counts[models.StateConfirmed])
}

func TestGetProfile(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	p := &models.Profile{
		UserID:        "user-1",
		StudentID:     42,
		FullName:      "Lin Mei",
		AuthProvider:  models.AuthProviderPush,
		PushChannelID: "U1234",
		CreatedAt:     time.Now().UTC(),
	}
	_, err := bunDB.NewInsert().Model(p).Exec(ctx)
	require.NoError(t, err)

	got, err := orderDB.GetProfile(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IsPushOnly())
	assert.Equal(t, "U1234", got.PushChannelID)

	missing, err := orderDB.GetProfile(ctx, "user-2")
	assert.NoError(t, err)
	assert.Nil(t, missing)
}

func TestUpsertProfile(t *testing.T) {
	orderDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	ev := models.UserRegisteredEvent{UserID: "user-7", FullName: "Wu Jie", AuthProvider: models.AuthProviderEmail, StudentID: 77}
	p := ev.Profile()
	require.NoError(t, orderDB.UpsertProfile(ctx, &p))

	// re-registration through the messaging platform refreshes the row
	ev.AuthProvider = models.AuthProviderPush
	ev.PushChannelID = "U-wu"
	ev.StudentID = 99
	p = ev.Profile()
	require.NoError(t, orderDB.UpsertProfile(ctx, &p))

	got, err := orderDB.GetProfile(ctx, "user-7")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(77), got.StudentID)
	assert.True(t, got.IsPushOnly())
	assert.Equal(t, "U-wu", got.PushChannelID)
}
