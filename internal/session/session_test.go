package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spherical-ai/spherical/libs/sales-engine/internal/domain"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/session"
	"github.com/spherical-ai/spherical/libs/sales-engine/internal/storage/storagetest"
)

func newStores(t *testing.T) map[string]session.Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]session.Store{
		"redis": session.NewRedisStore(client, session.RedisStoreConfig{TTL: time.Hour}),
		"sql":   session.NewSQLStore(storagetest.NewDB(t), time.Hour, time.Second),
	}
}

func TestStores_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range newStores(t) {
		t.Run(name, func(t *testing.T) {
			got, err := store.Get(ctx, "u-1")
			require.NoError(t, err)
			assert.Nil(t, got)

			pct := decimal.NewFromInt(20)
			state := &session.State{
				UserID: "u-1",
				Step:   session.StepAskFinancingTerm,
				Context: session.Context{
					VariantID:          uuid.New(),
					VariantName:        "GLS A/T",
					PaymentType:        session.PaymentFinancing,
					DownPaymentPercent: &pct,
					Region:             "NCR",
				},
			}
			require.NoError(t, store.Save(ctx, state))

			got, err = store.Get(ctx, "u-1")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, session.StepAskFinancingTerm, got.Step)
			assert.Equal(t, state.Context.VariantID, got.Context.VariantID)
			assert.True(t, pct.Equal(*got.Context.DownPaymentPercent))
			assert.True(t, got.Active())

			state.Step = session.StepAskPaymentType
			require.NoError(t, store.Save(ctx, state))
			got, err = store.Get(ctx, "u-1")
			require.NoError(t, err)
			assert.Equal(t, session.StepAskPaymentType, got.Step)

			require.NoError(t, store.Delete(ctx, "u-1"))
			require.NoError(t, store.Delete(ctx, "u-1"), "deleting a missing session is not an error")
			got, err = store.Get(ctx, "u-1")
			require.NoError(t, err)
			assert.Nil(t, got)
		})
	}
}

func TestRedisStore_Expiry(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := session.NewRedisStore(client, session.RedisStoreConfig{Prefix: "t:", TTL: time.Minute})
	require.NoError(t, store.Save(ctx, &session.State{UserID: "u", Step: session.StepAskVariant}))
	assert.True(t, mr.Exists("t:u"))

	mr.FastForward(2 * time.Minute)
	got, err := store.Get(ctx, "u")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	store := session.NewRedisStore(client, session.RedisStoreConfig{Timeout: 200 * time.Millisecond})
	err = store.Save(context.Background(), session.New("u"))
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestSQLStore_WriteFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO conversation_sessions").WillReturnError(errors.New("disk full"))

	store := session.NewSQLStore(db, time.Hour, time.Second)
	err = store.Save(context.Background(), &session.State{UserID: "u", Step: session.StepAskVariant})
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStore_StaleSessionIgnored(t *testing.T) {
	ctx := context.Background()
	db := storagetest.NewDB(t)
	store := session.NewSQLStore(db, time.Hour, time.Second)

	require.NoError(t, store.Save(ctx, &session.State{UserID: "u", Step: session.StepAskVariant}))
	_, err := db.ExecContext(ctx, `UPDATE conversation_sessions SET updated_at = $1 WHERE user_id = $2`,
		time.Now().UTC().Add(-2*time.Hour), "u")
	require.NoError(t, err)

	got, err := store.Get(ctx, "u")
	require.NoError(t, err)
	assert.Nil(t, got)
}
