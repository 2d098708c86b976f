package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/apperrors"
	"github.com/antoniobritto07/ecommerce-aws-cdk/internal/aws/dynamotest"
)

const tbl = "idempotency-table"

func newTestStore(t *testing.T) (*Store, *dynamotest.Fake) {
	t.Helper()
	fake := dynamotest.New()
	fake.CreateTable(tbl, "idempotency_key", "")
	s := NewStore(fake, tbl, 48*time.Hour)
	s.nowFunc = func() time.Time { return time.Date(2026, 10, 17, 8, 0, 0, 0, time.UTC) }
	return s, fake
}

func statusOf(t *testing.T, fake *dynamotest.Fake) string {
	t.Helper()
	items := fake.Items(tbl)
	require.Len(t, items, 1)
	st, ok := items[0]["status"].(*types.AttributeValueMemberS)
	require.True(t, ok)
	return st.Value
}

func TestClaim_Get_MarkDone(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	key := Key("email", "o-1", "ORDER_CREATED")
	assert.Equal(t, "email#o-1#ORDER_CREATED", key)

	claimed, err := s.Claim(ctx, key, "ORDER_CREATED")
	require.NoError(t, err)
	assert.True(t, claimed)

	// second claim sees the existing marker
	claimed, err = s.Claim(ctx, key, "ORDER_CREATED")
	require.NoError(t, err)
	assert.False(t, claimed)

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, s.nowFunc().Add(48*time.Hour).Unix(), rec.ExpiresAt)

	require.NoError(t, s.MarkDone(ctx, key, "ses-123"))
	assert.Equal(t, StatusDone, statusOf(t, fake))
	rec, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "ses-123", rec.ResultRef)
}

func TestMarkFailed_ThenReclaim(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	key := Key("email", "o-2", "ORDER_CREATED")

	_, err := s.Claim(ctx, key, "ORDER_CREATED")
	require.NoError(t, err)

	// only FAILED markers can be reclaimed
	ok, err := s.Reclaim(ctx, key, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.MarkFailed(ctx, key, "smtp down"))
	assert.Equal(t, StatusFailed, statusOf(t, fake))

	ok, err = s.Reclaim(ctx, key, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.Equal(t, "smtp down", rec.Note)
}

func TestTakeover_RequiresUnchangedMarker(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	key := Key("email", "o-3", "ORDER_CREATED")
	claimedAt := s.nowFunc()

	_, err := s.Claim(ctx, key, "ORDER_CREATED")
	require.NoError(t, err)
	rec, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.Equal(claimedAt))

	s.nowFunc = func() time.Time { return claimedAt.Add(time.Minute) }
	ok, err := s.Takeover(ctx, key, rec.UpdatedAt, 2)
	require.NoError(t, err)
	assert.True(t, ok)

	// a second taker holding the stale read loses
	ok, err = s.Takeover(ctx, key, rec.UpdatedAt, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	rec, err = s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, rec.Status)
	assert.Equal(t, 2, rec.Attempts)
	assert.True(t, rec.UpdatedAt.Equal(claimedAt.Add(time.Minute)))

	// finished markers are never taken over
	require.NoError(t, s.MarkDone(ctx, key, "ses-1"))
	rec, err = s.Get(ctx, key)
	require.NoError(t, err)
	ok, err = s.Takeover(ctx, key, rec.UpdatedAt, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGet_Missing(t *testing.T) {
	s, _ := newTestStore(t)
	rec, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestTransitions_OnMissingMarker(t *testing.T) {
	s, fake := newTestStore(t)
	err := s.MarkDone(context.Background(), "nope", "x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Empty(t, fake.Items(tbl))
}

func TestInfrastructureErrorsAreTransient(t *testing.T) {
	s, fake := newTestStore(t)
	fake.Errors["PutItem"] = errors.New("throttled")
	_, err := s.Claim(context.Background(), "k", "ORDER_CREATED")
	assert.ErrorIs(t, err, apperrors.ErrTransient)

	fake.Errors["GetItem"] = errors.New("throttled")
	_, err = s.Get(context.Background(), "k")
	assert.ErrorIs(t, err, apperrors.ErrTransient)
}
