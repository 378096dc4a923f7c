package memstore

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsandwich/backoffice/store"
	"github.com/mrsandwich/backoffice/table"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(table.Default("test-table"))
}

func item(attrs map[string]string) store.Item {
	out := make(store.Item, len(attrs))
	for k, v := range attrs {
		out[k] = &types.AttributeValueMemberS{Value: v}
	}
	return out
}

func strAttr(t *testing.T, it store.Item, name string) string {
	t.Helper()
	av, ok := it[name].(*types.AttributeValueMemberS)
	require.True(t, ok, "attribute %q missing or not a string", name)
	return av.Value
}

func TestStore_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	key := store.Key{Partition: "CUSTOMER#1", Sort: "PROFILE"}

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("put then get round-trips and injects key attributes", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Put(ctx, key, item(map[string]string{"name": "Asha"})))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Asha", strAttr(t, got, "name"))
		assert.Equal(t, "CUSTOMER#1", strAttr(t, got, "PK"))
		assert.Equal(t, "PROFILE", strAttr(t, got, "SK"))
	})

	t.Run("put overwrites", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Put(ctx, key, item(map[string]string{"name": "Asha"})))
		require.NoError(t, s.Put(ctx, key, item(map[string]string{"name": "Ben"})))

		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "Ben", strAttr(t, got, "name"))
	})

	t.Run("delete removes and is idempotent", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Put(ctx, key, item(map[string]string{"name": "Asha"})))
		require.NoError(t, s.Delete(ctx, key))
		_, err := s.Get(ctx, key)
		assert.ErrorIs(t, err, store.ErrNotFound)
		require.NoError(t, s.Delete(ctx, key))
	})
}

func TestStore_PutIfAbsent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	key := store.Key{Partition: "COUPON#SAVE10", Sort: "DETAILS"}

	require.NoError(t, s.PutIfAbsent(ctx, key, item(map[string]string{"title": "Ten off"})))

	err := s.PutIfAbsent(ctx, key, item(map[string]string{"title": "Other"}))
	assert.ErrorIs(t, err, store.ErrExists)

	got, err := s.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "Ten off", strAttr(t, got, "title"), "losing write must not clobber")
}

func TestStore_QueryPrefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	put := func(pk, sk, name string) {
		require.NoError(t, s.Put(ctx, store.Key{Partition: pk, Sort: sk}, item(map[string]string{"name": name})))
	}
	put("CUSTOMER#1", "PROFILE", "profile")
	put("CUSTOMER#1", "REWARD#100", "r100")
	put("CUSTOMER#1", "REWARD#200", "r200")
	put("CUSTOMER#2", "REWARD#100", "other customer")

	items, err := s.QueryPrefix(ctx, "CUSTOMER#1", "REWARD#")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "r100", strAttr(t, items[0], "name"))
	assert.Equal(t, "r200", strAttr(t, items[1], "name"))

	t.Run("empty prefix returns whole partition", func(t *testing.T) {
		items, err := s.QueryPrefix(ctx, "CUSTOMER#1", "")
		require.NoError(t, err)
		assert.Len(t, items, 3)
	})

	t.Run("unknown partition is empty, not an error", func(t *testing.T) {
		items, err := s.QueryPrefix(ctx, "CUSTOMER#99", "REWARD#")
		require.NoError(t, err)
		assert.Empty(t, items)
	})
}

func TestStore_QueryRange(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, sk := range []string{
		"EXPENSE#2025-01-05#a",
		"EXPENSE#2025-01-10#b",
		"EXPENSE#2025-01-15#c",
		"EXPENSE#2025-02-01#d",
	} {
		require.NoError(t, s.Put(ctx, store.Key{Partition: "RESTAURANT#r1", Sort: sk}, item(map[string]string{"sk": sk})))
	}

	items, err := s.QueryRange(ctx, "RESTAURANT#r1", "EXPENSE#2025-01-05", "EXPENSE#2025-01-15#~")
	require.NoError(t, err)
	require.Len(t, items, 3, "both bounds are inclusive")
	assert.Equal(t, "EXPENSE#2025-01-05#a", strAttr(t, items[0], "sk"))
	assert.Equal(t, "EXPENSE#2025-01-15#c", strAttr(t, items[2], "sk"))
}

func TestStore_ScanAttribute(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Put(ctx, store.Key{Partition: "CUSTOMER#1", Sort: "PROFILE"},
		item(map[string]string{"recordType": "customer"})))
	require.NoError(t, s.Put(ctx, store.Key{Partition: "CUSTOMER#2", Sort: "PROFILE"},
		item(map[string]string{"recordType": "customer"})))
	require.NoError(t, s.Put(ctx, store.Key{Partition: "COUPON#X", Sort: "DETAILS"},
		item(map[string]string{"recordType": "coupon"})))

	items, err := s.ScanAttribute(ctx, "recordType", "customer")
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestStore_Update(t *testing.T) {
	ctx := context.Background()
	key := store.Key{Partition: "COUPON#SAVE10", Sort: "DETAILS"}

	t.Run("mustExist fails on missing item", func(t *testing.T) {
		s := newTestStore(t)
		_, err := s.Update(ctx, key, []store.UpdateOp{store.Add("usedCount", 1)}, true)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("add treats absent field as zero", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Put(ctx, key, item(map[string]string{"title": "Ten off"})))

		updated, err := s.Update(ctx, key, []store.UpdateOp{store.Add("usedCount", 1)}, true)
		require.NoError(t, err)
		n, ok := updated["usedCount"].(*types.AttributeValueMemberN)
		require.True(t, ok)
		assert.Equal(t, "1", n.Value)
	})

	t.Run("add accumulates", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Put(ctx, key, item(map[string]string{"title": "Ten off"})))

		for i := 0; i < 3; i++ {
			_, err := s.Update(ctx, key, []store.UpdateOp{store.Add("usedCount", 1)}, true)
			require.NoError(t, err)
		}
		got, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, "3", got["usedCount"].(*types.AttributeValueMemberN).Value)
	})

	t.Run("set and remove", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, s.Put(ctx, key, item(map[string]string{"title": "Ten off", "stale": "yes"})))

		updated, err := s.Update(ctx, key, []store.UpdateOp{
			store.Set("title", "Fifteen off"),
			store.Remove("stale"),
		}, true)
		require.NoError(t, err)
		assert.Equal(t, "Fifteen off", strAttr(t, updated, "title"))
		assert.NotContains(t, updated, "stale")
	})
}

func TestStore_BatchWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("applies puts and deletes", func(t *testing.T) {
		s := newTestStore(t)
		keep := store.Key{Partition: "CUSTOMER#1", Sort: "REWARD#1"}
		drop := store.Key{Partition: "CUSTOMER#1", Sort: "REWARD#2"}
		require.NoError(t, s.Put(ctx, drop, item(map[string]string{"points": "5"})))

		res, err := s.BatchWrite(ctx,
			store.PutOp(keep, item(map[string]string{"points": "3"})),
			store.DeleteOp(drop),
		)
		require.NoError(t, err)
		assert.True(t, res.Done())

		_, err = s.Get(ctx, keep)
		assert.NoError(t, err)
		_, err = s.Get(ctx, drop)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("failWrite predicate leaves operations unprocessed", func(t *testing.T) {
		s := newTestStore(t)
		a := store.Key{Partition: "CUSTOMER#1", Sort: "REWARD#1"}
		b := store.Key{Partition: "CUSTOMER#1", Sort: "REWARD#2"}

		s.FailWrites(func(op store.WriteOp) bool { return op.Key.Sort == "REWARD#2" })

		res, err := s.BatchWrite(ctx,
			store.PutOp(a, item(map[string]string{"points": "3"})),
			store.PutOp(b, item(map[string]string{"points": "5"})),
		)
		require.NoError(t, err)
		require.Len(t, res.Unprocessed, 1)
		assert.Equal(t, b, res.Unprocessed[0].Key)
		assert.Error(t, res.Err())

		_, err = s.Get(ctx, a)
		assert.NoError(t, err, "non-failing operations still apply")
		_, err = s.Get(ctx, b)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
