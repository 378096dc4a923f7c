package dynamostore

import (
	"context"
	"fmt"
	"testing"

	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrsandwich/backoffice/store"
	"github.com/mrsandwich/backoffice/table"
)

// fakeClient implements AWSDynamoClient with per-call hooks. Calls
// without a hook fail the test.
type fakeClient struct {
	t         *testing.T
	getItem   func(*dynamodbv2.GetItemInput) (*dynamodbv2.GetItemOutput, error)
	putItem   func(*dynamodbv2.PutItemInput) (*dynamodbv2.PutItemOutput, error)
	delItem   func(*dynamodbv2.DeleteItemInput) (*dynamodbv2.DeleteItemOutput, error)
	updItem   func(*dynamodbv2.UpdateItemInput) (*dynamodbv2.UpdateItemOutput, error)
	query     func(*dynamodbv2.QueryInput) (*dynamodbv2.QueryOutput, error)
	scan      func(*dynamodbv2.ScanInput) (*dynamodbv2.ScanOutput, error)
	batchItem func(*dynamodbv2.BatchWriteItemInput) (*dynamodbv2.BatchWriteItemOutput, error)
}

func (f *fakeClient) GetItem(ctx context.Context, in *dynamodbv2.GetItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.GetItemOutput, error) {
	require.NotNil(f.t, f.getItem, "unexpected GetItem call")
	return f.getItem(in)
}

func (f *fakeClient) PutItem(ctx context.Context, in *dynamodbv2.PutItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.PutItemOutput, error) {
	require.NotNil(f.t, f.putItem, "unexpected PutItem call")
	return f.putItem(in)
}

func (f *fakeClient) DeleteItem(ctx context.Context, in *dynamodbv2.DeleteItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.DeleteItemOutput, error) {
	require.NotNil(f.t, f.delItem, "unexpected DeleteItem call")
	return f.delItem(in)
}

func (f *fakeClient) UpdateItem(ctx context.Context, in *dynamodbv2.UpdateItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.UpdateItemOutput, error) {
	require.NotNil(f.t, f.updItem, "unexpected UpdateItem call")
	return f.updItem(in)
}

func (f *fakeClient) Query(ctx context.Context, in *dynamodbv2.QueryInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.QueryOutput, error) {
	require.NotNil(f.t, f.query, "unexpected Query call")
	return f.query(in)
}

func (f *fakeClient) Scan(ctx context.Context, in *dynamodbv2.ScanInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.ScanOutput, error) {
	require.NotNil(f.t, f.scan, "unexpected Scan call")
	return f.scan(in)
}

func (f *fakeClient) BatchWriteItem(ctx context.Context, in *dynamodbv2.BatchWriteItemInput, _ ...func(*dynamodbv2.Options)) (*dynamodbv2.BatchWriteItemOutput, error) {
	require.NotNil(f.t, f.batchItem, "unexpected BatchWriteItem call")
	return f.batchItem(in)
}

var testDef = table.Default("test-table")

func strAV(v string) types.AttributeValue { return &types.AttributeValueMemberS{Value: v} }

func TestGet(t *testing.T) {
	ctx := context.Background()

	t.Run("missing item maps to ErrNotFound", func(t *testing.T) {
		client := &fakeClient{t: t, getItem: func(in *dynamodbv2.GetItemInput) (*dynamodbv2.GetItemOutput, error) {
			assert.Equal(t, "test-table", *in.TableName)
			assert.True(t, *in.ConsistentRead)
			return &dynamodbv2.GetItemOutput{}, nil
		}}
		s := New(client, testDef)

		_, err := s.Get(ctx, store.Key{Partition: "CUSTOMER#1", Sort: "PROFILE"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("found item comes back as-is", func(t *testing.T) {
		client := &fakeClient{t: t, getItem: func(in *dynamodbv2.GetItemInput) (*dynamodbv2.GetItemOutput, error) {
			assert.Equal(t, "CUSTOMER#1", in.Key["PK"].(*types.AttributeValueMemberS).Value)
			assert.Equal(t, "PROFILE", in.Key["SK"].(*types.AttributeValueMemberS).Value)
			return &dynamodbv2.GetItemOutput{Item: store.Item{"name": strAV("Asha")}}, nil
		}}
		s := New(client, testDef)

		got, err := s.Get(ctx, store.Key{Partition: "CUSTOMER#1", Sort: "PROFILE"})
		require.NoError(t, err)
		assert.Equal(t, "Asha", got["name"].(*types.AttributeValueMemberS).Value)
	})
}

func TestPutIfAbsent_ConditionFailure(t *testing.T) {
	client := &fakeClient{t: t, putItem: func(in *dynamodbv2.PutItemInput) (*dynamodbv2.PutItemOutput, error) {
		require.NotNil(t, in.ConditionExpression)
		return nil, &types.ConditionalCheckFailedException{}
	}}
	s := New(client, testDef)

	err := s.PutIfAbsent(context.Background(), store.Key{Partition: "COUPON#X", Sort: "DETAILS"}, store.Item{})
	assert.ErrorIs(t, err, store.ErrExists)
}

func TestQueryPrefix_DrainsAllPages(t *testing.T) {
	calls := 0
	client := &fakeClient{t: t, query: func(in *dynamodbv2.QueryInput) (*dynamodbv2.QueryOutput, error) {
		calls++
		switch calls {
		case 1:
			assert.Nil(t, in.ExclusiveStartKey)
			return &dynamodbv2.QueryOutput{
				Items:            []store.Item{{"n": strAV("1")}},
				LastEvaluatedKey: map[string]types.AttributeValue{"PK": strAV("CUSTOMER#1")},
			}, nil
		case 2:
			assert.NotNil(t, in.ExclusiveStartKey)
			return &dynamodbv2.QueryOutput{Items: []store.Item{{"n": strAV("2")}}}, nil
		default:
			return nil, fmt.Errorf("unexpected call %d", calls)
		}
	}}
	s := New(client, testDef)

	items, err := s.QueryPrefix(context.Background(), "CUSTOMER#1", "REWARD#")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, 2, calls)
}

func TestUpdate_ConditionFailureMapsToNotFound(t *testing.T) {
	client := &fakeClient{t: t, updItem: func(in *dynamodbv2.UpdateItemInput) (*dynamodbv2.UpdateItemOutput, error) {
		require.NotNil(t, in.ConditionExpression, "mustExist must install an existence condition")
		return nil, &types.ConditionalCheckFailedException{}
	}}
	s := New(client, testDef)

	_, err := s.Update(context.Background(), store.Key{Partition: "COUPON#X", Sort: "DETAILS"},
		[]store.UpdateOp{store.Add("usedCount", 1)}, true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBatchWrite(t *testing.T) {
	ctx := context.Background()
	key := func(n int) store.Key {
		return store.Key{Partition: "CUSTOMER#1", Sort: fmt.Sprintf("REWARD#%03d", n)}
	}

	t.Run("chunks at 25 operations", func(t *testing.T) {
		var sizes []int
		client := &fakeClient{t: t, batchItem: func(in *dynamodbv2.BatchWriteItemInput) (*dynamodbv2.BatchWriteItemOutput, error) {
			sizes = append(sizes, len(in.RequestItems["test-table"]))
			return &dynamodbv2.BatchWriteItemOutput{}, nil
		}}
		s := New(client, testDef)

		ops := make([]store.WriteOp, 0, 30)
		for i := 0; i < 30; i++ {
			ops = append(ops, store.DeleteOp(key(i)))
		}
		res, err := s.BatchWrite(ctx, ops...)
		require.NoError(t, err)
		assert.True(t, res.Done())
		assert.Equal(t, []int{25, 5}, sizes)
	})

	t.Run("unprocessed items are converted back to ops", func(t *testing.T) {
		client := &fakeClient{t: t, batchItem: func(in *dynamodbv2.BatchWriteItemInput) (*dynamodbv2.BatchWriteItemOutput, error) {
			reqs := in.RequestItems["test-table"]
			// Echo the last request back as unprocessed.
			return &dynamodbv2.BatchWriteItemOutput{
				UnprocessedItems: map[string][]types.WriteRequest{"test-table": reqs[len(reqs)-1:]},
			}, nil
		}}
		s := New(client, testDef)

		res, err := s.BatchWrite(ctx,
			store.PutOp(key(1), store.Item{"points": strAV("3")}),
			store.DeleteOp(key(2)),
		)
		require.NoError(t, err)
		require.Len(t, res.Unprocessed, 1)
		assert.True(t, res.Unprocessed[0].IsDelete())
		assert.Equal(t, key(2), res.Unprocessed[0].Key)
	})

	t.Run("transport error reports the rest as unprocessed", func(t *testing.T) {
		client := &fakeClient{t: t, batchItem: func(in *dynamodbv2.BatchWriteItemInput) (*dynamodbv2.BatchWriteItemOutput, error) {
			return nil, fmt.Errorf("throttled")
		}}
		s := New(client, testDef)

		res, err := s.BatchWrite(ctx, store.DeleteOp(key(1)), store.DeleteOp(key(2)))
		require.Error(t, err)
		assert.Len(t, res.Unprocessed, 2)
	})
}
