// Package dynamostore implements store.Store on DynamoDB. Queries use
// strongly consistent reads: redemption correctness depends on reading
// the current points, not a stale replica.
package dynamostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	dynamodbv2 "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mrsandwich/backoffice/store"
	"github.com/mrsandwich/backoffice/table"
)

// AWSDynamoClient is the subset of the DynamoDB API this store uses.
type AWSDynamoClient interface {
	GetItem(ctx context.Context, params *dynamodbv2.GetItemInput, optFns ...func(*dynamodbv2.Options)) (*dynamodbv2.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodbv2.PutItemInput, optFns ...func(*dynamodbv2.Options)) (*dynamodbv2.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodbv2.DeleteItemInput, optFns ...func(*dynamodbv2.Options)) (*dynamodbv2.DeleteItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodbv2.UpdateItemInput, optFns ...func(*dynamodbv2.Options)) (*dynamodbv2.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodbv2.QueryInput, optFns ...func(*dynamodbv2.Options)) (*dynamodbv2.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodbv2.ScanInput, optFns ...func(*dynamodbv2.Options)) (*dynamodbv2.ScanOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodbv2.BatchWriteItemInput, optFns ...func(*dynamodbv2.Options)) (*dynamodbv2.BatchWriteItemOutput, error)
}

type Store struct {
	client AWSDynamoClient
	def    table.TableDefinition
}

var _ store.Store = (*Store)(nil)

func New(client AWSDynamoClient, def table.TableDefinition) *Store {
	return &Store{client: client, def: def}
}

func (s *Store) Get(ctx context.Context, key store.Key) (store.Item, error) {
	res, err := s.client.GetItem(ctx, &dynamodbv2.GetItemInput{
		TableName:      aws.String(s.def.Name),
		Key:            s.def.KeyAttrs(key.Partition, key.Sort),
		ConsistentRead: ptr(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if res.Item == nil {
		return nil, store.ErrNotFound
	}
	return res.Item, nil
}

func (s *Store) Put(ctx context.Context, key store.Key, item store.Item) error {
	_, err := s.client.PutItem(ctx, &dynamodbv2.PutItemInput{
		TableName: aws.String(s.def.Name),
		Item:      s.withKeyAttrs(key, item),
	})
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *Store) PutIfAbsent(ctx context.Context, key store.Key, item store.Item) error {
	cond := expression.AttributeNotExists(expression.Name(s.def.PartitionKey))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("build condition: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodbv2.PutItemInput{
		TableName:                 aws.String(s.def.Name),
		Item:                      s.withKeyAttrs(key, item),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if isConditionalCheckFailed(err) {
		return store.ErrExists
	}
	if err != nil {
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key store.Key) error {
	_, err := s.client.DeleteItem(ctx, &dynamodbv2.DeleteItemInput{
		TableName: aws.String(s.def.Name),
		Key:       s.def.KeyAttrs(key.Partition, key.Sort),
	})
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	return nil
}

func (s *Store) QueryPrefix(ctx context.Context, partition, sortPrefix string) ([]store.Item, error) {
	key := expression.KeyEqual(expression.Key(s.def.PartitionKey), expression.Value(partition))
	if sortPrefix != "" {
		key = key.And(expression.KeyBeginsWith(expression.Key(s.def.SortKey), sortPrefix))
	}
	return s.queryAll(ctx, key)
}

func (s *Store) QueryRange(ctx context.Context, partition, low, high string) ([]store.Item, error) {
	key := expression.KeyEqual(expression.Key(s.def.PartitionKey), expression.Value(partition)).
		And(expression.KeyBetween(expression.Key(s.def.SortKey), expression.Value(low), expression.Value(high)))
	return s.queryAll(ctx, key)
}

// queryAll drains all pages of a key-conditioned query. DynamoDB
// returns items in ascending sort-key order, which callers rely on.
func (s *Store) queryAll(ctx context.Context, key expression.KeyConditionBuilder) ([]store.Item, error) {
	expr, err := expression.NewBuilder().WithKeyCondition(key).Build()
	if err != nil {
		return nil, fmt.Errorf("build query expression: %w", err)
	}

	var items []store.Item
	var cursor map[string]types.AttributeValue
	for {
		res, err := s.client.Query(ctx, &dynamodbv2.QueryInput{
			TableName:                 aws.String(s.def.Name),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ConsistentRead:            ptr(true),
			ExclusiveStartKey:         cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("query: %w", err)
		}
		items = append(items, res.Items...)
		if res.LastEvaluatedKey == nil {
			return items, nil
		}
		cursor = res.LastEvaluatedKey
	}
}

func (s *Store) ScanAttribute(ctx context.Context, attribute, value string) ([]store.Item, error) {
	filter := expression.Equal(expression.Name(attribute), expression.Value(value))
	expr, err := expression.NewBuilder().WithFilter(filter).Build()
	if err != nil {
		return nil, fmt.Errorf("build scan expression: %w", err)
	}

	var items []store.Item
	var cursor map[string]types.AttributeValue
	for {
		res, err := s.client.Scan(ctx, &dynamodbv2.ScanInput{
			TableName:                 aws.String(s.def.Name),
			FilterExpression:          expr.Filter(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         cursor,
		})
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, res.Items...)
		if res.LastEvaluatedKey == nil {
			return items, nil
		}
		cursor = res.LastEvaluatedKey
	}
}

func (s *Store) Update(ctx context.Context, key store.Key, ops []store.UpdateOp, mustExist bool) (store.Item, error) {
	upd, err := buildUpdate(ops)
	if err != nil {
		return nil, err
	}
	b := expression.NewBuilder().WithUpdate(upd)
	if mustExist {
		b = b.WithCondition(expression.AttributeExists(expression.Name(s.def.PartitionKey)))
	}
	expr, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build update expression: %w", err)
	}

	res, err := s.client.UpdateItem(ctx, &dynamodbv2.UpdateItemInput{
		TableName:                 aws.String(s.def.Name),
		Key:                       s.def.KeyAttrs(key.Partition, key.Sort),
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionalCheckFailed(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update item: %w", err)
	}
	return res.Attributes, nil
}

func buildUpdate(ops []store.UpdateOp) (expression.UpdateBuilder, error) {
	var upd expression.UpdateBuilder
	for _, op := range ops {
		switch o := op.(type) {
		case store.SetOp:
			upd = upd.Set(expression.Name(o.Name), expression.Value(o.Value))
		case store.RemoveOp:
			upd = upd.Remove(expression.Name(o.Name))
		case store.AddOp:
			// ADD on a number attribute treats a missing attribute as 0,
			// which is exactly the counter-initialization semantics the
			// coupon usage counter needs.
			upd = upd.Add(expression.Name(o.Name), expression.Value(o.Delta))
		default:
			return expression.UpdateBuilder{}, fmt.Errorf("unsupported update op %T", op)
		}
	}
	return upd, nil
}

// DynamoDB caps BatchWriteItem at 25 operations per call.
const maxBatchSize = 25

func (s *Store) BatchWrite(ctx context.Context, ops ...store.WriteOp) (store.BatchResult, error) {
	var res store.BatchResult
	for start := 0; start < len(ops); start += maxBatchSize {
		end := min(start+maxBatchSize, len(ops))
		chunk := ops[start:end]

		reqs := make([]types.WriteRequest, 0, len(chunk))
		for _, op := range chunk {
			if op.IsDelete() {
				reqs = append(reqs, types.WriteRequest{
					DeleteRequest: &types.DeleteRequest{Key: s.def.KeyAttrs(op.Key.Partition, op.Key.Sort)},
				})
			} else {
				reqs = append(reqs, types.WriteRequest{
					PutRequest: &types.PutRequest{Item: s.withKeyAttrs(op.Key, op.Item)},
				})
			}
		}

		out, err := s.client.BatchWriteItem(ctx, &dynamodbv2.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{s.def.Name: reqs},
		})
		if err != nil {
			// Nothing in this chunk (or the ones after it) is known to
			// have applied; report all of it as unprocessed.
			res.Unprocessed = append(res.Unprocessed, ops[start:]...)
			return res, fmt.Errorf("batch write: %w", err)
		}
		unprocessed, err := s.unprocessedOps(out.UnprocessedItems[s.def.Name])
		if err != nil {
			return res, err
		}
		res.Unprocessed = append(res.Unprocessed, unprocessed...)
	}
	return res, nil
}

// unprocessedOps converts DynamoDB's unprocessed write requests back
// into WriteOps so callers can report or retry them.
func (s *Store) unprocessedOps(reqs []types.WriteRequest) ([]store.WriteOp, error) {
	var ops []store.WriteOp
	for _, req := range reqs {
		switch {
		case req.PutRequest != nil:
			part, sort, err := s.def.ExtractKey(req.PutRequest.Item)
			if err != nil {
				return nil, fmt.Errorf("unprocessed put: %w", err)
			}
			ops = append(ops, store.PutOp(store.Key{Partition: part, Sort: sort}, req.PutRequest.Item))
		case req.DeleteRequest != nil:
			part, sort, err := s.def.ExtractKey(req.DeleteRequest.Key)
			if err != nil {
				return nil, fmt.Errorf("unprocessed delete: %w", err)
			}
			ops = append(ops, store.DeleteOp(store.Key{Partition: part, Sort: sort}))
		}
	}
	return ops, nil
}

func (s *Store) withKeyAttrs(key store.Key, item store.Item) store.Item {
	out := make(store.Item, len(item)+2)
	for k, v := range item {
		out[k] = v
	}
	for k, v := range s.def.KeyAttrs(key.Partition, key.Sort) {
		out[k] = v
	}
	return out
}

func isConditionalCheckFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func ptr[T any](v T) *T { return &v }
