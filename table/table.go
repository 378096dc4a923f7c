package table

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// TableDefinition describes the single table all entity kinds live in.
// Both key attributes are strings: the partition key groups records per
// logical entity (CUSTOMER#<id>, COUPON#<code>, ...) and the sort key
// orders records within the partition.
type TableDefinition struct {
	Name         string
	PartitionKey string
	SortKey      string
}

// Default is the layout used by every deployment of this service. The
// table name itself is configuration; the key attribute names are not.
func Default(name string) TableDefinition {
	return TableDefinition{
		Name:         name,
		PartitionKey: "PK",
		SortKey:      "SK",
	}
}

// KeyAttrs builds the DynamoDB key attribute map for a record.
func (t TableDefinition) KeyAttrs(partition, sort string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		t.PartitionKey: &types.AttributeValueMemberS{Value: partition},
		t.SortKey:      &types.AttributeValueMemberS{Value: sort},
	}
}

// ExtractKey reads the key attributes back out of a stored item.
func (t TableDefinition) ExtractKey(item map[string]types.AttributeValue) (partition, sort string, err error) {
	partition, err = stringAttr(item, t.PartitionKey)
	if err != nil {
		return "", "", fmt.Errorf("partition key: %w", err)
	}
	sort, err = stringAttr(item, t.SortKey)
	if err != nil {
		return "", "", fmt.Errorf("sort key: %w", err)
	}
	return partition, sort, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) (string, error) {
	av, ok := item[name]
	if !ok {
		return "", fmt.Errorf("attribute %q not found", name)
	}
	s, ok := av.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is %T, want string", name, av)
	}
	return s.Value, nil
}
