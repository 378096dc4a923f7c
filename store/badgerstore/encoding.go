package badgerstore

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/mrsandwich/backoffice/store"
)

// Badger key layout: [table][0x00][partition][0x00][sort].
// Both key parts are strings in this schema, so byte order of the
// encoded key equals sort-key order within a partition, which prefix
// iteration depends on.
const keySeparator byte = 0x00

func encodeKey(tableName string, key store.Key) []byte {
	var buf bytes.Buffer
	buf.WriteString(tableName)
	buf.WriteByte(keySeparator)
	buf.WriteString(key.Partition)
	buf.WriteByte(keySeparator)
	buf.WriteString(key.Sort)
	return buf.Bytes()
}

func partitionPrefix(tableName, partition string) []byte {
	var buf bytes.Buffer
	buf.WriteString(tableName)
	buf.WriteByte(keySeparator)
	buf.WriteString(partition)
	buf.WriteByte(keySeparator)
	return buf.Bytes()
}

func tablePrefix(tableName string) []byte {
	return append([]byte(tableName), keySeparator)
}

// sortFromKey recovers the sort-key portion of an encoded badger key.
func sortFromKey(encoded []byte) (string, error) {
	parts := bytes.SplitN(encoded, []byte{keySeparator}, 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("malformed badger key %q", encoded)
	}
	return string(parts[2]), nil
}

// encodedAV is a JSON-encodable representation of an AttributeValue.
// Only the attribute kinds this service writes are supported.
type encodedAV struct {
	S    *string              `json:"s,omitempty"`
	N    *string              `json:"n,omitempty"`
	B    []byte               `json:"b,omitempty"`
	Bool *bool                `json:"bool,omitempty"`
	Null bool                 `json:"null,omitempty"`
	L    []encodedAV          `json:"l,omitempty"`
	M    map[string]encodedAV `json:"m,omitempty"`
	SS   []string             `json:"ss,omitempty"`
	NS   []string             `json:"ns,omitempty"`
}

func serializeItem(item store.Item) ([]byte, error) {
	enc := make(map[string]encodedAV, len(item))
	for k, v := range item {
		e, err := toEncoded(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		enc[k] = e
	}
	return json.Marshal(enc)
}

func deserializeItem(data []byte) (store.Item, error) {
	var enc map[string]encodedAV
	if err := json.Unmarshal(data, &enc); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	item := make(store.Item, len(enc))
	for k, v := range enc {
		item[k] = fromEncoded(v)
	}
	return item, nil
}

func toEncoded(av types.AttributeValue) (encodedAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return encodedAV{S: &v.Value}, nil
	case *types.AttributeValueMemberN:
		return encodedAV{N: &v.Value}, nil
	case *types.AttributeValueMemberB:
		return encodedAV{B: v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return encodedAV{Bool: &v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return encodedAV{Null: true}, nil
	case *types.AttributeValueMemberSS:
		return encodedAV{SS: v.Value}, nil
	case *types.AttributeValueMemberNS:
		return encodedAV{NS: v.Value}, nil
	case *types.AttributeValueMemberL:
		l := make([]encodedAV, len(v.Value))
		for i, el := range v.Value {
			e, err := toEncoded(el)
			if err != nil {
				return encodedAV{}, err
			}
			l[i] = e
		}
		return encodedAV{L: l}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]encodedAV, len(v.Value))
		for k, el := range v.Value {
			e, err := toEncoded(el)
			if err != nil {
				return encodedAV{}, err
			}
			m[k] = e
		}
		return encodedAV{M: m}, nil
	default:
		return encodedAV{}, fmt.Errorf("unsupported attribute value %T", av)
	}
}

func fromEncoded(e encodedAV) types.AttributeValue {
	switch {
	case e.S != nil:
		return &types.AttributeValueMemberS{Value: *e.S}
	case e.N != nil:
		return &types.AttributeValueMemberN{Value: *e.N}
	case e.B != nil:
		return &types.AttributeValueMemberB{Value: e.B}
	case e.Bool != nil:
		return &types.AttributeValueMemberBOOL{Value: *e.Bool}
	case e.Null:
		return &types.AttributeValueMemberNULL{Value: true}
	case e.SS != nil:
		return &types.AttributeValueMemberSS{Value: e.SS}
	case e.NS != nil:
		return &types.AttributeValueMemberNS{Value: e.NS}
	case e.L != nil:
		l := make([]types.AttributeValue, len(e.L))
		for i, el := range e.L {
			l[i] = fromEncoded(el)
		}
		return &types.AttributeValueMemberL{Value: l}
	case e.M != nil:
		m := make(map[string]types.AttributeValue, len(e.M))
		for k, el := range e.M {
			m[k] = fromEncoded(el)
		}
		return &types.AttributeValueMemberM{Value: m}
	default:
		// Zero value round-trips as an empty list; should not happen
		// for items this service writes.
		return &types.AttributeValueMemberNULL{Value: true}
	}
}
