package ddbstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"math"
	"strconv"

	"github.com/acksell/ddbseed/dynamodb/table"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Key layout in badger:
//
//	table item:  <table> 0x00 <pk> 0x00 <sk>
//	index entry: <table> $gsi: <index> 0x00 <gsi pk> 0x00 <gsi sk> 0x00 <pk> 0x00 <sk>
//	catalog:     $catalog 0x00 <table>
//
// Index entries carry the table key so that items sharing an index key do not
// overwrite each other. Table and index names are limited to [A-Za-z0-9_.-]
// (checkName), so they never contain '$' or 0x00 and the three key spaces
// never overlap.

const (
	keySeparator  byte = 0x00
	gsiMarker          = "$gsi:"
	catalogPrefix      = "$catalog\x00"
)

const (
	keyTypeString byte = 'S'
	keyTypeNumber byte = 'N'
	keyTypeBinary byte = 'B'
)

func tablePrefix(tableName string) []byte {
	return append([]byte(tableName), keySeparator)
}

func indexPrefix(tableName, indexName string) []byte {
	return append([]byte(tableName+gsiMarker+indexName), keySeparator)
}

func catalogKey(tableName string) []byte {
	return []byte(catalogPrefix + tableName)
}

// encodeKey appends each primary key to prefix in order.
func encodeKey(prefix []byte, keys ...table.PrimaryKey) ([]byte, error) {
	buf := bytes.NewBuffer(append([]byte(nil), prefix...))
	for i, pk := range keys {
		if i > 0 {
			buf.WriteByte(keySeparator)
		}
		pkBytes, err := encodeKeyValue(pk.Values.PartitionKey, pk.Definition.PartitionKey.Kind)
		if err != nil {
			return nil, fmt.Errorf("encode partition key: %w", err)
		}
		buf.Write(pkBytes)
		buf.WriteByte(keySeparator)
		if pk.Definition.HasSortKey() {
			skBytes, err := encodeKeyValue(pk.Values.SortKey, pk.Definition.SortKey.Kind)
			if err != nil {
				return nil, fmt.Errorf("encode sort key: %w", err)
			}
			buf.Write(skBytes)
		}
	}
	return buf.Bytes(), nil
}

func encodeKeyValue(value any, kind table.KeyKind) ([]byte, error) {
	var buf bytes.Buffer
	switch kind {
	case table.KeyKindS:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected string for S key, got %T", value)
		}
		buf.WriteByte(keyTypeString)
		buf.Write(escapeBytes([]byte(s)))
	case table.KeyKindN:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("expected number string for N key, got %T", value)
		}
		encoded, err := encodeNumber(s)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(keyTypeNumber)
		buf.Write(encoded)
	case table.KeyKindB:
		b, ok := value.([]byte)
		if !ok {
			return nil, fmt.Errorf("expected bytes for B key, got %T", value)
		}
		buf.WriteByte(keyTypeBinary)
		buf.Write(escapeBytes(b))
	default:
		return nil, fmt.Errorf("unsupported key kind: %s", kind)
	}
	return buf.Bytes(), nil
}

// encodeNumber maps a number onto 9 bytes that sort in numeric order:
// a sign byte followed by the big-endian float64 bits, inverted for negatives.
func encodeNumber(numStr string) ([]byte, error) {
	f, err := strconv.ParseFloat(numStr, 64)
	if err != nil {
		return nil, fmt.Errorf("parse number %q: %w", numStr, err)
	}
	bits := math.Float64bits(f)
	buf := make([]byte, 9)
	if f >= 0 {
		buf[0] = 0x80
		bits ^= 1 << 63
	} else {
		buf[0] = 0x7F
		bits = ^bits
	}
	binary.BigEndian.PutUint64(buf[1:], bits)
	return buf, nil
}

// escapeBytes keeps 0x00 out of encoded values: 0x00 becomes 0x01 0x01 and
// 0x01 becomes 0x01 0x02.
func escapeBytes(b []byte) []byte {
	var buf bytes.Buffer
	for _, c := range b {
		switch c {
		case 0x00:
			buf.Write([]byte{0x01, 0x01})
		case 0x01:
			buf.Write([]byte{0x01, 0x02})
		default:
			buf.WriteByte(c)
		}
	}
	return buf.Bytes()
}

// storedAV is the gob form of an AttributeValue.
type storedAV struct {
	Type  string
	Value any
}

func init() {
	gob.Register(map[string]storedAV{})
	gob.Register([]storedAV{})
	gob.Register([][]byte{})
}

func serializeItem(item map[string]types.AttributeValue) ([]byte, error) {
	stored := make(map[string]storedAV, len(item))
	for k, v := range item {
		sav, err := toStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		stored[k] = sav
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(stored); err != nil {
		return nil, fmt.Errorf("encode item: %w", err)
	}
	return buf.Bytes(), nil
}

func deserializeItem(data []byte) (map[string]types.AttributeValue, error) {
	var stored map[string]storedAV
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&stored); err != nil {
		return nil, fmt.Errorf("decode item: %w", err)
	}
	item := make(map[string]types.AttributeValue, len(stored))
	for k, v := range stored {
		av, err := fromStored(v)
		if err != nil {
			return nil, fmt.Errorf("attribute %q: %w", k, err)
		}
		item[k] = av
	}
	return item, nil
}

func toStored(av types.AttributeValue) (storedAV, error) {
	switch v := av.(type) {
	case *types.AttributeValueMemberS:
		return storedAV{"S", v.Value}, nil
	case *types.AttributeValueMemberN:
		return storedAV{"N", v.Value}, nil
	case *types.AttributeValueMemberB:
		return storedAV{"B", v.Value}, nil
	case *types.AttributeValueMemberBOOL:
		return storedAV{"BOOL", v.Value}, nil
	case *types.AttributeValueMemberNULL:
		return storedAV{"NULL", v.Value}, nil
	case *types.AttributeValueMemberSS:
		return storedAV{"SS", v.Value}, nil
	case *types.AttributeValueMemberNS:
		return storedAV{"NS", v.Value}, nil
	case *types.AttributeValueMemberBS:
		return storedAV{"BS", v.Value}, nil
	case *types.AttributeValueMemberM:
		m := make(map[string]storedAV, len(v.Value))
		for k, val := range v.Value {
			sav, err := toStored(val)
			if err != nil {
				return storedAV{}, err
			}
			m[k] = sav
		}
		return storedAV{"M", m}, nil
	case *types.AttributeValueMemberL:
		l := make([]storedAV, len(v.Value))
		for i, val := range v.Value {
			sav, err := toStored(val)
			if err != nil {
				return storedAV{}, err
			}
			l[i] = sav
		}
		return storedAV{"L", l}, nil
	default:
		return storedAV{}, fmt.Errorf("unsupported attribute value type %T", av)
	}
}

func fromStored(sav storedAV) (types.AttributeValue, error) {
	switch sav.Type {
	case "S":
		return &types.AttributeValueMemberS{Value: sav.Value.(string)}, nil
	case "N":
		return &types.AttributeValueMemberN{Value: sav.Value.(string)}, nil
	case "B":
		return &types.AttributeValueMemberB{Value: sav.Value.([]byte)}, nil
	case "BOOL":
		return &types.AttributeValueMemberBOOL{Value: sav.Value.(bool)}, nil
	case "NULL":
		return &types.AttributeValueMemberNULL{Value: sav.Value.(bool)}, nil
	case "SS":
		return &types.AttributeValueMemberSS{Value: sav.Value.([]string)}, nil
	case "NS":
		return &types.AttributeValueMemberNS{Value: sav.Value.([]string)}, nil
	case "BS":
		return &types.AttributeValueMemberBS{Value: sav.Value.([][]byte)}, nil
	case "M":
		src := sav.Value.(map[string]storedAV)
		m := make(map[string]types.AttributeValue, len(src))
		for k, v := range src {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			m[k] = av
		}
		return &types.AttributeValueMemberM{Value: m}, nil
	case "L":
		src := sav.Value.([]storedAV)
		l := make([]types.AttributeValue, len(src))
		for i, v := range src {
			av, err := fromStored(v)
			if err != nil {
				return nil, err
			}
			l[i] = av
		}
		return &types.AttributeValueMemberL{Value: l}, nil
	default:
		return nil, fmt.Errorf("unsupported stored type %q", sav.Type)
	}
}
