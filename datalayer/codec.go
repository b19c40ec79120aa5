package datalayer

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// encodeValue converts an attribute value into a driver argument.
func encodeValue(attr Attribute, value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch attr.Type {
	case TypeJSON:
		encoded, err := jsonAPI.MarshalToString(value)
		if err != nil {
			return nil, errors.Join(ErrEncodingValueFailed, fmt.Errorf("attribute %q: %w", attr.Name, err))
		}

		return encoded, nil

	case TypeTimestamp:
		if t, ok := value.(time.Time); ok {
			return t.UTC(), nil
		}

		return value, nil

	case TypeUUID:
		if u, ok := value.(uuid.UUID); ok {
			return u.String(), nil
		}

		return value, nil

	default:
		return value, nil
	}
}

// decodeValue converts a raw column value into the attribute's Go representation:
// int64, string, bool, float64, time.Time, or a decoded JSON value.
func decodeValue(attr Attribute, raw any) (any, error) {
	if raw == nil {
		return nil, nil
	}

	value, err := decodeByType(attr.Type, raw)
	if err != nil {
		return nil, errors.Join(ErrDecodingValueFailed, fmt.Errorf("attribute %q: %w", attr.Name, err))
	}

	return value, nil
}

func decodeByType(t StorageType, raw any) (any, error) {
	switch t {
	case TypeInteger, TypeBigInt:
		return toInt64(raw)

	case TypeBoolean:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case int64:
			return v != 0, nil
		case []byte:
			return strconv.ParseBool(string(v))
		case string:
			return strconv.ParseBool(v)
		}

	case TypeFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case []byte:
			return strconv.ParseFloat(string(v), 64)
		case string:
			return strconv.ParseFloat(v, 64)
		}

	case TypeTimestamp:
		switch v := raw.(type) {
		case time.Time:
			return v.UTC(), nil
		case []byte:
			return parseTimestamp(string(v))
		case string:
			return parseTimestamp(v)
		}

	case TypeJSON:
		switch v := raw.(type) {
		case []byte:
			return unmarshalJSON(v)
		case string:
			return unmarshalJSON([]byte(v))
		default:
			return v, nil
		}

	case TypeUUID:
		switch v := raw.(type) {
		case [16]byte:
			return uuid.UUID(v).String(), nil
		case []byte:
			return string(v), nil
		case string:
			return v, nil
		}

	default:
		switch v := raw.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		default:
			return fmt.Sprint(v), nil
		}
	}

	return nil, fmt.Errorf("unexpected %T for %s column", raw, t)
}

func toInt64(raw any) (int64, error) {
	switch v := raw.(type) {
	case int64:
		return v, nil
	case int32:
		return int64(v), nil
	case int:
		return int64(v), nil
	case float64:
		return int64(v), nil
	case []byte:
		return strconv.ParseInt(string(v), 10, 64)
	case string:
		return strconv.ParseInt(v, 10, 64)
	default:
		return 0, fmt.Errorf("unexpected %T for integer column", raw)
	}
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unparsable timestamp %q", s)
}

func unmarshalJSON(b []byte) (any, error) {
	var out any
	if err := jsonAPI.Unmarshal(b, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// normalizeValue brings a caller-supplied value into the representation decodeValue produces,
// so before-images and reloaded values compare equal.
func normalizeValue(attr Attribute, value any) any {
	if value == nil {
		return nil
	}

	switch attr.Type {
	case TypeInteger, TypeBigInt:
		switch v := value.(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case uint:
			return int64(v)
		case uint32:
			return int64(v)
		}

	case TypeFloat:
		switch v := value.(type) {
		case float32:
			return float64(v)
		case int:
			return float64(v)
		}

	case TypeTimestamp:
		if t, ok := value.(time.Time); ok {
			return t.UTC().Truncate(time.Microsecond)
		}

	case TypeUUID:
		if u, ok := value.(uuid.UUID); ok {
			return u.String()
		}
	}

	return value
}
