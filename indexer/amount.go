package indexer

import (
	"database/sql/driver"
	"fmt"
	"strconv"
)

// Amount is a u64 token amount persisted as decimal text. SQL integers are
// signed 64-bit, so the full u64 range does not fit a numeric column.
type Amount uint64

// GormDataType implements schema.GormDataTypeInterface.
func (Amount) GormDataType() string { return "text" }

func (a Amount) Value() (driver.Value, error) {
	return strconv.FormatUint(uint64(a), 10), nil
}

func (a *Amount) Scan(src interface{}) error {
	var text string
	switch v := src.(type) {
	case nil:
		*a = 0
		return nil
	case string:
		text = v
	case []byte:
		text = string(v)
	case int64:
		if v < 0 {
			return fmt.Errorf("indexer: negative amount %d", v)
		}
		*a = Amount(v)
		return nil
	default:
		return fmt.Errorf("indexer: unsupported amount type %T", src)
	}
	parsed, err := strconv.ParseUint(text, 10, 64)
	if err != nil {
		return fmt.Errorf("indexer: amount %q: %w", text, err)
	}
	*a = Amount(parsed)
	return nil
}
