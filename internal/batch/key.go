// Package batch resolves deferred collection properties for many owners with one grouped
// query per level, routing every result row back to its owner by key.
//
// A Session is the unit of work. Entities loaded through it get one DeferredCollection per
// mapped collection property; collections named by the load hints are registered into a
// PendingBatch, and the first read of any member executes the batch for all of them. When a
// batch resolves, the children's own hinted collections form the next PendingBatch, so a
// nested path such as "answers.tags" becomes a chain of independently retryable levels.
package batch

import (
	"fmt"
	"strconv"
)

// Key is the canonical, hashable form of an entity identity value.
type Key string

// KeyOf normalizes a driver or application identity value into a Key, so that 7, int64(7),
// "7" and []byte("7") route to the same owner. It reports false for nil.
func KeyOf(v any) (Key, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case Key:
		return t, t != ""
	case string:
		return Key(t), t != ""
	case []byte:
		return Key(t), len(t) > 0
	case int:
		return Key(strconv.FormatInt(int64(t), 10)), true
	case int32:
		return Key(strconv.FormatInt(int64(t), 10)), true
	case int64:
		return Key(strconv.FormatInt(t, 10)), true
	case uint:
		return Key(strconv.FormatUint(uint64(t), 10)), true
	case uint32:
		return Key(strconv.FormatUint(uint64(t), 10)), true
	case uint64:
		return Key(strconv.FormatUint(t, 10)), true
	case fmt.Stringer:
		return Key(t.String()), true
	default:
		return Key(fmt.Sprint(t)), true
	}
}

func (k Key) String() string {
	return string(k)
}
