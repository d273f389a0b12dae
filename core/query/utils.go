package query

import "strconv"

// IntPtr is a helper function that returns a pointer to an int.
func IntPtr(i int) *int {
	return &i
}

// ToInt converts a value of various numeric types to an int. It returns the
// converted value and whether the conversion was successful. Drivers report
// COUNT results as int64 and some as []byte, so all are accepted.
func ToInt(v any) (int, bool) {
	switch val := v.(type) {
	case int:
		return val, true
	case int8:
		return int(val), true
	case int16:
		return int(val), true
	case int32:
		return int(val), true
	case int64:
		return int(val), true
	case uint32:
		return int(val), true
	case uint64:
		return int(val), true
	case float32:
		return int(val), true
	case float64:
		return int(val), true
	case []byte:
		i, err := strconv.Atoi(string(val))
		return i, err == nil
	case string:
		i, err := strconv.Atoi(val)
		return i, err == nil
	default:
		return 0, false
	}
}
