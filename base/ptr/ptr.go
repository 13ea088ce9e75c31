package ptr

import "time"

// Time returns a pointer to a copy of value
func Time(value time.Time) *time.Time {
	return &value
}
