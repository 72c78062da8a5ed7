package cosem

import (
	"cmp"
	"fmt"
)

// Compare orders two values. Numeric kinds compare by mathematical value
// regardless of width or signedness. Time-like kinds compare with
// DateTime.Compare, Date.Compare or Time.Compare; an octet-string of the
// matching size stands in for a date-time, date or time. Any other
// combination fails with ErrNotComparable.
func Compare(a, b Value) (int, error) {
	switch {
	case a.tag.IsNumeric() && b.tag.IsNumeric():
		return compareNumbers(a, b), nil
	case a.tag == TagDateTime || b.tag == TagDateTime:
		x, okA := a.DateTime()
		y, okB := b.DateTime()
		if okA && okB {
			return x.Compare(y), nil
		}
	case a.tag == TagDate || b.tag == TagDate:
		x, okA := a.Date()
		y, okB := b.Date()
		if okA && okB {
			return x.Compare(y), nil
		}
	case a.tag == TagTime || b.tag == TagTime:
		x, okA := a.Time()
		y, okB := b.Time()
		if okA && okB {
			return x.Compare(y), nil
		}
	}
	return 0, fmt.Errorf("%w: %s and %s", ErrNotComparable, a.tag, b.tag)
}

func compareNumbers(a, b Value) int {
	if a.tag.IsFloat() || b.tag.IsFloat() {
		x, _ := a.Float()
		y, _ := b.Float()
		return cmp.Compare(x, y)
	}
	// Both integers: a negative signed value is below every unsigned one.
	if x, ok := a.v.(int64); ok && x < 0 {
		if y, ok := b.v.(int64); ok {
			return cmp.Compare(x, y)
		}
		return -1
	}
	if y, ok := b.v.(int64); ok && y < 0 {
		return 1
	}
	x, _ := a.Uint()
	y, _ := b.Uint()
	return cmp.Compare(x, y)
}
