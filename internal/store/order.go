package store

import (
	"sort"
	"time"
)

var epoch = time.Unix(0, 0).UTC()

// sortDocuments orders items in place. Supported keys are created_date and
// average_rating, each optionally prefixed with "-" for descending order.
func sortDocuments(items []Document, orderBy string) {
	desc := len(orderBy) > 0 && orderBy[0] == '-'
	field := orderBy
	if desc {
		field = orderBy[1:]
	}

	var less func(a, b Document) bool
	switch field {
	case FieldCreatedDate:
		less = func(a, b Document) bool { return createdAt(a).Before(createdAt(b)) }
	case "average_rating":
		less = func(a, b Document) bool { return number(a["average_rating"]) < number(b["average_rating"]) }
	default:
		return
	}

	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return less(items[j], items[i])
		}
		return less(items[i], items[j])
	})
}

// createdAt parses the creation timestamp. Missing or unparseable values sort
// as the Unix epoch.
func createdAt(d Document) time.Time {
	for _, f := range []string{FieldCreatedDate, FieldCreatedAt} {
		if s, ok := d[f].(string); ok && s != "" {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				return t
			}
			return epoch
		}
	}
	return epoch
}

func number(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}
