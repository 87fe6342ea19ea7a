package mergetree

import (
	"stratadb/catalog"
	"stratadb/core"
)

// prunePartsByDate retains only parts whose [LeftDate, RightDate] bound
// may satisfy the date condition. The date condition is built from the
// same WHERE tree as the key condition, restricted to the table's date
// column with key arity 1.
func prunePartsByDate(parts []*catalog.Part, dateCondition *KeyCondition) []*catalog.Part {
	selected := make([]*catalog.Part, 0, len(parts))
	for _, part := range parts {
		lo := []core.Value{part.LeftDate}
		hi := []core.Value{part.RightDate}
		if dateCondition.MayBeTrueInRange(lo, hi) {
			selected = append(selected, part)
		}
	}
	return selected
}
