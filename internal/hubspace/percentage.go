package hubspace

// Ordinal percentage mapping over an ordered token list. An item's percentage
// is its 1-based position scaled to 0–100 with integer division, so a 3-speed
// fan maps to 33/66/100.

// orderedListItemToPercentage returns the percentage of an item inside an
// ordered list, or false when the item is not in the list.
func orderedListItemToPercentage(list []string, item string) (int, bool) {
	for i, v := range list {
		if v == item {
			return (i + 1) * 100 / len(list), true
		}
	}
	return 0, false
}

// percentageToOrderedListItem returns the list item covering the given
// percentage position. Values above every bucket clamp to the last item;
// an empty list yields false.
func percentageToOrderedListItem(list []string, percentage float64) (string, bool) {
	if len(list) == 0 {
		return "", false
	}
	for i, v := range list {
		upper := (i + 1) * 100 / len(list)
		if percentage <= float64(upper) {
			return v, true
		}
	}
	return list[len(list)-1], true
}
