package pnl

// dedupKey identifies one ledger fact inside a scope. The amount is held in
// its trimmed decimal form so 1000 and 1000.00 collide.
type dedupKey struct {
	category    string
	subcategory string
	glAccount   string
	amount      string
}

func keyOf(li LineItem) dedupKey {
	return dedupKey{
		category:    li.Category,
		subcategory: li.Subcategory,
		glAccount:   li.GLAccount,
		amount:      li.Amount.String(),
	}
}

// Deduplicate splits items into the first occurrence of each fact and the
// repeats, both in input order. Scope fields and ImportID are ignored.
func Deduplicate(items []LineItem) (kept, duplicates []LineItem) {
	seen := make(map[dedupKey]struct{}, len(items))
	kept = make([]LineItem, 0, len(items))
	for _, li := range items {
		k := keyOf(li)
		if _, ok := seen[k]; ok {
			duplicates = append(duplicates, li)
			continue
		}
		seen[k] = struct{}{}
		kept = append(kept, li)
	}
	return kept, duplicates
}
