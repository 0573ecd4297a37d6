package classify

import (
	"strings"

	"moviments/internal/core"
)

// ResolveCategory returns the id of the reference category named by the
// first keyword found in text. A keyword whose category is missing from refs
// does not count as a match. It returns "" when nothing matches;
// uncategorized is not an error.
func ResolveCategory(text string, table KeywordTable, refs []core.Category) string {
	lower := strings.ToLower(text)
	for _, rule := range table {
		if !strings.Contains(lower, rule.Keyword) {
			continue
		}
		if c, ok := findByName(refs, rule.Category); ok {
			return c.ID
		}
	}
	return ""
}

func findByName(refs []core.Category, name string) (core.Category, bool) {
	for _, c := range refs {
		if strings.EqualFold(c.Name, name) {
			return c, true
		}
	}
	return core.Category{}, false
}

// DefaultAccount picks the account named preferred, else the first account.
func DefaultAccount(accounts []core.Category, preferred string) string {
	for _, a := range accounts {
		if a.Name == preferred {
			return a.ID
		}
	}
	if len(accounts) > 0 {
		return accounts[0].ID
	}
	return ""
}
