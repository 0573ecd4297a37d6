package classify

import (
	"fmt"

	"moviments/internal/core"
)

// ResolveMonth finds the month category for a dd/mm/yyyy date. Labels are
// matched as "May 2025" first and "May" second. Unparseable dates resolve
// to "".
func ResolveMonth(date string, months []core.Category) string {
	d, err := core.ParseStatementDate(date)
	if err != nil {
		return ""
	}
	return monthFor(d, months)
}

func monthFor(d core.Date, months []core.Category) string {
	name := d.Month().String()
	full := fmt.Sprintf("%s %d", name, d.Year())
	for _, m := range months {
		if m.Name == full {
			return m.ID
		}
	}
	for _, m := range months {
		if m.Name == name {
			return m.ID
		}
	}
	return ""
}
