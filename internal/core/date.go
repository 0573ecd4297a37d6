package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// StatementDateLayout is the day-first format of bank exports. Single
	// digit days and months are accepted.
	StatementDateLayout = "2/1/2006"
	ISODateLayout       = "2006-01-02"
)

// Date is a calendar day serialized as yyyy-mm-dd.
type Date struct {
	time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseStatementDate parses a dd/mm/yyyy date.
func ParseStatementDate(s string) (Date, error) {
	t, err := time.Parse(StatementDateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{t}, nil
}

// ParseISODate parses a yyyy-mm-dd date.
func ParseISODate(s string) (Date, error) {
	t, err := time.Parse(ISODateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{t}, nil
}

func (d Date) ISO() string {
	return d.Format(ISODateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.ISO())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, string(b))
	}
	parsed, err := ParseISODate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
