package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type (
	// Transaction is a single outgoing money movement, as stored.
	Transaction struct {
		ID          string // Source-assigned, unique per account
		AccountRef  string
		Amount      decimal.Decimal // Always positive
		PostedOn    time.Time       // Calendar date, UTC midnight
		Description string
	}

	// User maps a person to the upstream account their history is fetched from.
	User struct {
		ID         string
		Email      string
		AccountRef string
		CreatedAt  time.Time
	}

	// DateRange is an inclusive range of calendar dates.
	DateRange struct {
		Start time.Time
		End   time.Time
	}
)

// NewDate returns the UTC midnight for the given calendar date.
func NewDate(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// TruncateDay drops the clock part of t, keeping its calendar date.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(dateLayout)
}

func (t Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("transaction id cannot be empty")
	}
	if t.PostedOn.IsZero() {
		return errors.New("transaction date cannot be zero")
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("%w: transaction %s has amount %s", ErrInvalidAmount, t.ID, t.Amount)
	}
	return nil
}

func (u User) Validate() error {
	email := strings.TrimSpace(u.Email)
	if email == "" {
		return errors.New("email cannot be empty")
	}
	if !strings.Contains(email, "@") {
		return fmt.Errorf("invalid email %q", u.Email)
	}
	if strings.TrimSpace(u.AccountRef) == "" {
		return errors.New("account reference cannot be empty")
	}
	return nil
}

// Validate reports ErrInvalidRange when either bound is missing or Start is after End.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: both bounds are required", ErrInvalidRange)
	}
	if TruncateDay(r.Start).After(TruncateDay(r.End)) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, FormatDate(r.Start), FormatDate(r.End))
	}
	return nil
}

// Contains reports whether the calendar date of t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := TruncateDay(t)
	return !d.Before(TruncateDay(r.Start)) && !d.After(TruncateDay(r.End))
}

func (r DateRange) String() string {
	return FormatDate(r.Start) + ".." + FormatDate(r.End)
}

// Months returns every calendar month touched by the range, in order.
func (r DateRange) Months() []MonthKey {
	first := MonthOf(r.Start)
	last := MonthOf(r.End)
	if last.Index() < first.Index() {
		return nil
	}
	months := make([]MonthKey, 0, last.Index()-first.Index()+1)
	for m := first; m.Index() <= last.Index(); m = m.Next() {
		months = append(months, m)
	}
	return months
}

// LastMonths returns the range covering the n calendar months ending with the month of end.
func LastMonths(end time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	first := MonthOf(end).Add(-(n - 1))
	return DateRange{Start: first.FirstDay(), End: TruncateDay(end)}
}
