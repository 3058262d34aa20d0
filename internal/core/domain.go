package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

type (
	// Date is a calendar date without a time component, stored at UTC midnight.
	Date struct {
		time.Time
	}

	// Goal is a tracked savings target.
	Goal struct {
		ID           string `json:"id"`
		Name         string `json:"name"`
		Category     string `json:"category"`
		TargetAmount Money  `json:"targetAmount"`
		SavedAmount  Money  `json:"savedAmount"`
		Deadline     Date   `json:"deadline"`
		CreatedAt    Date   `json:"createdAt"`
	}

	// Draft is a goal creation request. It has no ID and no saved amount:
	// new goals always start at zero.
	Draft struct {
		Name         string `json:"name"`
		Category     string `json:"category"`
		TargetAmount Money  `json:"targetAmount"`
		Deadline     Date   `json:"deadline"`
		CreatedAt    Date   `json:"createdAt"`
	}

	// Patch is a partial update. Nil fields are left untouched.
	Patch struct {
		Name         *string `json:"name,omitempty"`
		Category     *string `json:"category,omitempty"`
		TargetAmount *Money  `json:"targetAmount,omitempty"`
		SavedAmount  *Money  `json:"savedAmount,omitempty"`
		Deadline     *Date   `json:"deadline,omitempty"`
	}
)

var (
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrNegativeAmount  = errors.New("amount cannot be negative")
	ErrEmptyName       = errors.New("empty goal name")
	ErrNameTooLong     = errors.New("goal name too long (max 200 characters)")
	ErrMissingDeadline = errors.New("missing deadline")
	ErrInvalidDate     = errors.New("invalid date")
)

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar date in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// Today returns the current local calendar date.
func Today() Date {
	return DateOf(time.Now())
}

// ParseDate parses a date string in YYYY-MM-DD format.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// DaysUntil returns the number of whole days from d to other.
// It is negative when other is before d.
func (d Date) DaysUntil(other Date) int {
	return int(other.Time.Sub(d.Time) / (24 * time.Hour))
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format(dateLayout) + `"`), nil
}

// UnmarshalJSON accepts "YYYY-MM-DD" as well as full RFC 3339 timestamps,
// which some persistence services return for date columns.
func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(dateLayout, s); err == nil {
		*d = Date{Time: t}
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	*d = DateOf(t)
	return nil
}

// Goal builds the goal a draft describes. SavedAmount is always zero.
func (d Draft) Goal(id string) Goal {
	return Goal{
		ID:           id,
		Name:         strings.TrimSpace(d.Name),
		Category:     strings.TrimSpace(d.Category),
		TargetAmount: d.TargetAmount,
		SavedAmount:  Zero(),
		Deadline:     d.Deadline,
		CreatedAt:    d.CreatedAt,
	}
}

func (d Draft) Validate() error {
	return validateFields(d.Name, d.TargetAmount, Zero(), d.Deadline)
}

func (g Goal) Validate() error {
	return validateFields(g.Name, g.TargetAmount, g.SavedAmount, g.Deadline)
}

// Completed reports whether the saved amount reached the target.
func (g Goal) Completed() bool {
	return g.SavedAmount.Cmp(g.TargetAmount.Decimal) >= 0
}

// Apply returns a copy of g with the patch applied. CreatedAt and ID never change.
func (p Patch) Apply(g Goal) Goal {
	if p.Name != nil {
		g.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		g.Category = strings.TrimSpace(*p.Category)
	}
	if p.TargetAmount != nil {
		g.TargetAmount = *p.TargetAmount
	}
	if p.SavedAmount != nil {
		g.SavedAmount = *p.SavedAmount
	}
	if p.Deadline != nil {
		g.Deadline = *p.Deadline
	}
	return g
}

// Rebase returns a patch touching the same fields as p, with the values
// taken from g.
func (p Patch) Rebase(g Goal) Patch {
	var out Patch
	if p.Name != nil {
		out.Name = &g.Name
	}
	if p.Category != nil {
		out.Category = &g.Category
	}
	if p.TargetAmount != nil {
		out.TargetAmount = &g.TargetAmount
	}
	if p.SavedAmount != nil {
		out.SavedAmount = &g.SavedAmount
	}
	if p.Deadline != nil {
		out.Deadline = &g.Deadline
	}
	return out
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.Category == nil && p.TargetAmount == nil &&
		p.SavedAmount == nil && p.Deadline == nil
}

func validateFields(name string, target, saved Money, deadline Date) error {
	if len(strings.TrimSpace(name)) == 0 {
		return ErrEmptyName
	}
	if len(name) > 200 {
		return ErrNameTooLong
	}
	if err := target.Validate(); err != nil {
		return fmt.Errorf("target amount: %w", err)
	}
	if err := saved.Validate(); err != nil {
		return fmt.Errorf("saved amount: %w", err)
	}
	if deadline.IsZero() {
		return ErrMissingDeadline
	}
	return nil
}
