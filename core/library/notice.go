package library

import (
	"time"

	"github.com/shopspring/decimal"
)

type NoticeKind string

const (
	NoticeNone    NoticeKind = "none"
	NoticeDueSoon NoticeKind = "due-soon"
	NoticeOverdue NoticeKind = "overdue"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

var (
	DefaultFeePerDay   = decimal.NewFromInt(3)
	DefaultDueSoonDays = 2
)

// Notice is the classification of a Borrowing at a given time.
type Notice struct {
	Kind          NoticeKind      `json:"kind"`
	DaysOverdue   int             `json:"days_overdue,omitempty"`   // overdue only, >= 1
	DaysRemaining int             `json:"days_remaining,omitempty"` // due-soon only
	Fee           decimal.Decimal `json:"fee"`                      // zero unless overdue
}

func (n Notice) NeedsAction() bool { return n.Kind != NoticeNone }

// Classifier classifies loans by how far their due date is.
type Classifier struct {
	FeePerDay   decimal.Decimal
	DueSoonDays int // inclusive upper bound of the due-soon window
}

func DefaultClassifier() Classifier {
	return Classifier{FeePerDay: DefaultFeePerDay, DueSoonDays: DefaultDueSoonDays}
}

// DaysUntilDue returns the whole days between now and dueDate, rounded away from zero:
// overdue by any fraction of a day is -1, due in 25 hours is 2, due exactly now is 0.
func DaysUntilDue(dueDate, now time.Time) int {
	diff := dueDate.Sub(now).Milliseconds()
	switch {
	case diff > 0:
		return int((diff + dayMillis - 1) / dayMillis)
	case diff < 0:
		return -int((-diff + dayMillis - 1) / dayMillis)
	}
	return 0
}

func (c Classifier) Classify(dueDate, now time.Time) Notice {
	days := DaysUntilDue(dueDate, now)
	switch {
	case days < 0:
		overdue := -days
		return Notice{
			Kind:        NoticeOverdue,
			DaysOverdue: overdue,
			Fee:         c.FeePerDay.Mul(decimal.NewFromInt(int64(overdue))),
		}
	case days <= c.DueSoonDays:
		return Notice{Kind: NoticeDueSoon, DaysRemaining: days}
	}
	return Notice{Kind: NoticeNone}
}

// Classify classifies with the default fee & due-soon window.
func Classify(dueDate, now time.Time) Notice {
	return DefaultClassifier().Classify(dueDate, now)
}
