package library

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trezcool/schoolerp/core"
)

const (
	overdueTemplate = "library_overdue"
	dueSoonTemplate = "library_due_soon"

	dueDateLayout = "Jan 2, 2006"
)

// noticeData is handed to the email templates as `.Data`.
type noticeData struct {
	StudentName   string
	BookName      string
	BookCode      string
	DueDate       string
	DaysOverdue   int
	DaysRemaining int
	Fee           string
	FeePerDay     string
}

// dispatch is everything sent out for one loan: the email and its in-app mirror.
type dispatch struct {
	email        *core.EmailMessage
	notification Notification
}

func formatMoney(symbol string, amount decimal.Decimal) string {
	return symbol + amount.StringFixed(2)
}

func describeDueIn(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	}
	return fmt.Sprintf("in %d days", days)
}

// newDispatch renders the email & notification for a classified loan.
// It panics on NoticeNone: nothing is ever sent for those.
func (svc *Service) newDispatch(b Borrowing, profile Profile, notice Notice, now time.Time) dispatch {
	lib := svc.conf.Library
	data := noticeData{
		StudentName:   profile.DisplayName(),
		BookName:      b.Book.Name,
		BookCode:      b.Book.Code,
		DueDate:       b.DueDate.Format(dueDateLayout),
		DaysOverdue:   notice.DaysOverdue,
		DaysRemaining: notice.DaysRemaining,
		Fee:           formatMoney(lib.CurrencySymbol, notice.Fee),
		FeePerDay:     formatMoney(lib.CurrencySymbol, svc.classifier.FeePerDay),
	}

	email := &core.EmailMessage{
		To:           []mail.Address{{Name: profile.Name, Address: profile.Email}},
		TemplateData: data,
	}
	note := Notification{
		ID:        uuid.New().String(),
		UserID:    profile.UserID,
		Type:      NotificationTypeLibrary,
		ActionURL: lib.ActionURL,
		CreatedAt: now.UTC(),
	}

	switch notice.Kind {
	case NoticeOverdue:
		email.TemplateName = overdueTemplate
		email.Subject = fmt.Sprintf("Overdue book: %s (fee %s)", data.BookName, data.Fee)
		note.Title = "Library book overdue"
		note.Priority = PriorityHigh
		note.Message = fmt.Sprintf(
			"%q (%s) was due on %s and is %d day(s) overdue. Accrued late fee: %s. Please return it as soon as possible.",
			data.BookName, data.BookCode, data.DueDate, data.DaysOverdue, data.Fee)
	case NoticeDueSoon:
		email.TemplateName = dueSoonTemplate
		email.Subject = fmt.Sprintf("Reminder: %s is due %s", data.BookName, describeDueIn(data.DaysRemaining))
		note.Title = "Library book due soon"
		note.Priority = PriorityNormal
		note.Message = fmt.Sprintf(
			"%q (%s) is due %s (%s). Late returns are charged %s per day.",
			data.BookName, data.BookCode, describeDueIn(data.DaysRemaining), data.DueDate, data.FeePerDay)
	default:
		panic(fmt.Sprintf("library: no dispatch for %q notice", notice.Kind))
	}

	return dispatch{email: email, notification: note}
}
