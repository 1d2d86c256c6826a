package library

import (
	"context"
	"fmt"
	"sync"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/schoolerp/core"
)

// Failure stages
const (
	StageResolve = "resolve"
	StageEmail   = "email"
	StagePersist = "persist"
)

var NowFunc = time.Now // mockable

type (
	Deps struct {
		Conf       *core.Config
		Logger     core.Logger
		Repo       Repository
		MailSvc    core.EmailService
		Validate   *validator.Validate
		Translator ut.Translator
	}

	// Service runs the library notification pipeline and serves the notification inbox.
	Service struct {
		conf       *core.Config
		logger     core.Logger
		repo       Repository
		mailSvc    core.EmailService
		validate   *validator.Validate
		translator ut.Translator
		classifier Classifier
	}

	RunOptions struct {
		Now    time.Time // zero: NowFunc()
		DryRun bool      // classify only: no email, no notification
	}

	// Failure is a loan (or the final batch insert) that did not go through.
	Failure struct {
		BorrowingID string `json:"borrowingId,omitempty"`
		Stage       string `json:"stage"`
		Error       string `json:"error"`
	}

	// Planned is a notice a dry run would have sent.
	Planned struct {
		BorrowingID string     `json:"borrowingId"`
		UserID      string     `json:"userId"`
		Email       string     `json:"email"`
		Kind        NoticeKind `json:"kind"`
		DaysOverdue int        `json:"daysOverdue,omitempty"`
		Fee         string     `json:"fee,omitempty"`
	}

	Report struct {
		Success              bool      `json:"success"`
		EmailsSent           int       `json:"emailsSent"`
		NotificationsCreated int       `json:"notificationsCreated"`
		DryRun               bool      `json:"dryRun,omitempty"`
		Skipped              int       `json:"skipped,omitempty"`
		Failures             []Failure `json:"failures,omitempty"`
		Planned              []Planned `json:"planned,omitempty"`
	}

	// outcome is the result of processing a single loan.
	outcome struct {
		sent         bool
		skipped      bool
		notification *Notification
		failure      *Failure
		planned      *Planned
	}
)

func NewService(deps Deps) *Service {
	vala.BeginValidation().Validate(
		vala.IsNotNil(deps.Conf, "Conf"),
		vala.IsNotNil(deps.Logger, "Logger"),
		vala.IsNotNil(deps.Repo, "Repo"),
		vala.IsNotNil(deps.MailSvc, "MailSvc"),
		vala.IsNotNil(deps.Validate, "Validate"),
		vala.IsNotNil(deps.Translator, "Translator"),
	).CheckAndPanic()

	classifier := DefaultClassifier()
	if !deps.Conf.Library.FeePerDay.IsZero() {
		classifier.FeePerDay = deps.Conf.Library.FeePerDay
	}
	if deps.Conf.Library.DueSoonDays > 0 {
		classifier.DueSoonDays = deps.Conf.Library.DueSoonDays
	}

	return &Service{
		conf:       deps.Conf,
		logger:     deps.Logger,
		repo:       deps.Repo,
		mailSvc:    deps.MailSvc,
		validate:   deps.Validate,
		translator: deps.Translator,
		classifier: classifier,
	}
}

// Run loads every active loan, notifies the students whose loans are overdue or due soon,
// and persists the in-app notifications in one batch.
// Only a failure to load the loans fails the run: anything going wrong with a single loan
// is logged, reported and does not stop the others.
// Runs are not idempotent: every qualifying loan is notified again on each run.
func (svc *Service) Run(ctx context.Context, opts RunOptions) (Report, error) {
	now := opts.Now
	if now.IsZero() {
		now = NowFunc()
	}

	borrowings, err := svc.repo.QueryActiveBorrowings(ctx)
	if err != nil {
		return Report{}, errors.Wrap(err, "loading active borrowings")
	}
	svc.logger.Info(fmt.Sprintf("library notifications: %d active borrowing(s) loaded", len(borrowings)))

	outcomes := svc.processAll(ctx, borrowings, now, opts.DryRun)

	report := Report{Success: true, DryRun: opts.DryRun}
	notes := make([]Notification, 0, len(outcomes))
	for _, o := range outcomes {
		if o.skipped {
			report.Skipped++
		}
		if o.failure != nil {
			report.Failures = append(report.Failures, *o.failure)
		}
		if o.planned != nil {
			report.Planned = append(report.Planned, *o.planned)
		}
		if o.sent {
			report.EmailsSent++
		}
		if o.notification != nil {
			notes = append(notes, *o.notification)
		}
	}

	if len(notes) > 0 {
		created, err := svc.repo.CreateNotifications(ctx, notes)
		if err != nil {
			// emails are already out: they are not rolled back
			svc.logger.Error(fmt.Sprintf("library notifications: inserting %d notification(s): %v", len(notes), err), err)
			report.Failures = append(report.Failures, Failure{Stage: StagePersist, Error: err.Error()})
		} else {
			report.NotificationsCreated = created
		}
	}

	svc.logger.Info(fmt.Sprintf(
		"library notifications: %d email(s) sent, %d notification(s) created, %d skipped, %d failure(s)",
		report.EmailsSent, report.NotificationsCreated, report.Skipped, len(report.Failures)))
	return report, nil
}

// processAll processes the loans one by one, or through a bounded pool when more than one worker is configured.
// outcomes are kept in loan order either way.
func (svc *Service) processAll(ctx context.Context, borrowings []Borrowing, now time.Time, dryRun bool) []outcome {
	outcomes := make([]outcome, len(borrowings))

	workers := svc.conf.Library.Workers
	if workers <= 1 || len(borrowings) <= 1 {
		for i, b := range borrowings {
			outcomes[i] = svc.process(ctx, b, now, dryRun)
		}
		return outcomes
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, workers)
	for i := range borrowings {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer func() {
				<-sem
				wg.Done()
			}()
			outcomes[i] = svc.process(ctx, borrowings[i], now, dryRun)
		}(i)
	}
	wg.Wait()
	return outcomes
}

func (svc *Service) skip(b Borrowing, reason string, args ...interface{}) outcome {
	svc.logger.Warn(fmt.Sprintf("library notifications: skipping borrowing %s: %s", b.ID, reason), args...)
	return outcome{skipped: true}
}

// process runs a single loan through resolve -> classify -> notify.
func (svc *Service) process(ctx context.Context, b Borrowing, now time.Time, dryRun bool) outcome {
	if err := svc.validate.Struct(b); err != nil {
		return svc.skip(b, "invalid borrowing", core.TranslateValidationErrors(err, svc.translator))
	}
	if b.Status != StatusBorrowed {
		return svc.skip(b, fmt.Sprintf("status is %s", b.Status))
	}

	profile, err := svc.resolve(ctx, b)
	if err != nil {
		if errors.Cause(err) == ErrNotFound || errors.Cause(err) == errNoEmail {
			return svc.skip(b, err.Error())
		}
		o := svc.skip(b, err.Error(), err)
		o.failure = &Failure{BorrowingID: b.ID, Stage: StageResolve, Error: err.Error()}
		return o
	}

	notice := svc.classifier.Classify(b.DueDate, now)
	if !notice.NeedsAction() {
		return outcome{}
	}

	d := svc.newDispatch(b, profile, notice, now)
	if dryRun {
		p := &Planned{
			BorrowingID: b.ID,
			UserID:      profile.UserID,
			Email:       profile.Email,
			Kind:        notice.Kind,
			DaysOverdue: notice.DaysOverdue,
		}
		if notice.Kind == NoticeOverdue {
			p.Fee = notice.Fee.String()
		}
		return outcome{planned: p}
	}

	if err = svc.mailSvc.SendMessage(ctx, d.email); err != nil {
		svc.logger.Error(fmt.Sprintf("library notifications: emailing %s about borrowing %s: %v", profile.Email, b.ID, err), err)
		return outcome{failure: &Failure{BorrowingID: b.ID, Stage: StageEmail, Error: err.Error()}}
	}
	// the notification is only staged once the email went out
	return outcome{sent: true, notification: &d.notification}
}

var errNoEmail = errors.New("profile has no email")

// resolve finds the contact profile of the student who borrowed b.
func (svc *Service) resolve(ctx context.Context, b Borrowing) (Profile, error) {
	student, err := svc.repo.GetStudent(ctx, b.StudentID)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "getting student %s", b.StudentID)
	}
	if err = svc.validate.Struct(student); err != nil {
		return Profile{}, errors.Wrapf(ErrNotFound, "invalid student %s: %v", student.ID, core.TranslateValidationErrors(err, svc.translator))
	}

	profile, err := svc.repo.GetProfile(ctx, student.UserID)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "getting profile of user %s", student.UserID)
	}
	if core.CleanString(profile.Email) == "" {
		return Profile{}, errors.Wrapf(errNoEmail, "user %s", student.UserID)
	}
	profile.Email = core.CleanString(profile.Email, true /* lower */)
	if err = svc.validate.Struct(profile); err != nil {
		return Profile{}, errors.Wrapf(ErrNotFound, "invalid profile of user %s: %v", student.UserID, core.TranslateValidationErrors(err, svc.translator))
	}
	return profile, nil
}

// QueryNotifications returns the user's notifications, newest first.
func (svc *Service) QueryNotifications(ctx context.Context, userID string) ([]Notification, error) {
	notes, err := svc.repo.QueryNotifications(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "querying notifications")
	}
	return notes, nil
}

// MarkNotificationRead marks one of the user's notifications as read.
// ErrNotFound is returned if the notification does not belong to the user.
func (svc *Service) MarkNotificationRead(ctx context.Context, userID, id string) error {
	if err := svc.repo.MarkNotificationRead(ctx, userID, id); err != nil {
		if errors.Cause(err) == ErrNotFound {
			return ErrNotFound
		}
		return errors.Wrap(err, "marking notification read")
	}
	return nil
}
