package archive

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/attendance-archive-api/internal/retention"
	"github.com/noah-isme/attendance-archive-api/pkg/confirm"
)

const dateLayout = "2006-01-02"

// StatusLevel grades a status message.
type StatusLevel string

const (
	LevelInfo    StatusLevel = "info"
	LevelSuccess StatusLevel = "success"
	LevelError   StatusLevel = "error"
)

// Status is the outcome of an action. Kind is set for errors only.
type Status struct {
	Level   StatusLevel
	Message string
	Kind    ErrorKind
}

// OK reports whether the action succeeded.
func (s Status) OK() bool { return s.Level != LevelError }

// Busy lists the action classes currently in flight.
type Busy struct {
	Export       bool
	MarkComplete bool
	Cleanup      bool
	ClearAll     bool
}

// View is what the host renders: the last snapshot plus the gates derived from it.
type View struct {
	Loaded              bool
	Summary             Summary
	IsAdmin             bool
	CanExport           bool
	CanMarkComplete     bool
	CanCleanup          bool
	CanEmergencyCleanup bool
	CanClearAll         bool
	ShowReminder        bool
	Busy                Busy
	Status              Status
}

// ExportFilter is the user input of an attendance or assessment export. Dates are
// inclusive YYYY-MM-DD days inside the exported month; zero Year and Month mean the
// current month.
type ExportFilter struct {
	ProfessorID string
	StartDate   string
	EndDate     string
	Format      string
	Year        int
	Month       int
}

// Config tunes the controller.
type Config struct {
	ClearAllPhrase     string
	ConfirmationSecret string
	ConfirmationTTL    time.Duration
	Clock              retention.Clock
	Location           *time.Location
	Logger             *zap.Logger
}

type busyClass int

const (
	busyExport busyClass = iota
	busyMarkComplete
	busyCleanup
	busyClearAll
)

// Controller drives the archive lifecycle from the console. It owns only transient
// view state; the backend is the authority for every period.
type Controller struct {
	backend Backend
	saver   FileSaver
	session *Session
	clock   retention.Clock
	loc     *time.Location
	issuer  *confirm.Issuer
	phrase  string
	logger  *zap.Logger

	refreshMu sync.Mutex

	mu      sync.Mutex
	summary Summary
	loaded  bool
	status  Status
	busy    map[busyClass]bool
}

// NewController wires a controller for session.
func NewController(backend Backend, saver FileSaver, session *Session, cfg Config) *Controller {
	if cfg.Clock == nil {
		cfg.Clock = retention.SystemClock{Location: cfg.Location}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ClearAllPhrase == "" {
		cfg.ClearAllPhrase = DefaultClearAllPhrase
	}
	if session == nil {
		session = &Session{}
	}
	return &Controller{
		backend: backend,
		saver:   saver,
		session: session,
		clock:   cfg.Clock,
		loc:     cfg.Location,
		issuer:  confirm.NewIssuer(cfg.ConfirmationSecret, cfg.ConfirmationTTL).WithClock(cfg.Clock.Now),
		phrase:  cfg.ClearAllPhrase,
		logger:  cfg.Logger,
		busy:    make(map[busyClass]bool),
	}
}

// RequestConfirmation issues the single-use token the matching action requires.
func (c *Controller) RequestConfirmation(kind ActionKind) (Confirmation, error) {
	if !knownAction(kind) {
		return Confirmation{}, validationError(fmt.Sprintf("unknown action %q", kind))
	}
	if err := c.requireAdmin(); err != nil {
		return Confirmation{}, err
	}
	token, expiresAt, err := c.issuer.Issue(string(kind))
	if err != nil {
		return Confirmation{}, classify(err)
	}
	return Confirmation{
		Kind:           kind,
		Token:          token,
		Prompt:         prompts[kind],
		RequiresPhrase: kind == ActionClearAll,
		ExpiresAt:      expiresAt,
	}, nil
}

// Refresh replaces the snapshot with the backend summary. Failure keeps the old snapshot.
func (c *Controller) Refresh(ctx context.Context) Status {
	if err := c.refresh(ctx); err != nil {
		return c.record(failure("Could not load archive status", err))
	}
	return c.record(Status{Level: LevelInfo, Message: "Archive status updated"})
}

// View returns the snapshot and the gates derived from it.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	admin := c.session.IsAdmin()
	s := c.summary
	targetReady := c.loaded && s.CleanupTarget.State == StateCompleted

	return View{
		Loaded:              c.loaded,
		Summary:             s,
		IsAdmin:             admin,
		CanExport:           admin && !c.busy[busyExport],
		CanMarkComplete:     admin && c.loaded && s.Current.State == StateOpen && !c.busy[busyMarkComplete],
		CanCleanup:          admin && targetReady && s.IsCleanupWindow && pastMonth(s.CleanupTarget, s.Current) && !c.busy[busyCleanup],
		CanEmergencyCleanup: admin && targetReady && !c.busy[busyCleanup],
		CanClearAll:         admin && !c.busy[busyClearAll],
		ShowReminder:        c.loaded && s.ShowReminder,
		Busy: Busy{
			Export:       c.busy[busyExport],
			MarkComplete: c.busy[busyMarkComplete],
			Cleanup:      c.busy[busyCleanup],
			ClearAll:     c.busy[busyClearAll],
		},
		Status: c.status,
	}
}

// MarkComplete attests that the current month is backed up.
func (c *Controller) MarkComplete(ctx context.Context, token string) Status {
	const failed = "Mark complete failed"
	if err := c.requireAdmin(); err != nil {
		return c.record(failure(failed, err))
	}
	return c.run(busyMarkComplete, func() Status {
		current := c.snapshot().Current
		switch current.State {
		case StateOpen:
		case StateUninitialized:
			return failure(failed, validationError("archive status not loaded, refresh first"))
		default:
			return failure(failed, validationError(fmt.Sprintf("%s is already marked complete", current.Label())))
		}
		if err := c.consume(token, ActionMarkComplete); err != nil {
			return failure(failed, err)
		}

		err := c.backend.MarkArchiveComplete(ctx)
		if st, done := c.settle(ctx, failed, err); done {
			return st
		}
		return Status{Level: LevelSuccess, Message: fmt.Sprintf("%s marked complete. Its data will be cleaned up at the start of next month.", current.Label())}
	})
}

// ExecuteCleanup deletes the completed month's records during the cleanup window.
func (c *Controller) ExecuteCleanup(ctx context.Context, token string) Status {
	return c.cleanup(ctx, token, false)
}

// EmergencyCleanup deletes the completed month's records outside the window. It still
// refuses months that were never marked complete.
func (c *Controller) EmergencyCleanup(ctx context.Context, token string) Status {
	return c.cleanup(ctx, token, true)
}

func (c *Controller) cleanup(ctx context.Context, token string, override bool) Status {
	const failed = "Cleanup failed"
	if err := c.requireAdmin(); err != nil {
		return c.record(failure(failed, err))
	}
	kind := ActionCleanup
	if override {
		kind = ActionEmergencyCleanup
	}
	return c.run(busyCleanup, func() Status {
		snap := c.snapshot()
		target := snap.CleanupTarget
		switch target.State {
		case StateCompleted:
		case StateCleaned:
			return failure(failed, validationError(fmt.Sprintf("%s was already cleaned", target.Label())))
		default:
			return failure(failed, validationError("no completed month to clean up, mark the month complete first"))
		}
		if !override && (!snap.IsCleanupWindow || !pastMonth(target, snap.Current)) {
			return failure(failed, validationError("outside the cleanup window, use the emergency override"))
		}
		if err := c.consume(token, kind); err != nil {
			return failure(failed, err)
		}

		outcome, err := c.backend.ExecuteCleanup(ctx, override)
		if st, done := c.settle(ctx, failed, err); done {
			return st
		}
		msg := outcome.Message
		if msg == "" {
			msg = fmt.Sprintf("Cleanup of %s complete: %d records deleted", target.Label(), outcome.RecordsDeleted.Total())
		}
		if outcome.ImageFailures > 0 {
			msg = fmt.Sprintf("%s (%d photos could not be deleted)", msg, outcome.ImageFailures)
		}
		return Status{Level: LevelSuccess, Message: msg}
	})
}

// ClearAllData erases every operational record. phrase must equal the configured
// literal exactly.
func (c *Controller) ClearAllData(ctx context.Context, token, phrase string) Status {
	const failed = "Clear all data failed"
	if err := c.requireAdmin(); err != nil {
		return c.record(failure(failed, err))
	}
	return c.run(busyClearAll, func() Status {
		if phrase != c.phrase {
			return failure(failed, validationError(fmt.Sprintf("confirmation phrase does not match, type %q exactly", c.phrase)))
		}
		if err := c.consume(token, ActionClearAll); err != nil {
			return failure(failed, err)
		}

		outcome, err := c.backend.ClearAllData(ctx, phrase)
		if st, done := c.settle(ctx, failed, err); done {
			return st
		}
		msg := fmt.Sprintf("All data cleared: %d attendance, %d assessments, %d archives, %d photos deleted",
			outcome.Deleted.Attendance, outcome.Deleted.Assessments, outcome.Deleted.Archives, outcome.Deleted.Images)
		if outcome.ImageFailures > 0 {
			msg = fmt.Sprintf("%s (%d photos could not be deleted)", msg, outcome.ImageFailures)
		}
		return Status{Level: LevelSuccess, Message: msg}
	})
}

// ExportAttendance downloads attendance as a zip with photos, or CSV when Format is "csv".
func (c *Controller) ExportAttendance(ctx context.Context, filter ExportFilter) Status {
	return c.export(ctx, ExportAttendance, filter)
}

// ExportAssessments downloads assessments as CSV.
func (c *Controller) ExportAssessments(ctx context.Context, filter ExportFilter) Status {
	return c.export(ctx, ExportAssessments, filter)
}

// ExportMonthlyReport downloads the combined PDF report of a month. Zero values mean
// the current month.
func (c *Controller) ExportMonthlyReport(ctx context.Context, year, month int) Status {
	const failed = "Export failed"
	if err := c.requireAdmin(); err != nil {
		return c.record(failure(failed, err))
	}
	now := c.now()
	if year == 0 && month == 0 {
		year, month = now.Year(), int(now.Month())
	}
	if year < 2000 || month < 1 || month > 12 {
		return c.record(failure(failed, validationError("select a valid month and year")))
	}
	req := ExportRequest{Kind: ExportMonthly, Year: year, Month: month}
	fallback := fmt.Sprintf("monthly_report_%04d_%02d.pdf", year, month)
	return c.download(ctx, req, fallback, fmt.Sprintf("Monthly report for %s", retention.MonthLabel(year, time.Month(month))))
}

// MonthExport is the outcome of one file of a whole-month export.
type MonthExport struct {
	Kind   ExportKind
	Status Status
}

// ExportMonth downloads the attendance, assessments and monthly report of one month.
// Each file is exported on its own: a failure is reported and the rest still run. Zero
// values mean the current month.
func (c *Controller) ExportMonth(ctx context.Context, year, month int) ([]MonthExport, Status) {
	const failed = "Export failed"
	if err := c.requireAdmin(); err != nil {
		return nil, c.record(failure(failed, err))
	}
	if year == 0 && month == 0 {
		now := c.now()
		year, month = now.Year(), int(now.Month())
	}
	if year < 2000 || month < 1 || month > 12 {
		return nil, c.record(failure(failed, validationError("select a valid month and year")))
	}

	filter := ExportFilter{Year: year, Month: month}
	results := []MonthExport{
		{Kind: ExportAttendance, Status: c.ExportAttendance(ctx, filter)},
		{Kind: ExportAssessments, Status: c.ExportAssessments(ctx, filter)},
		{Kind: ExportMonthly, Status: c.ExportMonthlyReport(ctx, year, month)},
	}

	label := retention.MonthLabel(year, time.Month(month))
	var saved int
	var failedKinds []string
	var first *Status
	for i := range results {
		if results[i].Status.OK() {
			saved++
			continue
		}
		failedKinds = append(failedKinds, string(results[i].Kind))
		if first == nil {
			first = &results[i].Status
		}
	}
	if first == nil {
		return results, c.record(Status{Level: LevelSuccess, Message: fmt.Sprintf("All %d exports for %s saved", saved, label)})
	}
	return results, c.record(Status{
		Level:   LevelError,
		Message: fmt.Sprintf("%d of %d exports for %s saved, failed: %s", saved, len(results), label, strings.Join(failedKinds, ", ")),
		Kind:    first.Kind,
	})
}

// Professors lists professors for the export filter.
func (c *Controller) Professors(ctx context.Context) ([]Professor, Status) {
	if err := c.requireAdmin(); err != nil {
		return nil, c.record(failure("Could not load professors", err))
	}
	professors, err := c.backend.ListProfessors(ctx)
	if err != nil {
		return nil, c.record(failure("Could not load professors", err))
	}
	return professors, Status{Level: LevelInfo, Message: fmt.Sprintf("%d professors loaded", len(professors))}
}

func (c *Controller) export(ctx context.Context, kind ExportKind, filter ExportFilter) Status {
	const failed = "Export failed"
	if err := c.requireAdmin(); err != nil {
		return c.record(failure(failed, err))
	}
	req, err := c.exportRequest(kind, filter)
	if err != nil {
		return c.record(failure(failed, err))
	}

	today := c.now().Format(dateLayout)
	fallback := fmt.Sprintf("assessments_%s.csv", today)
	label := "Assessments"
	if kind == ExportAttendance {
		label = "Attendance"
		fallback = fmt.Sprintf("attendance_%s.zip", today)
		if req.Format == "csv" {
			fallback = fmt.Sprintf("attendance_%s.csv", today)
		}
	}
	return c.download(ctx, req, fallback, label)
}

func (c *Controller) download(ctx context.Context, req ExportRequest, fallback, label string) Status {
	return c.run(busyExport, func() Status {
		artifact, err := c.backend.Export(ctx, req)
		if err != nil {
			return failure("Export failed", err)
		}
		if len(artifact.Payload) == 0 {
			return failure("Export failed", NewActionError(ServerLogicError, "export returned an empty file", nil))
		}
		if !SafeFilename(artifact.Filename) {
			if artifact.Filename != "" {
				c.logger.Warn("ignoring unsafe export filename", zap.String("filename", artifact.Filename))
			}
			artifact.Filename = fallback
		}
		artifact.Kind = req.Kind

		path, err := c.saver.Save(ctx, artifact)
		if err != nil {
			c.logger.Error("failed to save export", zap.String("filename", artifact.Filename), zap.Error(err))
			return Status{Level: LevelError, Message: fmt.Sprintf("Export downloaded but could not be saved: %v", err), Kind: TransientNetworkError}
		}
		return Status{Level: LevelSuccess, Message: fmt.Sprintf("%s exported to %s", label, path)}
	})
}

// exportRequest validates the filter: dates parse, start <= end, both inside the exported
// month. Missing dates default to the first and last day of that month.
func (c *Controller) exportRequest(kind ExportKind, filter ExportFilter) (ExportRequest, error) {
	now := c.now()
	year, month := filter.Year, filter.Month
	if year == 0 && month == 0 {
		year, month = now.Year(), int(now.Month())
	}
	if year < 2000 || month < 1 || month > 12 {
		return ExportRequest{}, validationError("select a valid month and year")
	}
	first, next := retention.MonthBounds(year, time.Month(month), c.loc)
	monthLabel := retention.MonthLabel(year, time.Month(month))

	req := ExportRequest{Kind: kind, ProfessorID: strings.TrimSpace(filter.ProfessorID), Format: filter.Format}
	switch {
	case kind == ExportAttendance && (req.Format == "" || req.Format == "zip" || req.Format == "csv"):
	case kind == ExportAssessments && (req.Format == "" || req.Format == "csv"):
	default:
		return ExportRequest{}, validationError(fmt.Sprintf("unsupported format %q", req.Format))
	}

	parse := func(raw, field string) (*time.Time, error) {
		if raw == "" {
			return nil, nil
		}
		day, err := time.ParseInLocation(dateLayout, raw, c.loc)
		if err != nil {
			return nil, validationError(fmt.Sprintf("%s must use YYYY-MM-DD", field))
		}
		if day.Before(first) || !day.Before(next) {
			return nil, validationError(fmt.Sprintf("%s must fall within %s", field, monthLabel))
		}
		return &day, nil
	}
	var err error
	if req.Start, err = parse(filter.StartDate, "start date"); err != nil {
		return ExportRequest{}, err
	}
	if req.End, err = parse(filter.EndDate, "end date"); err != nil {
		return ExportRequest{}, err
	}
	if req.Start != nil && req.End != nil && req.End.Before(*req.Start) {
		return ExportRequest{}, validationError("start date must not be after end date")
	}
	// open ends are bounded by the month so the backend never exports other months
	if req.Start == nil {
		req.Start = &first
	}
	if req.End == nil {
		last := next.AddDate(0, 0, -1)
		req.End = &last
	}
	return req, nil
}

// settle handles the result of a mutating call. Only success refreshes the snapshot; a
// failure changes nothing but the status message.
func (c *Controller) settle(ctx context.Context, prefix string, err error) (Status, bool) {
	if err != nil {
		return failure(prefix, err), true
	}
	c.refreshQuietly(ctx)
	return Status{}, false
}

func (c *Controller) refreshQuietly(ctx context.Context) {
	if err := c.refresh(ctx); err != nil {
		c.logger.Warn("archive status refresh failed", zap.Error(err))
	}
}

func (c *Controller) refresh(ctx context.Context) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	summary, err := c.backend.GetArchiveSummary(ctx)
	if err != nil {
		return err
	}
	if summary.FetchedAt.IsZero() {
		summary.FetchedAt = c.now()
	}
	c.mu.Lock()
	c.summary = summary
	c.loaded = true
	c.mu.Unlock()
	return nil
}

// run executes fn while holding the busy flag of class. It never lets a panic escape.
func (c *Controller) run(class busyClass, fn func() Status) (st Status) {
	if !c.acquire(class) {
		return c.record(failure("", validationError("operation already in progress")))
	}
	defer c.release(class)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("archive action panicked", zap.Any("panic", r))
			st = c.record(Status{Level: LevelError, Message: genericFailure, Kind: TransientNetworkError})
		}
	}()
	return c.record(fn())
}

func (c *Controller) acquire(class busyClass) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy[class] {
		return false
	}
	c.busy[class] = true
	return true
}

func (c *Controller) release(class busyClass) {
	c.mu.Lock()
	c.busy[class] = false
	c.mu.Unlock()
}

func (c *Controller) record(st Status) Status {
	c.mu.Lock()
	c.status = st
	c.mu.Unlock()
	return st
}

func (c *Controller) snapshot() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.summary
}

func (c *Controller) consume(token string, kind ActionKind) error {
	if token == "" {
		return validationError("confirmation required")
	}
	if err := c.issuer.Consume(token, string(kind)); err != nil {
		return confirmationError(err)
	}
	return nil
}

func (c *Controller) requireAdmin() error {
	if !c.session.IsAdmin() {
		return NewActionError(AuthorizationError, "administrator privileges required", nil)
	}
	return nil
}

func (c *Controller) now() time.Time {
	return c.clock.Now().In(c.loc)
}

func failure(prefix string, err error) Status {
	actionErr := classify(err)
	msg := actionErr.Message
	if prefix != "" {
		msg = prefix + ": " + msg
	}
	return Status{Level: LevelError, Message: msg, Kind: actionErr.Kind}
}

func pastMonth(target, current Period) bool {
	if current.Year == 0 {
		return false
	}
	return retention.Before(target.Year, time.Month(target.Month), current.Year, time.Month(current.Month))
}
