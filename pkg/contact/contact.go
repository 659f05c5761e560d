// Package contact sequences a contact-sales submission: honeypot, session
// rate limit, validation, a final sanitization pass and one relay call.
package contact

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/payback159/contactgate/pkg/config"
	"github.com/payback159/contactgate/pkg/logging"
	"github.com/payback159/contactgate/pkg/models"
	"github.com/payback159/contactgate/pkg/monitoring"
	"github.com/payback159/contactgate/pkg/ratelimit"
	"github.com/payback159/contactgate/pkg/relay"
	"github.com/payback159/contactgate/pkg/sanitize"
	"github.com/payback159/contactgate/pkg/security"
	"github.com/payback159/contactgate/pkg/validation"
)

// State of a form instance
type State int

const (
	Idle State = iota
	Submitting
	Submitted
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Submitting:
		return "submitting"
	case Submitted:
		return "submitted"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DisplayDelay is how long the confirmation stays visible before the form
// resets and closes
const DisplayDelay = 3 * time.Second

// Visitor-facing texts. Relay errors are logged, never shown.
const (
	MsgSent           = "Message sent! Our team will reach out to you shortly."
	MsgFixFields      = "Please correct the highlighted fields."
	MsgFailed         = "Something went wrong while sending your message. Please try again later."
	msgRateLimitedFmt = "Too many submissions. Please try again in %d seconds."
)

var (
	// ErrSubmitting is returned when a submission is already in flight
	ErrSubmitting = errors.New("submission already in progress")
	// ErrSubmitted is returned while the confirmation is still displayed
	ErrSubmitted = errors.New("submission already completed")
)

// Sender delivers a sanitized submission
type Sender interface {
	Send(ctx context.Context, s relay.Submission) error
}

// Timer is the handle of a scheduled callback
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Deps are the collaborators of a form
type Deps struct {
	Config    config.SecurityConfig
	Limiter   *ratelimit.Limiter
	Monitor   *monitoring.Monitor
	Sender    Sender
	Honeypot  security.Honeypot
	Tokens    security.TokenGenerator
	Validator *validation.Validator
	// AfterFunc defaults to time.AfterFunc
	AfterFunc AfterFunc
	// OnClose runs when the form closes itself after a confirmed submission
	OnClose func()
}

// Snapshot is a consistent copy of a form's visible state
type Snapshot struct {
	State State
	Open  bool
	Input models.FormInput
	Token string
	Last  models.Outcome
}

// Form is one contact form instance. Only one submission can be in flight.
type Form struct {
	deps Deps

	mu    sync.Mutex
	state State
	open  bool
	input models.FormInput
	token string
	last  models.Outcome
	timer Timer
	// gen changes on every Open and Close so late results are ignored
	gen uint64
}

// New creates a closed, idle form
func New(deps Deps) *Form {
	if deps.AfterFunc == nil {
		deps.AfterFunc = realAfterFunc
	}
	if deps.Validator == nil {
		deps.Validator = validation.New(deps.Config)
	}
	return &Form{deps: deps}
}

// Open shows an empty form with a fresh token
func (f *Form) Open() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
	f.open = true
	f.token = f.deps.Tokens.Generate()
}

// Close discards the input. An in-flight request is not aborted; its
// result is simply no longer applied.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetLocked()
	f.open = false
	f.token = ""
}

func (f *Form) resetLocked() {
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
	f.gen++
	f.state = Idle
	f.input = models.FormInput{}
	f.last = models.Outcome{}
}

// Set stores a field value, sanitized as it would be on every keystroke.
// The honeypot value is kept raw.
func (f *Form) Set(field models.Field, raw string) {
	value := raw
	if field != models.FieldHoneypot {
		if sanitize.LooksLikeXSS(raw) {
			f.deps.Monitor.XSSAttempt(string(field), raw)
		}
		if f.deps.Config.EnableSanitization {
			value = sanitize.Field(field, raw, f.deps.Config.SanitizationLevel)
			f.deps.Monitor.Sanitized(string(field), utf8.RuneCountInString(raw), utf8.RuneCountInString(value))
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.input = f.input.With(field, value)
}

// Snapshot returns the current state
func (f *Form) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Snapshot{
		State: f.state,
		Open:  f.open,
		Input: f.input,
		Token: f.token,
		Last:  f.last,
	}
}

// Submit runs the submission pipeline. Failures are reported in the
// outcome; the error is only set when the form cannot submit right now.
func (f *Form) Submit(ctx context.Context) (models.Outcome, error) {
	f.mu.Lock()
	switch f.state {
	case Submitting:
		f.mu.Unlock()
		return models.Outcome{}, ErrSubmitting
	case Submitted:
		f.mu.Unlock()
		return models.Outcome{}, ErrSubmitted
	}
	f.state = Submitting
	in, token, gen := f.input, f.token, f.gen
	f.mu.Unlock()

	start := time.Now()
	outcome := f.run(ctx, in, token)
	logging.LogSubmission(string(outcome.Kind), len(models.UserFields), time.Since(start))

	f.mu.Lock()
	defer f.mu.Unlock()
	if gen != f.gen {
		// closed or reopened meanwhile
		return outcome, nil
	}

	f.last = outcome
	switch outcome.Kind {
	case models.OutcomeSilentlyDropped:
		f.state = Idle
	case models.OutcomeSuccess:
		f.state = Submitted
		f.timer = f.deps.AfterFunc(DisplayDelay, func() { f.finish(gen) })
	default:
		f.state = Failed
	}
	return outcome, nil
}

func (f *Form) run(ctx context.Context, in models.FormInput, token string) models.Outcome {
	cfg := f.deps.Config

	if f.deps.Honeypot.Check(in.Honeypot) {
		f.deps.Monitor.HoneypotTriggered()
		return models.Outcome{Kind: models.OutcomeSilentlyDropped}
	}

	if res := f.deps.Limiter.Check(); !res.Allowed {
		return models.Outcome{
			Kind:       models.OutcomeRateLimited,
			RetryAfter: res.RetryAfter,
			Message:    fmt.Sprintf(msgRateLimitedFmt, res.RetryAfter),
		}
	}

	if errs := f.deps.Validator.Validate(in); !errs.Valid() {
		for field, reason := range errs {
			f.deps.Monitor.ValidationFailed(string(field), reason)
		}
		return models.Outcome{
			Kind:    models.OutcomeValidationFailed,
			Errors:  errs,
			Message: MsgFixFields,
		}
	}

	if cfg.EnableSanitization {
		in = sanitize.Input(in, cfg.SanitizationLevel)
	}

	start := time.Now()
	err := f.deps.Sender.Send(ctx, relay.Submission{
		Name:    in.Name,
		Email:   in.Email,
		Company: in.Company,
		Message: in.Message,
		Token:   token,
	})
	f.deps.Monitor.Submission(err == nil, time.Since(start))

	if err != nil {
		kind := models.OutcomeNetworkError
		args := []any{}
		var se *relay.StatusError
		if errors.As(err, &se) {
			kind = models.OutcomeServerRejected
			args = append(args, "status_code", se.StatusCode, "response_excerpt", se.Body)
		}
		logging.LogError("Contact submission failed", err, args...)
		return models.Outcome{Kind: kind, Message: MsgFailed}
	}

	f.deps.Limiter.Clear()
	return models.Outcome{Kind: models.OutcomeSuccess, Message: MsgSent}
}

// finish ends the confirmation display of generation gen
func (f *Form) finish(gen uint64) {
	f.mu.Lock()
	if gen != f.gen {
		f.mu.Unlock()
		return
	}
	f.timer = nil
	f.resetLocked()
	f.open = false
	f.token = ""
	onClose := f.deps.OnClose
	f.mu.Unlock()

	if onClose != nil {
		onClose()
	}
}
