// Package controller implements the user actions: register, login, logout,
// report an issue and change an issue's status. Every action validates
// locally, raises the loading flag, calls the gateway, and reports the
// outcome as a notification. Loading is cleared on every exit path.
//
// Actions touch the state store only through the run func, so they must be
// called from outside the goroutine that owns the store.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/joescharf/campus/internal/clock"
	"github.com/joescharf/campus/internal/gateway"
	"github.com/joescharf/campus/internal/models"
	"github.com/joescharf/campus/internal/notify"
	"github.com/joescharf/campus/internal/state"
	"github.com/joescharf/campus/internal/validate"
)

// Success messages.
const (
	MsgRegistered   = "Registration successful! You are now signed in."
	MsgLoggedIn     = "Login successful!"
	MsgLoggedOut    = "Logged out successfully"
	MsgLogoutFailed = "Logout failed. Please try again."
	MsgReported     = "Issue reported successfully!"
	MsgSaveFailed   = "Failed to save issue. Please try again."
	MsgUpdateFailed = "Failed to update status. Please try again."
)

// Gateway is the part of gateway.Gateway the controller needs.
type Gateway interface {
	Initialized() bool
	Register(ctx context.Context, email, password string, role models.Role) (*models.User, error)
	Login(ctx context.Context, email, password string) (*models.User, error)
	Logout(ctx context.Context) error
	CreateIssue(ctx context.Context, in models.NewIssue) (string, error)
	UpdateIssueStatus(ctx context.Context, id string, status models.IssueStatus, actorID string) error
}

// Notifier shows transient messages.
type Notifier interface {
	Success(message string) *notify.Notification
	Error(message string) *notify.Notification
}

// Forms resets transient form state on the surface after a success.
type Forms interface {
	ClearAuth()
	ClearIssue()
}

type noForms struct{}

func (noForms) ClearAuth()  {}
func (noForms) ClearIssue() {}

// IssueForm is the report form as submitted.
type IssueForm struct {
	Title       string
	Description string
	ImageURL    string
}

// Deps wires a Controller.
type Deps struct {
	Gateway Gateway
	Store   *state.Store
	// Run executes fn on the goroutine that owns Store and waits for it.
	Run    func(fn func())
	Notes  Notifier
	Forms  Forms
	Limits validate.Limits
	Clock  clock.Clock
	Logger *zap.Logger
}

type Controller struct {
	gw     Gateway
	store  *state.Store
	run    func(func())
	notes  Notifier
	forms  Forms
	limits validate.Limits
	clock  clock.Clock
	log    *zap.Logger
}

func New(d Deps) *Controller {
	c := &Controller{
		gw:     d.Gateway,
		store:  d.Store,
		run:    d.Run,
		notes:  d.Notes,
		forms:  d.Forms,
		limits: d.Limits,
		clock:  d.Clock,
		log:    d.Logger,
	}
	if c.run == nil {
		c.run = func(fn func()) { fn() }
	}
	if c.forms == nil {
		c.forms = noForms{}
	}
	if c.limits == (validate.Limits{}) {
		c.limits = validate.DefaultLimits
	}
	if c.clock == nil {
		c.clock = clock.Real()
	}
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// SetForms replaces the form resetter; surfaces attach themselves after the
// session is built.
func (c *Controller) SetForms(f Forms) {
	if f == nil {
		f = noForms{}
	}
	c.forms = f
}

// reject reports a local failure that never reaches the network.
func (c *Controller) reject(kind gateway.Kind, op, msg string) error {
	c.notes.Error(msg)
	return &gateway.Error{Kind: kind, Op: op, Err: errors.New(msg)}
}

func (c *Controller) ready(op string) error {
	if c.gw == nil || !c.gw.Initialized() {
		return c.reject(gateway.KindNotInitialized, op, validate.MsgStillLoading)
	}
	return nil
}

// begin raises the loading flag. The returned func must be deferred: it
// clears the flag and turns a panic into the system-error notification.
func (c *Controller) begin(op string) func(*error) {
	c.run(func() { c.store.SetLoading(true) })
	return func(errp *error) {
		if r := recover(); r != nil {
			c.log.Error("action panicked", zap.String("op", op), zap.Any("panic", r))
			c.notes.Error(validate.MsgSystemError)
			*errp = fmt.Errorf("%s: panic: %v", op, r)
		}
		c.run(func() { c.store.SetLoading(false) })
	}
}

func (c *Controller) session() models.Session {
	var sess models.Session
	c.run(func() { sess = c.store.Session() })
	return sess
}

// Register creates an account with the chosen role.
func (c *Controller) Register(ctx context.Context, email, password, role string) (err error) {
	const op = "Registration"
	if err := c.ready(op); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" || !validate.Email(email) {
		return c.reject(gateway.KindValidation, op, validate.MsgInvalidEmail)
	}
	if !c.limits.Password(password) {
		return c.reject(gateway.KindValidation, op, validate.MsgWeakPassword)
	}
	r, perr := models.ParseRole(role)
	if perr != nil {
		return c.reject(gateway.KindValidation, op, validate.MsgSelectRole)
	}

	defer c.begin(op)(&err)

	if _, err = c.gw.Register(ctx, email, password, r); err != nil {
		c.log.Info("registration failed", zap.Error(err))
		c.notes.Error(AuthMessage(op, err))
		return err
	}
	c.notes.Success(MsgRegistered)
	c.forms.ClearAuth()
	return nil
}

// Login signs in.
func (c *Controller) Login(ctx context.Context, email, password string) (err error) {
	const op = "Login"
	if err := c.ready(op); err != nil {
		return err
	}
	email = strings.TrimSpace(email)
	if email == "" || !validate.Email(email) {
		return c.reject(gateway.KindValidation, op, validate.MsgInvalidEmail)
	}
	if password == "" {
		return c.reject(gateway.KindValidation, op, validate.MsgRequired)
	}

	defer c.begin(op)(&err)

	if _, err = c.gw.Login(ctx, email, password); err != nil {
		c.log.Info("login failed", zap.Error(err))
		c.notes.Error(AuthMessage(op, err))
		return err
	}
	c.notes.Success(MsgLoggedIn)
	c.forms.ClearAuth()
	return nil
}

// Logout signs out.
func (c *Controller) Logout(ctx context.Context) (err error) {
	const op = "Logout"
	if err := c.ready(op); err != nil {
		return err
	}

	defer c.begin(op)(&err)

	if err = c.gw.Logout(ctx); err != nil {
		c.log.Warn("logout failed", zap.Error(err))
		c.notes.Error(MsgLogoutFailed)
		return err
	}
	c.notes.Success(MsgLoggedOut)
	return nil
}

// ReportIssue submits a new issue as the signed-in user. For an admin whose
// collection does not hold the new id yet, the issue is prepended locally;
// the next push overwrites it.
func (c *Controller) ReportIssue(ctx context.Context, form IssueForm) (err error) {
	const op = "ReportIssue"
	if err := c.ready(op); err != nil {
		return err
	}
	sess := c.session()
	if !sess.LoggedIn() {
		return c.reject(gateway.KindAuthorization, op, validate.MsgUnauthorized)
	}

	title := validate.Sanitize(form.Title)
	description := validate.Sanitize(form.Description)
	imageURL := strings.TrimSpace(form.ImageURL)
	if !c.limits.Title(title) {
		return c.reject(gateway.KindValidation, op, validate.MsgInvalidTitle)
	}
	if !c.limits.Description(description) {
		return c.reject(gateway.KindValidation, op, validate.MsgInvalidDescription)
	}
	if imageURL != "" && !validate.URL(imageURL) {
		return c.reject(gateway.KindValidation, op, validate.MsgInvalidURL)
	}

	defer c.begin(op)(&err)

	in := models.NewIssue{
		Title:         title,
		Description:   description,
		ImageURL:      imageURL,
		Status:        models.IssueStatusPending,
		ReporterID:    sess.User.UID,
		ReporterEmail: sess.User.Email,
	}
	id, err := c.gw.CreateIssue(ctx, in)
	if err != nil {
		c.notes.Error(IssueMessage(err, MsgSaveFailed))
		return err
	}

	now := c.clock.Now()
	c.run(func() {
		if c.store.IsAdmin() && !c.store.HasIssue(id) {
			c.store.AddIssue(models.Issue{
				ID:            id,
				Title:         in.Title,
				Description:   in.Description,
				ImageURL:      in.ImageURL,
				Status:        in.Status,
				ReporterID:    in.ReporterID,
				ReporterEmail: in.ReporterEmail,
				CreatedAt:     now,
				UpdatedAt:     now,
			})
		}
	})
	c.notes.Success(MsgReported)
	c.forms.ClearIssue()
	return nil
}

// ChangeStatus moves an issue to status. Only admins may do this; anyone
// else is rejected without a network call.
func (c *Controller) ChangeStatus(ctx context.Context, id, status string) (err error) {
	const op = "ChangeStatus"
	if err := c.ready(op); err != nil {
		return err
	}
	sess := c.session()
	if !sess.LoggedIn() || sess.Role != models.RoleAdmin {
		return c.reject(gateway.KindAuthorization, op, validate.MsgPermissionDenied)
	}
	st, perr := models.ParseIssueStatus(status)
	if perr != nil {
		return c.reject(gateway.KindValidation, op, validate.MsgInvalidStatus)
	}

	defer c.begin(op)(&err)

	if err = c.gw.UpdateIssueStatus(ctx, id, st, sess.User.UID); err != nil {
		c.notes.Error(IssueMessage(err, MsgUpdateFailed))
		return err
	}

	now := c.clock.Now()
	actor := sess.User.UID
	c.run(func() {
		c.store.UpdateIssue(id, state.IssuePatch{Status: &st, UpdatedAt: &now, UpdatedBy: &actor})
	})
	c.notes.Success(fmt.Sprintf("Issue marked as %s", st))
	return nil
}

var authMessages = map[string]string{
	"auth/email-already-in-use":   "Email is already registered. Please use a different email or login.",
	"auth/user-not-found":         "No account found with this email. Please register first.",
	"auth/wrong-password":         "Incorrect password. Please try again.",
	"auth/invalid-email":          "Invalid email address format.",
	"auth/user-disabled":          "This account has been disabled. Please contact support.",
	"auth/too-many-requests":      "Too many failed attempts. Please try again later.",
	"auth/network-request-failed": validate.MsgNetworkError,
}

// AuthMessage maps an auth failure to user-facing text. Unknown codes fall
// back to "<op> failed: <cause>".
func AuthMessage(op string, err error) string {
	var ge *gateway.Error
	if !errors.As(err, &ge) {
		return fmt.Sprintf("%s failed: %v", op, err)
	}
	if msg, ok := authMessages[string(ge.Code)]; ok {
		return msg
	}
	switch ge.Kind {
	case gateway.KindNetwork:
		return validate.MsgNetworkError
	case gateway.KindNotInitialized:
		return validate.MsgStillLoading
	}
	return fmt.Sprintf("%s failed: %s", op, ge.Message())
}

// IssueMessage maps an issue write failure to user-facing text, using
// fallback for anything not more specific.
func IssueMessage(err error, fallback string) string {
	switch gateway.KindOf(err) {
	case gateway.KindNotFound:
		return validate.MsgNotFound
	case gateway.KindNotInitialized:
		return validate.MsgStillLoading
	}
	return fallback
}
