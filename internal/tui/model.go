// Package tui is the terminal surface: a bubbletea program over one session.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joescharf/campus/internal/app"
	"github.com/joescharf/campus/internal/controller"
	"github.com/joescharf/campus/internal/view"
)

type mode int

const (
	modeBrowse mode = iota
	modeAuth
	modeReport
	modeSearch
)

const (
	fieldEmail = iota
	fieldPassword
	fieldRole
)

const (
	fieldTitle = iota
	fieldDescription
	fieldImageURL
)

var roles = []string{"", "student", "admin"}

// filterValues are cycled by the filter key; empty means every status.
var filterValues = []string{"", "Pending", "In Progress", "Resolved"}

type startedMsg struct{ err error }

type actionMsg struct {
	op  string
	err error
}

// Model is the bubbletea model.
type Model struct {
	sess *app.Session
	ctx  context.Context

	v      view.Model
	st     styles
	mode   mode
	cursor int
	width  int

	auth      []textinput.Model
	role      int
	authFocus int

	report      []textinput.Model
	reportFocus int

	search    textinput.Model
	filterIdx int
}

// New builds a model over sess; Init starts the session.
func New(ctx context.Context, sess *app.Session) Model {
	email := textinput.New()
	email.Placeholder = "you@campus.edu"
	email.CharLimit = 254
	email.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '•'

	title := textinput.New()
	title.Placeholder = "Short title"
	title.CharLimit = 100

	description := textinput.New()
	description.Placeholder = "What is wrong and where?"
	description.CharLimit = 1000

	imageURL := textinput.New()
	imageURL.Placeholder = "https://... (optional)"

	search := textinput.New()
	search.Placeholder = "Search issues"
	search.Prompt = "/ "

	m := Model{
		sess:   sess,
		ctx:    ctx,
		auth:   []textinput.Model{email, password},
		report: []textinput.Model{title, description, imageURL},
		search: search,
		mode:   modeAuth,
	}
	m.v = sess.Model()
	m.st = newStyles(m.v.Theme)
	return m
}

func (m Model) Init() tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return tea.Batch(textinput.Blink, func() tea.Msg {
		return startedMsg{err: sess.Start(ctx)}
	})
}

// act runs an action off the program goroutine.
func (m Model) act(op string, fn func(ctx context.Context) error) tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		return actionMsg{op: op, err: sess.Guard(op, func() error { return fn(ctx) })}
	}
}

func (m Model) refresh() Model {
	m.v = m.sess.Model()
	m.st = newStyles(m.v.Theme)
	switch {
	case !m.v.LoggedIn:
		m.mode = modeAuth
	case m.mode == modeAuth:
		m.mode = modeBrowse
	}
	if m.cursor >= len(m.v.Issues) {
		m.cursor = max(0, len(m.v.Issues)-1)
	}
	return m
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case startedMsg, actionMsg, refreshMsg:
		return m.refresh(), nil
	case resetMsg:
		return m.resetForm(msg.form), nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.mode {
		case modeAuth:
			return m.updateAuth(msg)
		case modeReport:
			return m.updateReport(msg)
		case modeSearch:
			return m.updateSearch(msg)
		default:
			return m.updateBrowse(msg)
		}
	}
	return m, nil
}

func (m Model) resetForm(form string) Model {
	switch form {
	case view.FormAuth:
		for i := range m.auth {
			m.auth[i].Reset()
		}
		m.role = 0
	case view.FormIssue:
		for i := range m.report {
			m.report[i].Reset()
		}
		if m.mode == modeReport {
			m.mode = modeBrowse
		}
	}
	return m
}

func (m Model) focusAuth(i int) Model {
	m.authFocus = (i + 3) % 3
	for j := range m.auth {
		if j == m.authFocus {
			m.auth[j].Focus()
		} else {
			m.auth[j].Blur()
		}
	}
	return m
}

func (m Model) updateAuth(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Submit):
		email, password := m.auth[fieldEmail].Value(), m.auth[fieldPassword].Value()
		return m, m.act("login", func(ctx context.Context) error {
			return m.sess.Controller.Login(ctx, email, password)
		})
	case key.Matches(msg, keys.Register):
		email, password, role := m.auth[fieldEmail].Value(), m.auth[fieldPassword].Value(), roles[m.role]
		return m, m.act("register", func(ctx context.Context) error {
			return m.sess.Controller.Register(ctx, email, password, role)
		})
	case msg.String() == "ctrl+t":
		m.sess.ToggleTheme()
		return m, nil
	case key.Matches(msg, keys.Next):
		return m.focusAuth(m.authFocus + 1), nil
	case key.Matches(msg, keys.Prev):
		return m.focusAuth(m.authFocus - 1), nil
	}
	if m.authFocus == fieldRole {
		if key.Matches(msg, keys.Cycle) {
			if msg.String() == "left" {
				m.role = (m.role + len(roles) - 1) % len(roles)
			} else {
				m.role = (m.role + 1) % len(roles)
			}
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.auth[m.authFocus], cmd = m.auth[m.authFocus].Update(msg)
	return m, cmd
}

func (m Model) focusReport(i int) Model {
	m.reportFocus = (i + len(m.report)) % len(m.report)
	for j := range m.report {
		if j == m.reportFocus {
			m.report[j].Focus()
		} else {
			m.report[j].Blur()
		}
	}
	return m
}

func (m Model) updateReport(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.mode = modeBrowse
		return m, nil
	case key.Matches(msg, keys.Submit):
		form := controller.IssueForm{
			Title:       m.report[fieldTitle].Value(),
			Description: m.report[fieldDescription].Value(),
			ImageURL:    m.report[fieldImageURL].Value(),
		}
		return m, m.act("report", func(ctx context.Context) error {
			return m.sess.Controller.ReportIssue(ctx, form)
		})
	case key.Matches(msg, keys.Next):
		return m.focusReport(m.reportFocus + 1), nil
	case key.Matches(msg, keys.Prev):
		return m.focusReport(m.reportFocus - 1), nil
	}
	var cmd tea.Cmd
	m.report[m.reportFocus], cmd = m.report[m.reportFocus].Update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.search.Reset()
		m.search.Blur()
		m.mode = modeBrowse
		m.sess.ClearSearch()
		return m, nil
	case key.Matches(msg, keys.Submit):
		m.search.Blur()
		m.mode = modeBrowse
		return m, nil
	}
	before := m.search.Value()
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	if v := m.search.Value(); v != before {
		m.sess.Search(v)
	}
	return m, cmd
}

func (m Model) updateBrowse(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, keys.Down):
		if m.cursor < len(m.v.Issues)-1 {
			m.cursor++
		}
	case key.Matches(msg, keys.Report):
		m.mode = modeReport
		return m.focusReport(fieldTitle), textinput.Blink
	case key.Matches(msg, keys.Search):
		if m.v.ShowIssues {
			m.mode = modeSearch
			m.search.Focus()
			return m, textinput.Blink
		}
	case key.Matches(msg, keys.Filter):
		if m.v.ShowIssues {
			m.filterIdx = (m.filterIdx + 1) % len(filterValues)
			_ = m.sess.SetFilter(filterValues[m.filterIdx])
		}
	case key.Matches(msg, keys.Theme):
		m.sess.ToggleTheme()
	case key.Matches(msg, keys.Logout):
		return m, m.act("logout", m.sess.Controller.Logout)
	case key.Matches(msg, keys.Dismiss):
		if m.v.Notification != nil {
			m.sess.Dismiss(m.v.Notification.ID)
		}
	case key.Matches(msg, keys.InProgress):
		return m, m.changeStatus("In Progress")
	case key.Matches(msg, keys.Resolved):
		return m, m.changeStatus("Resolved")
	case key.Matches(msg, keys.Reopen):
		return m, m.changeStatus("Pending")
	}
	return m, nil
}

func (m Model) changeStatus(status string) tea.Cmd {
	if !m.v.ShowIssues || m.cursor >= len(m.v.Issues) {
		return nil
	}
	id := m.v.Issues[m.cursor].ID
	return m.act("status", func(ctx context.Context) error {
		return m.sess.Controller.ChangeStatus(ctx, id, status)
	})
}

func (m Model) View() string {
	var b strings.Builder
	st := m.st

	b.WriteString(st.status(m.v.Status).Render(m.v.Status.Message))
	b.WriteString("\n")
	if n := m.v.Notification; n != nil {
		text := n.Message
		if n.Title != "" {
			text = n.Title + ": " + text
		}
		b.WriteString(st.notification(n.Kind).Render(text))
	}
	b.WriteString("\n")

	header := st.Title.Render("Smart Campus Issue Reporting")
	if m.v.LoggedIn {
		header += "  " + st.Subtle.Render(fmt.Sprintf("%s (%s)", m.v.UserEmail, m.v.UserRole))
	}
	header += "  " + st.Subtle.Render(m.v.Theme+" mode")
	if m.v.Busy {
		header += "  " + st.Subtle.Render(m.v.BusyLabel)
	}
	b.WriteString(header + "\n\n")

	switch {
	case m.v.ShowAuth:
		b.WriteString(m.authView())
		b.WriteString("\n")
		b.WriteString(st.Help.Render(helpLine(keys.Next, keys.Submit, keys.Register, keys.Cycle) + " • ctrl+t theme • ctrl+c quit"))
		return b.String()
	case m.mode == modeReport:
		b.WriteString(m.reportView())
		b.WriteString("\n")
		b.WriteString(st.Help.Render(helpLine(keys.Next, keys.Submit, keys.Back)))
		return b.String()
	}

	if m.v.ShowIssues {
		b.WriteString(m.issuesView())
		b.WriteString("\n")
		b.WriteString(st.Help.Render(helpLine(keys.Up, keys.Down, keys.Report, keys.Search, keys.Filter, keys.InProgress, keys.Resolved, keys.Reopen, keys.Theme, keys.Logout, keys.Quit)))
		return b.String()
	}
	b.WriteString(st.Subtle.Render("Press n to report a campus issue.") + "\n\n")
	b.WriteString(st.Help.Render(helpLine(keys.Report, keys.Theme, keys.Dismiss, keys.Logout, keys.Quit)))
	return b.String()
}

func (m Model) authView() string {
	st := m.st
	var b strings.Builder
	b.WriteString(st.Title.Render("Login or register") + "\n")
	b.WriteString(st.Label.Render("Email") + m.auth[fieldEmail].View() + "\n")
	b.WriteString(st.Label.Render("Password") + m.auth[fieldPassword].View() + "\n")
	role := roles[m.role]
	if role == "" {
		role = "Select role"
	}
	marker := "  "
	if m.authFocus == fieldRole {
		marker = "> "
	}
	b.WriteString(st.Label.Render("Role") + marker + "‹ " + role + " ›")
	return st.Focused.Render(b.String())
}

func (m Model) reportView() string {
	st := m.st
	var b strings.Builder
	b.WriteString(st.Title.Render("Report an issue") + "\n")
	b.WriteString(st.Label.Render("Title") + m.report[fieldTitle].View() + "\n")
	b.WriteString(st.Label.Render("Description") + m.report[fieldDescription].View() + "\n")
	b.WriteString(st.Label.Render("Image URL") + m.report[fieldImageURL].View())
	return st.Focused.Render(b.String())
}

func (m Model) issuesView() string {
	st := m.st
	var b strings.Builder

	s := m.v.Stats
	b.WriteString(fmt.Sprintf("Total %d  %s %d  %s %d  %s %d\n",
		s.Total,
		st.issueStatus("Pending").Width(0).Render("Pending"), s.Pending,
		st.issueStatus("In Progress").Width(0).Render("In Progress"), s.InProgress,
		st.issueStatus("Resolved").Width(0).Render("Resolved"), s.Resolved))

	filter := "All Status"
	for _, f := range m.v.Filters {
		if f.Selected {
			filter = f.Label
		}
	}
	b.WriteString(m.search.View() + "  " + st.Subtle.Render("filter: "+filter) + "\n\n")

	switch {
	case m.v.IssuesPending:
		b.WriteString(st.Subtle.Render(view.LoadingIssues))
	case m.v.Empty:
		b.WriteString(st.Subtle.Render(view.EmptyIssues))
	default:
		rows := make([]string, 0, len(m.v.Issues))
		for i, c := range m.v.Issues {
			line := st.issueStatus(c.Status).Render(c.Status) + " " + c.Title + "  " +
				st.Subtle.Render(c.Reporter+" • "+c.TimeAgo)
			if i == m.cursor {
				detail := "\n   " + c.Description
				if c.ImageURL != "" {
					detail += "\n   " + c.ImageURL
				}
				rows = append(rows, st.Selected.Render(line+detail))
				continue
			}
			rows = append(rows, st.Item.Render(line))
		}
		b.WriteString(lipgloss.JoinVertical(lipgloss.Left, rows...))
	}
	return st.Panel.Render(b.String())
}

// Run starts the program and blocks until the user quits.
func Run(ctx context.Context, sess *app.Session, surface *Surface) error {
	p := tea.NewProgram(New(ctx, sess), tea.WithAltScreen(), tea.WithContext(ctx))
	go surface.Forward(p.Send)
	defer surface.Stop()
	_, err := p.Run()
	return err
}
