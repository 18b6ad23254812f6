// Package tui is the terminal front end of the connection lifecycle. It shows
// a spinner while the connection is being established, error cards, a
// prompt for a new pairing file and the connected view.
package tui

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	perrors "github.com/Iron-Ham/pairlink/internal/errors"
	"github.com/Iron-Ham/pairlink/internal/notify"
	"github.com/Iron-Ham/pairlink/internal/tui/styles"
)

const (
	loadingText     = "Loading..."
	importTimeout   = 30 * time.Second
	importFailedMsg = "import did not complete, see the log for details"
)

// ImportFunc imports the pairing file at path. orchestrator.ImportCredential
// satisfies it.
type ImportFunc func(ctx context.Context, path string) error

// Options configures a Model.
type Options struct {
	// AppName is shown in the header.
	AppName string
	// Import is called when the user submits a path at the re-pair prompt.
	Import ImportFunc
}

type phase int

const (
	phaseLoading phase = iota
	phaseRepair
	phaseFatal
	phaseReady
)

// Model is the Bubbletea model for the connection screen.
type Model struct {
	opts    Options
	phase   phase
	spinner spinner.Model
	input   textinput.Model

	state  string
	status string

	errTitle   string
	errMessage string

	fatalTitle   string
	fatalMessage string

	importing bool
	importErr string

	width    int
	quitting bool
}

// New creates a Model showing the loading spinner.
func New(opts Options) Model {
	if opts.AppName == "" {
		opts.AppName = "pairlink"
	}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = styles.Spinner

	ti := textinput.New()
	ti.Placeholder = "/path/to/device.mobiledevicepairing"
	ti.CharLimit = 4096
	ti.Width = 60

	return Model{
		opts:    opts,
		spinner: sp,
		input:   ti,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(20, min(80, msg.Width-4))
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case ReadyMsg:
		m.phase = phaseReady
		m.errTitle, m.errMessage = "", ""
		m.input.Blur()
		return m, nil

	case RepairMsg:
		m.phase = phaseRepair
		m.importErr = ""
		m.input.SetValue("")
		return m, m.input.Focus()

	case FatalMsg:
		m.fatalTitle, m.fatalMessage = msg.Title, msg.Message
		// A late success still wins over the fatal card, and the re-pair
		// prompt stays usable underneath it.
		if m.phase != phaseReady && m.phase != phaseRepair {
			m.phase = phaseFatal
			m.input.Blur()
		}
		return m, nil

	case ErrorMsg:
		m.errTitle, m.errMessage = msg.Title, msg.Message
		return m, nil

	case StatusMsg:
		if msg.State != "" {
			m.state = msg.State
		}
		m.status = msg.Text
		return m, nil

	case ImportDoneMsg:
		m.importing = false
		if msg.Err != nil {
			m.importErr = importErrorText(msg.Err)
			return m, nil
		}
		if m.phase == phaseRepair {
			m.phase = phaseLoading
			if m.fatalTitle != "" {
				m.phase = phaseFatal
			}
			m.input.Blur()
		}
		return m, nil
	}

	if m.phase == phaseRepair {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		m.quitting = true
		return m, tea.Quit
	}

	if m.phase == phaseRepair {
		switch msg.Type {
		case tea.KeyEnter:
			return m.submit()
		case tea.KeyEsc:
			m.input.SetValue("")
			m.importErr = ""
			return m, nil
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit
	case "esc", "enter":
		m.errTitle, m.errMessage = "", ""
	}
	return m, nil
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.importing {
		return m, nil
	}
	path := cleanPath(m.input.Value())
	if path == "" {
		m.importErr = "enter the path of a .mobiledevicepairing or .plist file"
		return m, nil
	}
	if m.opts.Import == nil {
		m.importErr = "importing is not available"
		return m, nil
	}

	m.importing = true
	m.importErr = ""
	importFn := m.opts.Import
	return m, func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), importTimeout)
		defer cancel()
		return ImportDoneMsg{Path: path, Err: importFn(ctx, path)}
	}
}

// importErrorText shows user-facing import errors as they are and hides
// the rest behind a pointer to the log.
func importErrorText(err error) string {
	if perrors.IsUserFacing(err) {
		return err.Error()
	}
	return importFailedMsg
}

// cleanPath normalises a path typed or dropped into the terminal: quotes
// and shell escapes for spaces are removed and a leading ~ is expanded.
func cleanPath(raw string) string {
	p := strings.TrimSpace(raw)
	if len(p) >= 2 && (p[0] == '\'' || p[0] == '"') && p[len(p)-1] == p[0] {
		p = p[1 : len(p)-1]
	}
	p = strings.ReplaceAll(p, `\ `, " ")
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(styles.Header.Render(m.opts.AppName))
	b.WriteString("\n")

	switch m.phase {
	case phaseLoading:
		b.WriteString(m.spinner.View())
		b.WriteString(" ")
		b.WriteString(styles.Text.Render(loadingText))
		if m.status != "" {
			b.WriteString("\n")
			b.WriteString(m.renderStatus())
		}
		if m.errTitle != "" {
			b.WriteString("\n\n")
			b.WriteString(m.card(styles.ErrorCard, m.errTitle, m.errMessage))
		}

	case phaseRepair:
		if m.fatalTitle != "" {
			b.WriteString(m.card(styles.FatalCard, m.fatalTitle, m.fatalMessage))
			b.WriteString("\n\n")
		}
		b.WriteString(styles.PromptLabel.Render("Pairing file rejected"))
		b.WriteString("\n")
		b.WriteString(styles.Muted.Render("Import a new pairing file (.mobiledevicepairing or .plist):"))
		b.WriteString("\n\n")
		b.WriteString(m.input.View())
		switch {
		case m.importing:
			b.WriteString("\n")
			b.WriteString(m.spinner.View())
			b.WriteString(" Importing...")
		case m.importErr != "":
			b.WriteString("\n")
			b.WriteString(styles.Error.Render(m.importErr))
		}

	case phaseFatal:
		b.WriteString(m.card(styles.FatalCard, m.fatalTitle, m.fatalMessage+"\n\n"+notify.RestartHint))
		if m.status != "" {
			b.WriteString("\n")
			b.WriteString(m.renderStatus())
		}

	case phaseReady:
		b.WriteString(styles.Ready.Render(styles.StateIcon("ready") + " Connected"))
	}

	b.WriteString("\n")
	b.WriteString(m.help())
	return b.String()
}

func (m Model) renderStatus() string {
	style := styles.Muted
	if m.state != "" {
		style = lipgloss.NewStyle().Foreground(styles.StateColor(m.state))
	}
	line := style.Render(styles.StateIcon(m.state) + " " + m.status)
	if m.width > 3 {
		line = ansi.Truncate(line, m.width, "...")
	}
	return line
}

func (m Model) card(style lipgloss.Style, title, message string) string {
	body := styles.CardTitle.Render(title) + "\n" + message
	if m.width > 0 {
		style = style.MaxWidth(m.width)
	}
	return style.Render(body)
}

func (m Model) help() string {
	key := styles.HelpKey.Render
	var parts []string
	switch {
	case m.phase == phaseRepair:
		parts = []string{key("enter") + " import", key("esc") + " clear", key("ctrl+c") + " quit"}
	case m.errTitle != "" && m.phase == phaseLoading:
		parts = []string{key("esc") + " dismiss", key("q") + " quit"}
	default:
		parts = []string{key("q") + " quit"}
	}
	return styles.HelpBar.Render(strings.Join(parts, "  "))
}
