package tui

// Messages sent into the program by Sink. They mirror the notify.Sink verbs.
type (
	// ReadyMsg switches to the connected view.
	ReadyMsg struct{}

	// RepairMsg asks the user for a new pairing file.
	RepairMsg struct{}

	// FatalMsg shows an error that cannot be dismissed.
	FatalMsg struct {
		Title   string
		Message string
	}

	// ErrorMsg shows an error the user can dismiss.
	ErrorMsg struct {
		Title   string
		Message string
	}

	// StatusMsg updates the status line under the spinner.
	StatusMsg struct {
		State string
		Text  string
	}
)

// ImportDoneMsg reports the result of an import started from the re-pair
// prompt.
type ImportDoneMsg struct {
	Path string
	Err  error
}
