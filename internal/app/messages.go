package app

// ClearNoticeMsg clears a transient notice after a timeout.
type ClearNoticeMsg struct{}

// ClipboardResultMsg reports the outcome of copying suggested questions.
type ClipboardResultMsg struct {
	Count int
	Err   error
}
