// File: internal/session/outcome.go
//
// Package session drives a single login run: navigate, enter credentials,
// submit, classify the result, and retry only on transient infrastructure
// failures. The state machine is linear with no backward transitions; a
// retry starts a fresh attempt from the beginning.
package session

import (
	"github.com/xkilldash9x/ghostlogin/internal/classifier"
)

// State names a position in the login state machine. States only move
// forward; Success, ChallengeDetected and LoginFailed are terminal.
type State string

const (
	StateInit               State = "init"
	StateNavigatedToLogin   State = "navigated_to_login"
	StateCredentialsEntered State = "credentials_entered"
	StateSubmitted          State = "submitted"
	StateClassifying        State = "classifying"
	StateSuccess            State = "success"
	StateChallengeDetected  State = "challenge_detected"
	StateLoginFailed        State = "login_failed"
)

// Status is the final disposition of a run.
type Status string

const (
	// StatusSuccess: an authenticated page was reached.
	StatusSuccess Status = "success"
	// StatusChallengePending: a security challenge blocks progress and was
	// not resolved within the run.
	StatusChallengePending Status = "challenge_pending"
	// StatusFailed: credentials rejected, retries exhausted, or the page
	// state could not be determined.
	StatusFailed Status = "failed"
)

// Outcome summarizes a finished run for the caller and the process exit
// code.
type Outcome struct {
	Status      Status
	Challenge   classifier.Kind
	Reason      string
	Attempts    int
	EvidenceDir string
}

// ExitCode maps the outcome onto the process exit convention: 0 success,
// 2 challenge pending, 3 failed.
func (o Outcome) ExitCode() int {
	switch o.Status {
	case StatusSuccess:
		return 0
	case StatusChallengePending:
		return 2
	default:
		return 3
	}
}
