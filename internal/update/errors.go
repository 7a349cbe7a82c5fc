package update

import (
	"context"
	"errors"
	"fmt"

	"homesite/pkg/cmdutil"
)

// Stage names a step of an update.
type Stage string

const (
	StageAuth          Stage = "auth"
	StagePull          Stage = "pull"
	StageListArtifacts Stage = "list_artifacts"
	StageDownload      Stage = "download"
	StageExtract       Stage = "extract"
	StagePermissions   Stage = "permissions"
	StageActivate      Stage = "activate"
	StageReload        Stage = "reload"
)

var (
	// ErrNoArtifacts is returned when a workflow run has no artifacts.
	ErrNoArtifacts = errors.New("no artifacts found for workflow run")

	// ErrMissingToken is returned when an artifact must be fetched but no
	// API token is configured.
	ErrMissingToken = errors.New("no GitHub token configured")

	// ErrUpdateInProgress is returned when another update holds the lock.
	ErrUpdateInProgress = errors.New("update already in progress")

	// ErrTimeout marks an outbound request that ran out of time.
	ErrTimeout = errors.New("request timed out")
)

// StageError is an update failure attributed to the step that caused it.
type StageError struct {
	Stage Stage
	Err   error

	// Output is the combined output of the failed command, if any.
	Output string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Timeout reports whether the stage failed because it ran out of time.
func (e *StageError) Timeout() bool {
	return errors.Is(e.Err, ErrTimeout) ||
		errors.Is(e.Err, cmdutil.ErrTimeout) ||
		errors.Is(e.Err, context.DeadlineExceeded)
}

// Upstream reports whether the failure came from a remote party: the git
// remote or the artifact API.
func (e *StageError) Upstream() bool {
	switch e.Stage {
	case StagePull, StageListArtifacts, StageDownload:
		return true
	}
	return false
}

func stageError(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}
