// Package update applies verified webhook deliveries to the running site.
//
// Every delivery first pulls the site checkout. A delivery describing a
// workflow run with artifacts then installs the run's first artifact as a
// new release and asks the host to restart; any other delivery reloads the
// content caches in place.
package update

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/go-github/v57/github"

	"homesite/internal/security"
)

// Puller updates the site checkout.
type Puller interface {
	Pull(ctx context.Context) ([]byte, error)
}

// ArtifactSource lists and downloads workflow run artifacts.
type ArtifactSource interface {
	ListArtifacts(ctx context.Context, artifactsURL string) ([]*github.Artifact, error)
	DownloadArtifact(ctx context.Context, downloadURL string, w io.Writer) error
}

// Installer turns a downloaded archive into the active release.
type Installer interface {
	Install(ctx context.Context, archive string) (string, error)
}

// Reloader refreshes content caches without a restart.
type Reloader interface {
	Reload() error
}

// Outcome is the result of a successful update.
type Outcome string

const (
	OutcomeReloaded   Outcome = "reloaded"
	OutcomeRestarting Outcome = "restarting"
	OutcomeIgnored    Outcome = "ignored"
)

// Result describes a successful update.
type Result struct {
	Outcome Outcome
	// Release is the activated release directory when restarting.
	Release string
	// Artifact is the name of the installed artifact when restarting.
	Artifact string
	// Reason explains an ignored delivery.
	Reason string
}

// Config wires an Updater.
type Config struct {
	Puller    Puller
	Artifacts ArtifactSource // nil when no API token is configured
	Installer Installer
	Reloader  Reloader
	// TempDir receives downloaded archives; defaults to os.TempDir().
	TempDir string
	Logger  *slog.Logger
}

// Updater runs one update at a time.
type Updater struct {
	cfg Config
	mu  sync.Mutex
}

// New creates an Updater.
func New(cfg Config) *Updater {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Updater{cfg: cfg}
}

// ParsePayload decodes a webhook body. Fields other than action and
// workflow_run are ignored; an absent or null workflow_run is valid.
func ParsePayload(body []byte) (*github.WorkflowRunEvent, error) {
	var event github.WorkflowRunEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return &event, nil
}

// Apply performs the update described by event. Errors from individual
// steps are *StageError values; ErrUpdateInProgress is returned without
// doing anything if another update is running.
func (u *Updater) Apply(ctx context.Context, event *github.WorkflowRunEvent) (*Result, error) {
	if !u.mu.TryLock() {
		return nil, ErrUpdateInProgress
	}
	defer u.mu.Unlock()

	logger := u.cfg.Logger

	if reason := ignoreReason(event); reason != "" {
		logger.Info("Ignoring delivery", "reason", reason)
		return &Result{Outcome: OutcomeIgnored, Reason: reason}, nil
	}

	output, err := u.cfg.Puller.Pull(ctx)
	if err != nil {
		return nil, &StageError{Stage: StagePull, Err: err, Output: string(output)}
	}

	artifactsURL := event.GetWorkflowRun().GetArtifactsURL()
	if artifactsURL == "" {
		if err := u.cfg.Reloader.Reload(); err != nil {
			return nil, stageError(StageReload, err)
		}
		logger.Info("Content reloaded")
		return &Result{Outcome: OutcomeReloaded}, nil
	}

	if u.cfg.Artifacts == nil {
		return nil, stageError(StageAuth, ErrMissingToken)
	}

	artifacts, err := u.cfg.Artifacts.ListArtifacts(ctx, artifactsURL)
	if err != nil {
		return nil, stageError(StageListArtifacts, err)
	}
	if len(artifacts) == 0 {
		return nil, stageError(StageListArtifacts, ErrNoArtifacts)
	}

	artifact := artifacts[0]
	downloadURL := artifact.GetArchiveDownloadURL()
	if downloadURL == "" {
		return nil, stageError(StageDownload, fmt.Errorf("artifact %q has no download url", artifact.GetName()))
	}
	logger.Info("Downloading artifact", "artifact", artifact.GetName(), "size_bytes", artifact.GetSizeInBytes())

	archive, err := u.download(ctx, artifact, downloadURL)
	if err != nil {
		return nil, err
	}
	defer os.Remove(archive)

	release, err := u.cfg.Installer.Install(ctx, archive)
	if err != nil {
		var serr *StageError
		if errors.As(err, &serr) {
			return nil, serr
		}
		return nil, stageError(StageExtract, err)
	}

	return &Result{Outcome: OutcomeRestarting, Release: release, Artifact: artifact.GetName()}, nil
}

// download writes the artifact archive to an owner-only temporary file and
// returns its path.
func (u *Updater) download(ctx context.Context, artifact *github.Artifact, downloadURL string) (string, error) {
	path := filepath.Join(u.cfg.TempDir, fmt.Sprintf("homesite-artifact-%d.zip", artifact.GetID()))
	file, err := security.CreateSecureFile(path, security.PermArchive)
	if err != nil {
		return "", stageError(StageDownload, err)
	}

	err = u.cfg.Artifacts.DownloadArtifact(ctx, downloadURL, file)
	if cerr := file.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to write archive: %w", cerr)
	}
	if err != nil {
		os.Remove(path)
		return "", stageError(StageDownload, err)
	}
	return path, nil
}

// ignoreReason returns why a delivery should not trigger an update, or "" if
// it should. Workflow run deliveries are sent for every state change, but
// only a successfully completed run has artifacts to install. Deliveries
// without a run always update.
func ignoreReason(event *github.WorkflowRunEvent) string {
	if event.WorkflowRun == nil {
		return ""
	}
	if action := event.GetAction(); action != "" && action != "completed" {
		return fmt.Sprintf("workflow run action %q", action)
	}
	if conclusion := event.GetWorkflowRun().GetConclusion(); conclusion != "" && conclusion != "success" {
		return fmt.Sprintf("workflow run concluded with %q", conclusion)
	}
	return ""
}
