package update

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"homesite/internal/security"
	"homesite/pkg/cmdutil"
	"homesite/pkg/fileutil"
)

const (
	// DefaultExtractCommand unpacks an artifact archive. {archive} and
	// {dest} are replaced with the archive path and release directory.
	DefaultExtractCommand = "unzip -o {archive} -d {dest}"

	// ReleaseTimeFormat names release directories; it sorts chronologically.
	ReleaseTimeFormat = "20060102-150405"

	archivePlaceholder = "{archive}"
	destPlaceholder    = "{dest}"
)

// ReleaseManagerConfig configures a ReleaseManager.
type ReleaseManagerConfig struct {
	// DeployRoot contains releases/ and the current symlink.
	DeployRoot     string
	BinaryName     string
	ExtractCommand string
	Timeout        time.Duration
	KeepReleases   int
	Logger         *slog.Logger
}

// ReleaseManager installs artifact archives as timestamped releases and
// switches the current symlink between them.
type ReleaseManager struct {
	deployRoot   string
	binaryName   string
	extract      []string
	timeout      time.Duration
	keepReleases int
	logger       *slog.Logger
	policy       *security.CommandPolicy
	now          func() time.Time
}

// NewReleaseManager validates cfg and creates a manager.
func NewReleaseManager(cfg ReleaseManagerConfig) (*ReleaseManager, error) {
	if cfg.DeployRoot == "" {
		return nil, fmt.Errorf("deploy root is required")
	}
	if cfg.BinaryName == "" || strings.ContainsAny(cfg.BinaryName, `/\`) {
		return nil, fmt.Errorf("invalid binary name %q", cfg.BinaryName)
	}
	if cfg.ExtractCommand == "" {
		cfg.ExtractCommand = DefaultExtractCommand
	}
	extract, err := cmdutil.ParseCommandString(cfg.ExtractCommand)
	if err != nil {
		return nil, fmt.Errorf("invalid extract command: %w", err)
	}
	if !strings.Contains(cfg.ExtractCommand, archivePlaceholder) {
		return nil, fmt.Errorf("extract command must contain %s", archivePlaceholder)
	}
	policy := security.NewCommandPolicy()
	if !policy.IsCommandAllowed(extract[0]) {
		return nil, fmt.Errorf("invalid extract command: command not allowed: %s", extract[0])
	}
	if cfg.KeepReleases < 2 {
		cfg.KeepReleases = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	root, err := filepath.Abs(cfg.DeployRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve deploy root: %w", err)
	}

	return &ReleaseManager{
		deployRoot:   root,
		binaryName:   cfg.BinaryName,
		extract:      extract,
		timeout:      cfg.Timeout,
		keepReleases: cfg.KeepReleases,
		logger:       cfg.Logger,
		policy:       policy,
		now:          time.Now,
	}, nil
}

// ReleasesDir is the directory holding all releases.
func (m *ReleaseManager) ReleasesDir() string {
	return filepath.Join(m.deployRoot, "releases")
}

// CurrentLink is the symlink pointing at the active release.
func (m *ReleaseManager) CurrentLink() string {
	return filepath.Join(m.deployRoot, "current")
}

// Install extracts archive into a new release, makes the binary executable
// and activates the release. The returned error is a *StageError.
func (m *ReleaseManager) Install(ctx context.Context, archive string) (string, error) {
	if err := security.CreateSecureDir(m.ReleasesDir(), security.PermDirectory); err != nil {
		return "", stageError(StageExtract, err)
	}

	releaseDir, err := m.newReleaseDir()
	if err != nil {
		return "", stageError(StageExtract, err)
	}

	if serr := m.unpack(ctx, archive, releaseDir); serr != nil {
		os.RemoveAll(releaseDir)
		return "", serr
	}

	binary := filepath.Join(releaseDir, m.binaryName)
	if err := os.Chmod(binary, security.PermExecutable); err != nil {
		os.RemoveAll(releaseDir)
		return "", stageError(StagePermissions, fmt.Errorf("artifact has no %s binary: %w", m.binaryName, err))
	}

	if err := m.activate(releaseDir); err != nil {
		os.RemoveAll(releaseDir)
		return "", stageError(StageActivate, err)
	}

	if err := m.CleanupOldReleases(); err != nil {
		m.logger.Warn("Failed to clean up old releases", "error", err)
	}

	m.logger.Info("Release activated", "release", filepath.Base(releaseDir))
	return releaseDir, nil
}

func (m *ReleaseManager) newReleaseDir() (string, error) {
	base := filepath.Join(m.ReleasesDir(), m.now().UTC().Format(ReleaseTimeFormat))
	dir := base
	for i := 1; fileutil.DirExists(dir); i++ {
		dir = fmt.Sprintf("%s-%d", base, i)
	}
	if err := security.CreateSecureDir(dir, security.PermDirectory); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *ReleaseManager) unpack(ctx context.Context, archive, dest string) *StageError {
	cmd := make([]string, len(m.extract))
	for i, part := range m.extract {
		part = strings.ReplaceAll(part, archivePlaceholder, archive)
		cmd[i] = strings.ReplaceAll(part, destPlaceholder, dest)
	}
	if err := m.policy.Validate(cmd); err != nil {
		return stageError(StageExtract, err)
	}

	m.logger.Info("Extracting artifact", "command", cmdutil.FormatCommand(cmd))
	result, err := cmdutil.Run(ctx, cmdutil.ExecOptions{Dir: dest, Timeout: m.timeout}, cmd)
	if err != nil {
		serr := stageError(StageExtract, err)
		if result != nil {
			serr.Output = string(result.Output)
		}
		return serr
	}
	return nil
}

// activate points current at releaseDir using a path relative to the deploy
// root.
func (m *ReleaseManager) activate(releaseDir string) error {
	if _, err := security.SanitizePathForSymlink(m.ReleasesDir(), releaseDir); err != nil {
		return fmt.Errorf("release directory outside releases: %w", err)
	}

	relPath, err := filepath.Rel(m.deployRoot, releaseDir)
	if err != nil {
		return fmt.Errorf("failed to calculate relative path: %w", err)
	}

	if err := fileutil.UpdateSymlinkAtomic(m.CurrentLink(), relPath); err != nil {
		return fmt.Errorf("failed to update current symlink: %w", err)
	}
	return nil
}

// Releases returns release names, newest first.
func (m *ReleaseManager) Releases() ([]string, error) {
	entries, err := os.ReadDir(m.ReleasesDir())
	if err != nil {
		return nil, fmt.Errorf("failed to read releases directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Current returns the name of the active release.
func (m *ReleaseManager) Current() (string, error) {
	target, err := fileutil.SymlinkTarget(m.CurrentLink())
	if err != nil {
		return "", fmt.Errorf("no current release: %w", err)
	}
	return filepath.Base(target), nil
}

// CleanupOldReleases removes all but the newest releases, never removing the
// active one.
func (m *ReleaseManager) CleanupOldReleases() error {
	releases, err := m.Releases()
	if err != nil {
		return err
	}
	if len(releases) <= m.keepReleases {
		return nil
	}

	current, _ := m.Current()
	for _, name := range releases[m.keepReleases:] {
		if name == current {
			continue
		}
		releasePath := filepath.Join(m.ReleasesDir(), name)
		if _, err := security.SanitizePathForSymlink(m.ReleasesDir(), releasePath); err != nil {
			m.logger.Warn("Skipping deletion of release outside releases directory", "release", name)
			continue
		}
		if err := os.RemoveAll(releasePath); err != nil {
			m.logger.Warn("Failed to remove old release", "release", name, "error", err)
		}
	}
	return nil
}

// Rollback switches current to the release before the active one and
// returns the names of the previous and restored releases.
func (m *ReleaseManager) Rollback() (from, to string, err error) {
	current, err := m.Current()
	if err != nil {
		return "", "", err
	}

	releases, err := m.Releases()
	if err != nil {
		return "", "", err
	}

	index := -1
	for i, name := range releases {
		if name == current {
			index = i
			break
		}
	}
	if index == -1 {
		return "", "", fmt.Errorf("current release '%s' not found in releases directory", current)
	}
	if index >= len(releases)-1 {
		return "", "", fmt.Errorf("cannot roll back: current release '%s' is already the oldest", current)
	}

	previous := releases[index+1]
	if err := m.activate(filepath.Join(m.ReleasesDir(), previous)); err != nil {
		return "", "", err
	}
	return current, previous, nil
}
