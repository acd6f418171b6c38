// Package deployment
package deployment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gitdeploy/internal/agent/command"
	"gitdeploy/internal/config"
	"gitdeploy/internal/domain"
	"gitdeploy/internal/logger"
)

const deploymentTimeLayout = "2006-01-02 15:04:05"

type Options struct {
	ProjectRoot      string
	AutoDependencies bool
	ClearCache       bool
	FixPermissions   bool
	ExecutableFiles  []string
	CustomScript     string
	Dependency       config.DependencyManagerConfig
	Location         *time.Location
}

type Service struct {
	git      domain.GitRepository
	runner   domain.CommandRunner
	log      logger.Logger
	opts     Options
	lookPath func(string) (string, error)
}

func NewService(git domain.GitRepository, runner domain.CommandRunner, log logger.Logger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}

	return &Service{
		git:      git,
		runner:   runner,
		log:      log,
		opts:     opts,
		lookPath: exec.LookPath,
	}
}

// Deploy runs the post-pull steps. Command failures are recorded in the
// result; only an unusable project root aborts early.
func (s *Service) Deploy(ctx context.Context, force bool) domain.DeploymentResult {
	start := time.Now()

	result := domain.DeploymentResult{
		Success:        true,
		DeploymentTime: start.In(s.opts.Location).Format(deploymentTimeLayout),
		Timestamp:      start,
	}

	root, err := s.projectRoot()
	if err != nil {
		s.log.Error("deployment aborted", "error", err)
		result.Success = false
		result.Error = err.Error()
		result.ExecutionTime = domain.Elapsed(time.Since(start))
		return result
	}

	s.log.Info("deployment started", "root", root, "force_dependencies", force)

	if force || (s.opts.AutoDependencies && s.hasDependencyChanges(ctx, root)) {
		result.DependencyChanges = true

		outcome := s.installDependencies(ctx)
		result.DependencyInstall = &outcome

		if !outcome.Success {
			result.Success = false
			s.log.Warn("dependency install failed",
				"command", outcome.Command,
				"exit_code", outcome.ExitCode,
			)
		}
	}

	if tasks := s.runAdditionalTasks(ctx, root); len(tasks) > 0 {
		result.AdditionalTasks = tasks
	}

	result.ExecutionTime = domain.Elapsed(time.Since(start))

	s.log.Info("deployment finished",
		"success", result.Success,
		"dependency_changes", result.DependencyChanges,
		"duration", time.Since(start),
	)

	return result
}

func (s *Service) projectRoot() (string, error) {
	root, err := filepath.Abs(s.opts.ProjectRoot)
	if err != nil {
		return "", fmt.Errorf("cannot resolve project root %q: %w", s.opts.ProjectRoot, err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return "", fmt.Errorf("cannot resolve project root %q: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("project root %q is not a directory", root)
	}

	return root, nil
}

// hasDependencyChanges reports whether the last commit touched a
// manifest. Any inspection failure counts as a change.
func (s *Service) hasDependencyChanges(ctx context.Context, root string) bool {
	manifests := s.opts.Dependency.Manifests
	if len(manifests) == 0 {
		return false
	}

	if _, err := os.Stat(filepath.Join(root, manifests[0])); err != nil {
		return false
	}

	files, err := s.git.ChangedFiles(ctx, "HEAD")
	if err != nil {
		s.log.Warn("could not inspect last commit, assuming dependency changes", "error", err)
		return true
	}

	for _, f := range files {
		if slices.Contains(manifests, strings.TrimSpace(f)) {
			return true
		}
	}

	return false
}

func (s *Service) installDependencies(ctx context.Context) domain.CommandOutcome {
	dep := s.opts.Dependency

	binary, ok := s.findDependencyBinary()
	if !ok {
		return command.NotFound(dep.Name, fmt.Sprintf("%s binary not found", dep.Name))
	}

	outcome, err := s.runner.Run(ctx, binary, dep.InstallArgs...)
	if err != nil {
		outcome.Output = append(outcome.Output, err.Error())
	}

	return outcome
}

// findDependencyBinary probes the fixed install locations before falling
// back to PATH.
func (s *Service) findDependencyBinary() (string, bool) {
	for _, p := range s.opts.Dependency.SearchPaths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() && info.Mode()&0o111 != 0 {
			return p, true
		}
	}

	for _, name := range s.opts.Dependency.PathNames {
		if p, err := s.lookPath(name); err == nil {
			return p, true
		}
	}

	return "", false
}
