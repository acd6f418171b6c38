package deployment

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gitdeploy/internal/domain"
)

var artisanCommands = []string{"cache:clear", "config:clear", "view:clear"}

var cacheDirs = []string{"cache", "tmp", "storage/cache"}

const (
	fileMode       fs.FileMode = 0o644
	dirMode        fs.FileMode = 0o755
	executableMode fs.FileMode = 0o755
)

// runAdditionalTasks runs each enabled maintenance task independently.
func (s *Service) runAdditionalTasks(ctx context.Context, root string) map[string]domain.CommandOutcome {
	tasks := map[string]domain.CommandOutcome{}

	if s.opts.ClearCache {
		tasks[domain.TaskCacheClear] = s.clearCache(ctx, root)
	}

	if s.opts.FixPermissions {
		tasks[domain.TaskPermissions] = s.fixPermissions(root)
	}

	if script := s.customScriptPath(root); script != "" {
		tasks[domain.TaskCustomScript] = s.runCustomScript(ctx, script)
	}

	for name, outcome := range tasks {
		if !outcome.Success {
			s.log.Warn("deployment task failed", "task", name, "exit_code", outcome.ExitCode)
		}
	}

	return tasks
}

func (s *Service) clearCache(ctx context.Context, root string) domain.CommandOutcome {
	if _, err := os.Stat(filepath.Join(root, "artisan")); err == nil {
		agg := newAggregate("php artisan cache:clear config:clear view:clear")
		for _, sub := range artisanCommands {
			outcome, err := s.runner.Run(ctx, "php", "artisan", sub)
			if err != nil {
				outcome.Output = append(outcome.Output, err.Error())
			}
			agg.add(outcome)
		}
		return agg.done()
	}

	agg := newAggregate("sweep *.cache")
	for _, dir := range cacheDirs {
		path := filepath.Join(root, dir)
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			continue
		}

		removed, err := sweepCacheFiles(path)
		if err != nil {
			agg.fail(fmt.Sprintf("%s: %v", dir, err))
			continue
		}
		agg.note(fmt.Sprintf("removed %d cache files from %s", removed, dir))
	}
	return agg.done()
}

func sweepCacheFiles(dir string) (int, error) {
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() && strings.HasSuffix(d.Name(), ".cache") {
			if err := os.Remove(path); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// fixPermissions sets 0644 on files and 0755 on directories below root,
// leaving .git and symlinks alone, then marks the configured executables.
func (s *Service) fixPermissions(root string) domain.CommandOutcome {
	agg := newAggregate("chmod files 644, directories 755")

	var files, dirs int
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			agg.fail(err.Error())
			return nil
		}

		switch {
		case d.IsDir() && d.Name() == ".git":
			return filepath.SkipDir
		case d.Type()&fs.ModeSymlink != 0:
			return nil
		case d.IsDir():
			if err := os.Chmod(path, dirMode); err != nil {
				agg.fail(err.Error())
				return nil
			}
			dirs++
		default:
			if err := os.Chmod(path, fileMode); err != nil {
				agg.fail(err.Error())
				return nil
			}
			files++
		}
		return nil
	})
	if err != nil {
		agg.fail(err.Error())
	}
	agg.note(fmt.Sprintf("updated %d files and %d directories", files, dirs))

	for _, f := range s.opts.ExecutableFiles {
		path := filepath.Join(root, strings.TrimLeft(f, "/"))
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := os.Chmod(path, executableMode); err != nil {
			agg.fail(err.Error())
			continue
		}
		agg.note("chmod +x " + f)
	}

	return agg.done()
}

func (s *Service) customScriptPath(root string) string {
	script := s.opts.CustomScript
	if script == "" {
		return ""
	}
	if !filepath.IsAbs(script) {
		script = filepath.Join(root, script)
	}
	if _, err := os.Stat(script); err != nil {
		s.log.Warn("custom deployment script not found, skipping", "script", script)
		return ""
	}
	return script
}

func (s *Service) runCustomScript(ctx context.Context, script string) domain.CommandOutcome {
	outcome, err := s.runner.Run(ctx, "bash", script)
	if err != nil {
		outcome.Output = append(outcome.Output, err.Error())
	}
	return outcome
}

// aggregate folds several steps into one task outcome.
type aggregate struct {
	start   time.Time
	outcome domain.CommandOutcome
}

func newAggregate(cmd string) *aggregate {
	return &aggregate{
		start: time.Now(),
		outcome: domain.CommandOutcome{
			Command: cmd,
			Success: true,
			Output:  []string{},
		},
	}
}

func (a *aggregate) add(o domain.CommandOutcome) {
	a.outcome.Output = append(a.outcome.Output, "$ "+o.Command)
	a.outcome.Output = append(a.outcome.Output, o.Output...)
	if !o.Success {
		a.outcome.Success = false
		if a.outcome.ExitCode == 0 {
			a.outcome.ExitCode = o.ExitCode
		}
	}
}

func (a *aggregate) note(line string) {
	a.outcome.Output = append(a.outcome.Output, line)
}

func (a *aggregate) fail(line string) {
	a.outcome.Output = append(a.outcome.Output, line)
	a.outcome.Success = false
	if a.outcome.ExitCode == 0 {
		a.outcome.ExitCode = 1
	}
}

func (a *aggregate) done() domain.CommandOutcome {
	a.outcome.ExecutionTime = domain.Elapsed(time.Since(a.start))
	return a.outcome
}
