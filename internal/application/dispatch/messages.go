package dispatch

import (
	"fmt"
	"strings"

	"gitdeploy/internal/domain"
)

const maxStashLines = 20

type pullSummary struct {
	Host       string
	Branch     string
	Time       string
	Source     string
	Stash      []string
	Deployment *domain.DeploymentResult
}

func pullMessage(s pullSummary) string {
	var b strings.Builder

	b.WriteString("*🚀 Pull executed*\n\n")
	fmt.Fprintf(&b, "*Host:* %s\n", code(s.Host))
	fmt.Fprintf(&b, "*Branch:* %s\n", code(s.Branch))
	fmt.Fprintf(&b, "*Date:* %s\n", code(s.Time))
	fmt.Fprintf(&b, "*Source:* %s\n\n", code(s.Source))

	stash := s.Stash
	if len(stash) > maxStashLines {
		stash = append(stash[:maxStashLines:maxStashLines], "...")
	}
	stashText := strings.Join(stash, "\n")
	if strings.TrimSpace(stashText) == "" {
		stashText = "No local changes to save"
	}

	b.WriteString("*Results:*\n")
	fmt.Fprintf(&b, "Stash:\n```\n%s\n```\n", block(stashText))
	b.WriteString("Pull: `✅ Success`\n")

	if d := s.Deployment; d != nil && (d.DependencyChanges || !d.Success) {
		b.WriteString("\n*📦 Deployment:*\n")
		if d.DependencyInstall != nil {
			fmt.Fprintf(&b, "Dependency install: `%s`\n", statusLabel(d.DependencyInstall.Success))
		}
		if !d.Success {
			b.WriteString("❌ *Deployment finished with errors*")
			if d.Error != "" {
				fmt.Fprintf(&b, " %s", code(d.Error))
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}

func resetMessage(commit, host, at string) string {
	return fmt.Sprintf("*🔄 Git reset executed*\n\n*Host:* %s\n*Commit:* %s\n*Date:* %s",
		code(host), code(commit), code(at))
}

func deployMessage(result domain.DeploymentResult, forced bool) string {
	var b strings.Builder

	b.WriteString("*🔧 Manual deployment executed*\n\n")
	fmt.Fprintf(&b, "*Status:* `%s`\n", statusLabel(result.Success))
	fmt.Fprintf(&b, "*Dependency changes:* `%s`\n", yesNo(result.DependencyChanges))
	fmt.Fprintf(&b, "*Forced:* `%s`\n", yesNo(forced))
	fmt.Fprintf(&b, "*Date:* %s", code(result.DeploymentTime))

	if result.DependencyInstall != nil {
		fmt.Fprintf(&b, "\n*Dependency install:* `%s`", statusLabel(result.DependencyInstall.Success))
	}
	if !result.Success && result.Error != "" {
		fmt.Fprintf(&b, "\n*Error:* %s", code(result.Error))
	}

	return b.String()
}

func rollbackMessage(result domain.RollbackResult, host, at string) string {
	return fmt.Sprintf("*⏪ Rollback executed*\n\n*Host:* %s\n*Commit:* %s\n*Branch:* %s\n*Backup from:* %s\n*Date:* %s",
		code(host), code(result.RollbackCommit), code(result.RollbackBranch), code(result.BackupTimestamp), code(at))
}

func errorMessage(where, host, at string, err error) string {
	return fmt.Sprintf("*❌ GitDeploy error*\n\n*Context:* %s\n*Host:* %s\n*Date:* %s\n*Error:* %s",
		code(where), code(host), code(at), code(err.Error()))
}

// code wraps s in an inline code span, replacing backticks that would
// end it early.
func code(s string) string {
	if s == "" {
		s = "-"
	}
	return "`" + strings.ReplaceAll(s, "`", "'") + "`"
}

func block(s string) string {
	return strings.ReplaceAll(s, "```", "'''")
}

func statusLabel(ok bool) string {
	if ok {
		return "✅ Success"
	}
	return "❌ Failed"
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
