package repository

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/apply-task/taskengine/internal/git"
)

// TasksDirEnvVar is the environment override for the tasks root (§6.1).
const TasksDirEnvVar = "APPLY_TASK_TASKS_DIR"

// ResolveRoot implements the namespace resolution order from §6.1:
// explicit tasks_dir parameter, then APPLY_TASK_TASKS_DIR, then
// ~/.tasks/<owner_repo-or-folder-name>.
func ResolveRoot(explicit, workDir string) (string, error) {
	if explicit != "" {
		return filepath.Abs(explicit)
	}
	if env, ok := os.LookupEnv(TasksDirEnvVar); ok && env != "" {
		return filepath.Abs(env)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	ns := namespaceFor(workDir)
	return filepath.Join(home, ".tasks", ns), nil
}

var originURLPattern = regexp.MustCompile(`(?:github\.com[:/]|gitlab\.com[:/]|bitbucket\.org[:/])([\w.-]+/[\w.-]+?)(?:\.git)?$`)

// namespaceFor derives the <owner_repo> namespace segment: the git remote
// origin URL's "owner/repo" portion when workDir is inside a git repo,
// else the directory's base name.
func namespaceFor(workDir string) string {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if git.Available(ctx, workDir) {
		out, err := git.RunCmdOutput(ctx, workDir, "git", "config", "--get", "remote.origin.url")
		if err == nil {
			url := strings.TrimSpace(out)
			if m := originURLPattern.FindStringSubmatch(url); m != nil {
				return strings.ReplaceAll(m[1], "/", "_")
			}
		}
	}
	return filepath.Base(workDir)
}
