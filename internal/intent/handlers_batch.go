package intent

import (
	"io"
	"os"
	"path/filepath"

	"github.com/apply-task/taskengine/internal/errs"
)

// handleBatch runs a list of sub-intents sequentially through the same
// Process path, per §4.3.4. When atomic:true, the whole tasks root is
// snapshotted first and restored if any sub-operation fails.
func handleBatch(d *Dispatcher, req *Request) *Response {
	resp := newResponse(req.Intent)
	rawOps, _ := req.Raw["ops"].([]any)
	if len(rawOps) == 0 {
		return errorResponse(req.Intent, errs.New(errs.InvalidRequest, "batch requires a non-empty ops list"))
	}
	atomic, _ := req.Raw["atomic"].(bool)

	var backupDir string
	if atomic {
		var err error
		backupDir, err = backupRoot(d.Repo.Root)
		if err != nil {
			return errorResponse(req.Intent, errs.New(errs.BatchFailed, "snapshot tasks root: %v", err))
		}
		defer os.RemoveAll(backupDir)
	}

	results := make([]*Response, 0, len(rawOps))
	var operationIDs []string
	completed := 0
	rolledBack := false
	failed := false

	for _, raw := range rawOps {
		m, ok := raw.(map[string]any)
		if !ok {
			failed = true
			break
		}
		sub := d.Process(m)
		results = append(results, sub)
		if !sub.Success {
			failed = true
			break
		}
		completed++
		if id, ok := sub.Meta["operation_id"].(string); ok && id != "" {
			operationIDs = append(operationIDs, id)
		}
	}

	if failed && atomic {
		if err := restoreRoot(backupDir, d.Repo.Root); err == nil {
			rolledBack = true
		}
	}

	result := map[string]any{
		"total": len(rawOps), "completed": completed, "results": results,
		"operation_ids": operationIDs,
	}
	if len(operationIDs) > 0 {
		result["latest_id"] = operationIDs[len(operationIDs)-1]
	}
	if atomic {
		result["rolled_back"] = rolledBack
	}
	if failed && !rolledBack && atomic {
		return errorResponse(req.Intent, errs.New(errs.BatchFailed, "batch failed and rollback also failed").WithResult(result))
	}
	if failed && !atomic {
		return resp.ok().withResult(result).withWarning("batch stopped early: one or more operations failed")
	}
	return resp.ok().withResult(result)
}

// backupRoot copies every regular file under root into a fresh temp
// directory, mirroring relative paths, for atomic batch rollback.
func backupRoot(root string) (string, error) {
	dir, err := os.MkdirTemp("", "taskengine-batch-*")
	if err != nil {
		return "", err
	}
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		dst := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return copyFileContents(p, dst)
	})
	if err != nil {
		os.RemoveAll(dir)
		return "", err
	}
	return dir, nil
}

// restoreRoot replaces root's contents with the backup taken by
// backupRoot: removes anything not present in the backup, then copies
// the backup back over it.
func restoreRoot(backupDir, root string) error {
	if err := os.RemoveAll(root); err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	return filepath.WalkDir(backupDir, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, rerr := filepath.Rel(backupDir, p)
		if rerr != nil {
			return rerr
		}
		dst := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		return copyFileContents(p, dst)
	})
}

func copyFileContents(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
