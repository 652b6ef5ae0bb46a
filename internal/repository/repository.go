// Package repository persists and enumerates Items (Plans/Tasks) as
// `<id>.task` files under a resolved tasks root, enforcing the path-safety
// boundary and the load-time normalization rules from spec §4.1.
package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/apply-task/taskengine/internal/atomicfile"
	"github.com/apply-task/taskengine/internal/model"
	"github.com/apply-task/taskengine/internal/taskfile"
)

// reservedDirs are skipped by enumeration (list, next_id, compute_signature).
var reservedDirs = map[string]bool{
	".snapshots": true,
	".artifacts": true,
	".trash":     true,
}

// ErrNotFound is returned by Load when no item exists at the id/domain.
var ErrNotFound = errors.New("item not found")

// ErrPathTraversal is returned whenever an id or domain fails the
// path-safety check (invariant 10 / testable property 9).
var ErrPathTraversal = errors.New("path traversal rejected")

// Repository is a file-backed store of Items rooted at Root.
type Repository struct {
	Root string
}

// New returns a Repository rooted at root. The root directory is created
// lazily on first write.
func New(root string) *Repository {
	return &Repository{Root: root}
}

// ValidID reports whether id is safe to use as a filename component.
func ValidID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	if strings.Contains(id, "..") || strings.ContainsAny(id, "/\\") {
		return false
	}
	for _, r := range id {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' || r == '-') {
			return false
		}
	}
	return true
}

// ValidDomain reports whether domain is safe to use as a sub-path.
func ValidDomain(domain string) bool {
	if domain == "" {
		return true
	}
	if strings.Contains(domain, "..") || strings.HasPrefix(domain, "/") || strings.Contains(domain, "\\") {
		return false
	}
	return true
}

// ResolveForHistory exposes the resolved absolute path for id/domain so
// the history recorder can compute a root-relative task_file without
// duplicating the path-safety logic.
func (r *Repository) ResolveForHistory(id, domain string) (string, error) {
	return r.resolvePath(id, domain)
}

// resolvePath computes the absolute path for id under domain, enforcing
// the hard security boundary from §4.1: no traversal tokens, and the
// resolved path must stay relative-to the configured root.
func (r *Repository) resolvePath(id, domain string) (string, error) {
	if !ValidID(id) {
		return "", fmt.Errorf("%w: invalid id %q", ErrPathTraversal, id)
	}
	if !ValidDomain(domain) {
		return "", fmt.Errorf("%w: invalid domain %q", ErrPathTraversal, domain)
	}
	base := r.Root
	if domain != "" {
		base = filepath.Join(r.Root, domain)
	}
	resolved := filepath.Join(base, id+".task")
	absResolved, err := filepath.Abs(resolved)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(r.Root)
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(absRoot, absResolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s escapes root %s", ErrPathTraversal, absResolved, absRoot)
	}
	return absResolved, nil
}

func (r *Repository) assignDomain(item *model.Item, path string) {
	if item.Domain != "" {
		return
	}
	dir := filepath.Dir(path)
	rel, err := filepath.Rel(r.Root, dir)
	if err != nil || rel == "." {
		item.Domain = ""
		return
	}
	item.Domain = filepath.ToSlash(rel)
}

func (r *Repository) normalize(item *model.Item, path string) {
	r.assignDomain(item, path)
	model.EnsureTreeIDs(item.Steps)
	item.ClampPlanCurrent()
	if item.IsTask() {
		item.UpdateStatusFromProgress()
	}
}

// Load returns the Item at id/domain. If domain is empty it first tries
// the domain-less path, then falls back to a recursive search for any
// `<id>.task` file under the root.
func (r *Repository) Load(id, domain string) (*model.Item, error) {
	path, err := r.resolvePath(id, domain)
	if err != nil {
		return nil, err
	}
	if data, err := os.ReadFile(path); err == nil {
		item, perr := taskfile.Parse(data)
		if perr != nil {
			return nil, fmt.Errorf("parse %s: %w", path, perr)
		}
		r.normalize(item, path)
		return item, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var found *model.Item
	var foundPath string
	_ = filepath.WalkDir(r.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || found != nil {
			return nil
		}
		if d.IsDir() {
			if reservedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() != id+".task" {
			return nil
		}
		data, rerr := os.ReadFile(p)
		if rerr != nil {
			return nil
		}
		item, perr := taskfile.Parse(data)
		if perr != nil {
			return nil
		}
		found = item
		foundPath = p
		return nil
	})
	if found == nil {
		return nil, ErrNotFound
	}
	r.normalize(found, foundPath)
	return found, nil
}

// Save writes item atomically to its resolved path and bumps its revision
// by exactly 1 (invariant 2), unconditionally on every persisted save per
// the open-question resolution in DESIGN.md.
func (r *Repository) Save(item *model.Item) error {
	path, err := r.resolvePath(item.ID, item.Domain)
	if err != nil {
		return err
	}
	model.EnsureTreeIDs(item.Steps)
	item.ClampPlanCurrent()
	item.Revision++
	data, err := taskfile.Serialize(item)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return fmt.Errorf("save %s: %w", item.ID, err)
	}
	return nil
}

// itemFiles walks the root enumerating every `.task` file, passing
// each to visit; walking skips reserved directories.
func (r *Repository) itemFiles(visit func(path string) error) error {
	return filepath.WalkDir(r.Root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if reservedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".task") {
			return nil
		}
		return visit(p)
	})
}

// List recursively enumerates Items below domain (or the whole root when
// domain is empty), skipping reserved directories.
func (r *Repository) List(domain string) ([]*model.Item, error) {
	root := r.Root
	if domain != "" {
		if !ValidDomain(domain) {
			return nil, ErrPathTraversal
		}
		root = filepath.Join(r.Root, domain)
	}
	var items []*model.Item
	walkRoot := root
	err := filepath.WalkDir(walkRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if reservedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".task") {
			return nil
		}
		data, rerr := os.ReadFile(p)
		if rerr != nil {
			return nil
		}
		item, perr := taskfile.Parse(data)
		if perr != nil {
			return nil
		}
		r.normalize(item, p)
		items = append(items, item)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

// NextID returns the next free TASK-NNN id by scanning existing numeric
// suffixes under the root.
func (r *Repository) NextID() (string, error) {
	max := 0
	err := r.itemFiles(func(p string) error {
		stem := strings.TrimSuffix(filepath.Base(p), ".task")
		parts := strings.SplitN(stem, "-", 2)
		if len(parts) != 2 || parts[0] != "TASK" {
			return nil
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil
		}
		if n > max {
			max = n
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("TASK-%03d", max+1), nil
}

// NextPlanID returns the next free PLAN-NNN id.
func (r *Repository) NextPlanID() (string, error) {
	max := 0
	err := r.itemFiles(func(p string) error {
		stem := strings.TrimSuffix(filepath.Base(p), ".task")
		parts := strings.SplitN(stem, "-", 2)
		if len(parts) != 2 || parts[0] != "PLAN" {
			return nil
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil
		}
		if n > max {
			max = n
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("PLAN-%03d", max+1), nil
}

// Delete removes the item at id/domain, falling back to a recursive search
// when domain is empty and the direct path does not exist.
func (r *Repository) Delete(id, domain string) (bool, error) {
	path, err := r.resolvePath(id, domain)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err == nil {
		return true, nil
	} else if !os.IsNotExist(err) {
		return false, err
	}
	deleted := false
	_ = r.itemFiles(func(p string) error {
		if filepath.Base(p) == id+".task" {
			if rerr := os.Remove(p); rerr == nil {
				deleted = true
			}
		}
		return nil
	})
	return deleted, nil
}

// Move relocates id from its current domain to newDomain, rewriting only
// the file path (invariant 1: id never changes).
func (r *Repository) Move(id, currentDomain, newDomain string) error {
	item, err := r.Load(id, currentDomain)
	if err != nil {
		return err
	}
	oldPath, err := r.resolvePath(id, item.Domain)
	if err != nil {
		return err
	}
	item.Domain = newDomain
	newPath, err := r.resolvePath(id, newDomain)
	if err != nil {
		return err
	}
	data, err := taskfile.Serialize(item)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(newPath, data, 0o644); err != nil {
		return err
	}
	if oldPath != newPath {
		_ = os.Remove(oldPath)
	}
	return nil
}

// MoveGlob moves every Item whose root-relative path matches pattern into
// newDomain, returning the count moved.
func (r *Repository) MoveGlob(pattern, newDomain string) (int, error) {
	items, err := r.List("")
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, item := range items {
		rel := filepath.ToSlash(filepath.Join(item.Domain, item.ID+".task"))
		ok, merr := filepath.Match(pattern, rel)
		if merr != nil {
			return moved, merr
		}
		if !ok {
			continue
		}
		if err := r.Move(item.ID, item.Domain, newDomain); err != nil {
			continue
		}
		moved++
	}
	return moved, nil
}

// DeleteGlob removes every Item whose root-relative path matches pattern,
// returning the count removed.
func (r *Repository) DeleteGlob(pattern string) (int, error) {
	items, err := r.List("")
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, item := range items {
		rel := filepath.ToSlash(filepath.Join(item.Domain, item.ID+".task"))
		ok, merr := filepath.Match(pattern, rel)
		if merr != nil {
			return removed, merr
		}
		if !ok {
			continue
		}
		if _, err := r.Delete(item.ID, item.Domain); err == nil {
			removed++
		}
	}
	return removed, nil
}

// CleanFiltered removes every Item matching the given (optional) tag,
// status, and phase filters, returning the matched ids and removed count.
func (r *Repository) CleanFiltered(tag, status, phase string) ([]string, int, error) {
	items, err := r.List("")
	if err != nil {
		return nil, 0, err
	}
	normTag := strings.ToLower(strings.TrimSpace(tag))
	normStatus := strings.ToUpper(strings.TrimSpace(status))
	var matched []string
	removed := 0
	for _, item := range items {
		if normTag != "" {
			found := false
			for _, t := range item.Tags {
				if strings.ToLower(t) == normTag {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		if normStatus != "" && string(item.Status) != normStatus {
			continue
		}
		_ = phase // no phase field in this data model; accepted for signature parity
		matched = append(matched, item.ID)
		if _, err := r.Delete(item.ID, item.Domain); err == nil {
			removed++
		}
	}
	return matched, removed, nil
}

// ComputeSignature XORs the mtime (nanoseconds) of every Item file under
// the root, letting external renderers detect changes between requests.
func (r *Repository) ComputeSignature() int64 {
	var sig int64
	_ = r.itemFiles(func(p string) error {
		info, err := os.Stat(p)
		if err != nil {
			return nil
		}
		sig ^= info.ModTime().UnixNano()
		return nil
	})
	return sig
}
