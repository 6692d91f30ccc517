package exec

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	osexec "os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bruecke-dev/bruecke/pkg/guard"
)

// RegisterBuiltins registers the baseline handler set: read_file,
// write_file, list_dir, run_command, search. All of them operate under
// the guard's path confinement and command denylist.
func RegisterBuiltins(r *Registry, g *guard.Guard) {
	r.Register(&readFileHandler{guard: g})
	r.Register(&writeFileHandler{guard: g})
	r.Register(&listDirHandler{guard: g})
	r.Register(&runCommandHandler{guard: g})
	r.Register(&searchHandler{guard: g})
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

type readFileHandler struct {
	guard *guard.Guard
}

func (h *readFileHandler) Name() string { return "read_file" }
func (h *readFileHandler) Class() Class { return ClassFast }

func (h *readFileHandler) Execute(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	resolved, apiErr := h.guard.CheckPath(path)
	if apiErr != nil {
		return "", apiErr
	}
	// Pipes and devices can block a read forever; only regular files
	// are served.
	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("read %q: not a regular file", path)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %q: %w", path, err)
	}
	return string(data), nil
}

type writeFileHandler struct {
	guard *guard.Guard
}

func (h *writeFileHandler) Name() string { return "write_file" }
func (h *writeFileHandler) Class() Class { return ClassFast }

func (h *writeFileHandler) Execute(_ context.Context, args map[string]any) (string, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return "", err
	}
	content, err := stringArg(args, "content")
	if err != nil {
		return "", err
	}
	resolved, apiErr := h.guard.CheckPath(path)
	if apiErr != nil {
		return "", apiErr
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	if err := os.WriteFile(resolved, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

type listDirHandler struct {
	guard *guard.Guard
}

func (h *listDirHandler) Name() string { return "list_dir" }
func (h *listDirHandler) Class() Class { return ClassFast }

func (h *listDirHandler) Execute(_ context.Context, args map[string]any) (string, error) {
	path := "."
	if _, ok := args["path"]; ok {
		var err error
		if path, err = stringArg(args, "path"); err != nil {
			return "", err
		}
	}
	resolved, apiErr := h.guard.CheckPath(path)
	if apiErr != nil {
		return "", apiErr
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("list %q: %w", path, err)
	}
	var b strings.Builder
	for _, e := range entries {
		if e.IsDir() {
			b.WriteString(e.Name() + "/\n")
		} else {
			b.WriteString(e.Name() + "\n")
		}
	}
	return b.String(), nil
}

type runCommandHandler struct {
	guard *guard.Guard
}

func (h *runCommandHandler) Name() string { return "run_command" }
func (h *runCommandHandler) Class() Class { return ClassCommand }

func (h *runCommandHandler) Execute(ctx context.Context, args map[string]any) (string, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return "", err
	}
	if apiErr := h.guard.CheckCommand(command); apiErr != nil {
		return "", apiErr
	}

	cmd := osexec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = h.guard.Root()
	out, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if err != nil {
		return "", fmt.Errorf("command failed: %w\n%s", err, out)
	}
	return string(out), nil
}

type searchHandler struct {
	guard *guard.Guard
}

func (h *searchHandler) Name() string { return "search" }
func (h *searchHandler) Class() Class { return ClassFast }

// Execute walks the allowed tree under the given path and returns
// file:line matches for the pattern, a regular expression.
func (h *searchHandler) Execute(ctx context.Context, args map[string]any) (string, error) {
	pattern, err := stringArg(args, "pattern")
	if err != nil {
		return "", err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", fmt.Errorf("invalid pattern: %w", err)
	}

	path := "."
	if _, ok := args["path"]; ok {
		if path, err = stringArg(args, "path"); err != nil {
			return "", err
		}
	}
	resolved, apiErr := h.guard.CheckPath(path)
	if apiErr != nil {
		return "", apiErr
	}

	var b strings.Builder
	walkErr := filepath.WalkDir(resolved, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(resolved, p)
		if relErr != nil {
			rel = p
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				fmt.Fprintf(&b, "%s:%d:%s\n", rel, i+1, line)
			}
		}
		return nil
	})
	if walkErr != nil {
		return "", walkErr
	}
	if b.Len() == 0 {
		return "no matches\n", nil
	}
	return b.String(), nil
}
