package guard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bruecke-dev/bruecke/pkg/api"
)

// Config holds guard policy settings.
type Config struct {
	// AllowedRoot confines all file paths. Required for file tools.
	AllowedRoot string

	// DeniedCommands are command names and substrings that must never
	// run. Matched against the resolved program name and the raw
	// command line.
	DeniedCommands []string

	// MaxArgBytes caps a single argument payload. Defaults to 1 MiB.
	MaxArgBytes int

	// CallsPerMinute is the per session/tool rate budget. Zero disables
	// the budget.
	CallsPerMinute int
}

func (c Config) withDefaults() Config {
	if c.MaxArgBytes <= 0 {
		c.MaxArgBytes = 1 << 20
	}
	if len(c.DeniedCommands) == 0 {
		c.DeniedCommands = DefaultDeniedCommands()
	}
	return c
}

// DefaultDeniedCommands returns the baseline command denylist.
func DefaultDeniedCommands() []string {
	return []string{
		"sudo", "su", "shutdown", "reboot", "mkfs",
		"rm -rf /", ":(){", "dd if=",
	}
}

// Guard validates tool arguments against the configured policy.
// Safe for concurrent use.
type Guard struct {
	cfg     Config
	root    string
	limiter *BudgetLimiter
}

// New creates a guard. The allowed root is resolved through symlinks
// once at startup so later confinement checks compare real paths.
func New(cfg Config) (*Guard, error) {
	cfg = cfg.withDefaults()

	g := &Guard{cfg: cfg}
	if cfg.AllowedRoot != "" {
		abs, err := filepath.Abs(cfg.AllowedRoot)
		if err != nil {
			return nil, fmt.Errorf("guard: resolve allowed root: %w", err)
		}
		resolved, err := filepath.EvalSymlinks(abs)
		if err != nil {
			return nil, fmt.Errorf("guard: resolve allowed root: %w", err)
		}
		g.root = resolved
	}
	if cfg.CallsPerMinute > 0 {
		g.limiter = NewBudgetLimiter(cfg.CallsPerMinute)
	}
	return g, nil
}

// Root returns the resolved allowed root.
func (g *Guard) Root() string {
	return g.root
}

func securityError(msg string) *api.APIError {
	return &api.APIError{
		Type:    api.ErrorTypeInvalidRequest,
		Code:    api.CodeSecurityPolicy,
		Message: msg,
	}
}

// CheckPath confines a path to the allowed root and returns the
// resolved absolute path to operate on. Symlinks inside the tree are
// followed; a link that escapes the root is rejected. For paths that do
// not exist yet (file writes) the nearest existing ancestor is
// resolved instead.
func (g *Guard) CheckPath(path string) (string, *api.APIError) {
	if g.root == "" {
		return "", securityError("file access is not permitted: no allowed root configured")
	}
	if path == "" {
		return "", securityError("path must not be empty")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.root, abs)
	}
	abs = filepath.Clean(abs)

	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", securityError(fmt.Sprintf("cannot resolve path %q", path))
	}
	if resolved != g.root && !strings.HasPrefix(resolved, g.root+string(filepath.Separator)) {
		return "", securityError(fmt.Sprintf("path %q escapes the allowed root", path))
	}
	return abs, nil
}

// resolveExisting resolves symlinks for the longest existing prefix of
// the path and rejoins the non-existing remainder.
func resolveExisting(abs string) (string, error) {
	remainder := ""
	current := abs
	for {
		resolved, err := filepath.EvalSymlinks(current)
		if err == nil {
			return filepath.Clean(filepath.Join(resolved, remainder)), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", err
		}
		remainder = filepath.Join(filepath.Base(current), remainder)
		current = parent
	}
}

// CheckCommand rejects command lines matching the denylist.
func (g *Guard) CheckCommand(command string) *api.APIError {
	if strings.TrimSpace(command) == "" {
		return securityError("command must not be empty")
	}
	lowered := strings.ToLower(command)
	program := strings.ToLower(filepath.Base(strings.Fields(command)[0]))
	for _, denied := range g.cfg.DeniedCommands {
		d := strings.ToLower(denied)
		if program == d || strings.Contains(lowered, d) {
			return securityError(fmt.Sprintf("command matches denied pattern %q", denied))
		}
	}
	return nil
}

// CheckPayload enforces the argument payload ceiling.
func (g *Guard) CheckPayload(size int) *api.APIError {
	if size > g.cfg.MaxArgBytes {
		return securityError(fmt.Sprintf("argument payload of %d bytes exceeds the %d byte ceiling",
			size, g.cfg.MaxArgBytes))
	}
	return nil
}

// CheckBudget charges one call against the session/tool rate budget.
func (g *Guard) CheckBudget(sessionID, tool string) *api.APIError {
	if g.limiter == nil {
		return nil
	}
	if !g.limiter.Allow(sessionID + ":" + tool) {
		err := api.NewTooManyRequestsError(
			fmt.Sprintf("rate budget exhausted for tool %q in this session", tool))
		err.Code = api.CodeSecurityPolicy
		return err
	}
	return nil
}
