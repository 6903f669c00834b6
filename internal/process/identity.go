package process

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Identity is the (executable, arguments) pair used to verify that a pid
// belongs to the program a Host is configured for.
type Identity struct {
	Executable string `json:"executable"`
	Arguments  string `json:"arguments"`
}

// IdentityResolver looks up the identity the OS currently reports for a pid.
// It is consumed only by Reattach and only for equality checks.
type IdentityResolver interface {
	Resolve(ctx context.Context, pid int) (Identity, error)
	// CanonicalArguments converts a configured argument string into the form
	// Resolve reports for a process launched with it.
	CanonicalArguments(args string) string
}

// NewIdentityResolver returns the resolver for the running operating system.
func NewIdentityResolver() IdentityResolver {
	switch runtime.GOOS {
	case "linux":
		return NewProcfsIdentityResolver("/proc")
	case "windows":
		return newWindowsIdentityResolver()
	default:
		return unsupportedIdentityResolver{goos: runtime.GOOS}
	}
}

type unsupportedIdentityResolver struct {
	goos string
}

func (r unsupportedIdentityResolver) Resolve(context.Context, int) (Identity, error) {
	return Identity{}, fmt.Errorf("resolve process identity on %s: %w", r.goos, ErrPlatformUnsupported)
}

func (unsupportedIdentityResolver) CanonicalArguments(args string) string {
	return strings.TrimSpace(args)
}

// ProcfsIdentityResolver reads /proc/<pid>/cmdline.
type ProcfsIdentityResolver struct {
	root string
}

// NewProcfsIdentityResolver creates a resolver rooted at the given procfs mount.
func NewProcfsIdentityResolver(root string) *ProcfsIdentityResolver {
	return &ProcfsIdentityResolver{root: root}
}

func (r *ProcfsIdentityResolver) Resolve(ctx context.Context, pid int) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	path := filepath.Join(r.root, strconv.Itoa(pid), "cmdline")
	data, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, fmt.Errorf("process %d: unable to read %s: %w: %v", pid, path, ErrNotFound, err)
	}

	var parts []string
	for _, part := range bytes.Split(data, []byte{0}) {
		if len(part) > 0 {
			parts = append(parts, string(part))
		}
	}
	if len(parts) == 0 {
		return Identity{}, fmt.Errorf("process %d: %s is empty: %w", pid, path, ErrNotFound)
	}

	return Identity{
		Executable: parts[0],
		Arguments:  strings.TrimSpace(strings.Join(parts[1:], " ")),
	}, nil
}

// CanonicalArguments splits args the way the launcher does on Unix and joins
// the words with single spaces, which is how cmdline reports them.
func (r *ProcfsIdentityResolver) CanonicalArguments(args string) string {
	words, err := shellquote.Split(args)
	if err != nil {
		return strings.TrimSpace(args)
	}
	return strings.Join(words, " ")
}
