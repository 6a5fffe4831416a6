package dockerclient

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
)

// Compose runs the compose CLI, e.g. "docker compose" for the v2 plugin or
// "docker-compose" for the standalone binary; the command is configurable
// since both remain common in the wild.
type Compose struct {
	command []string // e.g. []string{"docker", "compose"}
	hostEnv []string // extra environment, e.g. DOCKER_HOST=tcp://...
}

// NewCompose builds a compose invoker. command is split on spaces, e.g.
// "docker compose" or "docker-compose".
func NewCompose(command string, dockerHost string) *Compose {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		parts = []string{"docker", "compose"}
	}
	var env []string
	if dockerHost != "" {
		env = append(env, "DOCKER_HOST="+dockerHost)
	}
	return &Compose{command: parts, hostEnv: env}
}

// validTagOrService matches the safe subset of characters compose accepts
// in service names, tags, and file names. Rejecting anything else up front
// closes off shell-metacharacter and argument-injection tricks before the
// value ever reaches exec.Command's argv.
var validTagOrService = regexp.MustCompile(`^[A-Za-z0-9_.:/@-]+$`)

// ValidateArg rejects any value containing characters outside the safe
// subset used in compose service names, image tags, and file paths.
func ValidateArg(v string) error {
	if v == "" || !validTagOrService.MatchString(v) {
		return fmt.Errorf("unsafe compose argument %q", v)
	}
	return nil
}

// Invocation carries the per-call context every compose subcommand needs:
// the host-visible compose file (always passed via -f), the compose
// project name when known (-p), and an optional .env file used only if it
// exists.
type Invocation struct {
	File    string
	Project string
	EnvFile string
}

func (inv Invocation) args() ([]string, error) {
	if err := ValidateArg(inv.File); err != nil {
		return nil, err
	}
	args := []string{"-f", inv.File}
	if inv.Project != "" {
		if err := ValidateArg(inv.Project); err != nil {
			return nil, err
		}
		args = append(args, "-p", inv.Project)
	}
	if inv.EnvFile != "" {
		if _, err := os.Stat(inv.EnvFile); err == nil {
			args = append(args, "--env-file", inv.EnvFile)
		}
	}
	return args, nil
}

// run executes the compose binary with args, returning combined output on
// error. Arguments are passed as a real argv slice to exec.CommandContext —
// never through a shell — so nothing in args can be interpreted as a
// separate command or redirection.
func (cp *Compose) run(ctx context.Context, dir string, args ...string) (string, error) {
	full := append(append([]string{}, cp.command[1:]...), args...)
	cmd := exec.CommandContext(ctx, cp.command[0], full...)
	cmd.Dir = dir
	cmd.Env = append(cmd.Environ(), cp.hostEnv...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w\n%s", cp.command[0], strings.Join(args, " "), err, out)
	}
	return string(out), nil
}

func buildArgs(inv Invocation, sub string, services []string) ([]string, error) {
	prefix, err := inv.args()
	if err != nil {
		return nil, err
	}
	for _, s := range services {
		if err := ValidateArg(s); err != nil {
			return nil, err
		}
	}
	args := append(prefix, sub)
	switch sub {
	case "up":
		args = append(args, "-d", "--no-deps", "--force-recreate")
	}
	args = append(args, services...)
	return args, nil
}

func (cp *Compose) invoke(ctx context.Context, inv Invocation, sub string, services []string) (string, error) {
	args, err := buildArgs(inv, sub, services)
	if err != nil {
		return "", err
	}
	return cp.run(ctx, filepath.Dir(inv.File), args...)
}

// Up recreates the given services (or all services if none given) per the
// compose file named in inv.
func (cp *Compose) Up(ctx context.Context, inv Invocation, services ...string) (string, error) {
	return cp.invoke(ctx, inv, "up", services)
}

// Pull pulls images for the given services without starting them.
func (cp *Compose) Pull(ctx context.Context, inv Invocation, services ...string) (string, error) {
	return cp.invoke(ctx, inv, "pull", services)
}

// Stop stops the given services without removing them, used to quiesce a
// container before a data backup.
func (cp *Compose) Stop(ctx context.Context, inv Invocation, services ...string) (string, error) {
	return cp.invoke(ctx, inv, "stop", services)
}

// Restart restarts the given services in place without pulling or
// recreating them, used by the manual restart endpoint. Callers bound the
// operation with a context timeout rather than a compose flag.
func (cp *Compose) Restart(ctx context.Context, inv Invocation, services ...string) (string, error) {
	return cp.invoke(ctx, inv, "restart", services)
}

// Ps reports the state of a single service for health polling.
func (cp *Compose) Ps(ctx context.Context, inv Invocation, service string) (string, error) {
	return cp.invoke(ctx, inv, "ps", []string{service, "--format", "json"})
}

// Config validates and renders the merged compose configuration, used
// before mutating a file to confirm it still parses.
func (cp *Compose) Config(ctx context.Context, inv Invocation) (string, error) {
	prefix, err := inv.args()
	if err != nil {
		return "", err
	}
	args := append(prefix, "config", "--quiet")
	return cp.run(ctx, filepath.Dir(inv.File), args...)
}
