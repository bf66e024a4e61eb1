package sandbox

import (
	"context"
	"strconv"
	"strings"

	appErr "contestjudge/pkg/errors"
	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// DockerConfig tunes the docker CLI controller.
type DockerConfig struct {
	Binary        string `yaml:"binary"`
	TimeoutBinary string `yaml:"timeoutBinary"`
	PidsLimit     int    `yaml:"pidsLimit"`
	CPUs          string `yaml:"cpus"`
}

func (c *DockerConfig) setDefaults() {
	if c.Binary == "" {
		c.Binary = "docker"
	}
	if c.TimeoutBinary == "" {
		c.TimeoutBinary = "timeout"
	}
	if c.PidsLimit <= 0 {
		c.PidsLimit = 64
	}
	if c.CPUs == "" {
		c.CPUs = "1"
	}
}

// DockerController drives containers through the docker CLI.
type DockerController struct {
	cfg  DockerConfig
	exec CommandExecutor
}

// NewDockerController creates a controller. A nil executor uses ShellExecutor.
func NewDockerController(cfg DockerConfig, executor CommandExecutor) *DockerController {
	cfg.setDefaults()
	if executor == nil {
		executor = ShellExecutor{}
	}
	return &DockerController{cfg: cfg, exec: executor}
}

// Create provisions a stopped container with no network and capped memory.
func (d *DockerController) Create(ctx context.Context, image string, memoryLimitMB int64, name string) (Handle, error) {
	memory := strconv.FormatInt(memoryLimitMB, 10) + "m"
	args := []string{
		"create",
		"--rm",
		"--network=none",
		"--cap-drop=ALL",
		"--security-opt=no-new-privileges",
		"--pids-limit=" + strconv.Itoa(d.cfg.PidsLimit),
		"--cpus=" + d.cfg.CPUs,
		"--memory=" + memory,
		"--memory-swap=" + memory,
		"--name=" + name,
		image,
		"sleep",
		"infinity",
	}
	if err := d.provision(ctx, "create", args...); err != nil {
		return Handle{}, err
	}
	logger.Debug(ctx, "sandbox created", zap.String("sandbox", name), zap.String("image", image))
	return Handle{Name: name}, nil
}

// Start starts a created container.
func (d *DockerController) Start(ctx context.Context, h Handle) error {
	return d.provision(ctx, "start", "start", h.Name)
}

// CopyIn copies a host file into the container.
func (d *DockerController) CopyIn(ctx context.Context, h Handle, sourceFile, destinationPath string) error {
	return d.provision(ctx, "copy", "cp", sourceFile, h.Name+":"+destinationPath)
}

// Exec runs a command in the container with stdin piped. A time limit wraps
// the call in timeout(1), which sends SIGTERM and then SIGKILL one second later.
func (d *DockerController) Exec(ctx context.Context, h Handle, req ExecRequest) (string, error) {
	name, args := d.execCommand(h, req)
	res, err := d.exec.Run(ctx, req.Stdin, name, args...)
	if err != nil {
		return "", appErr.Wrapf(err, appErr.SandboxExecFailed, "exec in %s", h.Name)
	}
	if res.ExitCode == 0 {
		return res.Stdout, nil
	}
	return "", classifyExit(res.ExitCode, combinedOutput(res))
}

// Kill stops the container; --rm removes it afterwards.
func (d *DockerController) Kill(ctx context.Context, h Handle) error {
	res, err := d.exec.Run(ctx, "", d.cfg.Binary, "kill", h.Name)
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxExecFailed, "kill %s", h.Name)
	}
	if res.ExitCode != 0 {
		return appErr.Newf(appErr.SandboxExecFailed, "kill %s exited with %d: %s",
			h.Name, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

func (d *DockerController) execCommand(h Handle, req ExecRequest) (string, []string) {
	var argv []string
	if req.TimeLimitMs > 0 {
		argv = append(argv, d.cfg.TimeoutBinary, "--kill-after=1s", formatSeconds(req.TimeLimitMs))
	}
	argv = append(argv, d.cfg.Binary, "exec", "-i", h.Name)
	argv = append(argv, req.Command...)
	return argv[0], argv[1:]
}

func (d *DockerController) provision(ctx context.Context, op string, args ...string) error {
	res, err := d.exec.Run(ctx, "", d.cfg.Binary, args...)
	if err != nil {
		return appErr.Wrapf(err, appErr.SandboxProvisionFailed, "docker %s", op)
	}
	if res.ExitCode != 0 {
		return appErr.Newf(appErr.SandboxProvisionFailed, "docker %s exited with %d: %s",
			op, res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return nil
}

// formatSeconds renders milliseconds as a timeout(1) duration, e.g. 2500 -> "2.5s".
func formatSeconds(ms int64) string {
	return strconv.FormatFloat(float64(ms)/1000, 'f', -1, 64) + "s"
}

func combinedOutput(res CommandResult) string {
	if res.Stderr == "" {
		return res.Stdout
	}
	if res.Stdout == "" {
		return res.Stderr
	}
	return res.Stderr + "\n" + res.Stdout
}
