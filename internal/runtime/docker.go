package runtime

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"go.uber.org/zap"

	"github.com/rustamli/aitrader/internal/agent"
	"github.com/rustamli/aitrader/internal/bot"
)

const (
	containerPrefix      = "aitrader-"
	defaultHealthTimeout = 30 * time.Second
	healthPollInterval   = 500 * time.Millisecond
	configMountPath      = "/app/configs"
)

// DockerConfig parameterizes the docker runtime.
type DockerConfig struct {
	Image         string
	ConfigDir     string // host directory for materialized bot configs
	Network       string
	HealthTimeout time.Duration
	Services      agent.ServiceEndpoints
}

// DockerRuntime implements Runtime on the docker engine API.
type DockerRuntime struct {
	cli    *client.Client
	cfg    DockerConfig
	logger *zap.Logger
}

// NewDockerRuntime connects to the docker daemon from the environment and
// verifies it responds.
func NewDockerRuntime(ctx context.Context, cfg DockerConfig, logger *zap.Logger) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping docker daemon: %w", err)
	}

	if cfg.HealthTimeout == 0 {
		cfg.HealthTimeout = defaultHealthTimeout
	}

	logger.Info("Docker runtime connected", zap.String("image", cfg.Image))
	return &DockerRuntime{cli: cli, cfg: cfg, logger: logger.Named("docker")}, nil
}

func (d *DockerRuntime) Spawn(ctx context.Context, record *bot.Record) (string, error) {
	configPath, err := materializeConfig(d.cfg.ConfigDir, record, d.cfg.Services)
	if err != nil {
		return "", &bot.RuntimeError{Op: "spawn", Err: err}
	}

	name := containerPrefix + record.Name
	containerConfig := &container.Config{
		Image: d.cfg.Image,
		Cmd: []string{
			"agent",
			"--config", filepath.Join(configMountPath, filepath.Base(configPath)),
		},
		Env: []string{
			"BOT_ID=" + record.ID,
			"BOT_NAME=" + record.Name,
		},
		Labels: map[string]string{
			LabelManaged: "true",
			LabelBotID:   record.ID,
			LabelBotName: record.Name,
		},
	}
	hostConfig := &container.HostConfig{
		Binds:       []string{d.cfg.ConfigDir + ":" + configMountPath + ":ro"},
		NetworkMode: container.NetworkMode(d.cfg.Network),
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyDisabled,
		},
	}

	created, err := d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
	if err != nil {
		// A leftover container with the same name blocks creation; remove
		// it and try once more.
		if errdefs.IsConflict(err) {
			d.logger.Warn("Removing conflicting container", zap.String("name", name))
			if rmErr := d.removeByName(ctx, name); rmErr != nil {
				return "", &bot.RuntimeError{Op: "spawn", Err: err}
			}
			created, err = d.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, name)
		}
		if err != nil {
			return "", &bot.RuntimeError{Op: "spawn", Err: err}
		}
	}

	if err := d.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = d.Remove(ctx, created.ID)
		return "", &bot.RuntimeError{Op: "spawn", Err: err}
	}

	if err := d.waitHealthy(ctx, created.ID); err != nil {
		_ = d.Remove(ctx, created.ID)
		return "", &bot.RuntimeError{Op: "spawn", Err: err}
	}

	d.logger.Info("Bot container started",
		zap.String("bot_id", record.ID),
		zap.String("container_id", shortID(created.ID)))
	return created.ID, nil
}

// waitHealthy polls the container until the runtime reports it running, or
// the health timeout elapses.
func (d *DockerRuntime) waitHealthy(ctx context.Context, containerID string) error {
	deadline := time.Now().Add(d.cfg.HealthTimeout)
	for {
		status, err := d.Inspect(ctx, containerID)
		if err != nil {
			return err
		}
		if status.Running {
			return nil
		}
		if status.State == "exited" || status.State == "dead" {
			return fmt.Errorf("container %s exited during startup", shortID(containerID))
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("container %s not healthy after %s", shortID(containerID), d.cfg.HealthTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(healthPollInterval):
		}
	}
}

func (d *DockerRuntime) Stop(ctx context.Context, containerID string, grace time.Duration) error {
	graceSeconds := int(grace.Seconds())
	err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &graceSeconds})
	if errdefs.IsNotFound(err) {
		d.logger.Warn("Container already gone on stop", zap.String("container_id", shortID(containerID)))
		return nil
	}
	if err != nil {
		return &bot.RuntimeError{Op: "stop", Err: err}
	}

	d.logger.Info("Bot container stopped", zap.String("container_id", shortID(containerID)))
	return nil
}

func (d *DockerRuntime) Remove(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true})
	if errdefs.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return &bot.RuntimeError{Op: "remove", Err: err}
	}
	return nil
}

func (d *DockerRuntime) removeByName(ctx context.Context, name string) error {
	return d.cli.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
}

func (d *DockerRuntime) Inspect(ctx context.Context, containerID string) (Status, error) {
	info, err := d.cli.ContainerInspect(ctx, containerID)
	if errdefs.IsNotFound(err) {
		return Status{}, &bot.RuntimeError{Op: "inspect", Err: fmt.Errorf("container %s not found", shortID(containerID))}
	}
	if err != nil {
		return Status{}, &bot.RuntimeError{Op: "inspect", Err: err}
	}

	status := Status{
		Running: info.State != nil && info.State.Running,
	}
	if info.State != nil {
		status.State = info.State.Status
		if ts, parseErr := time.Parse(time.RFC3339Nano, info.State.StartedAt); parseErr == nil {
			status.StartedAt = ts
		}
	}
	return status, nil
}

func (d *DockerRuntime) FindByBotID(ctx context.Context, botID string) (*Handle, error) {
	handles, err := d.list(ctx, filters.NewArgs(
		filters.Arg("label", LabelManaged+"=true"),
		filters.Arg("label", LabelBotID+"="+botID),
	))
	if err != nil {
		return nil, err
	}
	if len(handles) == 0 {
		return nil, nil
	}
	return &handles[0], nil
}

func (d *DockerRuntime) List(ctx context.Context) ([]Handle, error) {
	return d.list(ctx, filters.NewArgs(filters.Arg("label", LabelManaged+"=true")))
}

func (d *DockerRuntime) list(ctx context.Context, args filters.Args) ([]Handle, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: args})
	if err != nil {
		return nil, &bot.RuntimeError{Op: "list", Err: err}
	}

	handles := make([]Handle, 0, len(containers))
	for _, c := range containers {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		handles = append(handles, Handle{
			ContainerID: c.ID,
			Name:        name,
			BotID:       c.Labels[LabelBotID],
			Running:     c.State == "running",
		})
	}
	return handles, nil
}

func (d *DockerRuntime) Close() error {
	return d.cli.Close()
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
