package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	logrus "github.com/sirupsen/logrus"

	"codesandbox/model"
)

const execPollInterval = 20 * time.Millisecond

// ContainerManager implements ContainerRuntime on top of the Docker Engine API.
// Container lifecycle events go to a separate audit log.
type ContainerManager struct {
	dockerClient *client.Client
	logger       *logrus.Logger
}

// NewContainerManager creates a Docker client from the environment. An empty
// auditLogPath discards lifecycle events.
func NewContainerManager(auditLogPath string) (*ContainerManager, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create Docker client: %w", err)
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if auditLogPath == "" {
		logger.SetOutput(io.Discard)
	} else {
		if err := os.MkdirAll(filepath.Dir(auditLogPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log dir: %w", err)
		}
		logFile, err := os.OpenFile(auditLogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		logger.SetOutput(logFile)
	}

	return &ContainerManager{dockerClient: dockerClient, logger: logger}, nil
}

// buildContainerConfig maps spec onto Docker's create options.
func buildContainerConfig(spec ContainerSpec) (*container.Config, *container.HostConfig) {
	pidsLimit := spec.PidsLimit
	config := &container.Config{
		Image:           spec.Image,
		Cmd:             []string{"sh"},
		Tty:             true,
		OpenStdin:       true,
		WorkingDir:      spec.MountPath,
		NetworkDisabled: true,
		Labels:          spec.Labels,
	}
	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory:     spec.MemoryBytes,
			MemorySwap: spec.MemoryBytes, // equal to Memory: no swap
			NanoCPUs:   spec.NanoCPUs,
			PidsLimit:  &pidsLimit,
		},
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		SecurityOpt:    []string{"seccomp=" + spec.SeccompProfile, "no-new-privileges"},
		CapDrop:        []string{"ALL"},
		Binds:          []string{spec.HostDir + ":" + spec.MountPath + ":ro"},
		Tmpfs: map[string]string{
			"/tmp": "rw,noexec,nosuid,size=16m",
		},
	}
	return config, hostConfig
}

func (cm *ContainerManager) Create(ctx context.Context, spec ContainerSpec) (string, error) {
	config, hostConfig := buildContainerConfig(spec)
	resp, err := cm.dockerClient.ContainerCreate(ctx, config, hostConfig, nil, nil, "")
	if err != nil {
		cm.logger.WithField("image", spec.Image).Errorf("failed to create container: %v", err)
		return "", err
	}
	cm.logger.WithFields(logrus.Fields{
		"container": shortID(resp.ID),
		"image":     spec.Image,
		"bind":      spec.HostDir,
	}).Info("created sandbox container")
	return resp.ID, nil
}

func (cm *ContainerManager) Start(ctx context.Context, id string) error {
	if err := cm.dockerClient.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		cm.logger.WithField("container", shortID(id)).Errorf("failed to start container: %v", err)
		return err
	}
	cm.logger.WithField("container", shortID(id)).Info("started sandbox container")
	return nil
}

func (cm *ContainerManager) Exec(ctx context.Context, id string, req ExecRequest) (ExecResult, error) {
	execResp, err := cm.dockerClient.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          req.Cmd,
		WorkingDir:   req.WorkingDir,
		AttachStdout: true,
		AttachStderr: true,
		AttachStdin:  req.Stdin != "",
	})
	if err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("failed to create exec: %w", err)
	}
	cm.logger.WithFields(logrus.Fields{
		"container": shortID(id),
		"exec":      shortID(execResp.ID),
	}).Debug("created exec")

	attachResp, err := cm.dockerClient.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return ExecResult{ExitCode: -1}, fmt.Errorf("failed to attach exec: %w", err)
	}
	defer attachResp.Close()

	if req.Stdin != "" {
		if _, err := io.WriteString(attachResp.Conn, req.Stdin); err != nil {
			return ExecResult{ExitCode: -1}, fmt.Errorf("failed to write stdin: %w", err)
		}
		if err := attachResp.CloseWrite(); err != nil {
			return ExecResult{ExitCode: -1}, fmt.Errorf("failed to close stdin: %w", err)
		}
	}

	var stdout, stderr bytes.Buffer
	done := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(&stdout, &stderr, attachResp.Reader)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return ExecResult{ExitCode: -1}, fmt.Errorf("failed to read exec output: %w", err)
		}
	case <-ctx.Done():
		attachResp.Close()
		<-done
		cm.logger.WithFields(logrus.Fields{
			"container": shortID(id),
			"exec":      shortID(execResp.ID),
		}).Warn("exec detached: " + ctx.Err().Error())
		return ExecResult{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
	}

	exitCode, err := waitExecExit(ctx, func(ctx context.Context) (container.ExecInspect, error) {
		return cm.dockerClient.ContainerExecInspect(ctx, execResp.ID)
	})
	if err != nil {
		if ctx.Err() != nil {
			return ExecResult{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String()}, ctx.Err()
		}
		return ExecResult{ExitCode: -1}, fmt.Errorf("failed to inspect exec: %w", err)
	}
	return ExecResult{ExitCode: exitCode, Stdout: stdout.String(), Stderr: stderr.String()}, nil
}

// waitExecExit polls inspect until the exec has stopped running. The output
// stream can close before the daemon records the exit code.
func waitExecExit(ctx context.Context, inspect func(context.Context) (container.ExecInspect, error)) (int, error) {
	for {
		res, err := inspect(ctx)
		if err != nil {
			return -1, err
		}
		if !res.Running {
			return res.ExitCode, nil
		}
		select {
		case <-ctx.Done():
			return -1, ctx.Err()
		case <-time.After(execPollInterval):
		}
	}
}

func (cm *ContainerManager) Stats(ctx context.Context, id string, sample func(usage int64)) error {
	resp, err := cm.dockerClient.ContainerStats(ctx, id, true)
	if err != nil {
		return fmt.Errorf("failed to stream stats: %w", err)
	}
	defer resp.Body.Close()
	return decodeStats(resp.Body, sample)
}

// decodeStats reads a stream of stats documents and reports memory usage.
func decodeStats(r io.Reader, sample func(usage int64)) error {
	dec := json.NewDecoder(r)
	for {
		var stats model.ContainerStats
		if err := dec.Decode(&stats); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		sample(stats.MemoryStats.Usage)
	}
}

func (cm *ContainerManager) Remove(ctx context.Context, id string) error {
	if err := cm.dockerClient.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		cm.logger.WithField("container", shortID(id)).Errorf("failed to remove container: %v", err)
		return err
	}
	cm.logger.WithField("container", shortID(id)).Info("removed sandbox container")
	return nil
}

// EnsureImage pulls img unless it is already present locally.
func (cm *ContainerManager) EnsureImage(ctx context.Context, img string) error {
	if _, _, err := cm.dockerClient.ImageInspectWithRaw(ctx, img); err == nil {
		return nil
	}

	cm.logger.WithField("image", img).Info("pulling image")
	reader, err := cm.dockerClient.ImagePull(ctx, img, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", img, err)
	}
	cm.logger.WithField("image", img).Info("pulled image")
	return nil
}

// PruneManaged force-removes every container carrying ManagedLabel and
// returns how many were removed.
func (cm *ContainerManager) PruneManaged(ctx context.Context) (int, error) {
	containers, err := cm.dockerClient.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", ManagedLabel+"=true")),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list containers: %w", err)
	}

	removed := 0
	var errs []error
	for _, c := range containers {
		if err := cm.Remove(ctx, c.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// Close releases the Docker client.
func (cm *ContainerManager) Close() error {
	return cm.dockerClient.Close()
}
