package sandbox

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-retry"
	log "github.com/sirupsen/logrus"
)

const (
	imageNamePrefix     = "miner-statement-app"
	containerNamePrefix = "miner-statement-api"
)

// ErrReadinessTimeout marks an agent that started but never answered its
// liveness check within the bounded retry budget.
var ErrReadinessTimeout = errors.New("agent did not become ready in time")

// BuildError marks a failed image build. Interrupted distinguishes builds cut
// short externally (daemon restart, cancellation); those are retryable.
type BuildError struct {
	Interrupted bool
	Err         error
}

func (e *BuildError) Error() string {
	if e.Interrupted {
		return fmt.Sprintf("sandbox build interrupted: %v", e.Err)
	}
	return fmt.Sprintf("sandbox build failed: %v", e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Config carries the resource ceilings communicated to the sandbox host.
type Config struct {
	Port             int
	CPUs             int64
	Memory           int64
	ReadinessRetries int
}

// Runner is the bounded-latency execution surface the evaluation loop
// consumes. Implementations own isolation and resource enforcement.
type Runner interface {
	// Start builds an image from the payload directory and launches it,
	// waiting until the agent answers its liveness check. The returned
	// Instance must be torn down by the caller on every path.
	Start(ctx context.Context, payloadDir string, uid int) (Instance, error)
}

// Instance is one running sandbox.
type Instance interface {
	// Invoke calls the agent's verification contract with a single statement
	// and a deadline.
	Invoke(ctx context.Context, statement, statementID string, timeout time.Duration) (*Verdict, error)

	// Teardown stops and removes the instance. Safe to call on any exit path,
	// including cancellation; it runs on its own deadline so a cancelled
	// caller context cannot leak the container.
	Teardown()
}

// DockerRunner executes payloads as containers with hard CPU and memory
// ceilings. Swap is pinned to the memory limit so the ceiling is a hard cap.
type DockerRunner struct {
	cli *client.Client
	cfg Config
	gpu bool
}

var _ Runner = (*DockerRunner)(nil)

func NewDockerRunner(ctx context.Context, cfg Config) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errors.Wrap(err, "creating docker client")
	}

	r := &DockerRunner{cli: cli, cfg: cfg}
	r.gpu = r.detectGPU(ctx)
	if r.gpu {
		log.Infoln("GPU runtime detected, passthrough enabled")
	} else {
		log.Infoln("GPU runtime not detected, running without GPU")
	}
	return r, nil
}

// detectGPU reports whether the daemon exposes the nvidia runtime. Absence of
// a GPU is not an error.
func (r *DockerRunner) detectGPU(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	info, err := r.cli.Info(ctx)
	if err != nil {
		log.Debugln("Docker info failed during GPU detection: ", err)
		return false
	}
	for name := range info.Runtimes {
		if strings.Contains(strings.ToLower(name), "nvidia") {
			return true
		}
	}
	return false
}

func (r *DockerRunner) Start(ctx context.Context, payloadDir string, uid int) (Instance, error) {
	imageName := fmt.Sprintf("%s-uid%d", imageNamePrefix, uid)
	containerName := fmt.Sprintf("%s-uid%d", containerNamePrefix, uid)

	if err := r.build(ctx, payloadDir, imageName); err != nil {
		return nil, err
	}

	inst := &dockerInstance{
		runner:        r,
		imageName:     imageName,
		containerName: containerName,
		baseURL:       fmt.Sprintf("http://localhost:%d", r.cfg.Port),
		client:        &http.Client{},
	}

	if err := r.run(ctx, imageName, containerName, inst); err != nil {
		inst.Teardown()
		return nil, err
	}

	if err := r.awaitReady(ctx, inst); err != nil {
		inst.Teardown()
		return nil, err
	}

	log.Infof("Sandbox for uid %d ready on port %d", uid, r.cfg.Port)
	return inst, nil
}

func (r *DockerRunner) build(ctx context.Context, payloadDir, imageName string) error {
	buildDir, ok := findDockerfile(payloadDir)
	if !ok {
		return &BuildError{Err: errors.Errorf("no Dockerfile found in %s", payloadDir)}
	}

	buildCtx, err := tarDirectory(buildDir)
	if err != nil {
		return &BuildError{Err: err}
	}

	log.Infof("Building sandbox image %s from %s", imageName, buildDir)
	resp, err := r.cli.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{imageName},
		Dockerfile:  "Dockerfile",
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return &BuildError{Interrupted: true, Err: err}
		}
		return &BuildError{Err: err}
	}
	defer resp.Body.Close()

	// The build runs while its output stream is consumed; errors surface on
	// the stream, not the ImageBuild call.
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		if ctx.Err() != nil {
			return &BuildError{Interrupted: true, Err: err}
		}
		return &BuildError{Err: err}
	}
	return nil
}

func (r *DockerRunner) run(ctx context.Context, imageName, containerName string, inst *dockerInstance) error {
	// A stale container from a crashed cycle would collide on name and port.
	r.removeContainer(containerName)

	portKey := nat.Port(fmt.Sprintf("%d/tcp", r.cfg.Port))
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			portKey: []nat.PortBinding{{HostIP: "0.0.0.0", HostPort: fmt.Sprintf("%d", r.cfg.Port)}},
		},
		Resources: container.Resources{
			NanoCPUs:   r.cfg.CPUs * 1e9,
			Memory:     r.cfg.Memory,
			MemorySwap: r.cfg.Memory,
		},
	}
	if r.gpu {
		hostConfig.Resources.DeviceRequests = []container.DeviceRequest{{
			Driver:       "nvidia",
			Count:        -1,
			Capabilities: [][]string{{"gpu"}},
		}}
	}

	created, err := r.cli.ContainerCreate(ctx,
		&container.Config{
			Image:        imageName,
			ExposedPorts: nat.PortSet{portKey: struct{}{}},
		},
		hostConfig, nil, nil, containerName)
	if err != nil {
		return errors.Wrap(err, "creating sandbox container")
	}
	inst.containerID = created.ID

	if err := r.cli.ContainerStart(ctx, created.ID, types.ContainerStartOptions{}); err != nil {
		return errors.Wrap(err, "starting sandbox container")
	}

	log.Debugf("Container %s running with %d CPUs, %s memory",
		containerName, r.cfg.CPUs, units.BytesSize(float64(r.cfg.Memory)))
	return nil
}

// awaitReady polls the liveness endpoint once per second up to the configured
// retry count. Each probe carries its own short deadline so an agent that
// accepts connections but never answers still exhausts the retry budget.
func (r *DockerRunner) awaitReady(ctx context.Context, inst *dockerInstance) error {
	backoff := retry.WithMaxRetries(uint64(r.cfg.ReadinessRetries), retry.NewConstant(time.Second))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := CheckHealth(probeCtx, inst.client, inst.baseURL); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(ErrReadinessTimeout, err.Error())
	}
	return nil
}

func (r *DockerRunner) removeContainer(nameOrID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stopTimeout := 10
	if err := r.cli.ContainerStop(ctx, nameOrID, container.StopOptions{Timeout: &stopTimeout}); err != nil && !client.IsErrNotFound(err) {
		log.Debugln("Container stop: ", err)
	}
	if err := r.cli.ContainerRemove(ctx, nameOrID, types.ContainerRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		log.Debugln("Container remove: ", err)
	}
}

type dockerInstance struct {
	runner        *DockerRunner
	imageName     string
	containerName string
	containerID   string
	baseURL       string
	client        *http.Client
}

func (i *dockerInstance) Invoke(ctx context.Context, statement, statementID string, timeout time.Duration) (*Verdict, error) {
	return CallVerify(ctx, i.client, i.baseURL, statement, statementID, timeout)
}

// Teardown uses its own background deadline: a cancelled evaluation context
// must still release the container and image.
func (i *dockerInstance) Teardown() {
	target := i.containerID
	if target == "" {
		target = i.containerName
	}
	i.runner.removeContainer(target)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := i.runner.cli.ImageRemove(ctx, i.imageName, types.ImageRemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
		log.Debugln("Image remove: ", err)
	}
	log.Debugf("Tore down sandbox %s", i.containerName)
}
