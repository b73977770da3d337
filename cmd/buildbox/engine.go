package main

import (
	"context"
	"fmt"
	"time"

	"pkt.systems/pslog"

	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/console"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/appconfig"
	containerdengine "github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/engine/containerd"
	dockerengine "github.com/ReflexLevel0/DockerBuildboxSystem-sub001/internal/engine/docker"
	"github.com/ReflexLevel0/DockerBuildboxSystem-sub001/schema"
)

// containerEngine is the full engine surface the CLI needs: the console
// stream interface plus container management.
type containerEngine interface {
	console.Engine
	ListContainers(ctx context.Context, all bool) ([]schema.ContainerSummary, error)
	Inspect(ctx context.Context, container string) (schema.ContainerDetail, error)
	StopContainer(ctx context.Context, container string, timeout time.Duration) error
	Close() error
}

func openEngine(ctx context.Context, cfg appconfig.Config) (containerEngine, error) {
	logger := pslog.Ctx(ctx)
	switch cfg.Engine.Backend {
	case "docker", "":
		return dockerengine.New(ctx, cfg.Engine.Address, logger)
	case "containerd":
		return containerdengine.New(ctx, containerdengine.Config{
			Address:   cfg.Engine.Containerd.Address,
			Namespace: cfg.Engine.Containerd.Namespace,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported engine.backend %q", cfg.Engine.Backend)
	}
}
