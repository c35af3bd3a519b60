package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mockingbird/internal/config"
	"mockingbird/internal/httpapi"
	"mockingbird/internal/queue"
)

const daemonProbeTimeout = 2 * time.Second

type commandContext struct {
	apiFlag    *string
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(apiFlag, configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		apiFlag:    apiFlag,
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// apiAddr resolves the control API address: the --api flag wins, then the
// configured bind, then the stock default.
func (c *commandContext) apiAddr() string {
	if c.apiFlag != nil {
		if addr := strings.TrimSpace(*c.apiFlag); addr != "" {
			return addr
		}
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		if bind := strings.TrimSpace(cfg.Paths.APIBind); bind != "" {
			return bind
		}
	}
	return config.Default().Paths.APIBind
}

// apiToken returns the configured control API bearer token, empty when the
// daemon runs unauthenticated.
func (c *commandContext) apiToken() string {
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		return cfg.Paths.APIToken
	}
	return ""
}

// daemonRunning reports whether the control API answers health checks.
func (c *commandContext) daemonRunning(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()
	return httpapi.NewClient(c.apiAddr()).Healthz(probeCtx) == nil
}

// withClient hands fn a client for a daemon that is known to answer.
// Commands that cannot work offline use this path.
func (c *commandContext) withClient(ctx context.Context, fn func(*httpapi.Client) error) error {
	client, err := c.dialClient(ctx)
	if err != nil {
		return err
	}
	return fn(client)
}

func (c *commandContext) dialClient(ctx context.Context) (*httpapi.Client, error) {
	addr := c.apiAddr()
	client := httpapi.NewClient(addr).WithToken(c.apiToken())
	probeCtx, cancel := context.WithTimeout(ctx, daemonProbeTimeout)
	defer cancel()
	if err := client.Healthz(probeCtx); err != nil {
		return nil, wrapDialError(err, addr)
	}
	return client, nil
}

func wrapDialError(err error, addr string) error {
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `mockingbird daemon start`", addr)
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("connect to daemon: %s did not answer; verify the daemon is running", addr)
	default:
		return fmt.Errorf("connect to daemon: %w", err)
	}
}

// withJobs hands fn the job facade: the daemon's control API when it
// answers, otherwise a direct store session with the same semantics.
func (c *commandContext) withJobs(ctx context.Context, fn func(jobAPI) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if c.daemonRunning(ctx) {
		return fn(&jobClientAdapter{client: httpapi.NewClient(c.apiAddr()).WithToken(c.apiToken())})
	}

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()
	return fn(&jobStoreAdapter{cfg: cfg, store: store})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
