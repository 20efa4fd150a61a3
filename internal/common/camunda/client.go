// internal/common/camunda/client.go
package camunda

import (
	"context"
	"fmt"
	"strings"
	"time"

	"notification-dispatch/internal/common/config"
	"notification-dispatch/internal/common/errors"

	"github.com/camunda/zeebe/clients/go/v8/pkg/pb"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
)

// Client is the worker manager's handle on the Zeebe gateway.
type Client struct {
	client zbc.Client
	config *ClientConfig
}

type ClientConfig struct {
	GatewayAddress         string
	UsePlaintextConnection bool
	ConnectionTimeout      time.Duration
	RequestTimeout         time.Duration
	RetryConfig            *RetryConfig
}

// RetryConfig bounds the exponential backoff applied to transient gateway failures.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

var DefaultRetryConfig = &RetryConfig{
	MaxRetries: 3,
	BaseDelay:  1 * time.Second,
	MaxDelay:   10 * time.Second,
}

func (r *RetryConfig) delay(attempt int) time.Duration {
	d := r.BaseDelay * time.Duration(1<<attempt)
	if d > r.MaxDelay {
		return r.MaxDelay
	}
	return d
}

// NewClient connects to the gateway named in the camunda config section.
func NewClient(cfg config.CamundaConfig) (*Client, error) {
	return NewClientWithConfig(&ClientConfig{
		GatewayAddress:         cfg.BrokerAddress,
		UsePlaintextConnection: cfg.Plaintext,
		RequestTimeout:         config.GetDuration(cfg.RequestTimeout),
	})
}

// NewClientWithConfig creates the client and fails unless the gateway answers
// a topology request within ConnectionTimeout.
func NewClientWithConfig(cfg *ClientConfig) (*Client, error) {
	applyClientDefaults(cfg)

	zeebeClient, err := zbc.NewClient(&zbc.ClientConfig{
		GatewayAddress:         cfg.GatewayAddress,
		UsePlaintextConnection: cfg.UsePlaintextConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Zeebe client: %w", err)
	}

	c := &Client{client: zeebeClient, config: cfg}
	if err := c.HealthCheck(context.Background()); err != nil {
		zeebeClient.Close()
		return nil, fmt.Errorf("failed to connect to Zeebe broker at %s: %w", cfg.GatewayAddress, err)
	}
	return c, nil
}

func applyClientDefaults(cfg *ClientConfig) {
	if cfg.RetryConfig == nil {
		cfg.RetryConfig = DefaultRetryConfig
	}
	if cfg.ConnectionTimeout == 0 {
		cfg.ConnectionTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
}

// GetClient returns the raw Zeebe client used to open job workers.
func (c *Client) GetClient() zbc.Client {
	return c.client
}

func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck sends a topology request bounded by ConnectionTimeout.
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.ConnectionTimeout)
	defer cancel()

	if _, err := c.client.NewTopologyCommand().Send(ctx); err != nil {
		return fmt.Errorf("zeebe health check failed: %w", err)
	}
	return nil
}

// PublishMessageCreated starts a process instance for a stored message. The
// process is expected to run the dispatch-message job.
func (c *Client) PublishMessageCreated(ctx context.Context, bpmnProcessID string, variables map[string]interface{}) (int64, error) {
	var resp *pb.CreateProcessInstanceResponse
	err := c.withRetry(ctx, "create-instance", func(ctx context.Context) error {
		cmd, err := c.client.NewCreateInstanceCommand().
			BPMNProcessId(bpmnProcessID).
			LatestVersion().
			VariablesFromMap(variables)
		if err != nil {
			return err
		}
		reqCtx, cancel := context.WithTimeout(ctx, c.config.RequestTimeout)
		defer cancel()
		resp, err = cmd.Send(reqCtx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return resp.GetProcessInstanceKey(), nil
}

// withRetry runs fn until it succeeds, fails permanently, or retries run out.
// The returned error is a StandardError classified from the last failure.
func (c *Client) withRetry(ctx context.Context, operation string, fn func(context.Context) error) error {
	retry := c.config.RetryConfig
	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		failure := classifyZeebeError(err)
		if !failure.transient || attempt == retry.MaxRetries {
			return failure.build(operation, attempt, err)
		}

		select {
		case <-time.After(retry.delay(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("zeebe %s cancelled after %d attempts: %w", operation, attempt+1, ctx.Err())
		}
	}
}

// zeebeFailure maps a gateway error message onto the standard taxonomy.
type zeebeFailure struct {
	phrases   []string
	transient bool
	newError  func(msg string) *errors.StandardError
}

var zeebeFailures = []zeebeFailure{
	{
		phrases:   []string{"connection refused", "connection reset", "unavailable", "unreachable", "broken pipe"},
		transient: true,
		newError:  func(msg string) *errors.StandardError { return errors.NewExternalServiceError("zeebe", fmt.Errorf("%s", msg)) },
	},
	{
		phrases:   []string{"timeout", "deadline exceeded"},
		transient: true,
		newError:  func(msg string) *errors.StandardError { return errors.NewTimeoutError("zeebe", fmt.Errorf("%s", msg)) },
	},
	{
		phrases:  []string{"not found"},
		newError: func(msg string) *errors.StandardError { return errors.NewResourceNotFoundError("zeebe", msg) },
	},
	{
		phrases:  []string{"permission denied", "unauthorized"},
		newError: errors.NewAuthenticationError,
	},
}

var unclassifiedZeebeFailure = zeebeFailure{
	newError: func(msg string) *errors.StandardError { return errors.NewExternalServiceError("zeebe", fmt.Errorf("%s", msg)) },
}

func classifyZeebeError(err error) zeebeFailure {
	msg := strings.ToLower(err.Error())
	for _, f := range zeebeFailures {
		for _, p := range f.phrases {
			if strings.Contains(msg, p) {
				return f
			}
		}
	}
	return unclassifiedZeebeFailure
}

func (f zeebeFailure) build(operation string, attempt int, err error) *errors.StandardError {
	msg := fmt.Sprintf("zeebe %s failed", operation)
	if attempt > 0 {
		msg += fmt.Sprintf(" after %d attempts", attempt+1)
	}
	return f.newError(fmt.Sprintf("%s: %s", msg, err.Error())).
		WithMetadata("zeebeOperation", operation)
}
