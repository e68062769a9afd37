package runtime

import (
	"context"
	"errors"
	"sync"
	"time"

	"omniture-reporter/internal/logging"
)

var ErrAlreadyRunning = errors.New("service is already running")

// Controller runs one Service at a time in the background and lets the
// caller stop it and wait for it with a bound.
type Controller struct {
	rootCtx context.Context
	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	lastErr error
	wg      sync.WaitGroup
}

func NewController(rootCtx context.Context) *Controller {
	if rootCtx == nil {
		rootCtx = context.Background()
	}
	return &Controller{rootCtx: rootCtx}
}

// Start runs service until it returns or the controller's root context
// ends. onExit, if set, receives the service's error.
func (c *Controller) Start(service Service, logger *logging.Logger, onExit func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(c.rootCtx)
	c.cancel = cancel
	c.running = true
	c.lastErr = nil
	c.wg.Go(func() {
		defer cancel()
		runErr := service.RunContext(ctx)
		if errors.Is(runErr, context.Canceled) || errors.Is(runErr, context.DeadlineExceeded) {
			logger.Debug("service exited due to context cancellation", logging.Field("error", runErr))
		} else if runErr != nil {
			logger.Debug("service exited with error", logging.Field("error", runErr))
		} else {
			logger.Debug("service exited")
		}
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.lastErr = runErr
		c.mu.Unlock()

		if onExit != nil {
			onExit(runErr)
		}
	})
	return nil
}

func (c *Controller) Stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the service returns. A positive timeout bounds the
// wait; false means the service is still running.
func (c *Controller) Wait(timeout time.Duration) bool {
	waitDone := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(waitDone)
	}()
	if timeout <= 0 {
		<-waitDone
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-waitDone:
		return true
	case <-timer.C:
		return false
	}
}

func (c *Controller) StopAndWait(timeout time.Duration) bool {
	c.Stop()
	return c.Wait(timeout)
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Err returns the error of the last finished run.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}
