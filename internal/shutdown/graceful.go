package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ShutdownFunc represents a function to be called during shutdown
type ShutdownFunc func(ctx context.Context) error

// Manager manages graceful shutdown of the application
type Manager struct {
	logger      *zap.Logger
	shutdownFns []ShutdownFunc
	timeout     time.Duration
	mu          sync.Mutex
	shutdownCh  chan struct{}
	done        chan struct{}
	once        sync.Once
}

// NewManager creates a new shutdown manager
func NewManager(timeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		logger:      logger,
		shutdownFns: make([]ShutdownFunc, 0),
		timeout:     timeout,
		shutdownCh:  make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Register adds a shutdown function to be called during shutdown
func (m *Manager) Register(name string, fn ShutdownFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wrappedFn := func(ctx context.Context) error {
		m.logger.Info("Shutting down component", zap.String("component", name))
		start := time.Now()

		err := fn(ctx)
		duration := time.Since(start)

		if err != nil {
			m.logger.Error("Component shutdown failed",
				zap.String("component", name),
				zap.Duration("duration", duration),
				zap.Error(err))
		} else {
			m.logger.Info("Component shutdown completed",
				zap.String("component", name),
				zap.Duration("duration", duration))
		}

		return err
	}

	m.shutdownFns = append(m.shutdownFns, wrappedFn)
}

// Listen starts listening for shutdown signals
func (m *Manager) Listen() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		m.logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
		m.Shutdown()
	}()
}

// Shutdown initiates graceful shutdown. Registered functions run in
// reverse registration order so dependents stop before their dependencies.
func (m *Manager) Shutdown() {
	m.once.Do(func() {
		m.logger.Info("Starting graceful shutdown...")
		close(m.shutdownCh)

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()

		failed := 0
		for i := len(m.shutdownFns) - 1; i >= 0; i-- {
			if ctx.Err() != nil {
				m.logger.Error("Shutdown timeout exceeded, forcing exit")
				break
			}
			if err := m.shutdownFns[i](ctx); err != nil {
				failed++
			}
		}

		if failed > 0 {
			m.logger.Error("Some components failed to shutdown gracefully",
				zap.Int("error_count", failed))
		} else if ctx.Err() == nil {
			m.logger.Info("All components shut down successfully")
		}

		close(m.done)
	})
}

// Wait blocks until shutdown is complete
func (m *Manager) Wait() {
	<-m.done
}

// IsShuttingDown returns true if shutdown has been initiated
func (m *Manager) IsShuttingDown() bool {
	select {
	case <-m.shutdownCh:
		return true
	default:
		return false
	}
}

// ShutdownChannel returns a channel that is closed when shutdown begins
func (m *Manager) ShutdownChannel() <-chan struct{} {
	return m.shutdownCh
}
