package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/experimentkit/config"
	"github.com/BaSui01/experimentkit/internal/tlsutil"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

var (
	ErrServerClosed   = errors.New("server is closed")
	ErrAlreadyStarted = errors.New("server already started")
)

// Config 服务器配置
type Config struct {
	Name            string
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	MaxHeaderBytes  int
	ShutdownTimeout time.Duration
}

// DefaultConfig 返回默认服务器配置
func DefaultConfig() Config {
	return Config{
		Name:            "http",
		Addr:            ":8000",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    120 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: 30 * time.Second,
	}
}

// ConfigFrom 由应用配置构建服务器配置，addr 区分 API 与 metrics 端口
func ConfigFrom(sc config.ServerConfig, name, addr string) Config {
	c := DefaultConfig()
	c.Name = name
	c.Addr = addr
	if sc.ReadTimeout > 0 {
		c.ReadTimeout = sc.ReadTimeout
	}
	if sc.WriteTimeout > 0 {
		c.WriteTimeout = sc.WriteTimeout
	}
	if sc.ShutdownTimeout > 0 {
		c.ShutdownTimeout = sc.ShutdownTimeout
	}
	return c
}

// Manager HTTP 服务器管理器
type Manager struct {
	server   *http.Server
	listener net.Listener
	errCh    chan error
	config   Config
	logger   *zap.Logger

	mu     sync.RWMutex
	closed bool
}

// NewManager 创建服务器管理器
func NewManager(handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
		},
		errCh:  make(chan error, 1),
		config: cfg,
		logger: logger.With(zap.String("component", "http_server"), zap.String("server", cfg.Name)),
	}
}

// Start 启动 HTTP 服务器（非阻塞）
func (m *Manager) Start() error {
	return m.start(nil)
}

// StartTLS 使用证书启动 HTTPS 服务器（非阻塞）
func (m *Manager) StartTLS(certFile, keyFile string) error {
	tlsCfg, err := tlsutil.ServerTLSConfig(certFile, keyFile)
	if err != nil {
		return err
	}
	return m.start(tlsCfg)
}

func (m *Manager) start(tlsCfg *tls.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrServerClosed
	}
	if m.listener != nil {
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	if tlsCfg != nil {
		ln = tls.NewListener(ln, tlsCfg)
	}
	m.listener = ln

	m.logger.Info("starting server",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", tlsCfg != nil),
	)
	go m.serve(ln)
	return nil
}

func (m *Manager) serve(ln net.Listener) {
	if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		m.logger.Error("server failed", zap.Error(err))
		select {
		case m.errCh <- err:
		default:
		}
	}
}

// Shutdown 优雅关闭服务器，可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.listener == nil {
		return nil
	}

	m.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(ctx, m.config.ShutdownTimeout)
	defer cancel()

	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error("server shutdown failed", zap.Error(err))
		return err
	}
	m.listener = nil
	m.logger.Info("server stopped")
	return nil
}

// Errors returns asynchronous server errors.
func (m *Manager) Errors() <-chan error {
	return m.errCh
}

// Addr 返回配置的监听地址
func (m *Manager) Addr() string {
	return m.config.Addr
}

// ListenAddr 返回实际绑定地址；未启动时为空
func (m *Manager) ListenAddr() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listener == nil {
		return ""
	}
	return m.listener.Addr().String()
}

// IsRunning 检查服务器是否未关闭
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.closed
}

// =============================================================================
// 🛑 优雅停机
// =============================================================================

// WaitForShutdown 阻塞直到 ctx 结束、收到 SIGINT/SIGTERM 或任一服务器异常退出，
// 然后依次关闭所有服务器。返回导致停机的服务器错误（信号触发时为 nil）。
func WaitForShutdown(ctx context.Context, logger *zap.Logger, managers ...*Manager) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	failed := make(chan error, len(managers))
	for _, m := range managers {
		go func(m *Manager) {
			select {
			case err := <-m.Errors():
				failed <- err
			case <-sigCtx.Done():
			}
		}(m)
	}

	var cause error
	select {
	case <-sigCtx.Done():
		logger.Info("shutdown requested")
	case cause = <-failed:
		logger.Error("server exited unexpectedly", zap.Error(cause))
	}
	stop()

	var errs []error
	for _, m := range managers {
		if err := m.Shutdown(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(append([]error{cause}, errs...)...)
}
