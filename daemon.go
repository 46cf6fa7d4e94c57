package main

import (
	"context"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/neovim/go-client/nvim"

	"github.com/ThaneAcheron/veonim/backend"
	"github.com/ThaneAcheron/veonim/backend/lsp"
	"github.com/ThaneAcheron/veonim/backend/remote"
	"github.com/ThaneAcheron/veonim/config"
	"github.com/ThaneAcheron/veonim/engine"
	"github.com/ThaneAcheron/veonim/harvester"
	"github.com/ThaneAcheron/veonim/host"
	"github.com/ThaneAcheron/veonim/logger"
	"github.com/ThaneAcheron/veonim/metrics"
)

type Daemon struct {
	config      *config.Config
	backend     backend.Backend
	engine      *engine.Engine
	listener    net.Listener
	socketPath  string
	pidPath     string
	clientCount int64
	stopOnce    sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
}

// newBackend starts the language service named by cfg.Backend.
func newBackend(ctx context.Context, cfg *config.Config) (backend.Backend, error) {
	switch cfg.Backend {
	case config.BackendLSP:
		return lsp.Start(ctx, cfg.BackendCommand)
	case config.BackendRemote:
		return remote.NewClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendTimeoutMs), nil
	default:
		return nil, errors.Newf("unknown backend %q", cfg.Backend)
	}
}

func NewDaemon(cfg *config.Config) (*Daemon, error) {
	ctx, cancel := context.WithCancel(context.Background())

	b, err := newBackend(ctx, cfg)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "start backend")
	}

	tracker := metrics.NewTracker(cfg.MetricsURL, "neovim", cfg.DataDir)
	eng := engine.NewEngine(b, harvester.New(), tracker, nil, engine.EngineConfig{
		FileEnterDebounce:  cfg.FileEnterDebounce(),
		TextChangeDebounce: cfg.TextChangeDebounce(),
		MaxResults:         cfg.MaxResults,
		QueryTimeout:       cfg.BackendTimeout(),
		CompletionTriggers: cfg.CompletionTriggers,
	})

	return &Daemon{
		config:     cfg,
		backend:    b,
		engine:     eng,
		socketPath: getSocketPath(),
		pidPath:    getPidPath(),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

func (d *Daemon) Start() error {
	d.writePidFile()
	defer d.removePidFile()

	if err := d.setupSocket(); err != nil {
		return err
	}
	defer d.cleanup()

	logger.Info("daemon listening on socket: %s", d.socketPath)

	d.engine.Start(d.ctx)
	d.setupShutdownHandling()
	go d.acceptConnections()
	go d.monitorIdleShutdown()

	<-d.ctx.Done()
	logger.Info("daemon shutting down...")
	return nil
}

func (d *Daemon) setupSocket() error {
	os.Remove(d.socketPath)

	listener, err := net.Listen("unix", d.socketPath)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", d.socketPath)
	}
	d.listener = listener
	return nil
}

func (d *Daemon) setupShutdownHandling() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		d.Stop()
	}()
}

func (d *Daemon) acceptConnections() {
	for {
		conn, err := d.listener.Accept()
		if err != nil {
			select {
			case <-d.ctx.Done():
				return
			default:
				logger.Error("error accepting connection: %v", err)
				continue
			}
		}

		atomic.AddInt64(&d.clientCount, 1)
		logger.Info("new client connected, total clients: %d", atomic.LoadInt64(&d.clientCount))
		go d.handleConnection(conn)
	}
}

func (d *Daemon) handleConnection(conn net.Conn) {
	defer conn.Close()
	defer func() {
		atomic.AddInt64(&d.clientCount, -1)
		logger.Info("client disconnected, remaining clients: %d", atomic.LoadInt64(&d.clientCount))
	}()

	n, err := nvim.New(conn, conn, conn, logger.Debug)
	if err != nil {
		logger.Error("error creating nvim client: %v", err)
		return
	}

	// the most recent connection becomes the active editor
	hn := host.New(n)
	d.engine.Attach(hn, hn)

	select {
	case <-d.ctx.Done():
		return
	default:
		if err := n.Serve(); err != nil && err != io.EOF {
			logger.Warn("error serving connection: %v", err)
		}
	}
}

func (d *Daemon) monitorIdleShutdown() {
	// In debug mode, shut down immediately when no clients are connected
	if d.config.DebugImmediateShutdown {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-d.ctx.Done():
				return
			case <-ticker.C:
				if atomic.LoadInt64(&d.clientCount) == 0 {
					logger.Info("debug mode: no clients connected, shutting down daemon immediately")
					d.Stop()
					return
				}
			}
		}
	}

	idleTimer := time.NewTimer(30 * time.Second)
	defer idleTimer.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-idleTimer.C:
			if atomic.LoadInt64(&d.clientCount) == 0 {
				logger.Info("no clients connected for timeout period, shutting down daemon")
				d.Stop()
				return
			}
		}

		if atomic.LoadInt64(&d.clientCount) == 0 {
			idleTimer.Reset(5 * time.Second)
		} else {
			idleTimer.Reset(30 * time.Second)
		}
	}
}

func (d *Daemon) Stop() {
	d.stopOnce.Do(func() {
		d.engine.Stop()
		if err := d.backend.Close(); err != nil {
			logger.Warn("error closing backend: %v", err)
		}
		if d.listener != nil {
			d.listener.Close()
		}
		d.cancel()
	})
}

func (d *Daemon) cleanup() {
	os.Remove(d.socketPath)
}

func (d *Daemon) writePidFile() {
	pid := os.Getpid()
	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(pid)), 0644); err != nil {
		logger.Warn("could not write PID file: %v", err)
	}
	logger.Info("server started with PID %d", pid)
}

func (d *Daemon) removePidFile() {
	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		logger.Warn("could not remove PID file: %v", err)
	}
}
