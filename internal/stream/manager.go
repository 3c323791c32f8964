package stream

import (
	"log/slog"
	"sync"
	"time"

	"github.com/skypro1111/gigaam-stream-server/internal/metrics"
	"github.com/skypro1111/gigaam-stream-server/internal/recognizer"
	"github.com/skypro1111/gigaam-stream-server/internal/session"
	"github.com/skypro1111/gigaam-stream-server/internal/vad"
)

// Connection binds one transport-level connection (a WebSocket client) to
// its own Session state machine and its own VAD instance, since VAD state
// is per-utterance-stream and cannot be shared across connections.
type Connection struct {
	ID         string
	RemoteAddr string
	StartTime  time.Time

	Session *session.Session

	detector *vad.Detector

	mu           sync.RWMutex
	lastActivity time.Time
}

// LastActivity returns the time of the connection's most recent audio or
// control message.
func (c *Connection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

func (c *Connection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// Close releases the connection's VAD model handle and records final
// session metrics. It does not emit a done message; callers that want one
// should call Session.OnRecognize before Close.
func (c *Connection) Close() {
	c.Session.OnClose()
	if err := c.detector.Close(); err != nil {
		// best effort; the ONNX runtime handle is already being discarded
		_ = err
	}
}

// Manager owns every live Connection, builds the per-connection VAD and
// Session pair, and evicts connections that have gone idle past the
// configured timeout.
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	logger      *slog.Logger
	timeout     time.Duration

	vadConfig     vad.Config
	sessionConfig session.Config
	pool          *recognizer.Pool
	metrics       *metrics.Metrics

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// ManagerConfig wires the shared, connection-independent collaborators a
// new Connection is built from.
type ManagerConfig struct {
	VADConfig     vad.Config
	SessionConfig session.Config
	Pool          *recognizer.Pool
	Metrics       *metrics.Metrics
}

// NewManager constructs a Manager and starts its idle-connection cleanup
// routine.
func NewManager(logger *slog.Logger, timeout time.Duration, cfg ManagerConfig) *Manager {
	m := &Manager{
		connections:   make(map[string]*Connection),
		logger:        logger,
		timeout:       timeout,
		vadConfig:     cfg.VADConfig,
		sessionConfig: cfg.SessionConfig,
		pool:          cfg.Pool,
		metrics:       cfg.Metrics,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// CreateConnection builds a fresh VAD instance and Session for id and
// registers it. id must be unique among live connections; a duplicate
// closes and replaces the prior connection.
func (m *Manager) CreateConnection(id, remoteAddr string) (*Connection, error) {
	detector, err := vad.New(m.vadConfig)
	if err != nil {
		return nil, err
	}

	sess := session.New(m.pool, detector, m.metrics, m.sessionConfig)

	now := time.Now()
	conn := &Connection{
		ID:           id,
		RemoteAddr:   remoteAddr,
		StartTime:    now,
		lastActivity: now,
		Session:      sess,
		detector:     detector,
	}

	m.mu.Lock()
	if existing, ok := m.connections[id]; ok {
		m.logger.Warn("replacing existing connection with duplicate id",
			slog.String("connection_id", id),
		)
		existing.Close()
	}
	m.connections[id] = conn
	m.mu.Unlock()

	m.metrics.ConnectionOpened()

	m.logger.Info("connection opened",
		slog.String("connection_id", id),
		slog.String("remote_addr", remoteAddr),
	)

	return conn, nil
}

// GetConnection retrieves a live connection by id.
func (m *Manager) GetConnection(id string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[id]
	return conn, ok
}

// Touch marks a connection as having just seen activity, resetting its
// idle-timeout clock.
func (m *Manager) Touch(id string) {
	m.mu.RLock()
	conn, ok := m.connections[id]
	m.mu.RUnlock()

	if ok {
		conn.touch()
	}
}

// RemoveConnection closes and forgets the connection with the given id,
// recording reason against the connection-closed metric. It reports
// whether a connection was found.
func (m *Manager) RemoveConnection(id, reason string) bool {
	m.mu.Lock()
	conn, ok := m.connections[id]
	if ok {
		delete(m.connections, id)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}

	duration := time.Since(conn.StartTime).Seconds()
	conn.Close()
	m.metrics.ConnectionClosed(reason, duration)

	m.logger.Info("connection closed",
		slog.String("connection_id", id),
		slog.String("reason", reason),
		slog.Float64("duration_sec", duration),
	)

	return true
}

// ActiveCount returns the number of currently live connections.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// Stop closes every live connection and stops the cleanup routine.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})

	m.mu.Lock()
	ids := make([]string, 0, len(m.connections))
	for id := range m.connections {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.RemoveConnection(id, "server_shutdown")
	}

	m.logger.Info("stream manager stopped")
}

func (m *Manager) cleanupLoop() {
	defer close(m.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.evictExpired()
		}
	}
}

func (m *Manager) evictExpired() {
	now := time.Now()

	m.mu.RLock()
	expired := make([]string, 0)
	for id, conn := range m.connections {
		if now.Sub(conn.LastActivity()) > m.timeout {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range expired {
		m.logger.Warn("evicting idle connection", slog.String("connection_id", id))
		m.RemoveConnection(id, "idle_timeout")
	}
}
