package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"bidimapper/internal/logger"
)

// Conn 单条 BiDi WebSocket 连接，实现 domain.Transport。
// 写锁串行化写出，保证帧顺序。
type Conn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *Conn) Send(frame []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Conn) Close() error {
	return c.conn.Close()
}

// Handler 接收连接的嵌入方回调
type Handler interface {
	// OnConnect 连接建立，返回的 cleanup 在连接断开时调用
	OnConnect(t *Conn) (cleanup func())
	// OnFrame 收到一帧
	OnFrame(raw []byte)
}

// Server 北向 BiDi WebSocket 端点的薄适配。
// 引擎只认 domain.Transport，这里把 gorilla 连接适配进去。
type Server struct {
	upgrader websocket.Upgrader
	handler  Handler
	log      logger.Logger
}

// NewServer 创建适配器
func NewServer(h Handler, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 20,
			WriteBufferSize: 1 << 20,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		handler: h,
		log:     l,
	}
}

// ServeHTTP 升级连接并进入读循环
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket 升级失败", "error", err)
		return
	}
	t := &Conn{conn: conn}
	cleanup := s.handler.OnConnect(t)
	defer func() {
		if cleanup != nil {
			cleanup()
		}
		conn.Close()
	}()
	s.log.Info("BiDi 客户端接入", "remote", conn.RemoteAddr().String())

	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Info("BiDi 客户端断开", "error", err)
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		s.handler.OnFrame(raw)
	}
}
