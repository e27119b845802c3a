package tcp

import (
	"net"
	"time"
)

// stream 基于单条 TCP 连接的协议流
type stream struct {
	conn     net.Conn
	protocol string
	remote   string
}

func (s *stream) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

func (s *stream) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *stream) Close() error {
	return s.conn.Close()
}

// Reset 异常关闭
//
// TCP 连接没有独立的流复位语义，等同于关闭连接。
func (s *stream) Reset() error {
	return s.conn.Close()
}

func (s *stream) SetDeadline(t time.Time) error {
	return s.conn.SetDeadline(t)
}

func (s *stream) SetReadDeadline(t time.Time) error {
	return s.conn.SetReadDeadline(t)
}

func (s *stream) SetWriteDeadline(t time.Time) error {
	return s.conn.SetWriteDeadline(t)
}

func (s *stream) Protocol() string {
	return s.protocol
}

func (s *stream) RemotePeer() string {
	return s.remote
}
