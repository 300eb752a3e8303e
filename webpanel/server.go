package webpanel

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"voiceai/log"
	"voiceai/messenger"
)

//go:embed index.html
var indexHTML []byte

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	maxMessage = 1 << 20
)

// Server hosts the recording panel on loopback and bridges one browser
// tab at a time to the controller.
type Server struct {
	bridge   *messenger.Bridge
	upgrader websocket.Upgrader
	srv      *http.Server
	ln       net.Listener
}

func New(b *messenger.Bridge) *Server {
	s := &Server{bridge: b}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     sameOrigin,
	}
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.serveIndex)
	mux.HandleFunc("GET /ws", s.serveWS)
	return mux
}

// Listen binds addr and returns the panel URL.
func (s *Server) Listen(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen %s: %w", addr, err)
	}
	s.ln = ln
	return "http://" + ln.Addr().String() + "/", nil
}

// Serve runs until ctx is done, then shuts down and closes any panel.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("webpanel: Serve before Listen")
	}
	errc := make(chan error, 1)
	go func() { errc <- s.srv.Serve(s.ln) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// hijacked websocket connections are not tracked by Shutdown
	s.srv.Shutdown(shutdownCtx)
	<-errc
	return nil
}

func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(indexHTML)
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "expected a websocket upgrade", http.StatusBadRequest)
		return
	}
	if !sameOrigin(r) {
		log.Warnf("panel from foreign origin %q refused", r.Header.Get("Origin"))
		http.Error(w, "Forbidden", http.StatusForbidden)
		return
	}
	p, err := s.bridge.Attach()
	if err != nil {
		http.Error(w, "Voice AI panel is already open in another tab", http.StatusConflict)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("panel upgrade failed: %v", err)
		p.Release()
		return
	}
	defer p.Close()
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		writeLoop(ctx, conn, p)
	}()
	readLoop(conn, p)
	cancel()
	<-done
}

func readLoop(conn *websocket.Conn, p *messenger.Panel) {
	conn.SetReadLimit(maxMessage)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warnf("panel %d read: %v", p.ID(), err)
			}
			return
		}
		m, err := messenger.Decode(data)
		if err != nil {
			log.Warnf("panel %d: %v", p.ID(), err)
			continue
		}
		p.Send(m)
	}
}

func writeLoop(ctx context.Context, conn *websocket.Conn, p *messenger.Panel) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	msgs := make(chan messenger.Message)
	go func() {
		defer close(msgs)
		for {
			m, err := p.Receive(ctx)
			if err != nil {
				return
			}
			select {
			case msgs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case m, ok := <-msgs:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			data, err := messenger.Encode(m)
			if err != nil {
				log.Errorf("encode %s: %v", m, err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sameOrigin accepts the panel page itself and non-browser clients.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}
