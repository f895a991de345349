package monitor

import (
	"context"
	"net/http"

	kb1 "github.com/PocketMidi/KB1-config"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

func statusPayload(st kb1.Status) StatusPayload {
	p := StatusPayload{Connected: st.Connected}
	if st.Peer != nil {
		p.Peer = st.Peer.String()
	}
	if st.Err != nil {
		p.Error = st.Err.Error()
	}
	return p
}

// Server serves the event stream on /events.
type Server struct {
	hub      *Hub
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
}

func NewServer(log logrus.FieldLogger) *Server {
	log = log.WithField("component", "monitor")
	return &Server{
		hub: NewHub(log),
		log: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local tool
			},
		},
	}
}

// Hub returns the client hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP handler with the websocket endpoint mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	return mux
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("websocket upgrade failed")
		return
	}

	s.hub.Attach(conn)
	s.log.WithField("remote", r.RemoteAddr).Debug("websocket client connected")

	// Clients only listen; reading detects when they go away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			s.hub.Detach(conn)
			return
		}
	}
}

// PublishStatus records st and forwards it to every client.
func (s *Server) PublishStatus(st kb1.Status) {
	s.hub.Status(statusPayload(st))
}

// PublishFrame forwards an inbound frame to every client.
func (s *Server) PublishFrame(frame []byte) {
	s.hub.Frame(frame)
}

// Close disconnects every websocket client. Hijacked connections outlive
// http.Server.Shutdown, so call it after shutting the listener down.
func (s *Server) Close() {
	s.hub.Close()
}

// Run forwards statuses and frames until ctx ends or both channels close.
func (s *Server) Run(ctx context.Context, statuses <-chan kb1.Status, frames <-chan []byte) {
	for statuses != nil || frames != nil {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-statuses:
			if !ok {
				statuses = nil
				continue
			}
			s.PublishStatus(st)
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			s.PublishFrame(f)
		}
	}
}
