package server

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/portal-go/internal/playback"
	"github.com/raphaelgruber/portal-go/internal/podcast"
	"github.com/raphaelgruber/portal-go/internal/render"
)

// SessionView is a podcast session as served to clients.
type SessionView struct {
	playback.Snapshot
	Topic string             `json:"topic"`
	Panel *render.ErrorPanel `json:"panel,omitempty"`
}

func (s *Server) sessionView(id string) (SessionView, error) {
	sess, err := s.svc.Podcast.Get(id)
	if err != nil {
		return SessionView{}, err
	}
	topic, _ := s.svc.Podcast.Topic(id)
	view := SessionView{Snapshot: sess.Snapshot(), Topic: topic}
	if lastErr := s.svc.Podcast.LastError(id); lastErr != nil {
		view.Panel = render.PanelFor(lastErr)
	}
	return view, nil
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req podcast.OpenRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Owner == "" {
		req.Owner = scope(r)
	}
	sess, err := s.svc.Podcast.Open(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	view, err := s.sessionView(sess.ID())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessionView(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Podcast.Close(r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActionRequest carries the arguments of a session action. Seek takes
// Seconds or Fraction; Skip takes Seconds or a Direction of "forward"
// or "back".
type ActionRequest struct {
	Seconds   *float64 `json:"seconds,omitempty"`
	Fraction  *float64 `json:"fraction,omitempty"`
	Direction string   `json:"direction,omitempty"`
	Rate      float64  `json:"rate,omitempty"`
	Volume    *int     `json:"volume,omitempty"`
	Sentences int      `json:"sentences,omitempty"`
}

func (s *Server) handleSessionAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req ActionRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	action := r.PathValue("action")
	if action == "extend" {
		if _, err := s.svc.Podcast.Extend(r.Context(), id, req.Sentences); err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeSession(w, r, id)
		return
	}

	sess, err := s.svc.Podcast.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := applyAction(sess, action, req); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeSession(w, r, id)
}

func applyAction(sess *playback.Session, action string, req ActionRequest) error {
	switch action {
	case "play":
		return sess.Play()
	case "pause":
		return sess.Pause()
	case "toggle":
		return sess.Toggle()
	case "seek":
		switch {
		case req.Fraction != nil:
			return sess.SeekFraction(*req.Fraction)
		case req.Seconds != nil:
			return sess.SeekSeconds(*req.Seconds)
		}
		return fmt.Errorf("%w: seek needs seconds or fraction", errBadRequest)
	case "skip":
		switch {
		case req.Seconds != nil:
			return sess.SkipSeconds(*req.Seconds)
		case req.Direction == "back":
			return sess.SkipBack()
		case req.Direction == "" || req.Direction == "forward":
			return sess.SkipForward()
		}
		return fmt.Errorf("%w: unknown skip direction %q", errBadRequest, req.Direction)
	case "rate":
		if req.Rate == 0 {
			return fmt.Errorf("%w: rate is required", errBadRequest)
		}
		sess.SetRate(req.Rate)
		return nil
	case "volume":
		if req.Volume == nil {
			return fmt.Errorf("%w: volume is required", errBadRequest)
		}
		sess.SetVolume(*req.Volume)
		return nil
	}
	return fmt.Errorf("%w: unknown action %q", errBadRequest, action)
}

func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.sessionView(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleAudio(w http.ResponseWriter, r *http.Request) {
	sess, err := s.svc.Podcast.Get(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, mime, err := sess.Audio()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", mime)
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(data))
}

// handleEvents streams session events over a WebSocket until the client
// goes away or the session closes. The first frame is the current state.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := s.svc.Podcast.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "session", id, "error", err)
		return
	}
	defer conn.Close()

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	// Reads only detect the client closing; clients send nothing.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := conn.WriteJSON(playback.Event{Type: playback.EventState, Snapshot: sess.Snapshot()}); err != nil {
		return
	}

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed")
				_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					s.logger.Debug("websocket write failed", "session", id, "error", err)
				}
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}
