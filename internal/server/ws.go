package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skypro1111/gigaam-stream-server/internal/audio"
	"github.com/skypro1111/gigaam-stream-server/internal/session"
)

var wsConnCounter uint64

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const wsIdleTimeout = 5 * time.Minute

type sampleRateAnnouncement struct {
	SampleRate int `json:"sample_rate"`
}

// handleWS upgrades the connection and runs the streaming protocol
// described in spec.md §6: an optional sample-rate announcement, then an
// interleaving of binary PCM frames and "RECOGNIZE"/"RESET" commands,
// until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(s.cfg.Limits.MaxWSMessageBytes)

	id := nextConnID(r.RemoteAddr)
	streamConn, err := s.streamMgr.CreateConnection(id, r.RemoteAddr)
	if err != nil {
		s.logger.Error("failed to create connection", slog.String("error", err.Error()))
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "internal error"),
			time.Now().Add(time.Second))
		return
	}

	closeReason := "normal"
	defer func() { s.streamMgr.RemoveConnection(id, closeReason) }()

	var resampler *audio.StreamResampler

	conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

	for {
		conn.SetReadDeadline(time.Now().Add(wsIdleTimeout))

		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseMessageTooBig) || errors.Is(err, websocket.ErrReadLimit) {
				closeReason = "message_too_large"
			}
			return
		}

		s.streamMgr.Touch(id)

		switch mt {
		case websocket.BinaryMessage:
			if len(data) == 0 || len(data)%4 != 0 {
				closeReason = "protocol_violation"
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseProtocolError, "frame length not a multiple of 4"),
					time.Now().Add(time.Second))
				return
			}

			samples := audio.BytesToSamples(data)

			if resampler != nil {
				samples, err = resampler.Process(samples)
				if err != nil {
					s.logger.Error("resample failed", slog.String("connection_id", id), slog.String("error", err.Error()))
					closeReason = "internal_error"
					return
				}
			}

			if err := s.sendMessages(conn, streamConn.Session.OnAudio(samples)); err != nil {
				return
			}

		case websocket.TextMessage:
			text := string(data)

			switch text {
			case "RECOGNIZE":
				if err := s.sendMessages(conn, streamConn.Session.OnRecognize()); err != nil {
					return
				}
			case "RESET":
				streamConn.Session.OnReset()
				if resampler != nil {
					if _, err := resampler.Flush(); err != nil {
						s.logger.Warn("resampler flush on reset failed",
							slog.String("connection_id", id), slog.String("error", err.Error()))
					}
				}
			default:
				var announce sampleRateAnnouncement
				if err := json.Unmarshal(data, &announce); err != nil {
					s.logger.Debug("ignoring unrecognized text command",
						slog.String("connection_id", id), slog.String("text", text))
					continue
				}
				if announce.SampleRate < 8000 || announce.SampleRate > 192000 {
					s.logger.Debug("ignoring out-of-range sample rate announcement",
						slog.String("connection_id", id), slog.Int("sample_rate", announce.SampleRate))
					continue
				}

				clientRate := announce.SampleRate
				if clientRate == s.cfg.Recognizer.SampleRate {
					resampler = nil
					continue
				}

				r, err := audio.NewStreamResampler(clientRate, s.cfg.Recognizer.SampleRate)
				if err != nil {
					s.logger.Error("failed to build resampler", slog.String("connection_id", id), slog.String("error", err.Error()))
					closeReason = "internal_error"
					return
				}
				resampler = r
			}
		}
	}
}

// sendMessages forwards each OutMessage as a text frame, in order.
func (s *Server) sendMessages(conn *websocket.Conn, msgs []session.OutMessage) error {
	for _, m := range msgs {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(m.JSON)); err != nil {
			return err
		}
	}
	return nil
}

func nextConnID(remoteAddr string) string {
	n := atomic.AddUint64(&wsConnCounter, 1)
	return remoteAddr + "-" + strconv.FormatUint(n, 10)
}
