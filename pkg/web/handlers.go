package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-retail-voice/pkg/health"
	"github.com/teslashibe/go-retail-voice/pkg/hub"
	"github.com/teslashibe/go-retail-voice/pkg/intent"
	"github.com/teslashibe/go-retail-voice/pkg/pipeline"
	"github.com/teslashibe/go-retail-voice/pkg/stt"
)

// Response is the JSON body of /voice, /text and /ws/voice replies.
type Response struct {
	RequestID       string `json:"requestId"`
	TranscribedText string `json:"transcribedText"`
	Intent          string `json:"intent"`
	ResponseText    string `json:"responseText"`
	AudioResponse   string `json:"audioResponse,omitempty"`
	AudioMimeType   string `json:"audioMimeType,omitempty"`
	SessionID       string `json:"sessionId,omitempty"`
	OffTopicCount   int    `json:"offTopicCount"`
	Cutoff          bool   `json:"cutoff,omitempty"`
	Error           string `json:"error,omitempty"`
	Debug           *Debug `json:"debug,omitempty"`
}

// Debug is added when the request carries ?debug=true.
type Debug struct {
	Health       health.Status          `json:"health"`
	IntentParams intent.Params          `json:"intentParams"`
	ToolName     string                 `json:"toolName,omitempty"`
	ToolResult   string                 `json:"toolResult,omitempty"`
	Stages       []pipeline.StageTiming `json:"stages"`
	Failure      *pipeline.Failure      `json:"failure,omitempty"`
}

// TextRequest is the body of POST /text and of text frames on /ws/voice.
type TextRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"sessionId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleRoot(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"service": ServiceName,
		"version": s.cfg.Version,
	})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleMetrics(c *fiber.Ctx) error {
	s.metrics(c.Context())
	return nil
}

// handleVoice accepts multipart/form-data with the utterance in "audio".
func (s *Server) handleVoice(c *fiber.Ctx) error {
	fh, err := c.FormFile("audio")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "No audio file provided"})
	}
	f, err := fh.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "Unreadable audio file"})
	}
	audio, err := io.ReadAll(f)
	_ = f.Close()
	if err != nil || len(audio) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "No audio file provided"})
	}

	sessionID := c.FormValue("sessionId", c.Query("sessionId"))
	in := pipeline.Input{
		Audio:    audio,
		Filename: fh.Filename,
		Format:   stt.FormatFromFilename(fh.Filename),
	}
	resp := s.turn(c.UserContext(), in, sessionID, c.QueryBool("debug"))
	return c.JSON(resp)
}

func (s *Server) handleText(c *fiber.Ctx) error {
	var req TextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "Invalid request body"})
	}
	if strings.TrimSpace(req.Text) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(errorResponse{Error: "No text provided"})
	}
	resp := s.turn(c.UserContext(), pipeline.Input{Text: req.Text}, req.SessionID, c.QueryBool("debug"))
	return c.JSON(resp)
}

// handleTurnsWS subscribes the connection to the live turn feed.
func (s *Server) handleTurnsWS(c *websocket.Conn) {
	hub.NewClient(s.turns, c).Run()
}

// handleVoiceWS serves one conversation per connection. Binary frames are
// utterances; text frames are TextRequest JSON.
func (s *Server) handleVoiceWS(c *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sessionID := c.Query("sessionId")
	format := c.Query("format")
	debug := c.Query("debug") == "true"

	for {
		mt, data, err := c.ReadMessage()
		if err != nil {
			return
		}

		var in pipeline.Input
		switch mt {
		case websocket.BinaryMessage:
			in = pipeline.Input{Audio: data, Format: format}
		case websocket.TextMessage:
			var req TextRequest
			if err := json.Unmarshal(data, &req); err != nil || strings.TrimSpace(req.Text) == "" {
				if err := c.WriteJSON(errorResponse{Error: "No text provided"}); err != nil {
					return
				}
				continue
			}
			if req.SessionID != "" {
				sessionID = req.SessionID
			}
			in = pipeline.Input{Text: req.Text}
		default:
			continue
		}

		resp := s.turn(ctx, in, sessionID, debug)
		sessionID = resp.SessionID
		if err := c.WriteJSON(resp); err != nil {
			s.logger.Debug("voice socket write", "error", err)
			return
		}
	}
}

// turn runs one utterance with the session's counter and records the
// result.
func (s *Server) turn(ctx context.Context, in pipeline.Input, sessionID string, debug bool) Response {
	store := s.cfg.Sessions
	if store != nil {
		if sessionID == "" {
			sessionID = uuid.NewString()
		} else if n, err := store.Load(ctx, sessionID); err != nil {
			s.logger.Warn("session load failed, starting from zero", "session_id", sessionID, "error", err)
		} else {
			in.OffTopicCount = n
		}
	}

	st := s.cfg.Runner.Run(ctx, in)

	count := st.OffTopicCount
	if store != nil {
		// Only the increment is written; the stored count never decreases.
		n, err := store.Add(ctx, sessionID, st.OffTopicCount-in.OffTopicCount)
		if err != nil {
			s.logger.Warn("session update failed", "session_id", sessionID, "error", err)
		} else {
			count = n
		}
	}

	resp := Response{
		RequestID:       st.RequestID,
		TranscribedText: st.Transcript,
		Intent:          st.Intent.String(),
		ResponseText:    st.ResponseText,
		SessionID:       sessionID,
		OffTopicCount:   count,
		Cutoff:          st.Cutoff,
	}
	if len(st.ResponseAudio) > 0 {
		resp.AudioResponse = base64.StdEncoding.EncodeToString(st.ResponseAudio)
		resp.AudioMimeType = st.AudioMIME
	}
	if st.Failure != nil {
		resp.Error = st.Failure.Error()
	}
	if debug {
		resp.Debug = &Debug{
			Health:       st.Health,
			IntentParams: st.Params,
			ToolName:     st.ToolName,
			ToolResult:   st.ToolResult,
			Stages:       st.Stages,
			Failure:      st.Failure,
		}
	}

	s.turns.PublishTurn(hub.Turn{
		RequestID:     st.RequestID,
		SessionID:     sessionID,
		Transcript:    st.Transcript,
		Intent:        resp.Intent,
		ToolName:      st.ToolName,
		ResponseText:  st.ResponseText,
		OffTopicCount: count,
		Cutoff:        st.Cutoff,
		Failure:       resp.Error,
		Time:          time.Now(),
	})
	return resp
}
