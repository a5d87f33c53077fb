// Package transport exposes a Panel over HTTP and websockets: session
// control endpoints, evaluation, a live transcript feed, an utterance feed
// from the browser and Prometheus metrics.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/valyala/fasthttp/fasthttpadaptor"

	"github.com/ahrav/pitchpanel/internal/domain"
)

// Response messages.
const (
	MsgSessionStarted = "Chat session started (capturing pitch)."
	MsgQnAStarted     = "Q&A mode started."
	MsgQnAActive      = "Q&A session is already active."
	MsgPitchPending   = "Pitch is still being captured."
	MsgSessionStopped = "Session stopped."
)

// Service is the panel behaviour the transport exposes.
type Service interface {
	StartSession(ctx context.Context) error
	BeginQnA(ctx context.Context) error
	StopSession()
	SessionState() domain.SessionState
	Evaluate(ctx context.Context, pitch string, categories []string) (*domain.Report, *domain.FailurePayload)
	EvaluateSession(ctx context.Context, categories []string) (*domain.Report, *domain.FailurePayload)
}

// Options are the optional parts of a Server.
type Options struct {
	// Hub receives transcript entries for /ws_transcript. The same hub must
	// be the session's transcript sink.
	Hub *Hub
	// Capture receives utterances from /ws_speech. It must be the session's
	// speech capture.
	Capture *SocketCapture
	// Metrics is served at /metrics when set.
	Metrics http.Handler
}

// FeedbackRequest is the body of POST /feedback. An empty pitch evaluates
// the session transcript.
type FeedbackRequest struct {
	Pitch      string   `json:"pitch"`
	Categories []string `json:"categories"`
}

// StateResponse is the body of GET /transcript.
type StateResponse struct {
	Active        bool                `json:"active"`
	QnAInProgress bool                `json:"qna_in_progress"`
	Transcript    []TranscriptMessage `json:"transcript"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// Server is the fiber application in front of a Service.
type Server struct {
	ctx  context.Context
	svc  Service
	opts Options
	app  *fiber.App
}

// NewServer builds the routes. ctx carries the logger and bounds the work
// started in the background by /start_chat and /begin_qna.
func NewServer(ctx context.Context, svc Service, opts Options) *Server {
	s := &Server{ctx: ctx, svc: svc, opts: opts}
	s.app = fiber.New(fiber.Config{
		AppName:               "pitchpanel",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})

	s.app.Use(recover.New())
	s.app.Use(s.requestContext)

	s.app.Get("/start_chat", s.startChat)
	s.app.Get("/begin_qna", s.beginQnA)
	s.app.Get("/stop", s.stop)
	s.app.Get("/transcript", s.transcript)
	s.app.Get("/feedback", s.sessionFeedback)
	s.app.Post("/feedback", s.feedback)

	if opts.Metrics != nil {
		metrics := fasthttpadaptor.NewFastHTTPHandler(opts.Metrics)
		s.app.Get("/metrics", func(c *fiber.Ctx) error {
			metrics(c.Context())
			return nil
		})
	}
	if opts.Hub != nil {
		s.app.Get("/ws_transcript", upgradeRequired, websocket.New(s.serveTranscript))
	}
	if opts.Capture != nil {
		s.app.Get("/ws_speech", upgradeRequired, websocket.New(s.serveSpeech))
	}
	return s
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App { return s.app }

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	clog.FromContext(s.ctx).With("addr", addr).Info("panel server listening")
	return s.app.Listen(addr)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) requestContext(c *fiber.Ctx) error {
	c.SetUserContext(s.ctx)
	start := time.Now()
	err := c.Next()
	clog.FromContext(s.ctx).With(
		"method", c.Method(),
		"path", c.Path(),
		"status", c.Response().StatusCode(),
		"duration", time.Since(start),
	).Debug("request served")
	return err
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		code = ferr.Code
	}
	if code >= fiber.StatusInternalServerError {
		clog.FromContext(s.ctx).With("path", c.Path(), "error", err).Error("request failed")
	}
	return c.Status(code).JSON(messageResponse{Message: err.Error()})
}

func (s *Server) startChat(c *fiber.Ctx) error {
	ctx := context.WithoutCancel(c.UserContext())
	go func() {
		if err := s.svc.StartSession(ctx); err != nil {
			clog.FromContext(ctx).With("error", err).Warn("pitch capture ended without a pitch")
		}
	}()
	return c.JSON(messageResponse{Message: MsgSessionStarted})
}

func (s *Server) beginQnA(c *fiber.Ctx) error {
	err := s.svc.BeginQnA(c.UserContext())
	switch {
	case errors.Is(err, domain.ErrSessionAlreadyActive):
		return c.Status(fiber.StatusBadRequest).JSON(messageResponse{Message: MsgQnAActive})
	case errors.Is(err, domain.ErrPitchNotCaptured):
		return c.Status(fiber.StatusBadRequest).JSON(messageResponse{Message: MsgPitchPending})
	case err != nil:
		return fiber.NewError(fiber.StatusConflict, err.Error())
	}
	return c.JSON(messageResponse{Message: MsgQnAStarted})
}

func (s *Server) stop(c *fiber.Ctx) error {
	s.svc.StopSession()
	return c.JSON(messageResponse{Message: MsgSessionStopped})
}

func (s *Server) transcript(c *fiber.Ctx) error {
	st := s.svc.SessionState()
	out := StateResponse{
		Active:        st.Active,
		QnAInProgress: st.QnAInProgress,
		Transcript:    make([]TranscriptMessage, 0, len(st.Transcript)),
	}
	for _, e := range st.Transcript {
		out.Transcript = append(out.Transcript, TranscriptMessage{Speaker: e.Speaker, Text: e.Text})
	}
	return c.JSON(out)
}

// sessionFeedback evaluates the session transcript. Categories may be
// given as a comma-separated "categories" query parameter.
func (s *Server) sessionFeedback(c *fiber.Ctx) error {
	var categories []string
	for _, name := range strings.Split(c.Query("categories"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			categories = append(categories, name)
		}
	}
	report, failure := s.svc.EvaluateSession(c.UserContext(), categories)
	return s.writeReport(c, report, failure)
}

func (s *Server) feedback(c *fiber.Ctx) error {
	var req FeedbackRequest
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			verr := domain.NewValidationError("feedback request")
			verr.AddError(err.Error())
			return c.Status(fiber.StatusBadRequest).JSON(domain.NewFailurePayload(verr))
		}
	}

	var (
		report  *domain.Report
		failure *domain.FailurePayload
	)
	if strings.TrimSpace(req.Pitch) == "" {
		report, failure = s.svc.EvaluateSession(c.UserContext(), req.Categories)
	} else {
		report, failure = s.svc.Evaluate(c.UserContext(), req.Pitch, req.Categories)
	}
	return s.writeReport(c, report, failure)
}

func (s *Server) writeReport(c *fiber.Ctx, report *domain.Report, failure *domain.FailurePayload) error {
	if failure != nil {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(failure)
	}
	return c.JSON(report)
}

func upgradeRequired(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// serveTranscript streams hub messages to one client until the client
// goes away, a send fails or the hub drops it.
func (s *Server) serveTranscript(conn *websocket.Conn) {
	defer conn.Close()

	id, msgs := s.opts.Hub.Subscribe()
	defer s.opts.Hub.Unsubscribe(id)
	log := clog.FromContext(s.ctx).With("client", id.String())
	log.Info("transcript subscriber connected")

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			log.Info("transcript subscriber disconnected")
			return
		case msg, ok := <-msgs:
			if !ok {
				log.Warn("transcript subscriber dropped")
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				log.With("error", err).Warn("transcript send failed")
				return
			}
		}
	}
}

// serveSpeech feeds every text frame from the client to the capture.
func (s *Server) serveSpeech(conn *websocket.Conn) {
	defer conn.Close()
	log := clog.FromContext(s.ctx)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		if !s.opts.Capture.Submit(string(data)) {
			log.With("chars", len(data)).Warn("utterance dropped, capture queue full")
		}
	}
}
