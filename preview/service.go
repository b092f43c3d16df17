package preview

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"showcase/project"
)

const reportReadLimit = 64 << 10

// ThemeRequest is the body of POST /preview/:id/theme.
type ThemeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=light dark"`
}

// EditRequest is the body of PUT /preview/:id/files. Content replaces the whole file.
type EditRequest struct {
	Path    string `json:"path" validate:"required"`
	Content string `json:"content"`
}

// Service owns the preview store and hub and serves the preview routes.
type Service struct {
	store  *Store
	hub    *Hub
	logger *logrus.Logger
}

// NewService creates a preview service whose previews expire after ttl.
func NewService(ttl time.Duration, logger *logrus.Logger) *Service {
	return &Service{
		store:  NewStore(ttl),
		hub:    NewHub(logger),
		logger: logger,
	}
}

// Store returns the underlying project store.
func (s *Service) Store() *Store { return s.store }

// Hub returns the underlying envelope hub.
func (s *Service) Hub() *Hub { return s.hub }

// Publish stores p as the generated project of id and live reloads every open sandbox.
func (s *Service) Publish(id string, p *project.Project) Entry {
	entry := s.store.Put(id, p)
	s.hub.Publish(id, Envelope{Type: TypeFiles, Payload: NewFilesPayload(entry)})
	return entry
}

// Edit applies a user edit to one file and live reloads every open sandbox.
func (s *Service) Edit(id, filePath, content string) (Entry, error) {
	entry, err := s.store.Edit(id, filePath, content)
	if err != nil {
		return Entry{}, err
	}
	previewEdits.Inc()
	s.hub.Publish(id, Envelope{Type: TypeFiles, Payload: NewFilesPayload(entry)})
	return entry, nil
}

// SetTheme records the theme of id and sends it across the sandbox boundary.
func (s *Service) SetTheme(id, theme string) (Entry, error) {
	entry, err := s.store.SetTheme(id, theme)
	if err != nil {
		return Entry{}, err
	}
	s.hub.Publish(id, Envelope{Type: TypeTheme, Payload: theme})
	return entry, nil
}

// Get returns the current snapshot of id.
func (s *Service) Get(id string) (Entry, bool) {
	return s.store.Get(id)
}

// RegisterRoutes registers the preview routes on e.
func (s *Service) RegisterRoutes(e *echo.Echo) {
	e.GET(AssetsPrefix+":name", s.handleAsset)

	g := e.Group("/preview/:id")
	g.GET("", s.handleHost)
	g.GET("/sandbox", s.handleSandbox)
	g.GET("/fullscreen", s.handleFullscreen)
	g.GET("/files", s.handleGetFiles)
	g.PUT("/files", s.handleEditFile)
	g.DELETE("/files", s.handleResetFiles)
	g.POST("/theme", s.handleTheme)
	g.GET("/ws", s.handleSocket)
}

func (s *Service) requestLogger(c echo.Context, endpoint string) *logrus.Entry {
	return s.logger.WithFields(logrus.Fields{
		"endpoint":  endpoint,
		"method":    c.Request().Method,
		"previewId": c.Param("id"),
		"clientIP":  c.RealIP(),
	})
}

func (s *Service) handleHost(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/preview/:id")
	entry, ok := s.store.Get(c.Param("id"))
	if !ok {
		requestLogger.Warn("Preview not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}
	page, err := HostDocument(entry)
	if err != nil {
		requestLogger.WithError(err).Error("Failed to render host page")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to render preview"})
	}
	return c.HTMLBlob(http.StatusOK, page)
}

func (s *Service) handleSandbox(c echo.Context) error {
	return s.serveSandbox(c, "/preview/:id/sandbox", false)
}

func (s *Service) handleFullscreen(c echo.Context) error {
	return s.serveSandbox(c, "/preview/:id/fullscreen", true)
}

func (s *Service) serveSandbox(c echo.Context, endpoint string, standalone bool) error {
	requestLogger := s.requestLogger(c, endpoint)
	entry, ok := s.store.Get(c.Param("id"))
	if !ok {
		requestLogger.Warn("Preview not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}
	doc, err := SandboxDocument(entry, standalone)
	if err != nil {
		requestLogger.WithError(err).Error("Failed to render sandbox document")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to render preview"})
	}

	// isolate the document even when it is opened outside the host frame
	c.Response().Header().Set("Content-Security-Policy", "sandbox allow-scripts allow-popups")
	c.Response().Header().Set("Cache-Control", "no-store")
	requestLogger.WithFields(logrus.Fields{
		"version":    entry.Version,
		"files":      entry.Project.Files.Len(),
		"standalone": standalone,
	}).Debug("Serving sandbox document")
	return c.HTMLBlob(http.StatusOK, doc)
}

func (s *Service) handleGetFiles(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/preview/:id/files")
	entry, ok := s.store.Get(c.Param("id"))
	if !ok {
		requestLogger.Warn("Preview not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"id":      entry.ID,
		"theme":   entry.Theme,
		"edited":  entry.Edited,
		"preview": NewFilesPayload(entry),
	})
}

func (s *Service) handleEditFile(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/preview/:id/files")

	var req EditRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse edit request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		requestLogger.WithError(err).Warn("Invalid edit request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	entry, err := s.Edit(c.Param("id"), req.Path, req.Content)
	if errors.Is(err, ErrNotFound) {
		requestLogger.Warn("Preview not found for edit")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}
	if err != nil {
		requestLogger.WithError(err).Error("Failed to apply edit")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to apply edit"})
	}

	requestLogger.WithFields(logrus.Fields{
		"path":    req.Path,
		"bytes":   len(req.Content),
		"version": entry.Version,
	}).Info("Applied user edit to preview")
	return c.JSON(http.StatusOK, map[string]interface{}{
		"version": entry.Version,
		"edited":  entry.Edited,
	})
}

func (s *Service) handleResetFiles(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/preview/:id/files")
	entry, err := s.store.ResetEdits(c.Param("id"))
	if err != nil {
		requestLogger.Warn("Preview not found for reset")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}
	s.hub.Publish(entry.ID, Envelope{Type: TypeFiles, Payload: NewFilesPayload(entry)})
	requestLogger.WithField("version", entry.Version).Info("Discarded user edits")
	return c.JSON(http.StatusOK, map[string]interface{}{"version": entry.Version})
}

func (s *Service) handleTheme(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/preview/:id/theme")

	var req ThemeRequest
	if err := c.Bind(&req); err != nil {
		requestLogger.WithError(err).Error("Failed to parse theme request body")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if err := c.Validate(&req); err != nil {
		requestLogger.WithError(err).Warn("Invalid theme request")
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	entry, err := s.SetTheme(c.Param("id"), req.Theme)
	if err != nil {
		requestLogger.Warn("Preview not found for theme change")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}
	requestLogger.WithField("theme", entry.Theme).Debug("Theme broadcast to sandboxes")
	return c.JSON(http.StatusOK, map[string]string{"theme": entry.Theme})
}

func (s *Service) handleAsset(c echo.Context) error {
	name := path.Base(c.Param("name"))
	data, err := fs.ReadFile(assets, "assets/"+name)
	if err != nil || !strings.HasSuffix(name, ".js") {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Asset not found"})
	}
	// sandboxes have an opaque origin
	c.Response().Header().Set("Access-Control-Allow-Origin", "*")
	return c.Blob(http.StatusOK, "application/javascript; charset=utf-8", data)
}

// handleSocket streams envelopes of one preview to the client and logs the console and
// error reports the client sends back.
func (s *Service) handleSocket(c echo.Context) error {
	requestLogger := s.requestLogger(c, "/preview/:id/ws")
	id := c.Param("id")
	entry, ok := s.store.Get(id)
	if !ok {
		requestLogger.Warn("Preview not found")
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Preview not found"})
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// sandboxes connect with Origin: null
		InsecureSkipVerify: true,
	})
	if err != nil {
		requestLogger.WithError(err).Error("WebSocket accept failed")
		return nil
	}
	defer conn.CloseNow()
	conn.SetReadLimit(reportReadLimit)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	ch, unsub := s.hub.Subscribe(id)
	defer unsub()

	go s.readReports(ctx, cancel, conn, requestLogger)

	backfill := []Envelope{
		{Type: TypeTheme, Payload: entry.Theme},
		{Type: TypeFiles, Payload: NewFilesPayload(entry)},
	}
	for _, env := range backfill {
		if err := writeEnvelope(ctx, conn, env); err != nil {
			requestLogger.WithError(err).Debug("WS backfill write failed")
			return nil
		}
	}

	requestLogger.Info("Preview websocket client connected")
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return nil
		case env, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "subscription closed")
				return nil
			}
			if err := writeEnvelope(ctx, conn, env); err != nil {
				requestLogger.WithError(err).Debug("WS write failed")
				return nil
			}
		}
	}
}

func writeEnvelope(ctx context.Context, conn *websocket.Conn, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

type report struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type consoleReport struct {
	Level string   `json:"level"`
	Args  []string `json:"args"`
}

type errorReport struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
}

// readReports logs what the sandbox reports until the connection goes away.
// Reports are never forwarded anywhere else.
func (s *Service) readReports(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, requestLogger *logrus.Entry) {
	defer cancel()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var r report
		if err := json.Unmarshal(data, &r); err != nil {
			continue
		}
		switch r.Type {
		case TypeConsole:
			var cr consoleReport
			if json.Unmarshal(r.Payload, &cr) != nil {
				continue
			}
			sandboxReports.WithLabelValues(TypeConsole).Inc()
			requestLogger.WithFields(logrus.Fields{
				"level": cr.Level,
				"args":  strings.Join(cr.Args, " "),
			}).Debug("Sandbox console")
		case TypeError:
			var er errorReport
			if json.Unmarshal(r.Payload, &er) != nil {
				continue
			}
			sandboxReports.WithLabelValues(TypeError).Inc()
			requestLogger.WithFields(logrus.Fields{
				"message": er.Message,
				"stack":   er.Stack,
			}).Warn("Sandbox runtime error")
		}
	}
}
