package web

import (
	"bytes"
	_ "embed"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"imagecompress-go/internal/archive"
	"imagecompress-go/internal/batch"
	"imagecompress-go/internal/compressor"
	"imagecompress-go/internal/config"
	"imagecompress-go/internal/logger"
	"imagecompress-go/internal/session"
	"imagecompress-go/internal/statistics"
)

const (
	multipartMemory = 32 << 20
	wsWriteTimeout  = 10 * time.Second
)

//go:embed templates/index.html
var indexHTML []byte

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	router     *mux.Router
	httpMutex  sync.Mutex
	httpServer *http.Server
	stopped    bool
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.RWMutex

	// wsWriteTimeout bounds each websocket write so a stalled client
	// cannot hold up batch workers.
	wsWriteTimeout time.Duration

	sessions *session.Manager
	decoder  batch.Decoder
	engine   compressor.Compressor

	// Current operation state
	operationMutex sync.RWMutex
	activeBatches  int
	lastStats      *statistics.Statistics
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type UploadResponse struct {
	SessionID      string         `json:"session_id"`
	Results        []batch.Report `json:"results"`
	ProcessedCount int            `json:"processed_count"`
	TargetKB       float64        `json:"target_kb"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewServer(cfg *config.Config, log *logrus.Logger, sessions *session.Manager, decoder batch.Decoder, engine compressor.Compressor) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		wsWriteTimeout: wsWriteTimeout,
		sessions:       sessions,
		decoder:        decoder,
		engine:         engine,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/upload", s.handleUpload).Methods("POST")
	s.router.HandleFunc("/download/{session_id}", s.handleDownload).Methods("GET")
	s.router.HandleFunc("/cleanup/{session_id}", s.handleCleanup).Methods("POST")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")

	// WebSocket endpoint
	s.router.HandleFunc("/ws", s.handleWebSocket)

	// Main page
	s.router.HandleFunc("/", s.handleIndex).Methods("GET")
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(indexHTML)
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Stop is called. It returns http.ErrServerClosed after a
// graceful stop, including one requested before Start ran.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)

	s.httpMutex.Lock()
	if s.stopped {
		s.httpMutex.Unlock()
		return http.ErrServerClosed
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
	srv := s.httpServer
	s.httpMutex.Unlock()

	s.log.Infof("Starting web server on http://0.0.0.0%s", addr)
	return srv.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.httpMutex.Lock()
	s.stopped = true
	srv := s.httpServer
	s.httpMutex.Unlock()

	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.sessions.CleanupExpired(s.cfg.Session.MaxAge)

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxContentLength)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			s.writeError(w, fmt.Sprintf("File too large. Maximum upload size is %dMB.", s.cfg.Upload.MaxContentLength/(1024*1024)), http.StatusRequestEntityTooLarge)
			return
		}
		s.log.Warnf("Malformed upload: %v", err)
		s.writeError(w, "No files provided", http.StatusBadRequest)
		return
	}
	defer r.MultipartForm.RemoveAll()

	files, ok := r.MultipartForm.File["files[]"]
	if !ok {
		// A file input submitted without a selection arrives as a plain value.
		if _, selected := r.MultipartForm.Value["files[]"]; selected {
			s.log.Warn("Upload request with empty file list")
			s.writeError(w, "No files selected", http.StatusBadRequest)
			return
		}
		s.log.Warn("Upload request received with no files")
		s.writeError(w, "No files provided", http.StatusBadRequest)
		return
	}

	targetKB, err := strconv.ParseFloat(r.FormValue("target_kb"), 64)
	if err != nil || targetKB <= 0 {
		s.log.Warnf("Invalid target size requested: %q", r.FormValue("target_kb"))
		s.writeError(w, "Invalid target size", http.StatusBadRequest)
		return
	}

	format, err := compressor.ParseOutputFormat(r.FormValue("output_format"))
	if err != nil {
		s.writeError(w, "Invalid output format", http.StatusBadRequest)
		return
	}

	files = nonEmpty(files)
	if len(files) == 0 {
		s.log.Warn("Upload request with empty file list")
		s.writeError(w, "No files selected", http.StatusBadRequest)
		return
	}

	s.log.Infof("Upload received: %d files, target=%gKB, format=%s", len(files), targetKB, format)

	sess, err := s.sessions.Create()
	if err != nil {
		s.log.Errorf("Failed to create session: %v", err)
		s.writeError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	log := logger.WithSession(s.log, sess.ID)

	// reports follows submission order; itemFile maps batch items back to
	// their position in files.
	reports := make([]batch.Report, len(files))
	originals := make([]string, len(files))
	items := make([]batch.Item, 0, len(files))
	itemFile := make([]int, 0, len(files))
	for i, fh := range files {
		originals[i] = session.SanitizeFilename(fh.Filename)

		ext := strings.ToLower(filepath.Ext(fh.Filename))
		if !s.cfg.IsAllowedExtension(ext) {
			log.Warnf("Rejected %s: extension not allowed", originals[i])
			reports[i] = failedReport(originals[i], compressor.NewUnsupportedFormatError(fmt.Sprintf("extension %q", ext)))
			continue
		}
		data, err := readPart(fh)
		if err != nil {
			log.Errorf("Failed to read %s: %v", fh.Filename, err)
			reports[i] = failedReport(originals[i], fmt.Errorf("read upload: %w", err))
			continue
		}
		stored, err := s.sessions.SaveUpload(sess.ID, fh.Filename, data)
		if err != nil {
			log.Errorf("Failed to store %s: %v", fh.Filename, err)
			reports[i] = failedReport(originals[i], fmt.Errorf("store upload: %w", err))
			continue
		}
		items = append(items, batch.Item{Name: stored, Data: data})
		itemFile = append(itemFile, i)
	}

	entries := s.runBatch(r.Context(), sess.ID, items, batch.Options{
		TargetKB:   targetKB,
		Format:     format,
		MinQuality: s.cfg.Compression.MinQuality,
		MaxQuality: s.cfg.Compression.MaxQuality,
	})

	processed := 0
	for j, e := range entries {
		i := itemFile[j]
		name := e.Name
		if e.Success {
			outName := strings.TrimSuffix(e.Name, filepath.Ext(e.Name)) + e.Result.Format.Extension()
			written, err := s.sessions.WriteOutput(sess.ID, outName, e.Result.Data)
			if err != nil {
				log.Errorf("Failed to write output %s: %v", outName, err)
				e.Success = false
				e.Error = err
			} else {
				name = written
				processed++
			}
		}
		reports[i] = batch.NewReport(e, name, originals[i])
	}
	if processed == 0 {
		if err := s.sessions.Remove(sess.ID); err != nil {
			log.Warnf("Failed to remove empty session: %v", err)
		}
		s.writeError(w, "No valid image files were processed", http.StatusBadRequest)
		return
	}

	s.sessions.Complete(sess.ID, targetKB, reports)
	log.Infof("Processed %d images successfully", processed)

	s.writeJSON(w, UploadResponse{
		SessionID:      sess.ID,
		Results:        reports,
		ProcessedCount: processed,
		TargetKB:       targetKB,
	})
}

func (s *Server) runBatch(ctx context.Context, sessionID string, items []batch.Item, opts batch.Options) []batch.Entry {
	if timeout := s.cfg.Performance.BatchTimeout; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	s.operationMutex.Lock()
	s.activeBatches++
	s.operationMutex.Unlock()

	s.broadcastWSMessage("batch_started", map[string]interface{}{
		"session_id": sessionID,
		"images":     len(items),
	})

	runner := batch.NewRunner(s.decoder, s.engine, s.log, batch.Config{
		Workers:        s.cfg.Performance.WorkerThreads,
		AllowExtension: s.cfg.IsAllowedExtension,
		OnEntry: func(e batch.Entry, completed, total int) {
			msg := map[string]interface{}{
				"session_id": sessionID,
				"filename":   e.Name,
				"success":    e.Success,
				"completed":  completed,
				"total":      total,
			}
			if e.Error != nil {
				msg["error"] = e.Error.Error()
			}
			s.broadcastWSMessage("image_compressed", msg)
		},
	})
	entries, stats := runner.Run(ctx, items, opts)

	s.operationMutex.Lock()
	s.activeBatches--
	s.lastStats = stats
	s.operationMutex.Unlock()

	s.broadcastWSMessage("batch_completed", map[string]interface{}{
		"session_id": sessionID,
		"statistics": stats.Snapshot(),
	})
	return entries
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	log := logger.WithOperation(s.log, "download")
	dir, err := s.sessions.OutputDir(id)
	switch {
	case errors.Is(err, session.ErrInvalidID):
		log.Warnf("Invalid session ID attempted: %.50s", id)
		s.writeError(w, "Invalid session ID", http.StatusBadRequest)
		return
	case err != nil:
		log.Warnf("Download requested for expired/missing session: %s", session.ShortID(id))
		s.writeError(w, "Session not found or expired", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if _, err := archive.WriteZip(&buf, dir); err != nil {
		log.Errorf("Failed to build archive for %s: %v", session.ShortID(id), err)
		s.writeError(w, "Failed to build archive", http.StatusInternalServerError)
		return
	}

	logger.WithSession(s.log, id).Info("ZIP download started")
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="compressed_images_%s.zip"`, session.ShortID(id)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["session_id"]
	log := logger.WithOperation(s.log, "cleanup")
	if !session.IsValidID(id) {
		log.Warnf("Invalid session ID in cleanup: %.50s", id)
		s.writeError(w, "Invalid session ID", http.StatusBadRequest)
		return
	}
	if err := s.sessions.Remove(id); err != nil {
		log.Errorf("Failed to clean up session %s: %v", session.ShortID(id), err)
		s.writeError(w, "Failed to clean up session", http.StatusInternalServerError)
		return
	}
	logger.WithSession(s.log, id).Info("Session cleaned up manually")
	s.writeJSON(w, APIResponse{Success: true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	active := s.activeBatches
	stats := s.lastStats
	s.operationMutex.RUnlock()

	var lastBatch interface{}
	if stats != nil {
		lastBatch = stats.Snapshot()
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"active_batches": active,
			"sessions":       s.sessions.Count(),
			"last_batch":     lastBatch,
		},
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Errorf("WebSocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	s.wsMutex.Lock()
	s.wsClients[conn] = true
	s.wsMutex.Unlock()

	s.log.Debug("WebSocket client connected")

	// Remove client on disconnect
	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (s *Server) wsClientCount() int {
	s.wsMutex.RLock()
	defer s.wsMutex.RUnlock()
	return len(s.wsClients)
}

func (s *Server) broadcastWSMessage(messageType string, data interface{}) {
	message := WSMessage{
		Type: messageType,
		Data: data,
	}

	msgBytes, err := json.Marshal(message)
	if err != nil {
		s.log.Errorf("Failed to marshal WebSocket message: %v", err)
		return
	}

	// Writes hold the exclusive lock; gorilla connections allow one
	// concurrent writer and batch workers broadcast in parallel.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		_ = conn.SetWriteDeadline(time.Now().Add(s.wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(APIResponse{
		Success: false,
		Error:   message,
	})
}

// failedReport records an upload that never reached the batch runner.
func failedReport(name string, err error) batch.Report {
	return batch.NewReport(batch.Entry{Name: name, Error: err}, name, name)
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func nonEmpty(files []*multipart.FileHeader) []*multipart.FileHeader {
	out := files[:0]
	for _, fh := range files {
		if fh != nil && fh.Filename != "" {
			out = append(out, fh)
		}
	}
	return out
}

func isTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
