package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/betech74/SmartCompressor/internal/compressor"
	"github.com/betech74/SmartCompressor/internal/config"
	"github.com/betech74/SmartCompressor/internal/pipeline"
	"github.com/betech74/SmartCompressor/internal/scanner"
	"github.com/betech74/SmartCompressor/internal/scheduler"
	"github.com/betech74/SmartCompressor/internal/statistics"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/lithammer/shortuuid/v4"
	"github.com/sirupsen/logrus"
)

// progressStep is the minimum change of the aggregate percentage between two
// broadcast progress messages. Per-file completions are always sent.
const progressStep = 1.0

const wsWriteTimeout = 5 * time.Second

// progressQueue bounds the progress messages waiting for websocket clients.
// Updates arriving while it is full are dropped.
const progressQueue = 256

type Server struct {
	cfg        *config.Config
	log        *logrus.Logger
	runner     *pipeline.Runner
	router     *mux.Router
	httpServer *http.Server
	wsUpgrader websocket.Upgrader
	wsClients  map[*websocket.Conn]bool
	wsMutex    sync.Mutex

	// Current operation state
	operationMutex sync.RWMutex
	isRunning      bool
	currentJob     *Job
}

// Job is one compression batch started through the API.
type Job struct {
	ID         string                 `json:"id"`
	Source     string                 `json:"source_directory"`
	Target     string                 `json:"target_directory"`
	StartedAt  time.Time              `json:"started_at"`
	FinishedAt *time.Time             `json:"finished_at,omitempty"`
	Progress   float64                `json:"progress"`
	Canceled   bool                   `json:"canceled"`
	Error      string                 `json:"error,omitempty"`
	Results    []FileResult           `json:"-"`
	Stats      *statistics.Statistics `json:"-"`

	cancel       context.CancelFunc
	lastProgress float64
	progress     chan map[string]interface{}
}

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type ScanRequest struct {
	Directory string `json:"directory"`
}

type CompressRequest struct {
	SourceDirectory string `json:"source_directory"`
	TargetDirectory string `json:"target_directory"`
	ReportPath      string `json:"report_path,omitempty"`
}

type DirectoryInfo struct {
	Path         string `json:"path"`
	Name         string `json:"name"`
	IsDirectory  bool   `json:"is_directory"`
	Size         int64  `json:"size"`
	ModifiedTime string `json:"modified_time"`
}

// FileResult is the JSON form of one file's outcome.
type FileResult struct {
	Index           int     `json:"index"`
	Source          string  `json:"source"`
	Destination     string  `json:"destination"`
	Kind            string  `json:"kind"`
	Outcome         string  `json:"outcome"`
	OriginalSize    int64   `json:"original_size"`
	CompressedSize  int64   `json:"compressed_size"`
	PercentageSaved float64 `json:"percentage_saved"`
	Message         string  `json:"message,omitempty"`
	Error           string  `json:"error,omitempty"`
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// NewServer returns a Server that runs batches with runner.
func NewServer(cfg *config.Config, log *logrus.Logger, runner *pipeline.Runner) *Server {
	s := &Server{
		cfg:       cfg,
		log:       log,
		runner:    runner,
		router:    mux.NewRouter(),
		wsClients: make(map[*websocket.Conn]bool),
		wsUpgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins in development
			},
		},
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/scan", s.handleScan).Methods("POST")
	api.HandleFunc("/compress", s.handleCompress).Methods("POST")
	api.HandleFunc("/stop", s.handleStop).Methods("POST")
	api.HandleFunc("/results", s.handleResults).Methods("GET")
	api.HandleFunc("/directories", s.handleListDirectories).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.log.Infof("Starting web server on http://localhost%s", addr)
	return s.httpServer.ListenAndServe()
}

// Stop cancels a running batch and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	s.cancelJob()
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	running := s.isRunning
	var job *Job
	if s.currentJob != nil {
		snapshot := *s.currentJob
		job = &snapshot
	}
	s.operationMutex.RUnlock()

	data := map[string]interface{}{
		"running": running,
		"job":     job,
	}
	if job != nil && job.Stats != nil {
		data["statistics"] = statsData(job.Stats)
	}

	s.writeJSON(w, APIResponse{Success: true, Data: data})
}

// handleScan estimates the compressed size of a directory without writing
// anything.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Directory == "" {
		s.writeError(w, "Directory is required", http.StatusBadRequest)
		return
	}
	if info, err := os.Stat(req.Directory); err != nil || !info.IsDir() {
		s.writeError(w, "Directory does not exist", http.StatusBadRequest)
		return
	}

	tasks, err := scanner.New(s.log, nil).Discover(req.Directory, "", false)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Scan failed: %v", err), http.StatusInternalServerError)
		return
	}
	est := scanner.EstimateTasks(tasks)

	byKind := make(map[string]scanner.KindEstimate, len(est.ByKind))
	for kind, k := range est.ByKind {
		byKind[kind.String()] = k
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"files":     est.Files,
			"original":  est.Original,
			"estimated": est.Estimated,
			"saved":     est.Saved(),
			"by_kind":   byKind,
		},
	})
}

func (s *Server) handleCompress(w http.ResponseWriter, r *http.Request) {
	var req CompressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	check := *s.cfg
	check.SourceDirectory = config.ExpandPath(req.SourceDirectory)
	check.TargetDirectory = config.ExpandPath(req.TargetDirectory)
	if err := check.ValidateDirectories(); err != nil {
		s.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := &Job{
		ID:        shortuuid.New(),
		Source:    check.SourceDirectory,
		Target:    check.TargetDirectory,
		StartedAt: time.Now(),
		Stats:     statistics.NewStatistics(),
		cancel:    cancel,
	}

	s.operationMutex.Lock()
	if s.isRunning {
		s.operationMutex.Unlock()
		cancel()
		s.writeError(w, "Operation already in progress", http.StatusConflict)
		return
	}
	s.isRunning = true
	s.currentJob = job
	s.operationMutex.Unlock()

	go s.runCompressAsync(ctx, job, req.ReportPath)

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Compression started",
		Data:    map[string]string{"job_id": job.ID},
	})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !s.cancelJob() {
		s.writeError(w, "No operation in progress", http.StatusConflict)
		return
	}

	s.broadcastWSMessage("operation_stopped", map[string]interface{}{
		"message": "Operation stopped by user",
	})

	s.writeJSON(w, APIResponse{
		Success: true,
		Message: "Operation stopping, running files will finish",
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	s.operationMutex.RLock()
	job := s.currentJob
	var results []FileResult
	if job != nil {
		results = job.Results
	}
	s.operationMutex.RUnlock()

	if job == nil {
		s.writeError(w, "No compression has been run", http.StatusNotFound)
		return
	}
	s.writeJSON(w, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"job_id":  job.ID,
			"results": results,
		},
	})
}

func (s *Server) handleListDirectories(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "."
	}

	// Security check - prevent directory traversal
	path = filepath.Clean(path)
	if strings.Contains(path, "..") {
		s.writeError(w, "Invalid path", http.StatusBadRequest)
		return
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		s.writeError(w, fmt.Sprintf("Failed to read directory: %v", err), http.StatusInternalServerError)
		return
	}

	directories := make([]DirectoryInfo, 0, len(entries))
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}

		directories = append(directories, DirectoryInfo{
			Path:         filepath.Join(path, entry.Name()),
			Name:         entry.Name(),
			IsDirectory:  entry.IsDir(),
			Size:         info.Size(),
			ModifiedTime: info.ModTime().Format(time.RFC3339),
		})
	}

	s.writeJSON(w, APIResponse{
		Success: true,
		Data:    directories,
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

	defer func() {
		s.wsMutex.Lock()
		delete(s.wsClients, conn)
		s.wsMutex.Unlock()
		s.log.Debug("WebSocket client disconnected")
	}()

	// Keep connection alive
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (s *Server) runCompressAsync(ctx context.Context, job *Job, reportPath string) {
	defer job.cancel()

	s.broadcastWSMessage("compress_started", map[string]interface{}{
		"job_id":           job.ID,
		"source_directory": job.Source,
		"target_directory": job.Target,
	})

	// Websocket writes happen here, off the workers' progress path.
	job.progress = make(chan map[string]interface{}, progressQueue)
	forwarded := make(chan struct{})
	go func() {
		defer close(forwarded)
		for data := range job.progress {
			s.broadcastWSMessage("progress", data)
		}
	}()

	sum, err := s.runner.Run(ctx, pipeline.Batch{
		Source:     job.Source,
		Target:     job.Target,
		ReportPath: reportPath,
	}, job.Stats, func(u scheduler.Update) { s.onProgress(job, u) })
	close(job.progress)
	<-forwarded

	results := make([]FileResult, 0, len(sum.Results))
	for _, res := range sum.Results {
		results = append(results, toFileResult(res))
	}
	finished := time.Now()

	s.operationMutex.Lock()
	s.isRunning = false
	job.Results = results
	job.FinishedAt = &finished
	job.Canceled = errors.Is(ctx.Err(), context.Canceled)
	if err != nil {
		job.Error = err.Error()
	} else {
		job.Progress = 100
	}
	s.operationMutex.Unlock()

	if err != nil {
		s.log.Errorf("Compression job %s failed: %v", job.ID, err)
		s.broadcastWSMessage("compress_error", map[string]interface{}{
			"job_id": job.ID,
			"error":  err.Error(),
		})
		return
	}
	s.broadcastWSMessage("compress_completed", map[string]interface{}{
		"job_id":     job.ID,
		"canceled":   job.Canceled,
		"statistics": statsData(job.Stats),
	})
}

// onProgress records the aggregate and queues file completions and
// noticeable aggregate changes for websocket clients. It never blocks.
func (s *Server) onProgress(job *Job, u scheduler.Update) {
	s.operationMutex.Lock()
	job.Progress = u.Aggregate
	send := u.Percent >= 100 || u.Aggregate-job.lastProgress >= progressStep
	if send {
		job.lastProgress = u.Aggregate
	}
	s.operationMutex.Unlock()

	if !send {
		return
	}
	data := map[string]interface{}{
		"job_id":    job.ID,
		"index":     u.Index,
		"file":      u.Source,
		"percent":   u.Percent,
		"aggregate": u.Aggregate,
	}
	select {
	case job.progress <- data:
	default:
		s.log.Debugf("Progress queue full, dropping update for %s", u.Source)
	}
}

// cancelJob cancels the running job. It reports whether one was running.
func (s *Server) cancelJob() bool {
	s.operationMutex.RLock()
	defer s.operationMutex.RUnlock()
	if !s.isRunning || s.currentJob == nil {
		return false
	}
	s.currentJob.cancel()
	return true
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

	// gorilla/websocket allows one concurrent writer per connection.
	s.wsMutex.Lock()
	defer s.wsMutex.Unlock()

	for conn := range s.wsClients {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, msgBytes); err != nil {
			s.log.Errorf("Failed to write WebSocket message: %v", err)
			delete(s.wsClients, conn)
			conn.Close()
		}
	}
}

func toFileResult(res compressor.Result) FileResult {
	fr := FileResult{
		Index:           res.Task.Index,
		Source:          res.Task.Source,
		Destination:     res.Task.Destination,
		Kind:            res.Task.Kind.String(),
		Outcome:         res.Outcome.String(),
		OriginalSize:    res.OriginalSize,
		CompressedSize:  res.CompressedSize,
		PercentageSaved: res.PercentageSaved,
		Message:         res.Message,
	}
	if res.Err != nil {
		fr.Error = res.Err.Error()
	}
	return fr
}

func statsData(stats *statistics.Statistics) map[string]interface{} {
	return map[string]interface{}{
		"summary": stats.GetSummary(),
		"files": map[string]interface{}{
			"total_found":     atomic.LoadInt64(&stats.TotalFilesFound),
			"unsupported":     atomic.LoadInt64(&stats.FilesUnsupported),
			"total_processed": atomic.LoadInt64(&stats.TotalFilesProcessed),
			"compressed":      atomic.LoadInt64(&stats.FilesCompressed),
			"copied":          atomic.LoadInt64(&stats.FilesFallbackCopied),
			"failed":          atomic.LoadInt64(&stats.FilesFailed),
			"canceled":        atomic.LoadInt64(&stats.FilesCanceled),
		},
		"bytes": map[string]interface{}{
			"original":   atomic.LoadInt64(&stats.BytesOriginal),
			"compressed": atomic.LoadInt64(&stats.BytesCompressed),
		},
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
