// Package testutils provides a mock Conversion Tools API server for tests.
package testutils

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
)

// Step is one scripted status response for a task. Successive polls advance
// through the script; the last step repeats forever.
type Step struct {
	Status   string
	Progress int
	FileID   string
	Error    string
}

type storedFile struct {
	name string
	data []byte
}

type scriptedTask struct {
	id       string
	typ      string
	options  map[string]any
	callback string
	sandbox  bool
	steps    []Step
	next     int
}

// advance returns the current step and moves forward, sticking on the last.
func (st *scriptedTask) advance() Step {
	step := st.steps[st.next]
	if st.next < len(st.steps)-1 {
		st.next++
	}
	return step
}

// Server simulates the Conversion Tools API: multipart uploads, task
// creation with scripted status sequences, downloads, rate-limit headers,
// and bearer-token auth.
type Server struct {
	*httptest.Server

	// Token is the bearer token the server accepts.
	Token string

	// DailyLimit / DailyRemaining are reported in rate-limit headers on
	// every response.
	DailyLimit     int
	DailyRemaining int

	// MonthlyLimit / MonthlyRemaining are reported when MonthlyLimit > 0.
	MonthlyLimit     int
	MonthlyRemaining int

	mu         sync.Mutex
	files      map[string]storedFile
	tasks      map[string]*scriptedTask
	nextScript []Step
	failures   map[string]int // path prefix -> remaining 503 responses
	requests   map[string]int // path -> request count
}

// NewServer starts a mock API server accepting the given bearer token.
func NewServer(t *testing.T, token string) *Server {
	t.Helper()

	s := &Server{
		Token:          token,
		DailyLimit:     25,
		DailyRemaining: 20,
		files:          make(map[string]storedFile),
		tasks:          make(map[string]*scriptedTask),
		failures:       make(map[string]int),
		requests:       make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /files", s.handleUpload)
	mux.HandleFunc("GET /files/{id}/info", s.handleFileInfo)
	mux.HandleFunc("GET /files/{id}", s.handleDownload)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("GET /auth", s.handleAuth)
	mux.HandleFunc("GET /config", s.handleConfig)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeRateLimitHeaders(w)
		if !s.countRequest(w, r) {
			return
		}
		if !s.checkAuth(w, r) {
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(s.Close)

	return s
}

// NewID returns a server-style 32-character hex id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// ScriptNextTask sets the status sequence for the next created task. Without
// a script, created tasks succeed immediately with the uploaded file echoed
// back as the result.
func (s *Server) ScriptNextTask(steps ...Step) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextScript = steps
}

// AddFile seeds a stored file and returns its id.
func (s *Server) AddFile(name string, data []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := NewID()
	s.files[id] = storedFile{name: name, data: data}
	return id
}

// FileData returns the stored content for a file id.
func (s *Server) FileData(id string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[id]
	return f.data, ok
}

// TaskOptions returns the options the given task was created with.
func (s *Server) TaskOptions(id string) (map[string]any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return nil, false
	}
	return task.options, true
}

// TaskCallback returns the callbackUrl the given task was created with.
func (s *Server) TaskCallback(id string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return "", false
	}
	return task.callback, true
}

// TaskSandbox reports whether the given task was created in sandbox mode.
func (s *Server) TaskSandbox(id string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[id]
	if !ok {
		return false, false
	}
	return task.sandbox, true
}

// FailNext makes the next n requests whose path starts with prefix respond
// with 503, then recover.
func (s *Server) FailNext(prefix string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[prefix] = n
}

// Requests returns how many requests were seen for paths with the given
// prefix.
func (s *Server) Requests(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for p, n := range s.requests {
		if strings.HasPrefix(p, prefix) {
			total += n
		}
	}
	return total
}

func (s *Server) writeRateLimitHeaders(w http.ResponseWriter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Header().Set("x-ratelimit-limit-tasks", strconv.Itoa(s.DailyLimit))
	w.Header().Set("x-ratelimit-limit-tasks-remaining", strconv.Itoa(s.DailyRemaining))
	if s.MonthlyLimit > 0 {
		w.Header().Set("x-ratelimit-limit-tasks-monthly", strconv.Itoa(s.MonthlyLimit))
		w.Header().Set("x-ratelimit-limit-tasks-monthly-remaining", strconv.Itoa(s.MonthlyRemaining))
	}
}

// countRequest records the request and applies scripted transient failures.
// Returns false when the request was already answered with a failure.
func (s *Server) countRequest(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[r.URL.Path]++

	for prefix, n := range s.failures {
		if n > 0 && strings.HasPrefix(r.URL.Path, prefix) {
			s.failures[prefix] = n - 1
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "temporarily unavailable"})
			return false
		}
	}
	return true
}

func (s *Server) checkAuth(w http.ResponseWriter, r *http.Request) bool {
	if r.Header.Get("Authorization") != "Bearer "+s.Token {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Not authorized - Invalid or missing API token"})
		return false
	}
	return true
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed multipart body"})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "read upload"})
		return
	}

	s.mu.Lock()
	id := NewID()
	s.files[id] = storedFile{name: header.Filename, data: data}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"file_id": id, "error": nil})
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f, ok := s.files[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "File not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    f.name,
		"size":    len(f.data),
		"preview": false,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	f, ok := s.files[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "File not found"})
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", f.name))
	w.Header().Set("Content-Length", strconv.Itoa(len(f.data)))
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(f.data)
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type        string         `json:"type"`
		Options     map[string]any `json:"options"`
		CallbackURL string         `json:"callbackUrl"`
		Sandbox     bool           `json:"sandbox"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "conversion type is required"})
		return
	}

	s.mu.Lock()
	steps := s.nextScript
	s.nextScript = nil
	if len(steps) == 0 {
		// Default: an echo conversion that succeeds immediately with the
		// input file as the result.
		fileID, _ := req.Options["file_id"].(string)
		steps = []Step{{Status: "SUCCESS", Progress: 100, FileID: fileID}}
	}
	task := &scriptedTask{
		id:       NewID(),
		typ:      req.Type,
		options:  req.Options,
		callback: req.CallbackURL,
		sandbox:  req.Sandbox,
		steps:    steps,
	}
	s.tasks[task.id] = task
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"task_id": task.id, "error": nil})
}

func (s *Server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	task, ok := s.tasks[r.PathValue("id")]
	if !ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Task not found"})
		return
	}
	step := task.advance()
	s.mu.Unlock()

	var errField any
	if step.Error != "" {
		errField = step.Error
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":             step.Status,
		"file_id":            step.FileID,
		"error":              errField,
		"conversionProgress": step.Progress,
	})
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")

	s.mu.Lock()
	data := []map[string]any{}
	for _, task := range s.tasks {
		step := task.steps[task.next]
		if filter != "" && step.Status != filter {
			continue
		}
		data = append(data, map[string]any{
			"id":                 task.id,
			"type":               task.typ,
			"status":             step.Status,
			"error":              step.Error,
			"dateCreated":        "2025-01-01T00:00:00Z",
			"conversionProgress": step.Progress,
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"data": data, "error": nil})
}

func (s *Server) handleAuth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"email": "tester@example.com", "error": nil})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"conversions": []string{"convert.xml_to_csv", "convert.xml_to_excel", "convert.website_to_pdf"},
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
