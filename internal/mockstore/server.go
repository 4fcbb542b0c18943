// Package mockstore serves an in-memory subset of the Supabase Storage object API for local
// runs and backend tests.
package mockstore

import (
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Call records a request made to the mock service.
type Call struct {
	Method string
	Path   string
}

// Upload records one stored object.
type Upload struct {
	Bucket      string
	Key         string
	ContentType string
	Bytes       []byte
}

type object struct {
	contentType string
	data        []byte
}

// Server holds objects per bucket.
type Server struct {
	mu      sync.Mutex
	calls   []Call
	uploads []Upload
	objects map[string]map[string]object

	expectedAuthorization string
}

func New() *Server {
	return &Server{objects: make(map[string]map[string]object)}
}

// RequireBearerToken enforces that requests carry "Authorization: Bearer <token>". An empty
// token disables the check.
func (s *Server) RequireBearerToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	token = strings.TrimSpace(token)
	if token == "" {
		s.expectedAuthorization = ""
		return
	}
	s.expectedAuthorization = "Bearer " + token
}

// Handler serves /storage/v1/object/... and the bare /object/... form.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/storage/v1/object/", s.handleObject)
	mux.HandleFunc("/object/", s.handleObject)
	return mux
}

// Seed stores an object directly.
func (s *Server) Seed(bucket, key string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(bucket, key, "", data)
}

// LoadDir seeds every regular file under dir; the first path segment is the bucket.
func (s *Server) LoadDir(dir string) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		parts := strings.SplitN(filepath.ToSlash(rel), "/", 2)
		if len(parts) != 2 {
			return nil
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		s.Seed(parts[0], parts[1], b)
		n++
		return nil
	})
	return n, err
}

// Object returns a stored object.
func (s *Server) Object(bucket, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.objects[bucket][key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), o.data...), true
}

// Calls returns a snapshot of calls made to the server.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Uploads returns a snapshot of uploads made through the API (not Seed).
func (s *Server) Uploads() []Upload {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Upload, len(s.uploads))
	copy(out, s.uploads)
	return out
}

func (s *Server) putLocked(bucket, key, contentType string, data []byte) {
	if s.objects[bucket] == nil {
		s.objects[bucket] = make(map[string]object)
	}
	s.objects[bucket][key] = object{contentType: contentType, data: append([]byte(nil), data...)}
}

func (s *Server) recordCall(r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: r.Method, Path: r.URL.Path})
}

func (s *Server) authorize(w http.ResponseWriter, r *http.Request) bool {
	s.mu.Lock()
	expected := s.expectedAuthorization
	s.mu.Unlock()

	if expected == "" {
		return true
	}
	if r.Header.Get("Authorization") != expected {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid token")
		return false
	}
	return true
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request) {
	s.recordCall(r)
	if !s.authorize(w, r) {
		return
	}

	// /storage/v1/object/{bucket}/{key...}
	// /storage/v1/object/{authenticated|public}/{bucket}/{key...}
	rest := r.URL.Path
	if i := strings.Index(rest, "/object/"); i >= 0 {
		rest = rest[i+len("/object/"):]
	}
	if r.Method == http.MethodGet {
		rest = strings.TrimPrefix(rest, "authenticated/")
		rest = strings.TrimPrefix(rest, "public/")
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || !isSafeToken(bucket) || !isSafeFilePath(key) {
		writeError(w, http.StatusBadRequest, "InvalidKey", "invalid bucket or key")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.serveGet(w, bucket, key)
	case http.MethodPost, http.MethodPut:
		s.handleUpload(w, r, bucket, key)
	default:
		writeError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	}
}

func (s *Server) serveGet(w http.ResponseWriter, bucket, key string) {
	s.mu.Lock()
	o, ok := s.objects[bucket][key]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Object not found")
		return
	}
	ct := o.contentType
	if ct == "" {
		ct = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ct)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(o.data)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, bucket, key string) {
	data, ct, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}
	upsert := strings.EqualFold(r.Header.Get("x-upsert"), "true") || r.Method == http.MethodPut

	s.mu.Lock()
	if _, exists := s.objects[bucket][key]; exists && !upsert {
		s.mu.Unlock()
		writeError(w, http.StatusConflict, "Duplicate", "The resource already exists")
		return
	}
	s.putLocked(bucket, key, ct, data)
	s.uploads = append(s.uploads, Upload{Bucket: bucket, Key: key, ContentType: ct, Bytes: append([]byte(nil), data...)})
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"Key": bucket + "/" + key})
}

// readBody accepts both raw bodies and multipart form uploads.
func readBody(r *http.Request) ([]byte, string, error) {
	ct := r.Header.Get("Content-Type")
	mediaType, params, err := mime.ParseMediaType(ct)
	if err == nil && strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(r.Body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil, "", fmt.Errorf("multipart body has no file part")
			}
			if err != nil {
				return nil, "", err
			}
			if part.FileName() == "" && part.FormName() != "" && part.FormName() != "file" {
				continue
			}
			b, err := io.ReadAll(part)
			if err != nil {
				return nil, "", err
			}
			return b, part.Header.Get("Content-Type"), nil
		}
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, "", err
	}
	return b, ct, nil
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"statusCode": fmt.Sprintf("%d", status),
		"error":      code,
		"message":    msg,
	})
}

func isSafeToken(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, "/\\")
}

func isSafeFilePath(p string) bool {
	if p == "" {
		return false
	}
	if strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return false
	}
	for _, part := range strings.Split(p, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}
