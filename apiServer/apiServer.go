// Package apiServer is the HTTP surface over the backup engine: request
// decoding, authentication sequencing, CORS, and the mapping of engine
// outcomes onto response classes. It contains no storage logic of its own.
package apiServer

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	backupserver "github.com/gavlu/dailyreps-backup-server"
	"github.com/gavlu/dailyreps-backup-server/internal/config"
	"github.com/gavlu/dailyreps-backup-server/internal/entropy"
)

const serverVersion = "1.0.0"

type Server struct {
	mux      *http.ServeMux
	db       *backupserver.BackupDB
	conf     config.Config
	detector *entropy.Detector
	log      *logrus.Logger
	now      func() int64
}

type Option func(*Server)

func WithLogger(logger *logrus.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.log = logger
		}
	}
}

// WithClock overrides the wall clock; tests use it to steer the freshness
// and rate-limit windows.
func WithClock(now func() int64) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

func New(db *backupserver.BackupDB, conf config.Config, opts ...Option) *Server {
	s := &Server{
		mux:  http.NewServeMux(),
		db:   db,
		conf: conf,
		detector: entropy.NewDetector(entropy.Config{
			ExpectedAppID: conf.ExpectedAppID,
			MinRatio:      conf.MinEntropyRatio,
			MaxRatio:      conf.MaxEntropyRatio,
			MinSizeBytes:  conf.MinEntropySizeBytes,
		}),
		log: logrus.New(),
		now: func() int64 { return time.Now().Unix() },
	}

	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/backup", s.handleStoreBackup)
	s.mux.HandleFunc("GET /api/backup", s.handleRetrieveBackup)
	s.mux.HandleFunc("DELETE /api/user", s.handleDeleteUser)
	s.mux.HandleFunc("GET /admin/stats", s.handleAdminStats)
	s.mux.HandleFunc("GET /admin/snapshot", s.handleAdminSnapshot)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin != "" && s.originAllowed(origin) {
		w.Header().Set("Vary", "Origin")
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")

		allowedHeaders := r.Header.Get("Access-Control-Request-Headers")
		if allowedHeaders == "" {
			allowedHeaders = "Content-Type, Accept"
		}
		w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	s.mux.ServeHTTP(w, r)
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.conf.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}
