package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/dataset"
	"github.com/BrandonDHaskell/Cerberus/server/internal/hardware/fingerprint"
)

// Dataset manages the face training images.
type Dataset interface {
	SaveImages(name string, uploads []io.Reader) ([]string, error)
	Users() (map[string][]string, error)
	Delete(name string) error
}

// TokenRegistry receives the push token of the companion app.
type TokenRegistry interface {
	SetToken(token string)
}

// HealthSnapshot reports per-device serving status.
type HealthSnapshot interface {
	Snapshot(services ...string) map[string]bool
}

type Dependencies struct {
	Logger  *zap.Logger
	Addr    string
	Engine  *service.Engine
	Dataset Dataset
	Tokens  TokenRegistry
	Health  HealthSnapshot

	// EvidenceDir is served under /static/, DatasetDir under /dataset/.
	// Empty disables the file server.
	EvidenceDir string
	DatasetDir  string

	CORSOrigins []string
}

type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
	mux        *http.ServeMux
	engine     *service.Engine
	dataset    Dataset
	tokens     TokenRegistry
	health     HealthSnapshot
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	s := &Server{
		logger:  d.Logger,
		mux:     mux,
		engine:  d.Engine,
		dataset: d.Dataset,
		tokens:  d.Tokens,
		health:  d.Health,
	}

	mux.HandleFunc("GET /{$}", s.handleHome)
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /detect", s.handleDetect)

	mux.HandleFunc("POST /unlock", s.handleUnlock)
	mux.HandleFunc("POST /lock", s.handleLock)

	mux.HandleFunc("GET /motion_status", s.handleMotionStatus)
	mux.HandleFunc("POST /toggle_motion", s.handleToggleMotion)

	mux.HandleFunc("GET /users", s.handleUsers)
	mux.HandleFunc("POST /register_face", s.handleRegisterFace)
	mux.HandleFunc("DELETE /delete_user/{name}", s.handleDeleteUser)

	mux.HandleFunc("GET /fingerprints", s.handleFingerprints)
	mux.HandleFunc("POST /enroll_fingerprint", s.handleEnrollFingerprint)
	mux.HandleFunc("DELETE /delete_fingerprint/{id}", s.handleDeleteFingerprint)

	mux.HandleFunc("POST /register_token", s.handleRegisterToken)

	if d.EvidenceDir != "" {
		mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.Dir(d.EvidenceDir))))
	}
	if d.DatasetDir != "" {
		mux.Handle("GET /dataset/", http.StripPrefix("/dataset/", http.FileServer(http.Dir(d.DatasetDir))))
	}

	handler := loggingMiddleware(d.Logger, corsMiddleware(d.CORSOrigins, mux))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Face & Motion Detection Server Running")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	var health map[string]bool
	if s.health != nil {
		health = s.health.Snapshot(service.HealthCamera, service.HealthMatcher, service.HealthFingerprint, service.HealthLock)
	}

	if wantsProtobuf(r) {
		msg, err := statusToProto(st, health)
		if err != nil {
			s.logger.Error("status proto", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
			return
		}
		writeProto(w, http.StatusOK, msg)
		return
	}

	writeJSON(w, http.StatusOK, statusBody{StatusResponse: st, Health: health})
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	events := s.engine.Detections()
	if events == nil {
		events = []types.DetectionEvent{}
	}
	writeJSON(w, http.StatusOK, types.DetectResponse{Status: "success", DetectedFaces: events})
}

// ── Lock ──

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req types.UnlockRequest
	if !decodeOptionalJSON(w, r, &req) {
		return
	}
	if req.Seconds < 0 || req.Seconds > maxUnlockSeconds {
		writeError(w, http.StatusBadRequest, "invalid_duration", fmt.Sprintf("seconds must be between 0 and %d", maxUnlockSeconds))
		return
	}
	if !s.engine.LockAvailable() {
		writeError(w, http.StatusServiceUnavailable, "lock_unavailable", "lock control is disabled")
		return
	}

	if err := s.engine.Unlock(time.Duration(req.Seconds) * time.Second); err != nil {
		s.logger.Error("manual unlock failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "actuation_failed", "unlock failed")
		return
	}
	s.logger.Info("manual unlock", zap.String("from", r.RemoteAddr))
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "success", Message: "Unlocked"})
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	if !s.engine.LockAvailable() {
		writeError(w, http.StatusServiceUnavailable, "lock_unavailable", "lock control is disabled")
		return
	}
	if err := s.engine.Lock(); err != nil {
		s.logger.Error("manual lock failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "actuation_failed", "lock failed")
		return
	}
	s.logger.Info("manual lock", zap.String("from", r.RemoteAddr))
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "success", Message: "Locked"})
}

// ── Motion ──

func (s *Server) handleMotionStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.MotionStatusResponse{Status: "success", MotionEnabled: s.engine.MotionEnabled()})
}

func (s *Server) handleToggleMotion(w http.ResponseWriter, r *http.Request) {
	on := s.engine.ToggleMotion()
	writeJSON(w, http.StatusOK, types.MotionStatusResponse{Status: "success", MotionEnabled: on})
}

// ── Faces ──

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	if !s.requireDataset(w) {
		return
	}
	users, err := s.dataset.Users()
	if err != nil {
		s.logger.Error("list users", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}
	if users == nil {
		users = map[string][]string{}
	}
	writeJSON(w, http.StatusOK, users)
}

func (s *Server) handleRegisterFace(w http.ResponseWriter, r *http.Request) {
	if !s.requireDataset(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeError(w, http.StatusBadRequest, "bad_form", "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	name := strings.TrimSpace(r.FormValue("name"))
	files := r.MultipartForm.File["images"]
	if name == "" || len(files) == 0 {
		writeError(w, http.StatusBadRequest, "missing_data", "Missing data")
		return
	}

	uploads := make([]io.Reader, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad_form", "unreadable upload")
			return
		}
		defer f.Close()
		uploads = append(uploads, f)
	}

	if _, err := s.dataset.SaveImages(name, uploads); err != nil {
		s.writeServiceError(w, "register face", err)
		return
	}
	s.engine.Trainer().Trigger()
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "success", Message: "Images saved"})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	if !s.requireDataset(w) {
		return
	}
	name := r.PathValue("name")
	if err := s.dataset.Delete(name); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "User not found")
			return
		}
		s.writeServiceError(w, "delete user", err)
		return
	}
	s.engine.Trainer().Trigger()
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "success", Message: fmt.Sprintf("User %s deleted.", name)})
}

// ── Fingerprints ──

func (s *Server) handleFingerprints(w http.ResponseWriter, r *http.Request) {
	list := s.engine.Registry().List()
	out := make([]types.FingerprintEntry, 0, len(list))
	for _, e := range list {
		out = append(out, types.FingerprintEntry{ID: strconv.Itoa(int(e.TemplateID)), Name: e.Name})
	}
	writeJSON(w, http.StatusOK, types.FingerprintsResponse{Status: "success", Fingerprints: out})
}

func (s *Server) handleEnrollFingerprint(w http.ResponseWriter, r *http.Request) {
	var req types.EnrollFingerprintRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}

	e, err := s.engine.Registry().Enroll(r.Context(), req.Name)
	if err != nil {
		s.writeServiceError(w, "enroll fingerprint", err)
		return
	}
	writeJSON(w, http.StatusOK, types.EnrollFingerprintResponse{
		Status: "success",
		ID:     strconv.Itoa(int(e.TemplateID)),
		Name:   e.Name,
	})
}

func (s *Server) handleDeleteFingerprint(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 16)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid fingerprint id")
		return
	}
	if err := s.engine.Registry().Delete(r.Context(), types.TemplateID(id)); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "Fingerprint not found")
			return
		}
		s.writeServiceError(w, "delete fingerprint", err)
		return
	}
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "success", Message: fmt.Sprintf("Fingerprint %d deleted.", id)})
}

// ── Push ──

func (s *Server) handleRegisterToken(w http.ResponseWriter, r *http.Request) {
	var req types.RegisterTokenRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "missing_token", "No token")
		return
	}
	if s.tokens == nil {
		writeError(w, http.StatusServiceUnavailable, "push_disabled", "push notifications are disabled")
		return
	}
	s.tokens.SetToken(req.Token)
	writeJSON(w, http.StatusOK, types.MessageResponse{Status: "success", Message: "Token registered"})
}

func (s *Server) requireDataset(w http.ResponseWriter) bool {
	if s.dataset == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset_disabled", "face dataset is not configured")
		return false
	}
	return true
}

// writeServiceError maps the service error taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidName):
		writeError(w, http.StatusBadRequest, "invalid_name", err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, service.ErrHardwareUnavailable):
		writeError(w, http.StatusServiceUnavailable, "hardware_unavailable", err.Error())
	case errors.Is(err, service.ErrDeviceBusy):
		writeError(w, http.StatusConflict, "device_busy", err.Error())
	case errors.Is(err, service.ErrNoFinger):
		writeError(w, http.StatusRequestTimeout, "no_finger", err.Error())
	case errors.Is(err, dataset.ErrNotImage), errors.Is(err, dataset.ErrTooLarge):
		writeError(w, http.StatusBadRequest, "bad_upload", err.Error())
	case errors.Is(err, fingerprint.ErrEnrollMismatch):
		writeError(w, http.StatusUnprocessableEntity, "enroll_mismatch", err.Error())
	case errors.Is(err, fingerprint.ErrLibraryFull):
		writeError(w, http.StatusInsufficientStorage, "library_full", err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
	}
}
