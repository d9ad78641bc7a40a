package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/service"
	"github.com/BrandonDHaskell/Recertify/server/internal/recertify/types"
)

type Dependencies struct {
	Logger *zap.Logger
	Addr   string

	// Production turns on HTTPS redirects in the security headers.
	Production         bool
	RateLimitPerMinute int

	Queries        *service.QueryService
	Certifications *service.CertificationService
	Trigger        *service.ReviewTrigger

	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Server struct {
	httpServer     *http.Server
	logger         *zap.Logger
	queries        *service.QueryService
	certifications *service.CertificationService
	trigger        *service.ReviewTrigger
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger:         d.Logger.Named("http"),
		queries:        d.Queries,
		certifications: d.Certifications,
		trigger:        d.Trigger,
	}

	r := chi.NewRouter()
	r.Use(middlewareStack(s.logger, d.Production, d.RateLimitPerMinute)...)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/reviewers/{reviewerID}/entitlements", s.handleReviewQueue)
		r.Get("/reports/summary", s.handleSummary)
		r.Get("/dashboard", s.handleDashboard)
		r.Post("/certifications", s.handleCertify)
		r.Post("/review-runs", s.handleReviewRun)
	})
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
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

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	queue, err := s.queries.ReviewQueue(r.Context(), chi.URLParam(r, "reviewerID"))
	if err != nil {
		s.internalError(w, r, "review queue", err)
		return
	}
	respond(w, r, http.StatusOK, queue)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.queries.Summary(r.Context())
	if err != nil {
		s.internalError(w, r, "summary", err)
		return
	}
	respond(w, r, http.StatusOK, sum)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := s.queries.Dashboard(r.Context())
	if err != nil {
		s.internalError(w, r, "dashboard", err)
		return
	}
	respond(w, r, http.StatusOK, d)
}

func (s *Server) handleCertify(w http.ResponseWriter, r *http.Request) {
	var req types.CertifyRequest

	if isProtobuf(r) {
		var msg structpb.Struct
		if err := readProto(r, &msg); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
		var err error
		if req, err = certifyRequestFromStruct(&msg); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_protobuf", err.Error())
			return
		}
	} else {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_json", "invalid JSON body")
			return
		}
	}

	updated, err := s.certifications.Certify(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidRequest):
			writeError(w, r, http.StatusBadRequest, "invalid_request", err.Error())
		case errors.Is(err, service.ErrNotFound):
			writeError(w, r, http.StatusNotFound, "not_found", "no entitlement with that access_id")
		case errors.Is(err, service.ErrInvalidRiskLevel):
			writeError(w, r, http.StatusUnprocessableEntity, "unschedulable", err.Error())
		default:
			s.internalError(w, r, "certify", err)
		}
		return
	}

	respond(w, r, http.StatusOK, types.CertifyResponse{
		OK:          true,
		Entitlement: updated,
		ServerTime:  time.Now().UTC().Format(time.RFC3339),
	})
}

type runResponse struct {
	RunID    string `json:"run_id"`
	Skipped  bool   `json:"skipped"`
	Due      int    `json:"due"`
	Notified int    `json:"notified"`
	Failed   int    `json:"failed"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) handleReviewRun(w http.ResponseWriter, r *http.Request) {
	// A client hanging up must not abort a run half way through dispatch.
	report := s.trigger.RunNow(context.WithoutCancel(r.Context()))

	resp := runResponse{
		RunID:    report.RunID,
		Skipped:  report.Skipped,
		Due:      report.Due,
		Notified: report.Dispatch.Delivered,
		Failed:   len(report.Dispatch.Failures),
	}
	if report.Err != nil {
		resp.Error = report.Err.Error()
	}

	switch {
	case report.Skipped:
		respond(w, r, http.StatusConflict, resp)
	case report.Err != nil:
		s.logger.Error("manual review run failed",
			zap.String("run_id", report.RunID),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(report.Err),
		)
		respond(w, r, http.StatusInternalServerError, resp)
	default:
		respond(w, r, http.StatusAccepted, resp)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" error",
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, r, http.StatusInternalServerError, "internal_error", "unexpected server error")
}
