package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/certiva/certiva-engine/internal/application/command"
	"github.com/certiva/certiva-engine/internal/application/query"
	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/interface/http/handlers"
	"github.com/certiva/certiva-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Healthy {
		writeJSON(w, r, http.StatusServiceUnavailable, status)
		return
	}
	writeJSON(w, r, http.StatusOK, status)
}

// handleReady handles the readiness probe endpoint.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	if !status.Ready {
		writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{
			"status": "not_ready",
			"reason": status.Message,
		})
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ready"})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE TYPES
// ══════════════════════════════════════════════════════════════════════════════

// SubmitAssessmentRequest is the body of an assessment submission.
// Score range is checked by the command so the error code stays invalid_score.
type SubmitAssessmentRequest struct {
	Score *int `json:"score" validate:"required"`
}

// GenerateCertificateRequest is the body of a certificate request.
type GenerateCertificateRequest struct {
	CourseID string `json:"course_id" validate:"required,max=128"`
}

// UpsertPolicyRequest is the body of a course policy update.
type UpsertPolicyRequest struct {
	PassThreshold *int `json:"pass_threshold" validate:"required"`
}

// EnrollmentResponse is the API view of an enrollment after a write.
type EnrollmentResponse struct {
	LearnerID    string     `json:"learner_id"`
	CourseID     string     `json:"course_id"`
	Progress     int        `json:"progress"`
	Stage        string     `json:"stage"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Attempts     int        `json:"attempts"`
	LastScore    *int       `json:"last_score,omitempty"`
	PassingScore *int       `json:"passing_score,omitempty"`
	EnrolledAt   time.Time  `json:"enrolled_at"`
}

// AssessmentResponse reports the effect of one submission.
type AssessmentResponse struct {
	Enrollment    EnrollmentResponse `json:"enrollment"`
	Passed        bool               `json:"passed"`
	Threshold     int                `json:"threshold"`
	JustCompleted bool               `json:"just_completed"`
}

// CertificateResponse is the API view of an issued certificate.
type CertificateResponse struct {
	certificate.Record
	Issued bool `json:"issued"`
}

func newEnrollmentResponse(e *enrollment.Enrollment) EnrollmentResponse {
	return EnrollmentResponse{
		LearnerID:    e.LearnerID,
		CourseID:     e.CourseID,
		Progress:     e.Progress,
		Stage:        string(e.Stage()),
		CompletedAt:  e.CompletedAt,
		Attempts:     e.Attempts,
		LastScore:    e.LastScore,
		PassingScore: e.PassingScore,
		EnrolledAt:   e.CreatedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleEnroll handles POST /api/v1/courses/{courseId}/enroll.
func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	learnerID := learnerFrom(r)

	res, err := s.deps.EnrollHandler.Handle(r.Context(), command.EnrollCommand{
		LearnerID:     learnerID,
		CourseID:      r.PathValue("courseId"),
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, newEnrollmentResponse(res.Enrollment))
}

// handleSubmitAssessment handles POST /api/v1/courses/{courseId}/assessment.
func (s *Server) handleSubmitAssessment(w http.ResponseWriter, r *http.Request) {
	var req SubmitAssessmentRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := s.deps.SubmitAssessmentHandler.Handle(r.Context(), command.SubmitAssessmentCommand{
		LearnerID:     learnerFrom(r),
		CourseID:      r.PathValue("courseId"),
		Score:         *req.Score,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, AssessmentResponse{
		Enrollment:    newEnrollmentResponse(res.Enrollment),
		Passed:        res.Outcome.Passed,
		Threshold:     res.Outcome.Threshold,
		JustCompleted: res.Outcome.JustCompleted,
	})
}

// handleGetEnrollment handles GET /api/v1/courses/{courseId}/enrollment.
func (s *Server) handleGetEnrollment(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.EnrollmentsHandler.Get(r.Context(), query.GetEnrollmentQuery{
		LearnerID: learnerFrom(r),
		CourseID:  r.PathValue("courseId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, dto)
}

// handleListEnrollments handles GET /api/v1/enrollments.
func (s *Server) handleListEnrollments(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.EnrollmentsHandler.List(r.Context(), query.ListEnrollmentsQuery{
		LearnerID: learnerFrom(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// handleGenerateCertificate handles POST /api/v1/certificates.
// 201 on first issue, 200 when the certificate already existed.
func (s *Server) handleGenerateCertificate(w http.ResponseWriter, r *http.Request) {
	var req GenerateCertificateRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	res, err := s.deps.GenerateCertificateHandler.Handle(r.Context(), command.GenerateCertificateCommand{
		LearnerID:     learnerFrom(r),
		CourseID:      req.CourseID,
		CorrelationID: getRequestID(r.Context()),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	status := http.StatusOK
	if res.Issued {
		status = http.StatusCreated
	}
	writeJSON(w, r, status, CertificateResponse{Record: res.Certificate.Record(), Issued: res.Issued})
}

// handleListCertificates handles GET /api/v1/certificates.
func (s *Server) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.ListCertificatesHandler.Handle(r.Context(), query.ListCertificatesQuery{
		LearnerID: learnerFrom(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, list, &ResponseMeta{TotalCount: len(list)})
}

// handleDownloadCertificate handles GET /api/v1/certificates/{verificationId}/download.
func (s *Server) handleDownloadCertificate(w http.ResponseWriter, r *http.Request) {
	doc, err := s.deps.RenderCertificateHandler.Handle(r.Context(), query.RenderCertificateQuery{
		VerificationID: r.PathValue("verificationId"),
		RequesterID:    learnerFrom(r),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Data)))
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.FileName+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc.Data)
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleVerify handles GET /api/v1/verify/{verificationId}.
// An unknown id is a successful answer with valid=false.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	dto, err := s.deps.VerifyCertificateHandler.Handle(r.Context(), query.VerifyCertificateQuery{
		VerificationID: r.PathValue("verificationId"),
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=60")
	writeJSON(w, r, http.StatusOK, dto)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleUpsertPolicy handles PUT /api/v1/admin/courses/{courseId}/policy.
func (s *Server) handleUpsertPolicy(w http.ResponseWriter, r *http.Request) {
	var req UpsertPolicyRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	p, err := s.deps.UpsertCoursePolicyHandler.Handle(r.Context(), command.UpsertCoursePolicyCommand{
		CourseID:      r.PathValue("courseId"),
		PassThreshold: *req.PassThreshold,
	})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

// ══════════════════════════════════════════════════════════════════════════════
// HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// learnerFrom returns the learner id set by the auth middleware.
func learnerFrom(r *http.Request) string {
	p, _ := handlers.PrincipalFromContext(r.Context())
	return p.LearnerID
}

// decodeAndValidate reads a JSON body into dst and runs struct validation.
// It writes a 400 and returns false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			msg = "request body too large"
		case errors.Is(err, io.EOF):
			msg = "request body is required"
		}
		writeJSONError(w, r, http.StatusBadRequest, shared.CodeInvalidInput, msg)
		return false
	}

	if err := s.validate.Struct(dst); err != nil {
		writeJSONError(w, r, http.StatusBadRequest, shared.CodeInvalidInput, validationMessage(err))
		return false
	}
	return true
}

// validationMessage flattens validator errors into one line.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+": failed "+fe.Tag())
	}
	return strings.Join(parts, "; ")
}

// writeDomainError maps err to a status and a stable error code.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	code := shared.ErrorCode(err)
	status := StatusForCode(code)

	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error("request failed",
			logger.String("path", r.URL.Path),
			logger.String("code", code),
			logger.Err(err),
		)
	}
	writeJSONError(w, r, status, code, shared.PublicMessage(err))
}

// StatusForCode maps a stable error code to an HTTP status.
func StatusForCode(code string) int {
	switch code {
	case shared.CodeInvalidInput, shared.CodeInvalidScore:
		return http.StatusBadRequest
	case shared.CodeUnauthorized:
		return http.StatusUnauthorized
	case shared.CodeForbidden:
		return http.StatusForbidden
	case shared.CodeNotEnrolled, shared.CodeNotFound:
		return http.StatusNotFound
	case shared.CodeNotCompleted:
		return http.StatusConflict
	case shared.CodeStoreUnavailable, shared.CodeIssuanceFailed, shared.CodeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
