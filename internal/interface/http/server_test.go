package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/certiva/certiva-engine/internal/application/command"
	"github.com/certiva/certiva-engine/internal/application/query"
	"github.com/certiva/certiva-engine/internal/domain/certificate"
	"github.com/certiva/certiva-engine/internal/domain/enrollment"
	"github.com/certiva/certiva-engine/internal/domain/shared"
	"github.com/certiva/certiva-engine/internal/infrastructure/coursepolicy"
	"github.com/certiva/certiva-engine/internal/infrastructure/persistence/memory"
	"github.com/certiva/certiva-engine/internal/interface/http/handlers"
	"github.com/certiva/certiva-engine/pkg/logger"
)

const testAdminKey = "let-me-in"

type fakeRenderer struct{}

func (fakeRenderer) Render(_ context.Context, rec certificate.Record) ([]byte, error) {
	return []byte("PNG:" + rec.VerificationID), nil
}
func (fakeRenderer) ContentType() string { return "image/png" }
func (fakeRenderer) Extension() string   { return ".png" }

// downEnrollments fails every read as an unreachable store would.
type downEnrollments struct {
	*memory.EnrollmentRepository
}

func (downEnrollments) Get(context.Context, string, string) (*enrollment.Enrollment, error) {
	return nil, shared.StoreUnavailable("Get", errors.New("connection refused"))
}

type testEnv struct {
	handler http.Handler
	auth    *handlers.JWTAuth
}

func newTestEnv(t *testing.T, enrollments enrollment.Repository) *testEnv {
	t.Helper()

	if enrollments == nil {
		enrollments = memory.NewEnrollmentRepository()
	}
	certs := memory.NewCertificateRepository()
	policies := memory.NewCoursePolicyRepository()
	provider := coursepolicy.NewProvider(70, coursepolicy.WithRepository(policies))
	log := logger.Nop()

	auth, err := handlers.NewJWTAuth(handlers.JWTAuthConfig{Secret: "test-secret", Issuer: "certiva-test"})
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminKey), bcrypt.MinCost)
	require.NoError(t, err)
	admin, err := handlers.NewAdminKeyAuth("", string(hash))
	require.NoError(t, err)

	registry := query.NewGetCertificateHandler(certs, nil, log)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0

	srv, err := NewServer(cfg, Dependencies{
		EnrollHandler:              command.NewEnrollHandler(enrollments, nil, log),
		SubmitAssessmentHandler:    command.NewSubmitAssessmentHandler(enrollments, provider, nil, log, command.DefaultSubmitAssessmentHandlerConfig()),
		GenerateCertificateHandler: command.NewGenerateCertificateHandler(enrollments, certs, nil, log, command.GenerateCertificateHandlerConfig{}),
		UpsertCoursePolicyHandler:  command.NewUpsertCoursePolicyHandler(policies, log),
		EnrollmentsHandler:         query.NewEnrollmentsHandler(enrollments, certs),
		ListCertificatesHandler:    query.NewListCertificatesHandler(certs),
		VerifyCertificateHandler:   query.NewVerifyCertificateHandler(registry, log),
		RenderCertificateHandler:   query.NewRenderCertificateHandler(registry, fakeRenderer{}, log),
		Auth:                       auth,
		AdminAuth:                  admin,
		Logger:                     log,
	})
	require.NoError(t, err)

	return &testEnv{handler: srv.Handler(), auth: auth}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (e *testEnv) do(t *testing.T, method, path, learnerID string, body interface{}) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if learnerID != "" {
		token, err := e.auth.Sign(learnerID, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var resp apiResponse
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func errorCode(resp apiResponse) string {
	if resp.Error == nil {
		return ""
	}
	return resp.Error.Code
}

func TestServer_LearnerLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/courses/go-101/enroll", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, _ = env.do(t, http.MethodPost, "/api/v1/courses/go-101/enroll", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, "repeat enroll is idempotent")

	rec, resp := env.do(t, http.MethodPost, "/api/v1/courses/go-101/assessment", "alice", map[string]int{"score": 85})
	require.Equal(t, http.StatusOK, rec.Code)
	var outcome AssessmentResponse
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	assert.True(t, outcome.Passed)
	assert.True(t, outcome.JustCompleted)
	assert.Equal(t, 100, outcome.Enrollment.Progress)

	rec, resp = env.do(t, http.MethodPost, "/api/v1/certificates", "alice", map[string]string{"course_id": "go-101"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var issued CertificateResponse
	require.NoError(t, json.Unmarshal(resp.Data, &issued))
	assert.True(t, issued.Issued)
	assert.Equal(t, 85, issued.Score)
	assert.Len(t, issued.VerificationID, certificate.VerificationIDLength)

	rec, resp = env.do(t, http.MethodPost, "/api/v1/certificates", "alice", map[string]string{"course_id": "go-101"})
	require.Equal(t, http.StatusOK, rec.Code)
	var again CertificateResponse
	require.NoError(t, json.Unmarshal(resp.Data, &again))
	assert.False(t, again.Issued)
	assert.Equal(t, issued.VerificationID, again.VerificationID)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/courses/go-101/enrollment", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dto query.EnrollmentDTO
	require.NoError(t, json.Unmarshal(resp.Data, &dto))
	assert.Equal(t, query.StageCertified, dto.Stage)
	assert.Equal(t, issued.VerificationID, dto.VerificationID)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/certificates", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []certificate.Record
	require.NoError(t, json.Unmarshal(resp.Data, &list))
	assert.Len(t, list, 1)

	rec, resp = env.do(t, http.MethodGet, "/api/v1/verify/"+issued.VerificationID, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var verification query.VerificationDTO
	require.NoError(t, json.Unmarshal(resp.Data, &verification))
	assert.True(t, verification.Valid)
	require.NotNil(t, verification.Certificate)
	assert.Equal(t, "alice", verification.Certificate.LearnerID)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/certificates/"+issued.VerificationID+"/download", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "certiva-certificate-"+issued.VerificationID+".png")
	assert.Equal(t, "PNG:"+issued.VerificationID, rec.Body.String())

	rec, resp = env.do(t, http.MethodGet, "/api/v1/certificates/"+issued.VerificationID+"/download", "mallory", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, shared.CodeForbidden, errorCode(resp))
}

func TestServer_ErrorMapping(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/courses/go-101/enroll", "bob", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"score above range", http.MethodPost, "/api/v1/courses/go-101/assessment", map[string]int{"score": 101}, http.StatusBadRequest, shared.CodeInvalidScore},
		{"negative score", http.MethodPost, "/api/v1/courses/go-101/assessment", map[string]int{"score": -1}, http.StatusBadRequest, shared.CodeInvalidScore},
		{"missing score", http.MethodPost, "/api/v1/courses/go-101/assessment", map[string]string{}, http.StatusBadRequest, shared.CodeInvalidInput},
		{"not enrolled", http.MethodPost, "/api/v1/courses/rust-201/assessment", map[string]int{"score": 90}, http.StatusNotFound, shared.CodeNotEnrolled},
		{"not completed", http.MethodPost, "/api/v1/certificates", map[string]string{"course_id": "go-101"}, http.StatusConflict, shared.CodeNotCompleted},
		{"never enrolled certificate", http.MethodPost, "/api/v1/certificates", map[string]string{"course_id": "rust-201"}, http.StatusConflict, shared.CodeNotCompleted},
		{"missing course id", http.MethodPost, "/api/v1/certificates", map[string]string{}, http.StatusBadRequest, shared.CodeInvalidInput},
		{"enrollment not found", http.MethodGet, "/api/v1/courses/rust-201/enrollment", nil, http.StatusNotFound, shared.CodeNotFound},
		{"unknown certificate download", http.MethodGet, "/api/v1/certificates/AAAAAAAAAAAAAAAAAAAAAA/download", nil, http.StatusNotFound, shared.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := env.do(t, tt.method, tt.path, "bob", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, errorCode(resp))
			assert.False(t, resp.Success)
		})
	}
}

func TestServer_FailingScoreKeepsPartialCredit(t *testing.T) {
	env := newTestEnv(t, nil)

	env.do(t, http.MethodPost, "/api/v1/courses/go-101/enroll", "carol", nil)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/courses/go-101/assessment", "carol", map[string]int{"score": 69})
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome AssessmentResponse
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	assert.False(t, outcome.Passed)
	assert.Equal(t, 70, outcome.Threshold)
	assert.Equal(t, enrollment.PartialCreditFloor, outcome.Enrollment.Progress)
	assert.Equal(t, string(enrollment.StageInProgress), outcome.Enrollment.Stage)
}

func TestServer_VerifyUnknownIsNotAnError(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, id := range []string{"AAAAAAAAAAAAAAAAAAAAAA", "not-a-token"} {
		rec, resp := env.do(t, http.MethodGet, "/api/v1/verify/"+id, "", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var verification query.VerificationDTO
		require.NoError(t, json.Unmarshal(resp.Data, &verification))
		assert.False(t, verification.Valid)
		assert.Nil(t, verification.Certificate)
	}
}

func TestServer_Authentication(t *testing.T) {
	env := newTestEnv(t, nil)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/enrollments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, shared.CodeUnauthorized, errorCode(resp))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/enrollments", nil)
	req.Header.Set("Authorization", "Bearer not.a.jwt")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = env.do(t, http.MethodGet, "/api/v1/enrollments", "dave", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_StoreUnavailable(t *testing.T) {
	env := newTestEnv(t, downEnrollments{memory.NewEnrollmentRepository()})

	rec, resp := env.do(t, http.MethodPost, "/api/v1/courses/go-101/assessment", "erin", map[string]int{"score": 90})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, shared.CodeStoreUnavailable, errorCode(resp))
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestServer_AdminPolicy(t *testing.T) {
	env := newTestEnv(t, nil)
	path := "/api/v1/admin/courses/go-101/policy"

	put := func(key string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
		req := httptest.NewRequest(http.MethodPut, path, &buf)
		if key != "" {
			req.Header.Set("X-Admin-Key", key)
		}
		rec := httptest.NewRecorder()
		env.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, put("", map[string]int{"pass_threshold": 90}).Code)
	assert.Equal(t, http.StatusUnauthorized, put("wrong", map[string]int{"pass_threshold": 90}).Code)
	assert.Equal(t, http.StatusBadRequest, put(testAdminKey, map[string]int{"pass_threshold": 101}).Code)
	require.Equal(t, http.StatusOK, put(testAdminKey, map[string]int{"pass_threshold": 90}).Code)

	env.do(t, http.MethodPost, "/api/v1/courses/go-101/enroll", "frank", nil)
	rec, resp := env.do(t, http.MethodPost, "/api/v1/courses/go-101/assessment", "frank", map[string]int{"score": 85})
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome AssessmentResponse
	require.NoError(t, json.Unmarshal(resp.Data, &outcome))
	assert.Equal(t, 90, outcome.Threshold)
	assert.False(t, outcome.Passed)
}

func TestServer_Probes(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/health", "/ready", "/live"} {
		rec, resp := env.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.True(t, resp.Success, path)
	}
}

func TestServer_RequestIDEchoed(t *testing.T) {
	env := newTestEnv(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestStatusForCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusForCode(shared.CodeInvalidInput))
	assert.Equal(t, http.StatusNotFound, StatusForCode(shared.CodeNotEnrolled))
	assert.Equal(t, http.StatusConflict, StatusForCode(shared.CodeNotCompleted))
	assert.Equal(t, http.StatusServiceUnavailable, StatusForCode(shared.CodeIssuanceFailed))
	assert.Equal(t, http.StatusServiceUnavailable, StatusForCode(shared.CodeUnavailable))
	assert.Equal(t, http.StatusInternalServerError, StatusForCode("something_else"))
}

func TestNewServer_RequiresAuth(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Dependencies{})
	assert.Error(t, err)
}
