package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/cache"
	"classtrack/internal/config"
	"classtrack/internal/queue"
	"classtrack/internal/roster"
	"classtrack/internal/storage/memory"
)

const testOwnerEmail = "owner@classtrack.local"

func newTestRouter(t *testing.T) (*gin.Engine, *app) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.App{
		JWTIssuer:     "classtrack",
		JWTSigningKey: "test-signing-key",
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
		OwnerEmail:    testOwnerEmail,
	}
	store := memory.NewStore()
	academics := academic.NewService(store)
	accounts := roster.NewService(store, academics, cfg.OwnerEmail)
	a := &app{
		cfg:      cfg,
		logger:   zap.NewNop(),
		academic: academics,
		roster:   accounts,
		ledger:   attendance.NewService(store, academics, accounts),
		// port 1 is never listening, so every cache call degrades to a miss
		coverage: cache.NewCoverage("127.0.0.1:1", time.Minute),
		queue:    queue.NewInMemory(64),
	}
	r := gin.New()
	registerRoutes(r, a)
	return r, a
}

func do(t *testing.T, r *gin.Engine, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out))
}

// registerAndLogin creates an account and returns its access token.
func registerAndLogin(t *testing.T, r *gin.Engine, email string) string {
	t.Helper()
	w := do(t, r, http.MethodPost, "/v1/register", "", gin.H{"email": email, "password": "secret-pass"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/v1/login", "", gin.H{"email": email, "password": "secret-pass"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	decode(t, w, &resp)
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestAttendanceFlow(t *testing.T) {
	r, _ := newTestRouter(t)

	owner := registerAndLogin(t, r, testOwnerEmail)
	student := registerAndLogin(t, r, "ada@example.com")

	// owner sets up the semester
	w := do(t, r, http.MethodPost, "/v1/semesters", owner, gin.H{"name": "Fall 2026"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/v1/subjects", owner, gin.H{"name": "Math"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var subject academic.Subject
	decode(t, w, &subject)

	var sessions []academic.ClassSession
	for _, hours := range []int{2, 3} {
		w = do(t, r, http.MethodPost, "/v1/sessions", owner, gin.H{
			"subject_id": subject.ID, "date": "2026-09-01", "hours": hours,
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var sess academic.ClassSession
		decode(t, w, &sess)
		sessions = append(sessions, sess)
	}

	// marking before completing the profile is rejected
	w = do(t, r, http.MethodPost, "/v1/attendance", student, gin.H{"session_ids": []string{sessions[0].ID}})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, r, http.MethodPost, "/v1/profile", student, gin.H{"name": "Ada", "roll": "42"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodPost, "/v1/attendance", student, gin.H{"session_ids": []string{sessions[0].ID}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res attendance.BatchResult
	decode(t, w, &res)
	assert.Equal(t, 1, res.Added)

	// resubmitting the same session reports a duplicate, not an error
	w = do(t, r, http.MethodPost, "/v1/attendance", student, gin.H{"session_ids": []string{sessions[0].ID}})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &res)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 1, res.AlreadyMarked)

	w = do(t, r, http.MethodGet, "/v1/coverage", student, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var cov attendance.Coverage
	decode(t, w, &cov)
	assert.Equal(t, 5, cov.TotalHours)
	assert.Equal(t, 2, cov.AttendedHours)
	assert.InDelta(t, 40.0, cov.Percent, 0.001)

	// deleting a session removes it from the student's report
	w = do(t, r, http.MethodDelete, "/v1/sessions/"+sessions[0].ID, owner, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodGet, "/v1/coverage", student, nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &cov)
	assert.Equal(t, 3, cov.TotalHours)
	assert.Equal(t, 0, cov.AttendedHours)
}

func TestRoleGating(t *testing.T) {
	r, _ := newTestRouter(t)

	owner := registerAndLogin(t, r, testOwnerEmail)
	student := registerAndLogin(t, r, "ada@example.com")

	// students cannot run owner or staff operations
	w := do(t, r, http.MethodPost, "/v1/semesters", student, gin.H{"name": "Fall"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, r, http.MethodPost, "/v1/subjects", student, gin.H{"name": "Math"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, r, http.MethodGet, "/v1/users", student, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// owners cannot mark attendance
	w = do(t, r, http.MethodPost, "/v1/attendance", owner, gin.H{"session_ids": []string{"x"}})
	assert.Equal(t, http.StatusForbidden, w.Code)

	// no token at all
	w = do(t, r, http.MethodGet, "/v1/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = do(t, r, http.MethodGet, "/v1/semesters", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRoleManagement(t *testing.T) {
	r, a := newTestRouter(t)

	owner := registerAndLogin(t, r, testOwnerEmail)
	registerAndLogin(t, r, "ada@example.com")

	users, err := a.roster.ListUsers(context.Background())
	require.NoError(t, err)
	var adaID, ownerID string
	for _, u := range users {
		switch u.Email {
		case testOwnerEmail:
			ownerID = u.ID
		case "ada@example.com":
			adaID = u.ID
		}
	}
	require.NotEmpty(t, adaID)
	require.NotEmpty(t, ownerID)

	w := do(t, r, http.MethodPut, fmt.Sprintf("/v1/users/%s/role", adaID), owner, gin.H{"role": roster.RoleEditor})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPut, fmt.Sprintf("/v1/users/%s/role", ownerID), owner, gin.H{"role": roster.RoleStudent})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(t, r, http.MethodDelete, "/v1/users/"+ownerID, owner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code, "self deletion is rejected")

	w = do(t, r, http.MethodDelete, "/v1/users/"+adaID, owner, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, r, http.MethodPut, fmt.Sprintf("/v1/users/%s/role", adaID), owner, gin.H{"role": roster.RoleStudent})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteUserRemovesCoverage(t *testing.T) {
	r, a := newTestRouter(t)

	owner := registerAndLogin(t, r, testOwnerEmail)
	student := registerAndLogin(t, r, "ada@example.com")

	w := do(t, r, http.MethodPost, "/v1/semesters", owner, gin.H{"name": "Fall"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = do(t, r, http.MethodPost, "/v1/subjects", owner, gin.H{"name": "Math"})
	require.Equal(t, http.StatusCreated, w.Code)
	var subject academic.Subject
	decode(t, w, &subject)
	w = do(t, r, http.MethodPost, "/v1/sessions", owner, gin.H{
		"subject_id": subject.ID, "date": "2026-09-01", "hours": 2,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	var sess academic.ClassSession
	decode(t, w, &sess)

	w = do(t, r, http.MethodPost, "/v1/profile", student, gin.H{"name": "Ada", "roll": "42"})
	require.Equal(t, http.StatusOK, w.Code)
	w = do(t, r, http.MethodPost, "/v1/attendance", student, gin.H{"session_ids": []string{sess.ID}})
	require.Equal(t, http.StatusOK, w.Code)

	users, err := a.roster.ListUsers(context.Background())
	require.NoError(t, err)
	var adaID string
	for _, u := range users {
		if u.Email == "ada@example.com" {
			adaID = u.ID
		}
	}
	require.NotEmpty(t, adaID)
	profile, err := a.roster.StudentForUser(context.Background(), adaID)
	require.NoError(t, err)

	w = do(t, r, http.MethodGet, "/v1/students/"+profile.ID+"/coverage", owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, r, http.MethodDelete, "/v1/users/"+adaID, owner, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	// no report may survive the account, cached or computed
	w = do(t, r, http.MethodGet, "/v1/students/"+profile.ID+"/coverage", owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	r, _ := newTestRouter(t)
	registerAndLogin(t, r, "ada@example.com")

	w := do(t, r, http.MethodPost, "/v1/login", "", gin.H{"email": "ada@example.com", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
