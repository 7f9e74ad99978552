package main

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"classtrack/internal/academic"
	"classtrack/internal/attendance"
	"classtrack/internal/auth"
	"classtrack/internal/cache"
	"classtrack/internal/config"
	"classtrack/internal/metrics"
	"classtrack/internal/queue"
	"classtrack/internal/roster"
)

type app struct {
	cfg      config.App
	logger   *zap.Logger
	academic *academic.Service
	roster   *roster.Service
	ledger   *attendance.Service
	coverage *cache.Coverage
	queue    queue.Queue
}

const dateLayout = "2006-01-02"

func registerRoutes(r *gin.Engine, a *app) {
	v1 := r.Group("/v1")

	v1.POST("/register", a.register)
	v1.POST("/login", a.login)

	authed := v1.Group("", auth.Bearer(a.cfg.JWTSigningKey, a.cfg.JWTIssuer))

	authed.GET("/me", a.me)
	authed.POST("/profile", auth.RequireRole(roster.RoleStudent), a.completeProfile)

	authed.GET("/semesters", a.listSemesters)
	authed.GET("/semesters/active", a.activeSemester)
	authed.POST("/semesters", auth.RequireRole(roster.RoleOwner), a.activateSemester)

	authed.GET("/subjects", a.listSubjects)
	authed.POST("/subjects", auth.RequireRole(roster.RoleOwner, roster.RoleEditor), a.addSubject)

	authed.GET("/sessions", a.listSessions)
	staff := auth.RequireRole(roster.RoleOwner, roster.RoleEditor)
	authed.POST("/sessions", staff, a.recordSession)
	authed.PUT("/sessions/:id", staff, a.editSession)
	authed.DELETE("/sessions/:id", staff, a.deleteSession)

	student := auth.RequireRole(roster.RoleStudent)
	authed.POST("/attendance", student, a.markAttendance)
	authed.PUT("/attendance/presence", student, a.setPresence)
	authed.DELETE("/attendance/:id", student, a.deleteMark)
	authed.GET("/attendance", student, a.listMarks)
	authed.GET("/coverage", student, a.myCoverage)
	authed.GET("/students/:id/coverage", staff, a.studentCoverage)

	owner := auth.RequireRole(roster.RoleOwner)
	authed.GET("/users", owner, a.listUsers)
	authed.PUT("/users/:id/role", owner, a.setRole)
	authed.DELETE("/users/:id", owner, a.deleteUser)
}

// errStatus maps domain errors onto HTTP statuses. Storage failures fall
// through to 500.
func errStatus(err error) int {
	switch {
	case errors.Is(err, academic.ErrNotFound),
		errors.Is(err, attendance.ErrNotFound),
		errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, academic.ErrNoActiveSemester),
		errors.Is(err, academic.ErrInvalidSubject),
		errors.Is(err, academic.ErrInvalidHours),
		errors.Is(err, roster.ErrInvalidRole):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrEmailExists):
		return http.StatusConflict
	case errors.Is(err, roster.ErrProtectedRole), errors.Is(err, roster.ErrSelfDeletion):
		return http.StatusForbidden
	case errors.Is(err, roster.ErrBadCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func (a *app) fail(c *gin.Context, err error) {
	status := errStatus(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("internal error", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// --- accounts ---

func (a *app) register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,min=8"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := a.roster.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (a *app) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	u, err := a.roster.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		a.fail(c, err)
		return
	}
	tokens, err := auth.Issue(u.ID, u.Role, a.cfg.JWTIssuer, a.cfg.JWTSigningKey, a.cfg.AccessTTL, a.cfg.RefreshTTL)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  tokens.AccessToken,
		"refresh_token": tokens.RefreshToken,
		"expires_at":    tokens.AccessExp.Unix(),
		"role":          u.Role,
	})
}

func (a *app) me(c *gin.Context) {
	claims := auth.FromContext(c)
	u, err := a.roster.UserByID(c.Request.Context(), claims.UserID())
	if err != nil {
		a.fail(c, err)
		return
	}
	resp := gin.H{"user": u}
	if st, err := a.roster.StudentForUser(c.Request.Context(), u.ID); err == nil {
		resp["student"] = st
	}
	c.JSON(http.StatusOK, resp)
}

func (a *app) completeProfile(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
		Roll string `json:"roll" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, err := a.roster.CompleteProfile(c.Request.Context(), auth.FromContext(c).UserID(), req.Name, req.Roll)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// --- semesters & subjects ---

func (a *app) listSemesters(c *gin.Context) {
	sems, err := a.academic.ListSemesters(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"semesters": sems})
}

func (a *app) activeSemester(c *gin.Context) {
	sem, err := a.academic.ActiveSemester(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sem)
}

func (a *app) activateSemester(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sem, err := a.academic.ActivateSemester(c.Request.Context(), req.Name)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sem)
}

func (a *app) listSubjects(c *gin.Context) {
	ctx := c.Request.Context()
	semesterID := c.Query("semester_id")
	if semesterID == "" {
		sem, err := a.academic.ActiveSemester(ctx)
		if err != nil {
			a.fail(c, err)
			return
		}
		semesterID = sem.ID
	}
	subs, err := a.academic.ListSubjects(ctx, semesterID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subjects": subs})
}

func (a *app) addSubject(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx := c.Request.Context()
	sem, err := a.academic.ActiveSemester(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}
	sub, err := a.academic.AddSubject(ctx, sem.ID, req.Name)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

// --- class sessions ---

func (a *app) listSessions(c *gin.Context) {
	ctx := c.Request.Context()
	f := academic.SessionFilter{
		SemesterID: c.Query("semester_id"),
		Ascending:  c.Query("order") == "asc",
	}
	if f.SemesterID == "" {
		sem, err := a.academic.ActiveSemester(ctx)
		if err != nil {
			a.fail(c, err)
			return
		}
		f.SemesterID = sem.ID
	}
	if d := c.Query("date"); d != "" {
		date, err := time.Parse(dateLayout, d)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
			return
		}
		f.Date = date
	}
	sessions, err := a.academic.ListSessions(ctx, f)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (a *app) recordSession(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subject_id" binding:"required"`
		Date      string `json:"date" binding:"required"`
		Hours     int    `json:"hours" binding:"required"`
		Note      string `json:"note"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	ctx := c.Request.Context()
	sem, err := a.academic.ActiveSemester(ctx)
	if err != nil {
		a.fail(c, err)
		return
	}
	sess, err := a.academic.RecordSession(ctx, sem.ID, req.SubjectID, date, req.Hours, req.Note)
	if err != nil {
		a.fail(c, err)
		return
	}
	metrics.SessionsRecorded.Inc()
	c.JSON(http.StatusCreated, sess)
}

func (a *app) editSession(c *gin.Context) {
	var req struct {
		SubjectID string `json:"subject_id" binding:"required"`
		Date      string `json:"date" binding:"required"`
		Hours     int    `json:"hours" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}
	if err := a.academic.EditSession(c.Request.Context(), c.Param("id"), date, req.SubjectID, req.Hours); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) deleteSession(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := a.academic.DeleteSession(ctx, id); err != nil {
		a.fail(c, err)
		return
	}
	metrics.SessionsDeleted.Inc()
	a.coverage.InvalidateAll(ctx)
	if err := a.queue.Publish(ctx, queue.Event{Type: queue.TypeSessionDeleted, SessionID: id}); err != nil {
		a.logger.Warn("queue publish failed", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

// --- attendance ---

func (a *app) callerStudent(c *gin.Context) (roster.Student, bool) {
	st, err := a.roster.StudentForUser(c.Request.Context(), auth.FromContext(c).UserID())
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			c.JSON(http.StatusConflict, gin.H{"error": "complete your profile first"})
		} else {
			a.fail(c, err)
		}
		return roster.Student{}, false
	}
	return st, true
}

func (a *app) markAttendance(c *gin.Context) {
	var req struct {
		SessionIDs []string `json:"session_ids" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, ok := a.callerStudent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	res, err := a.ledger.MarkSessions(ctx, st.ID, req.SessionIDs)
	if err != nil {
		a.fail(c, err)
		return
	}
	metrics.MarksRecorded.WithLabelValues(string(attendance.Added)).Add(float64(res.Added))
	metrics.MarksRecorded.WithLabelValues(string(attendance.AlreadyMarked)).Add(float64(res.AlreadyMarked))
	a.coverage.Invalidate(ctx, st.ID)
	if err := a.queue.Publish(ctx, queue.Event{Type: queue.TypeMark, StudentID: st.ID}); err != nil {
		a.logger.Warn("queue publish failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, res)
}

func (a *app) setPresence(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
		Present   *bool  `json:"present" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	st, ok := a.callerStudent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	m, err := a.ledger.SetPresence(ctx, st.ID, req.SessionID, *req.Present)
	if err != nil {
		a.fail(c, err)
		return
	}
	a.coverage.Invalidate(ctx, st.ID)
	if err := a.queue.Publish(ctx, queue.Event{Type: queue.TypeMark, StudentID: st.ID}); err != nil {
		a.logger.Warn("queue publish failed", zap.Error(err))
	}
	c.JSON(http.StatusOK, m)
}

func (a *app) deleteMark(c *gin.Context) {
	st, ok := a.callerStudent(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	id := c.Param("id")
	m, err := a.ledger.MarkByID(ctx, id)
	if err != nil {
		a.fail(c, err)
		return
	}
	if m.StudentID != st.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your mark"})
		return
	}
	if err := a.ledger.DeleteMark(ctx, id); err != nil {
		a.fail(c, err)
		return
	}
	a.coverage.Invalidate(ctx, st.ID)
	if err := a.queue.Publish(ctx, queue.Event{Type: queue.TypeUnmark, StudentID: st.ID}); err != nil {
		a.logger.Warn("queue publish failed", zap.Error(err))
	}
	c.Status(http.StatusNoContent)
}

func (a *app) listMarks(c *gin.Context) {
	st, ok := a.callerStudent(c)
	if !ok {
		return
	}
	marks, err := a.ledger.ListMarks(c.Request.Context(), st.ID, c.Query("semester_id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marks": marks})
}

func (a *app) myCoverage(c *gin.Context) {
	st, ok := a.callerStudent(c)
	if !ok {
		return
	}
	a.serveCoverage(c, st.ID)
}

func (a *app) studentCoverage(c *gin.Context) {
	a.serveCoverage(c, c.Param("id"))
}

func (a *app) serveCoverage(c *gin.Context, studentID string) {
	ctx := c.Request.Context()
	if cov, ok := a.coverage.Get(ctx, studentID); ok {
		metrics.CoverageComputed.WithLabelValues("hit").Inc()
		c.JSON(http.StatusOK, cov)
		return
	}
	cov, err := a.ledger.ComputeCoverage(ctx, studentID)
	if err != nil {
		a.fail(c, err)
		return
	}
	metrics.CoverageComputed.WithLabelValues("miss").Inc()
	a.coverage.Set(ctx, studentID, cov)
	c.JSON(http.StatusOK, cov)
}

// --- user management ---

func (a *app) listUsers(c *gin.Context) {
	users, err := a.roster.ListUsers(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (a *app) setRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := a.roster.SetRole(c.Request.Context(), c.Param("id"), req.Role); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *app) deleteUser(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	// resolve the profile before the cascade removes it
	st, stErr := a.roster.StudentForUser(ctx, id)
	if err := a.roster.DeleteUser(ctx, auth.FromContext(c).UserID(), id); err != nil {
		a.fail(c, err)
		return
	}
	if stErr == nil {
		a.coverage.Invalidate(ctx, st.ID)
	}
	c.Status(http.StatusNoContent)
}
