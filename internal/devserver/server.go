// Package devserver is an in-memory backend speaking the client's REST
// contract: token auth with rotating refresh tokens, immediate runs, direct
// or ticket based judging, drafts and solved progress.
package devserver

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"ojclient/internal/judge"
	"ojclient/pkg/errors"
	"ojclient/pkg/utils/contextkey"
	"ojclient/pkg/utils/logger"
	"ojclient/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	traceIDHeader  = "X-Trace-Id"
	userContextKey = "username"
)

// DraftInput is the body of POST /drafts/save_draft.
type DraftInput struct {
	ProblemID    int64  `json:"problem_id"`
	Code         string `json:"code"`
	Language     string `json:"language"`
	SaveType     string `json:"save_type"`
	SubmissionID *int64 `json:"submission_id,omitempty"`
}

// DraftRecord is a stored draft.
type DraftRecord struct {
	ID           int64     `json:"id"`
	ProblemID    int64     `json:"problem"`
	Code         string    `json:"code"`
	Language     string    `json:"language"`
	SaveType     string    `json:"save_type"`
	SubmissionID *int64    `json:"submission_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ProblemProgress is the mark-solved reply.
type ProblemProgress struct {
	Problem  int64      `json:"problem"`
	Solved   bool       `json:"solved"`
	SolvedAt *time.Time `json:"solved_at"`
}

type submissionInput struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	ProblemID *int64 `json:"problem_id"`
}

var saveTypes = map[string]bool{"auto_save": true, "manual_save": true, "submission": true}

// Server is the dev backend.
type Server struct {
	cfg      Config
	auth     *authManager
	state    *state
	requests *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// New builds a server. Metrics are registered on reg; nil uses a private
// registry.
func New(cfg Config, reg *prometheus.Registry) *Server {
	applyDefaults(&cfg)
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "devserver",
		Name:      "http_requests_total",
		Help:      "Requests by route and status",
	}, []string{"route", "status"})
	reg.MustRegister(requests)

	return &Server{
		cfg:      cfg,
		auth:     newAuthManager(cfg.JWT, cfg.Users),
		state:    newState(cfg.Judge.Steps),
		requests: requests,
		gatherer: reg,
	}
}

// Stats reports side effect counters.
func (s *Server) Stats() Stats {
	return s.state.snapshot()
}

// ExpireAccessTokens makes every issued access token answer 401.
func (s *Server) ExpireAccessTokens() {
	s.auth.ExpireAccessTokens()
}

// Drafts returns the saved drafts of user for problemID, oldest first.
func (s *Server) Drafts(user string, problemID int64) []DraftRecord {
	return s.state.draftHistory(user, problemID)
}

// Handler returns the routed gin engine.
func (s *Server) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(traceMiddleware())
	router.Use(s.requestLogger())

	router.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	router.GET("/languages", s.languages)

	auth := router.Group("/auth")
	auth.POST("/login", s.login)
	auth.POST("/refresh", s.refresh)

	api := router.Group("/", s.authMiddleware())
	api.POST("/submissions", s.submit)
	api.GET("/submissions/:token", s.pollTicket)
	api.POST("/problems/:id/mark_as_solved", s.markSolved)
	api.POST("/drafts/save_draft", s.saveDraft)
	api.GET("/drafts/latest", s.latestDraft)
	return router
}

// HTTPServer wraps Handler with the configured timeouts.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}
}

func traceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := strings.TrimSpace(c.GetHeader(traceIDHeader))
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set("trace_id", traceID)
		c.Request = c.Request.WithContext(contextkey.WithTraceID(c.Request.Context(), traceID))
		c.Writer.Header().Set(traceIDHeader, traceID)
		c.Next()
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()
		s.requests.WithLabelValues(path, strconv.Itoa(status)).Inc()
		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractBearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			response.AbortWithError(c, errors.UnauthorizedError("Authentication credentials were not provided."))
			return
		}
		user, err := s.auth.Authenticate(raw)
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Set(userContextKey, user)
		c.Next()
	}
}

func extractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func currentUser(c *gin.Context) string {
	return c.GetString(userContextKey)
}

func (s *Server) login(c *gin.Context) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "JSON parse error")
		return
	}
	fields := map[string][]string{}
	if in.Username == "" {
		fields["username"] = []string{"This field is required."}
	}
	if in.Password == "" {
		fields["password"] = []string{"This field is required."}
	}
	if len(fields) > 0 {
		response.FieldErrors(c, fields)
		return
	}
	pair, err := s.auth.Login(in.Username, in.Password)
	if err != nil {
		response.Error(c, err)
		return
	}
	s.state.count(func(st *Stats) { st.Logins++ })
	response.OK(c, pair)
}

func (s *Server) refresh(c *gin.Context) {
	var in struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Refresh == "" {
		response.FieldErrors(c, map[string][]string{"refresh": {"This field is required."}})
		return
	}
	pair, err := s.auth.Refresh(in.Refresh)
	if err != nil {
		response.Error(c, err)
		return
	}
	s.state.count(func(st *Stats) { st.Refreshes++ })
	response.OK(c, pair)
}

func (s *Server) languages(c *gin.Context) {
	type language struct {
		ID      int64  `json:"id"`
		Name    string `json:"name"`
		JudgeID int    `json:"judge_id"`
	}
	langs := judge.Languages()
	out := make([]language, 0, len(langs))
	for i, l := range langs {
		out = append(out, language{ID: int64(i + 1), Name: l.Name, JudgeID: l.JudgeID})
	}
	response.OK(c, out)
}

func (s *Server) submit(c *gin.Context) {
	var in submissionInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "JSON parse error")
		return
	}
	fields := map[string][]string{}
	if strings.TrimSpace(in.Code) == "" {
		fields["code"] = []string{"This field may not be blank."}
	}
	if in.Language == "" {
		fields["language"] = []string{"This field is required."}
	} else if judge.CanonicalLanguage(in.Language) == "" {
		fields["language"] = []string{"\"" + in.Language + "\" is not a valid choice."}
	}
	if in.ProblemID != nil && *in.ProblemID <= 0 {
		fields["problem_id"] = []string{"Invalid pk \"" + strconv.FormatInt(*in.ProblemID, 10) + "\" - object does not exist."}
	}
	if len(fields) > 0 {
		response.FieldErrors(c, fields)
		return
	}
	s.state.count(func(st *Stats) { st.Submissions++ })

	v := judgeCode(in.Code)
	if in.ProblemID == nil {
		// Scratch runs execute without grading.
		response.OK(c, gin.H{"stdout": runOutput(in, v), "stderr": nullable(v.stderr)})
		return
	}

	user := currentUser(c)
	if s.cfg.Judge.Mode == ModeTicket {
		response.Created(c, gin.H{"token": s.state.openTicket(user, v)})
		return
	}
	id := s.state.recordSubmission(user)
	response.Created(c, gin.H{
		"id":             id,
		"status":         v.status.Verdict(),
		"execution_time": s.cfg.Judge.TimeSeconds * 1000,
		"memory_used":    s.cfg.Judge.MemoryKB,
		"output":         v.stdout,
		"error":          nullable(v.stderr),
	})
}

func runOutput(in submissionInput, v verdict) string {
	if v.status != judge.StatusAccepted {
		return v.stdout
	}
	return "ran " + strconv.Itoa(len(in.Code)) + " bytes of " + judge.CanonicalLanguage(in.Language) + "\n"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Server) pollTicket(c *gin.Context) {
	status, v, ok := s.state.poll(currentUser(c), c.Param("token"))
	if !ok {
		response.Error(c, errors.NotFoundError("submission ticket"))
		return
	}
	s.state.count(func(st *Stats) { st.Polls++ })

	body := gin.H{
		"token":          c.Param("token"),
		"status":         gin.H{"id": int(status), "description": describe(status)},
		"stdout":         nil,
		"stderr":         nil,
		"compile_output": nil,
		"time":           nil,
		"memory":         nil,
	}
	if status.Terminal() {
		body["stdout"] = nullable(v.stdout)
		if status == judge.StatusCompilationError {
			body["compile_output"] = nullable(v.stderr)
		} else {
			body["stderr"] = nullable(v.stderr)
		}
		body["time"] = formatSeconds(s.cfg.Judge.TimeSeconds)
		body["memory"] = s.cfg.Judge.MemoryKB
	}
	response.OK(c, body)
}

func describe(status judge.StatusID) string {
	label := status.Label()
	if label == "" {
		return label
	}
	return strings.ToUpper(label[:1]) + label[1:]
}

func (s *Server) markSolved(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.NotFound(c, "Not found.")
		return
	}
	var in struct {
		Solved *bool `json:"solved"`
	}
	if err := c.ShouldBindJSON(&in); err != nil || in.Solved == nil {
		response.FieldErrors(c, map[string][]string{"solved": {"This field is required."}})
		return
	}
	s.state.count(func(st *Stats) { st.MarkSolved++ })
	response.OK(c, s.state.markSolved(currentUser(c), problemID, *in.Solved))
}

func (s *Server) saveDraft(c *gin.Context) {
	var in DraftInput
	if err := c.ShouldBindJSON(&in); err != nil {
		response.BadRequest(c, "JSON parse error")
		return
	}
	fields := map[string][]string{}
	if in.ProblemID <= 0 {
		fields["problem_id"] = []string{"This field is required."}
	}
	if judge.CanonicalLanguage(in.Language) == "" {
		fields["language"] = []string{"\"" + in.Language + "\" is not a valid choice."}
	}
	if !saveTypes[in.SaveType] {
		fields["save_type"] = []string{"\"" + in.SaveType + "\" is not a valid choice."}
	}
	if len(fields) > 0 {
		response.FieldErrors(c, fields)
		return
	}
	s.state.count(func(st *Stats) { st.DraftSaves++ })
	response.Created(c, s.state.saveDraft(currentUser(c), in))
}

func (s *Server) latestDraft(c *gin.Context) {
	problemID, err := strconv.ParseInt(c.Query("problem_id"), 10, 64)
	if err != nil || problemID <= 0 {
		response.FieldErrors(c, map[string][]string{"problem_id": {"A valid integer is required."}})
		return
	}
	rec, ok := s.state.latestDraft(currentUser(c), problemID)
	if !ok {
		response.ErrorWithCode(c, errors.DraftNotFound, "Not found.")
		return
	}
	response.OK(c, rec)
}

// Shutdown is a convenience for graceful stop with a deadline.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
