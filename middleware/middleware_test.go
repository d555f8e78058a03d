package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAuth_IssueAndValidate(t *testing.T) {
	auth := NewAuth("secret")
	id := uuid.New()

	token, err := auth.IssueToken(id, time.Hour)
	require.NoError(t, err)

	got, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = NewAuth("other").ValidateToken(token)
	assert.Error(t, err)

	expired, err := auth.IssueToken(id, -time.Minute)
	require.NoError(t, err)
	_, err = auth.ValidateToken(expired)
	assert.Error(t, err)
}

func TestAuth_RequireUser(t *testing.T) {
	auth := NewAuth("secret")
	id := uuid.New()
	token, err := auth.IssueToken(id, time.Hour)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", auth.RequireUser(), func(c *gin.Context) {
		uid, ok := GetUserID(c)
		require.True(t, ok)
		c.String(http.StatusOK, uid.String())
	})

	cases := []struct {
		name   string
		setup  func(req *http.Request)
		status int
	}{
		{"bearer", func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) }, http.StatusOK},
		{"cookie", func(req *http.Request) { req.AddCookie(&http.Cookie{Name: "access_token", Value: token}) }, http.StatusOK},
		{"query", func(req *http.Request) { req.URL.RawQuery = "token=" + token }, http.StatusOK},
		{"missing", func(req *http.Request) {}, http.StatusUnauthorized},
		{"malformed header", func(req *http.Request) { req.Header.Set("Authorization", token) }, http.StatusUnauthorized},
		{"bad token", func(req *http.Request) { req.Header.Set("Authorization", "Bearer nope") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.Equal(t, id.String(), w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.Use(RateLimit(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestTraceIDAndErrorHandler(t *testing.T) {
	r := gin.New()
	r.Use(TraceID(), ErrorHandler(zap.NewNop()))
	r.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(TraceIDHeader, "trace-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "trace-1", w.Header().Get(TraceIDHeader))
	assert.Contains(t, w.Body.String(), `"status":"error"`)
}

func TestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(TraceID(), Logger(zap.New(core)))
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/antisocial/:username/friends", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/antisocial/:username/accept-friend", func(c *gin.Context) {
		_ = c.Error(errors.New("friend not found"))
		c.Status(http.StatusNotFound)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })

	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/health", nil),
		httptest.NewRequest(http.MethodGet, "/antisocial/alice/friends", nil),
		httptest.NewRequest(http.MethodPost, "/antisocial/bob/accept-friend", nil),
		httptest.NewRequest(http.MethodGet, "/boom", nil),
	} {
		req.Header.Set(TraceIDHeader, "trace-log")
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	entries := logs.All()
	require.Len(t, entries, 3)

	ok := entries[0].ContextMap()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "/antisocial/:username/friends", ok["route"])
	assert.Equal(t, "alice", ok["username"])
	assert.Equal(t, "trace-log", ok["trace_id"])

	notFound := entries[1].ContextMap()
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "bob", notFound["username"])
	assert.Contains(t, notFound["errors"], "friend not found")

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.NotContains(t, entries[2].ContextMap(), "username")
}
