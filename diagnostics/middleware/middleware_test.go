package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestRequireValidUnitIDRejectsNonPositive(t *testing.T) {
	r := gin.New()
	r.GET("/units/:id", RequireValidUnitID(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	for _, id := range []string{"0", "-1", "abc"} {
		req := httptest.NewRequest(http.MethodGet, "/units/"+id, nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusBadRequest, w.Code, "id=%q", id)
	}

	// An empty id never matches the "/units/:id" route, so the router
	// answers 404 before RequireValidUnitID runs.
	req := httptest.NewRequest(http.MethodGet, "/units/", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequireValidUnitIDAcceptsPositive(t *testing.T) {
	r := gin.New()
	r.GET("/units/:id", RequireValidUnitID(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/units/7", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestCapConcurrentRequestsRejectsOverflow(t *testing.T) {
	release := make(chan struct{})
	r := gin.New()
	r.Use(CapConcurrentRequests(1))
	r.GET("/slow", func(c *gin.Context) {
		<-release
		c.Status(http.StatusOK)
	})

	done := make(chan int, 1)
	go func() {
		req := httptest.NewRequest(http.MethodGet, "/slow", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		done <- w.Code
	}()

	// Give the first request time to occupy the single slot.
	time.Sleep(50 * time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/slow", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	close(release)
	require.Equal(t, http.StatusOK, <-done)
}

func TestRequestIDGeneratesWhenAbsentAndHonorsIncoming(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetRequestID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.NotEmpty(t, w.Header().Get("X-Request-ID"))
	require.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())

	req2 := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req2.Header.Set("X-Request-ID", "caller-supplied-id")
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, "caller-supplied-id", w2.Header().Get("X-Request-ID"))
}

func TestAuthenticationAllowsValidBasicAndRejectsOthers(t *testing.T) {
	creds := Credentials{AdminUser: "admin", AdminPass: "secret", BearerToken: "tok123"}
	r := gin.New()
	r.Use(Authentication(creds))
	r.GET("/secure", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req.SetBasicAuth("admin", "secret")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	req2 := httptest.NewRequest(http.MethodGet, "/secure", nil)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req2)
	require.Equal(t, http.StatusUnauthorized, w2.Code)

	req3 := httptest.NewRequest(http.MethodGet, "/secure", nil)
	req3.Header.Set("Authorization", "Bearer tok123")
	w3 := httptest.NewRecorder()
	r.ServeHTTP(w3, req3)
	require.Equal(t, http.StatusOK, w3.Code)
}
