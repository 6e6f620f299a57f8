package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/brasshelm/birdtext/internal/auth"
	"github.com/brasshelm/birdtext/internal/handlers"
	"github.com/brasshelm/birdtext/internal/routes"
	"github.com/brasshelm/birdtext/internal/services"
	"github.com/brasshelm/birdtext/pkg/csrfclient"
	pkghttp "github.com/brasshelm/birdtext/pkg/http"
	pkglogger "github.com/brasshelm/birdtext/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubSMS satisfies the handler's provider interface without network calls
type stubSMS struct{}

func (stubSMS) SendSMS(ctx context.Context, to, message string) (string, error) {
	return "stub-id", nil
}
func (stubSMS) DID() string { return "2125550100" }

func newTestServer(t *testing.T, testDB *TestDB) *httptest.Server {
	t.Helper()

	log := slog.New(slog.NewJSONHandler(io.Discard, nil))
	audit := pkglogger.NewAuditLogger(log)

	userRepo, attemptRepo, contactRepo, messageRepo := InitializeRepositories(testDB.DB)
	guard := services.NewLoginGuard(attemptRepo, nil, nil, log)
	sessionManager := auth.NewSessionManager("integration-test-session-secret-32", 30*24*time.Hour)

	authHandler := handlers.NewAuthHandler(userRepo, guard, sessionManager, audit, &pkghttp.IPConfig{}, false)
	contactsHandler := handlers.NewContactsHandler(contactRepo)
	messagesHandler := handlers.NewMessagesHandler(messageRepo, contactRepo, stubSMS{})
	webhooksHandler := handlers.NewWebhooksHandler(contactRepo, messageRepo, "", log)

	router := chi.NewRouter()
	router.Use(chiMiddleware.RequestID)
	router.Route("/api", func(r chi.Router) {
		routes.RegisterRoutes(r, authHandler, contactsHandler, messagesHandler, webhooksHandler,
			sessionManager, true, log, audit)
	})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func newBrowserClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

func login(t *testing.T, client *http.Client, baseURL, username, password string) *http.Response {
	t.Helper()
	body := fmt.Sprintf(`{"username":%q,"password":%q}`, username, password)
	resp, err := client.Post(baseURL+"/api/auth/login", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestLoginFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	t.Run("five failures lock the account until success is impossible", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		_, err := SeedUser(ctx, testDB.Pool, "alice", "correct-horse")
		require.NoError(t, err)

		server := newTestServer(t, testDB)
		client := newBrowserClient(t)

		for i := 0; i < 5; i++ {
			resp := login(t, client, server.URL, "alice", "wrong")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			resp.Body.Close()
		}

		// Sixth attempt trips the 15 minute lock even with the right password
		resp := login(t, client, server.URL, "alice", "correct-horse")
		defer resp.Body.Close()
		assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

		respBody, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(respBody), "Too many failed attempts")
	})

	t.Run("successful login clears failure history", func(t *testing.T) {
		require.NoError(t, testDB.CleanupTables(ctx))
		_, err := SeedUser(ctx, testDB.Pool, "bob", "correct-horse")
		require.NoError(t, err)

		server := newTestServer(t, testDB)
		client := newBrowserClient(t)

		for i := 0; i < 4; i++ {
			resp := login(t, client, server.URL, "bob", "wrong")
			resp.Body.Close()
		}

		resp := login(t, client, server.URL, "bob", "correct-horse")
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		// The streak is gone: four more failures stay under the threshold
		for i := 0; i < 4; i++ {
			resp := login(t, client, server.URL, "bob", "wrong")
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			resp.Body.Close()
		}
	})
}

func TestCSRFFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	testDB, err := SetupTestDatabase(ctx)
	require.NoError(t, err)
	defer testDB.Teardown(ctx)

	require.NoError(t, testDB.CleanupTables(ctx))
	_, err = SeedUser(ctx, testDB.Pool, "carol", "correct-horse")
	require.NoError(t, err)

	server := newTestServer(t, testDB)
	client := newBrowserClient(t)

	resp := login(t, client, server.URL, "carol", "correct-horse")
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	contactBody := func() io.Reader {
		return bytes.NewReader([]byte(`{"name":"Bob","phone_number":"3105550199"}`))
	}

	t.Run("mutation without token is rejected with CSRF_INVALID", func(t *testing.T) {
		resp, err := client.Post(server.URL+"/api/contacts", "application/json", contactBody())
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)

		var errResp pkghttp.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
		assert.Equal(t, "CSRF_INVALID", errResp.Code)
	})

	t.Run("csrf client attaches token and mutation succeeds", func(t *testing.T) {
		manager := csrfclient.New(server.URL+"/api/auth/csrf-token", client)

		req, err := http.NewRequest(http.MethodPost, server.URL+"/api/contacts", contactBody())
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(contactBody()), nil
		}

		resp, err := manager.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("GET requests pass without a token", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/api/contacts")
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("inbound webhook stores message for created contact", func(t *testing.T) {
		resp, err := client.Get(server.URL + "/api/webhooks/voipms/sms?to=2125550100&from=3105550188&msg=hello&id=wh-1")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		unreadResp, err := client.Get(server.URL + "/api/messages/unread-count")
		require.NoError(t, err)
		defer unreadResp.Body.Close()

		respBody, _ := io.ReadAll(unreadResp.Body)
		assert.Contains(t, string(respBody), `"unread_count":1`)
	})
}
