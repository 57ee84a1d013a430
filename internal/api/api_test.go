package api

import (
	"bytes"
	"context"
	"encoding/json"
	"histomicsui/hui-server/internal/domain"
	"histomicsui/hui-server/internal/ingest"
	"histomicsui/hui-server/internal/largeimage"
	"histomicsui/hui-server/internal/repository/memory"
	"histomicsui/hui-server/internal/service"
	"histomicsui/hui-server/internal/storage"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap/zaptest"
)

type testServer struct {
	router     *gin.Engine
	dispatcher *ingest.Dispatcher
	userToken  string
	adminToken string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := zaptest.NewLogger(t)

	db := memory.New()
	fileStorage := storage.NewMemoryStorage()
	authService := service.NewAuthService(db.Users(), "test-secret", time.Hour)
	settingsService := service.NewSettingsService(log, db.Settings(), db.Folders())

	dispatcher := ingest.NewDispatcher(log, ingest.Deps{
		Users:       db.Users(),
		Folders:     db.Folders(),
		Items:       db.Items(),
		Files:       db.Files(),
		Annotations: db.Annotations(),
		Storage:     fileStorage,
		Promoter:    largeimage.NewPromoter(log, db.Items(), db.Files()),
		Settings:    settingsService,
		Remover:     service.NewItemService(log, db.Items(), db.Files(), fileStorage),
	}, ingest.Config{})

	_, err := authService.Register(ctx, "alice", "alice@example.com", "password1", false)
	require.NoError(t, err)
	_, err = authService.Register(ctx, "admin", "admin@example.com", "password2", true)
	require.NoError(t, err)

	router := gin.New()
	SetupRoutes(router, log, authService, settingsService, dispatcher)

	srv := &testServer{router: router, dispatcher: dispatcher}
	srv.userToken = srv.login(t, "alice", "password1")
	srv.adminToken = srv.login(t, "admin", "password2")
	return srv
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) login(t *testing.T, login, password string) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/user/authentication", "", LoginRequest{Login: login, Password: password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	assert.Equal(t, login, resp.User.Login)
	return resp.Token
}

func TestPing(t *testing.T) {
	srv := newTestServer(t)
	w := srv.do(t, http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message": "pong"}`, w.Body.String())
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/v1/user/authentication", "", LoginRequest{Login: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodPost, "/api/v1/user/authentication", "", gin.H{"login": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthMiddleware(t *testing.T) {
	srv := newTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/v1/user/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/user/me", "not-a-token", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/user/me", srv.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, true, body["admin"])
	assert.NotEmpty(t, body["userId"])
}

func TestUploadCompleted(t *testing.T) {
	srv := newTestServer(t)
	path := "/api/v1/hui/upload-events"

	event := domain.UploadEvent{File: domain.FileRef{ID: primitive.NewObjectID()}}
	w := srv.do(t, http.MethodPost, path, "", event)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Uploads without a reference are accepted and ignored.
	w = srv.do(t, http.MethodPost, path, srv.userToken, event)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = srv.do(t, http.MethodPost, path, srv.userToken, domain.UploadEvent{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettings(t *testing.T) {
	srv := newTestServer(t)
	path := "/api/v1/hui/settings/" + domain.SettingBrandColor

	w := srv.do(t, http.MethodGet, path, srv.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key": "histomicsui.brand_color", "value": "#777777"}`, w.Body.String())

	w = srv.do(t, http.MethodPut, path, srv.userToken, SettingRequest{Value: "#000000"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodPut, path, srv.adminToken, SettingRequest{Value: "blue"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(t, http.MethodPut, path, srv.adminToken, SettingRequest{Value: "#000000"})
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(t, http.MethodGet, path, srv.userToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key": "histomicsui.brand_color", "value": "#000000"}`, w.Body.String())

	w = srv.do(t, http.MethodGet, "/api/v1/hui/settings/core.smtp_host", srv.userToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetPending(t *testing.T) {
	srv := newTestServer(t)

	fileID := primitive.NewObjectID()
	sidecarID := primitive.NewObjectID()
	srv.dispatcher.Cache().Record("U1", "ImageRecordX", domain.UploadEvent{File: domain.FileRef{ID: fileID}})
	srv.dispatcher.Cache().Record("U1", "IsAnAnnotationFile", domain.UploadEvent{File: domain.FileRef{ID: sidecarID}})

	w := srv.do(t, http.MethodGet, "/api/v1/hui/pending/U1", srv.userToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = srv.do(t, http.MethodGet, "/api/v1/hui/pending/U1", srv.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp PendingResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "U1", resp.UUID)
	assert.Equal(t, []PendingUpload{
		{Identifier: "ImageRecordX", FileID: fileID.Hex()},
		{Identifier: "IsAnAnnotationFile", FileID: sidecarID.Hex()},
	}, resp.Uploads)
	assert.Zero(t, resp.Waiting)

	w = srv.do(t, http.MethodGet, "/api/v1/hui/pending/U2", srv.adminToken, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
