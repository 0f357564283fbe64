package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/plantops/valve-ledger-api/internal/cache"
	"github.com/plantops/valve-ledger-api/internal/config"
	"github.com/plantops/valve-ledger-api/internal/middleware"
	"github.com/plantops/valve-ledger-api/internal/models"
	"github.com/plantops/valve-ledger-api/internal/repository"
	"github.com/plantops/valve-ledger-api/internal/services"
	"github.com/plantops/valve-ledger-api/internal/storage"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testSecret = "handler-test-secret"

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
	svc    *services.Services
	admin  *models.User
	leader *models.User
	alice  *models.User
	bob    *models.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Ledger{},
		&models.Valve{},
		&models.ValveAttachment{},
		&models.ApprovalLog{},
		&models.Setting{},
		&models.ValvePhoto{},
		&models.MaintenanceRecord{},
		&models.Notification{},
		&models.RefreshToken{},
		&models.AuditLog{},
	))

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	cfg := &config.Config{
		JWTSecret:          testSecret,
		JWTExpirationHours: 1,
		DefaultPassword:    "123456",
	}
	svc := services.NewServices(repository.NewRepositories(db), nil, store, cache.NewMemoryCache(), cfg)

	router := gin.New()
	noLimit := func(c *gin.Context) { c.Next() }
	NewHandlers(svc, "test").Register(router.Group("/api/v1"), middleware.Auth(testSecret), noLimit)

	s := &testServer{router: router, db: db, svc: svc}
	s.admin = s.user(t, "admin", models.RoleAdmin)
	s.leader = s.user(t, "leader", models.RoleLeader)
	s.alice = s.user(t, "alice", models.RoleEmployee)
	s.bob = s.user(t, "bob", models.RoleEmployee)
	return s
}

func (s *testServer) user(t *testing.T, username, role string) *models.User {
	t.Helper()
	u := &models.User{Username: username, PasswordHash: "x", Role: role, Status: models.StatusActive}
	require.NoError(t, s.db.Create(u).Error)
	return u
}

func signToken(t *testing.T, u *models.User, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.Claims{
		UserID:   u.ID,
		Username: u.Username,
		Role:     u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

// do sends body as JSON (nil for none) on behalf of u and returns the recorder
func (s *testServer) do(t *testing.T, u *models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if u != nil {
		req.Header.Set("Authorization", "Bearer "+signToken(t, u, time.Hour))
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// createValve posts a valve as u and returns its id
func (s *testServer) createValve(t *testing.T, u *models.User, tag string, submit bool) uint {
	t.Helper()
	w := s.do(t, u, http.MethodPost, "/api/v1/valves", map[string]interface{}{
		"fields": map[string]string{"tag": tag, "name": "调节阀 " + tag},
		"submit": submit,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	valve := decode(t, w)["valve"].(map[string]interface{})
	return uint(valve["id"].(float64))
}

func valvePath(id uint, suffix string) string {
	return fmt.Sprintf("/api/v1/valves/%d%s", id, suffix)
}
