package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"graph-identity/backend/internal/graph"
	"graph-identity/backend/internal/graph/graphtest"
	"graph-identity/backend/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		PrincipalLabel:     "User",
		RoleLabel:          "Role",
		ExternalLoginLabel: "ExternalLogin",
		EnsureConstraints:  true,
		Password:           config.PasswordConfig{MinLength: 6},
		Lockout:            config.LockoutConfig{EnabledByDefault: true, Duration: 5 * time.Minute, MaxFailedAttempts: 5},
	}
}

func TestNewManager_EnsuresConstraints(t *testing.T) {
	g := graphtest.New()

	manager, err := newManager(context.Background(), testConfig(), g)
	require.NoError(t, err)
	assert.NotNil(t, manager)
	assert.Len(t, g.Constraints(), 3)
}

func TestNewManager_RejectsBadLabel(t *testing.T) {
	cfg := testConfig()
	cfg.RoleLabel = "Role`"

	_, err := newManager(context.Background(), cfg, graphtest.New())
	assert.Error(t, err)
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	manager, err := newManager(context.Background(), testConfig(), graphtest.New())
	require.NoError(t, err)
	router := newRouter(manager, zap.NewNop())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestUnknownUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	g := graphtest.New()
	manager, err := newManager(context.Background(), testConfig(), g)
	require.NoError(t, err)
	router := newRouter(manager, zap.NewNop())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/api/users/nobody", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1, g.CallCount(graph.StmtMatchPrincipal+"id"))
}
