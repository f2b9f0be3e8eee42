package api_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graph-identity/backend/internal/api"
	"graph-identity/backend/internal/graph"
	"graph-identity/backend/internal/graph/graphtest"
	"graph-identity/backend/internal/identity"
	apperrors "graph-identity/backend/pkg/errors"
)

type plainHasher struct{}

func (plainHasher) Hash(secret string) (string, error) { return "plain:" + secret, nil }

func (plainHasher) Verify(hash, secret string) bool { return hash == "plain:"+secret }

func setupRouter(t *testing.T, extended bool) (*gin.Engine, *graphtest.Graph) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	g := graphtest.New()
	store, err := graph.NewStore(g, graph.Options{ExtendedOperations: extended})
	require.NoError(t, err)

	manager := identity.NewManager(store,
		identity.PasswordPolicy{MinLength: 6, RequireDigit: true},
		identity.LockoutPolicy{EnabledByDefault: true, Duration: 5 * time.Minute, MaxFailedAttempts: 2},
		identity.WithHasher(plainHasher{}),
	)

	router := gin.New()
	api.NewHandler(manager).Register(router)
	return router, g
}

func doJSON(router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func createUser(t *testing.T, router http.Handler, userName, email string) string {
	t.Helper()
	w := doJSON(router, http.MethodPost, "/api/users", map[string]string{
		"user_name": userName,
		"email":     email,
		"password":  "passw0rd",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	id, _ := resp["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := setupRouter(t, false)

	w := doJSON(router, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response["status"])
}

func TestCreateUser(t *testing.T) {
	router, g := setupRouter(t, false)

	w := doJSON(router, http.MethodPost, "/api/users", map[string]string{
		"user_name": "Alice",
		"email":     "Alice@Example.com",
		"password":  "passw0rd",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp["user_name"])
	assert.Equal(t, "alice@example.com", resp["email"])
	assert.NotContains(t, w.Body.String(), "plain:")
	assert.Equal(t, 1, g.PrincipalCount())
}

func TestCreateUser_Errors(t *testing.T) {
	router, _ := setupRouter(t, false)
	createUser(t, router, "bob", "bob@example.com")

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{name: "missing fields", body: map[string]string{}, status: http.StatusBadRequest},
		{name: "weak password", body: map[string]string{"user_name": "x", "email": "x@example.com", "password": "password"}, status: http.StatusBadRequest},
		{name: "duplicate email", body: map[string]string{"user_name": "bobby", "email": "BOB@example.com", "password": "passw0rd"}, status: http.StatusConflict},
		{name: "password over bcrypt limit", body: map[string]string{"user_name": "y", "email": "y@example.com", "password": "passw0rd" + strings.Repeat("x", identity.MaxSecretBytes)}, status: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/users", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestFindUser(t *testing.T) {
	router, _ := setupRouter(t, false)
	id := createUser(t, router, "carol", "carol@example.com")

	w := doJSON(router, http.MethodGet, "/api/users?email=CAROL@example.com", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = doJSON(router, http.MethodGet, "/api/users?userName=Carol", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/api/users", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(router, http.MethodGet, "/api/users/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRolesAndProfile(t *testing.T) {
	router, _ := setupRouter(t, false)
	id := createUser(t, router, "dave", "dave@example.com")

	w := doJSON(router, http.MethodPost, "/api/users/"+id+"/roles", map[string]string{"role": "admin"})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(router, http.MethodPost, "/api/users/"+id+"/logins", map[string]string{"provider": "github", "provider_key": "42"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, "/api/users/"+id+"/profile", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var profile api.Profile
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &profile))
	assert.Equal(t, id, profile.Principal.ID)
	assert.Equal(t, []string{"admin"}, profile.Roles)
	assert.Equal(t, []identity.LoginInfo{{Provider: "github", ProviderKey: "42"}}, profile.Logins)
	require.Len(t, profile.Claims, 1)
	assert.Equal(t, "dave@example.com", profile.Claims[0].Value)

	w = doJSON(router, http.MethodGet, "/api/logins/github/42", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)

	w = doJSON(router, http.MethodDelete, "/api/users/"+id+"/roles/admin", nil)
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestRemoveRole_Extended(t *testing.T) {
	router, _ := setupRouter(t, true)
	id := createUser(t, router, "erin", "erin@example.com")

	doJSON(router, http.MethodPost, "/api/users/"+id+"/roles", map[string]string{"role": "admin"})
	w := doJSON(router, http.MethodDelete, "/api/users/"+id+"/roles/admin", nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(router, http.MethodGet, "/api/users/"+id+"/roles", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"roles":[]}`, w.Body.String())
}

func TestLoginConflict(t *testing.T) {
	router, _ := setupRouter(t, false)
	first := createUser(t, router, "frank", "frank@example.com")
	second := createUser(t, router, "grace", "grace@example.com")

	body := map[string]string{"provider": "github", "provider_key": "7"}
	require.Equal(t, http.StatusNoContent, doJSON(router, http.MethodPost, "/api/users/"+first+"/logins", body).Code)
	assert.Equal(t, http.StatusConflict, doJSON(router, http.MethodPost, "/api/users/"+second+"/logins", body).Code)
}

func TestAccessFailedLocksOut(t *testing.T) {
	router, _ := setupRouter(t, false)
	id := createUser(t, router, "heidi", "heidi@example.com")

	w := doJSON(router, http.MethodPost, "/api/users/"+id+"/access-failed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"failed_login_count":1,"locked_out":false}`, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/users/"+id+"/access-failed", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["locked_out"])
	assert.Equal(t, float64(0), resp["failed_login_count"])
	assert.NotEmpty(t, resp["lockout_end"])

	w = doJSON(router, http.MethodPost, "/api/users/"+id+"/access-reset", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestPasswordSignIn(t *testing.T) {
	router, g := setupRouter(t, false)
	id := createUser(t, router, "ivan", "ivan@example.com")

	w := doJSON(router, http.MethodPost, "/api/sessions/password", map[string]string{"user_name": "IVAN", "password": "passw0rd"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "succeeded", resp["status"])
	principal, _ := resp["principal"].(map[string]any)
	assert.Equal(t, id, principal["id"])

	tests := []struct {
		name   string
		body   map[string]string
		status int
	}{
		{name: "missing password", body: map[string]string{"user_name": "ivan"}, status: http.StatusBadRequest},
		{name: "unknown user", body: map[string]string{"user_name": "nobody", "password": "passw0rd"}, status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(router, http.MethodPost, "/api/sessions/password", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	stored, ok := g.Principal(id)
	require.True(t, ok)
	assert.Equal(t, int64(0), stored["failedLoginCount"])
}

func TestPasswordSignIn_LocksOut(t *testing.T) {
	router, g := setupRouter(t, false)
	id := createUser(t, router, "judy", "judy@example.com")
	wrong := map[string]string{"user_name": "judy", "password": "wr0ngpass"}
	right := map[string]string{"user_name": "judy", "password": "passw0rd"}

	w := doJSON(router, http.MethodPost, "/api/sessions/password", wrong)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"status":"failed"}`, w.Body.String())

	w = doJSON(router, http.MethodPost, "/api/sessions/password", wrong)
	require.Equal(t, http.StatusLocked, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "locked_out", resp["status"])
	assert.NotEmpty(t, resp["lockout_end"])

	// the right password does not get through while locked
	w = doJSON(router, http.MethodPost, "/api/sessions/password", right)
	assert.Equal(t, http.StatusLocked, w.Code)

	stored, ok := g.Principal(id)
	require.True(t, ok)
	assert.Contains(t, stored, "lockoutEndTimestamp")

	w = doJSON(router, http.MethodGet, "/api/users/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var user map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &user))
	assert.Equal(t, float64(0), user["failed_login_count"])
}

func TestQueryFailureMapsToBadGateway(t *testing.T) {
	router, g := setupRouter(t, false)
	g.FailWith("principal.", errors.New("connection refused"))

	w := doJSON(router, http.MethodGet, "/api/users/some-id", nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"kind":"query"`)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.NewInvalidArgument("id", "blank"), http.StatusBadRequest},
		{apperrors.NewAlreadyExists("email", "a@b.c"), http.StatusConflict},
		{apperrors.NewAmbiguous("principal", "email=a@b.c", 2), http.StatusConflict},
		{apperrors.NewNotFound("principal", "id=1"), http.StatusNotFound},
		{apperrors.NewUnsupported("Delete"), http.StatusNotImplemented},
		{apperrors.NewQueryFailed("principal.create", errors.New("boom")), http.StatusBadGateway},
		{errors.New("unknown"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.status, api.StatusFor(tt.err), tt.err.Error())
	}
}

func TestCORSPreflight(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.CORS())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	req, _ := http.NewRequest(http.MethodOptions, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
