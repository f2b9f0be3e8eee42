package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"graph-identity/backend/internal/identity"
	apperrors "graph-identity/backend/pkg/errors"
	"graph-identity/backend/pkg/logger"
)

// Handler exposes the identity store over JSON/HTTP
type Handler struct {
	manager *identity.Manager
	store   identity.Store
	logger  *zap.Logger
}

// NewHandler creates a handler backed by the manager and its store
func NewHandler(manager *identity.Manager) *Handler {
	return &Handler{
		manager: manager,
		store:   manager.Store(),
		logger:  logger.Named("api"),
	}
}

// Register mounts the health check and the /api routes
func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		api.POST("/users", h.createUser)
		api.GET("/users", h.findUser)
		api.GET("/users/:id", h.getUser)
		api.GET("/users/:id/profile", h.getProfile)

		api.POST("/users/:id/roles", h.addRole)
		api.GET("/users/:id/roles", h.listRoles)
		api.DELETE("/users/:id/roles/:role", h.removeRole)

		api.POST("/users/:id/logins", h.addLogin)
		api.GET("/users/:id/logins", h.listLogins)
		api.GET("/logins/:provider/:key", h.findByLogin)

		api.POST("/users/:id/access-failed", h.accessFailed)
		api.POST("/users/:id/access-reset", h.accessReset)

		api.POST("/sessions/password", h.passwordSignIn)
	}
}

type createUserRequest struct {
	UserName string `json:"user_name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type roleRequest struct {
	Role string `json:"role" binding:"required"`
}

type loginRequest struct {
	Provider    string `json:"provider" binding:"required"`
	ProviderKey string `json:"provider_key" binding:"required"`
}

type signInRequest struct {
	UserName string `json:"user_name" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Profile is a principal with everything attached to it
type Profile struct {
	Principal *identity.Principal  `json:"principal"`
	Roles     []string             `json:"roles"`
	Logins    []identity.LoginInfo `json:"logins"`
	Claims    []identity.Claim     `json:"claims"`
}

func (h *Handler) createUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	p := identity.NewPrincipal(req.UserName, req.Email)
	if err := h.manager.Create(c.Request.Context(), p, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) findUser(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		p   *identity.Principal
		err error
	)
	switch {
	case c.Query("email") != "":
		p, err = h.store.FindByEmail(ctx, c.Query("email"))
	case c.Query("userName") != "":
		p, err = h.store.FindByUserName(ctx, c.Query("userName"))
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "email or userName query parameter is required"})
		return
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) getUser(c *gin.Context) {
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, p)
}

// getProfile loads the principal, then its roles, logins and claims in parallel
func (h *Handler) getProfile(c *gin.Context) {
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	profile := Profile{Principal: p}
	g, gctx := errgroup.WithContext(c.Request.Context())

	g.Go(func() error {
		roles, err := h.store.ListRoles(gctx, p)
		profile.Roles = roles
		return err
	})
	g.Go(func() error {
		logins, err := h.store.ListExternalLogins(gctx, p)
		profile.Logins = logins
		return err
	})
	g.Go(func() error {
		claims, err := h.store.ListClaims(gctx, p)
		profile.Claims = claims
		return err
	})

	if err := g.Wait(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) addRole(c *gin.Context) {
	var req roleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	if err := h.store.AddRole(c.Request.Context(), p, req.Role); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listRoles(c *gin.Context) {
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	roles, err := h.store.ListRoles(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (h *Handler) removeRole(c *gin.Context) {
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	if err := h.store.RemoveRole(c.Request.Context(), p, c.Param("role")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) addLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	login := identity.LoginInfo{Provider: req.Provider, ProviderKey: req.ProviderKey}
	if err := h.store.AddExternalLogin(c.Request.Context(), p, login); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listLogins(c *gin.Context) {
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	logins, err := h.store.ListExternalLogins(c.Request.Context(), p)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"logins": logins})
}

func (h *Handler) findByLogin(c *gin.Context) {
	login := identity.LoginInfo{Provider: c.Param("provider"), ProviderKey: c.Param("key")}

	p, err := h.store.FindByExternalLogin(c.Request.Context(), login)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) accessFailed(c *gin.Context) {
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	if err := h.manager.AccessFailed(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{
		"failed_login_count": p.FailedLoginCount,
		"locked_out":         h.manager.IsLockedOut(p),
	}
	if !p.LockoutEnd.IsZero() {
		resp["lockout_end"] = p.LockoutEnd.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) accessReset(c *gin.Context) {
	p, ok := h.loadPrincipal(c)
	if !ok {
		return
	}

	if err := h.manager.ResetAccessFailed(c.Request.Context(), p); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// passwordSignIn checks a password without issuing any session; the status
// tells the caller what to do next
func (h *Handler) passwordSignIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.manager.PasswordSignIn(c.Request.Context(), req.UserName, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{"status": string(result.Status)}
	switch result.Status {
	case identity.SignInSucceeded, identity.SignInRequiresTwoFactor:
		resp["principal"] = result.Principal
		c.JSON(http.StatusOK, resp)
	case identity.SignInLockedOut:
		resp["lockout_end"] = result.Principal.LockoutEnd.Format(time.RFC3339)
		c.JSON(http.StatusLocked, resp)
	default:
		c.JSON(http.StatusUnauthorized, resp)
	}
}

func (h *Handler) loadPrincipal(c *gin.Context) (*identity.Principal, bool) {
	p, err := h.store.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return p, true
}

// StatusFor maps an error kind onto an HTTP status
func StatusFor(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.ErrorTypeAlreadyExists, apperrors.ErrorTypeAmbiguous:
		return http.StatusConflict
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeUnsupported:
		return http.StatusNotImplemented
	case apperrors.ErrorTypeQuery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.JSON(status, gin.H{
		"error": err.Error(),
		"kind":  string(apperrors.TypeOf(err)),
	})
}
