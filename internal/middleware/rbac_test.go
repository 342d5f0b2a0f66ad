package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/edugestion/asistencia-api/internal/models"
)

func rbacRouter(guard gin.HandlerFunc, claims *models.JWTClaims) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/usuarios/:id", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestRBACAllowsRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	r := rbacRouter(RequireRoles(models.RoleAdmin, models.RoleAuxiliary), claims)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/usuarios/user-9", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleGuardian}
	r := rbacRouter(RequireRoles(models.RoleAdmin), claims)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/usuarios/user-9", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfMatchesRouteParam(t *testing.T) {
	claims := &models.JWTClaims{UserID: "user-1", Role: models.RoleGuardian}
	r := rbacRouter(RBAC(string(models.RoleAdmin), "SELF"), claims)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/usuarios/user-1", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/usuarios/user-2", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACRequiresClaims(t *testing.T) {
	r := rbacRouter(RequireRoles(models.RoleAdmin), nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/usuarios/user-1", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
