package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionAdminKey = "admin"

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AdminRequired rejects requests without an authenticated admin session.
func AdminRequired(c *gin.Context) {
	session := sessions.Default(c)
	if ok, _ := session.Get(sessionAdminKey).(bool); !ok {
		abortWithError(c, http.StatusUnauthorized, "Unauthorized")
		return
	}
	c.Next()
}

func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "username and password are required")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(s.cfg.AdminUser)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(s.cfg.AdminPassword)) == 1
	if !userOK || !passOK {
		s.log.Warn("admin login failed", zap.String("username", req.Username), zap.String("client_ip", c.ClientIP()))
		abortWithError(c, http.StatusUnauthorized, "帳號或密碼錯誤")
		return
	}

	session := sessions.Default(c)
	session.Set(sessionAdminKey, true)
	if err := session.Save(); err != nil {
		s.log.Error("failed to save session", zap.Error(err))
		abortWithError(c, http.StatusInternalServerError, "failed to save session")
		return
	}

	s.log.Info("admin logged in", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (s *Server) logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		s.log.Error("failed to clear session", zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
