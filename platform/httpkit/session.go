package httpkit

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"portal_context_backend/platform/config"
	"portal_context_backend/platform/logger"

	"github.com/gin-gonic/gin"
)

const browserSessionBytes = 32

// BrowserSession ensures every request carries a browser session ID.
// The cookie is issued without Expires or Max-Age so the browser drops it
// when the session ends.
func BrowserSession(cfg config.SessionConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(cfg.GetSessionCookieName())
		if err != nil || !validBrowserSessionID(id) {
			id, err = newBrowserSessionID()
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{Error: "session unavailable"})
				return
			}
			http.SetCookie(c.Writer, &http.Cookie{
				Name:     cfg.GetSessionCookieName(),
				Value:    id,
				Path:     "/",
				Domain:   cfg.GetSessionCookieDomain(),
				Secure:   cfg.GetSessionCookieSecure(),
				HttpOnly: true,
				SameSite: cfg.GetSessionCookieSameSite(),
			})
		}

		c.Set(ContextBrowserSessionKey, id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), logger.BrowserSessionKey, id))
		c.Next()
	}
}

// ClearBrowserSession expires the browser session cookie.
func ClearBrowserSession(c *gin.Context, cfg config.SessionConfig) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     cfg.GetSessionCookieName(),
		Value:    "",
		Path:     "/",
		Domain:   cfg.GetSessionCookieDomain(),
		Secure:   cfg.GetSessionCookieSecure(),
		HttpOnly: true,
		SameSite: cfg.GetSessionCookieSameSite(),
		MaxAge:   -1,
	})
}

// GetBrowserSession returns the browser session ID set by BrowserSession.
func GetBrowserSession(c *gin.Context) (string, bool) {
	v, ok := c.Get(ContextBrowserSessionKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}

func newBrowserSessionID() (string, error) {
	buf := make([]byte, browserSessionBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func validBrowserSessionID(id string) bool {
	if len(id) != browserSessionBytes*2 {
		return false
	}
	_, err := hex.DecodeString(id)
	return err == nil
}
