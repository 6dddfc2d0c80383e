package middlewares

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/zlog"

	"github.com/aliskhannn/reminder-dispatcher/internal/api/respond"
	"github.com/aliskhannn/reminder-dispatcher/internal/errs"
)

// SecretParam is the query parameter carrying the shared secret.
const SecretParam = "secret"

// SharedSecret rejects requests whose secret query parameter does not match
// secret. An empty configured secret rejects everything.
func SharedSecret(secret string) gin.HandlerFunc {
	return func(c *ginext.Context) {
		given := c.Query(SecretParam)

		if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			zlog.Logger.Warn().Str("path", c.FullPath()).Str("ip", c.ClientIP()).Msg("rejected request with bad secret")
			respond.Fail(c.Writer, http.StatusUnauthorized, errs.ErrUnauthorized)
			c.Abort()
			return
		}

		c.Next()
	}
}
