package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/ctxutil"
)

const headerOwnerID = "X-Owner-Id"

// AttachRequestContext scopes the request to the caller named in X-Owner-Id.
// Identity is asserted by an upstream gateway; an empty owner sees unowned jobs only.
func AttachRequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		owner := strings.TrimSpace(c.GetHeader(headerOwnerID))
		ctx := ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{OwnerID: owner})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
