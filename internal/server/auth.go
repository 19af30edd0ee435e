package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/finora/internal/account/domain"
	obscontext "github.com/smallbiznis/finora/internal/observability/context"
)

const bearerScheme = "bearer"

// AuthRequired resolves the bearer token into an account and stores it on the
// request context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		account, err := s.accountSvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := accountdomain.WithAccount(c.Request.Context(), account)
		ctx = obscontext.WithAccountID(ctx, account.ID.String())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// authorize admits the request when the caller's role holds action on object.
func (s *Server) authorize(object string, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		account, ok := accountdomain.FromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		if s.authzSvc == nil {
			AbortWithError(c, ErrForbidden)
			return
		}
		if err := s.authzSvc.Authorize(c.Request.Context(), account.Role, object, action); err != nil {
			AbortWithError(c, err)
			return
		}
		c.Next()
	}
}

func currentAccount(c *gin.Context) (accountdomain.Account, bool) {
	account, ok := accountdomain.FromContext(c.Request.Context())
	if !ok || account.ID == 0 {
		return accountdomain.Account{}, false
	}
	return account, true
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, bearerScheme) {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}
