package httpapi

import (
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ahrav/go-assess/internal/domain"
)

// Identity headers are set by the upstream session layer.
const (
	HeaderRespondentID  = "X-Respondent-ID"
	HeaderPrincipalType = "X-Principal-Type"
)

const principalKey = "principal"

var errNoIdentity = errors.New("missing caller identity")

// requireIdentity resolves the caller principal from identity headers.
func requireIdentity(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		id := strings.TrimSpace(c.Request().Header.Get(HeaderRespondentID))
		if id == "" {
			return errNoIdentity
		}
		p := domain.Respondent(id)
		if strings.EqualFold(c.Request().Header.Get(HeaderPrincipalType), string(domain.PrincipalAdmin)) {
			p = domain.Admin(id)
		}
		c.Set(principalKey, p)
		return next(c)
	}
}

func principalFrom(c echo.Context) domain.Principal {
	p, _ := c.Get(principalKey).(domain.Principal)
	return p
}
