package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
)

// NewRelicAttributes tags the nrgin transaction with the caller and the
// ride being acted on, so traces can be filtered per ride. It is a no-op
// when New Relic is disabled.
func NewRelicAttributes() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		txn := nrgin.Transaction(c)
		if txn == nil {
			return
		}
		if rid := GetRequestID(c); rid != "" {
			txn.AddAttribute("request_id", rid)
		}
		if p, ok := PrincipalFrom(c); ok {
			txn.AddAttribute("user_id", p.UserID)
			txn.AddAttribute("role", string(p.Role))
		}
		if id := c.Param("id"); id != "" {
			txn.AddAttribute("resource_id", id)
		}
		for _, e := range c.Errors {
			txn.NoticeError(e.Err)
		}
	}
}
