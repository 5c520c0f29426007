package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins" split_words:"true"`
	MaxAge       int      `mapstructure:"max_age" split_words:"true"`
}

var (
	corsMethods = strings.Join([]string{
		http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions,
	}, ", ")
	corsHeaders = "Origin, Content-Type, Accept, Authorization, X-Request-ID"
)

// CORS lets the booking site call the API from the configured origins.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	maxAge := strconv.Itoa(cfg.MaxAge)
	wildcard := slices.Contains(cfg.AllowOrigins, "*")

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (wildcard || slices.Contains(cfg.AllowOrigins, origin)) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Methods", corsMethods)
			c.Header("Access-Control-Allow-Headers", corsHeaders)
			c.Header("Access-Control-Expose-Headers", HeaderXRequestID)
			c.Header("Access-Control-Allow-Credentials", "true")
			if cfg.MaxAge > 0 {
				c.Header("Access-Control-Max-Age", maxAge)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
