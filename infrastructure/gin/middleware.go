package gin

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	infralogger "github.com/jonesrussell/north-cloud/scrape-analyzer/infrastructure/logger"
)

const (
	requestIDHeader   = "X-Request-ID"
	requestIDKey      = "request_id"
	requestIDBytes    = 16
	maxRequestIDChars = 128
)

// LoggerMiddleware writes one access log entry per request.
func LoggerMiddleware(log infralogger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []infralogger.Field{
			infralogger.String("method", c.Request.Method),
			infralogger.String("path", path),
			infralogger.Int("status", c.Writer.Status()),
			infralogger.Duration("duration", time.Since(start)),
			infralogger.String("client_ip", c.ClientIP()),
		}
		if query != "" {
			fields = append(fields, infralogger.String("query", query))
		}
		if id, ok := c.Get(requestIDKey); ok {
			if s, isString := id.(string); isString {
				fields = append(fields, infralogger.String(requestIDKey, s))
			}
		}

		if len(c.Errors) > 0 {
			fields = append(fields, infralogger.Strings("errors", c.Errors.Errors()))
			log.Error("HTTP request with errors", fields...)
			return
		}

		if strings.HasPrefix(path, "/health") || path == "/metrics" {
			log.Debug("HTTP request", fields...)
			return
		}
		log.Info("HTTP request", fields...)
	}
}

// CORSMiddleware sets CORS headers for allowed origins and answers preflights.
func CORSMiddleware(cfg CORSConfig) gin.HandlerFunc {
	cfg.SetDefaults()

	allowedMethods := strings.Join(cfg.AllowedMethods, ", ")
	allowedHeaders := strings.Join(cfg.AllowedHeaders, ", ")
	allowCredentials := strconv.FormatBool(cfg.AllowCredentials)
	maxAge := strconv.Itoa(int(cfg.MaxAge.Seconds()))

	return func(c *gin.Context) {
		allowedOrigin := allowedOriginFor(c.GetHeader("Origin"), cfg.AllowedOrigins)
		if allowedOrigin == "" {
			c.Next()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", allowedOrigin)
		h.Set("Access-Control-Allow-Credentials", allowCredentials)
		h.Set("Access-Control-Allow-Methods", allowedMethods)
		h.Set("Access-Control-Allow-Headers", allowedHeaders)
		h.Set("Access-Control-Max-Age", maxAge)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func allowedOriginFor(origin string, allowedOrigins []string) string {
	if origin == "" {
		return "*"
	}
	for _, allowed := range allowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if allowed == origin {
			return origin
		}
	}
	return ""
}

// RecoveryMiddleware turns a handler panic into a logged 500.
func RecoveryMiddleware(log infralogger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("Panic recovered",
					infralogger.Any("panic", rec),
					infralogger.String("path", c.Request.URL.Path),
					infralogger.String("method", c.Request.Method),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "internal server error",
				})
			}
		}()

		c.Next()
	}
}

// RequestIDLoggerMiddleware assigns a request id (reusing a sane inbound
// X-Request-ID), echoes it in the response, and stores a logger tagged with
// it in the request context for infralogger.FromContext.
func RequestIDLoggerMiddleware(log infralogger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" || len(requestID) > maxRequestIDChars {
			requestID = newRequestID()
		}

		c.Set(requestIDKey, requestID)
		c.Writer.Header().Set(requestIDHeader, requestID)

		reqLog := log.With(infralogger.String(requestIDKey, requestID))
		c.Request = c.Request.WithContext(infralogger.WithContext(c.Request.Context(), reqLog))

		c.Next()
	}
}

func newRequestID() string {
	buf := make([]byte, requestIDBytes)
	if _, err := rand.Read(buf); err != nil {
		return strconv.FormatInt(time.Now().UnixNano(), 16)
	}
	return hex.EncodeToString(buf)
}
