package api

import (
	"strings"
	"time"

	"hmlr/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogger 请求日志中间件
// 慢请求(含 LLM 悬挂点的装配/园丁触发)升级为 Warn
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.Int("body_size", c.Writer.Size()),
			zap.String("client_ip", c.ClientIP()),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		if latency > 2*time.Second {
			logger.Warn("HTTP 慢请求", fields...)
			return
		}
		logger.Info("HTTP 请求完成", fields...)
	}
}

// CORS 跨域中间件
// 白名单与放行的头/方法从 CORS_* 环境变量读入,缺省全放行
func CORS() gin.HandlerFunc {
	defaultHeaders := []string{
		"Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization",
		"Accept", "Origin", "Cache-Control", "X-Requested-With",
	}
	defaultMethods := []string{"POST", "OPTIONS", "GET", "PUT", "DELETE", "PATCH"}

	return func(c *gin.Context) {
		allowedOrigins := getEnvList("CORS_ALLOW_ORIGINS")
		origin := c.GetHeader("Origin")

		header := c.Writer.Header()
		switch {
		case len(allowedOrigins) == 0:
			header.Set("Access-Control-Allow-Origin", "*")
		case origin != "" && stringInSlice(origin, allowedOrigins):
			header.Set("Access-Control-Allow-Origin", origin)
		}
		header.Set("Access-Control-Allow-Credentials", "true")

		headers := defaultIfEmpty(getEnvList("CORS_ALLOW_HEADERS"), defaultHeaders)
		header.Set("Access-Control-Allow-Headers", strings.Join(headers, ", "))

		methods := defaultIfEmpty(getEnvList("CORS_ALLOW_METHODS"), defaultMethods)
		header.Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
		header.Set("Access-Control-Max-Age", "600")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
