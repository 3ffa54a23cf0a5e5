package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const authRealm = "InsightHub"

// BasicAuth 给整个看板加一个共享账号；exempt 中的路径（如探活、指标抓取）免认证。
// 未通过时返回统一的 JSON 错误结构。
func BasicAuth(user, pass string, exempt ...string) gin.HandlerFunc {
	open := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		open[p] = struct{}{}
	}
	want := credentials{user: []byte(user), pass: []byte(pass)}

	return func(c *gin.Context) {
		if _, ok := open[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		if !want.match(c.Request) {
			c.Header("WWW-Authenticate", `Basic realm="`+authRealm+`"`)
			fail(c, http.StatusUnauthorized, "unauthorized", "credentials required")
			c.Abort()
			return
		}
		c.Next()
	}
}

type credentials struct {
	user, pass []byte
}

// match 用常量时间比较，用户名和密码都要比较，避免提前返回
func (cr credentials) match(r *http.Request) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), cr.user)
	passOK := subtle.ConstantTimeCompare([]byte(p), cr.pass)
	return userOK&passOK == 1
}

// RequestLogger 用 logrus 替代 gin 默认的文本访问日志
func RequestLogger(log *logrus.Entry) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Debug("request")
	}
}
