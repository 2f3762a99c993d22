package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP determines the caller address behind Cloudflare or a reverse
// proxy. It is used as the key for failed-attempt counters.
func ClientIP(c *fiber.Ctx) string {
	// 1. Cloudflare provides the original client IP
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	// 2. X-Forwarded-For can contain a list of IPs - the first one is the client
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(c.Get("X-Real-IP")); ip != "" {
		return ip
	}

	// 3. Direct connection; unwrap IPv4-mapped IPv6 (::ffff:192.168.1.1)
	ip := c.IP()
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}
