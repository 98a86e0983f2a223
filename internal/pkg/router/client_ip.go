package router

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// clientIP determines the caller's address behind Cloudflare or a proxy so
// rate limits apply per customer instead of per load balancer.
func clientIP(c *fiber.Ctx) string {
	// 1. Cloudflare
	if ip := strings.TrimSpace(c.Get("CF-Connecting-IP")); ip != "" {
		return ip
	}

	// 2. X-Forwarded-For, the first entry is the original client
	if xff := c.Get("X-Forwarded-For"); xff != "" {
		if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
			return ip
		}
	}

	// 3. no proxy headers
	ip := c.IP()
	// IPv4-mapped IPv6 (::ffff:192.168.1.1)
	if strings.HasPrefix(ip, "::ffff:") && strings.Contains(ip, ".") {
		return strings.TrimPrefix(ip, "::ffff:")
	}
	return ip
}
