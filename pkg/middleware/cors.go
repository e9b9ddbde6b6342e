package middleware

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

type CORSOptions struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowCredentials bool
	ExposeHeaders    []string
	MaxAge           time.Duration
}

type corsMiddleware struct {
	opts    CORSOptions
	methods string
	expose  string
	maxAge  string
}

// NewCORSMiddleware answers preflight requests from allowed origins before
// the validation chain runs. With no origins configured it is a pass-through.
func NewCORSMiddleware(opts CORSOptions) Middleware {
	m := &corsMiddleware{
		opts:    opts,
		methods: strings.Join(opts.AllowMethods, ", "),
		expose:  strings.Join(opts.ExposeHeaders, ", "),
	}
	if opts.MaxAge > 0 {
		m.maxAge = strconv.Itoa(int(opts.MaxAge.Seconds()))
	}
	return m
}

func (m *corsMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" || !m.allowed(origin) {
			return c.Next()
		}

		c.Vary(fiber.HeaderOrigin)
		if m.opts.AllowCredentials || !slices.Contains(m.opts.AllowOrigins, "*") {
			c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		} else {
			c.Set(fiber.HeaderAccessControlAllowOrigin, "*")
		}
		if m.opts.AllowCredentials {
			c.Set(fiber.HeaderAccessControlAllowCredentials, "true")
		}
		if m.expose != "" {
			c.Set(fiber.HeaderAccessControlExposeHeaders, m.expose)
		}

		if c.Method() != fiber.MethodOptions || c.Get(fiber.HeaderAccessControlRequestMethod) == "" {
			return c.Next()
		}
		c.Set(fiber.HeaderAccessControlAllowMethods, m.methods)
		if reqHeaders := c.Get(fiber.HeaderAccessControlRequestHeaders); reqHeaders != "" {
			c.Set(fiber.HeaderAccessControlAllowHeaders, reqHeaders)
		} else {
			c.Set(fiber.HeaderAccessControlAllowHeaders, fiber.HeaderContentType)
		}
		if m.maxAge != "" {
			c.Set(fiber.HeaderAccessControlMaxAge, m.maxAge)
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

func (m *corsMiddleware) allowed(origin string) bool {
	for _, o := range m.opts.AllowOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
