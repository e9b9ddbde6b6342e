package ratelimit

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrRuleNotFound    = errors.New("rate limit rule not found")
	ErrDuplicateRule   = errors.New("rate limit rule already registered")
	ErrInvalidRule     = errors.New("invalid rate limit rule")
	ErrEmptyIdentifier = errors.New("identifier is required")
)

// BreachFunc is called when a request moves a record into the blocked state.
type BreachFunc func(identifier string, rule Rule)

type Rule struct {
	Name        string
	Path        string
	Methods     []string
	Window      time.Duration
	MaxRequests int

	OnLimitReached BreachFunc
}

func (r Rule) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if r.Window <= 0 {
		return fmt.Errorf("%w: %s: window must be positive", ErrInvalidRule, r.Name)
	}
	if r.MaxRequests <= 0 {
		return fmt.Errorf("%w: %s: max requests must be positive", ErrInvalidRule, r.Name)
	}
	return nil
}

// Matches reports whether the rule applies to path and method. An empty
// pattern matches every path, a trailing "/*" matches the prefix and
// everything below it, and ":name" segments match any single segment.
func (r Rule) Matches(path, method string) bool {
	if len(r.Methods) > 0 {
		ok := false
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return matchPath(r.Path, path)
}

func matchPath(pattern, path string) bool {
	if pattern == "" || pattern == "*" || pattern == "/*" {
		return true
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if strings.HasSuffix(pattern, "/*") {
		base := strings.TrimSuffix(pattern, "/*")
		if path == base {
			return true
		}
		if !strings.HasPrefix(path, base+"/") && !strings.Contains(base, ":") {
			return false
		}
		return matchSegments(splitPath(base), splitPath(path), true)
	}
	return matchSegments(splitPath(pattern), splitPath(path), false)
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

func matchSegments(pattern, path []string, prefix bool) bool {
	if len(path) < len(pattern) || (!prefix && len(path) != len(pattern)) {
		return false
	}
	for i, seg := range pattern {
		if strings.HasPrefix(seg, ":") {
			continue
		}
		if seg != path[i] {
			return false
		}
	}
	return true
}
