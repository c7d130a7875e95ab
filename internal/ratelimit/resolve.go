package ratelimit

import (
	"fmt"
	"strings"
)

// Policy maps subscription plans to request limits per window.
type Policy struct {
	Default int
	Plans   map[string]int
}

// LimitFor resolves the limit of a plan: the plan entry when present, else Default.
// Zero or negative means unlimited.
func (p Policy) LimitFor(plan string) int {
	plan = strings.ToLower(strings.TrimSpace(plan))
	if plan != "" {
		for name, limit := range p.Plans {
			if strings.ToLower(strings.TrimSpace(name)) == plan {
				return limit
			}
		}
	}
	return p.Default
}

// KeyForUser builds the limiter key of a user.
func KeyForUser(userID uint64) string {
	if userID == 0 {
		return ""
	}
	return fmt.Sprintf("u:%d", userID)
}
