package ratelimit

import (
	"fmt"
	"time"

	"github.com/narvelay/daily-tasks-bot/pkg/config"
)

// Rule is a parsed "limit per window" pair.
type Rule struct {
	Limit  int
	Window time.Duration
}

// Rules holds the parsed per-user and per-command limits plus the bypass list.
type Rules struct {
	perUser   Rule
	commands  map[string]Rule
	whitelist map[int64]struct{}
}

// NewRules parses the configured limits. Admins are always whitelisted.
func NewRules(cfg config.RateLimitConfig, admins []int64) (*Rules, error) {
	perUser, err := parseRule(cfg.PerUser)
	if err != nil {
		return nil, fmt.Errorf("ratelimit per_user: %w", err)
	}

	commands := make(map[string]Rule, len(cfg.Commands))
	for name, raw := range cfg.Commands {
		rule, err := parseRule(raw)
		if err != nil {
			return nil, fmt.Errorf("ratelimit command %q: %w", name, err)
		}
		commands[name] = rule
	}

	whitelist := make(map[int64]struct{}, len(cfg.Whitelist)+len(admins))
	for _, id := range cfg.Whitelist {
		whitelist[id] = struct{}{}
	}
	for _, id := range admins {
		whitelist[id] = struct{}{}
	}

	return &Rules{perUser: perUser, commands: commands, whitelist: whitelist}, nil
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	_, ok := r.whitelist[userID]
	return ok
}

// CommandLimit returns the dedicated rule for a command, if one is configured.
func (r *Rules) CommandLimit(command string) (Rule, bool) {
	rule, ok := r.commands[command]
	return rule, ok
}

// PerUserLimit returns the rule applied to every update of a user.
func (r *Rules) PerUserLimit() Rule {
	return r.perUser
}

func parseRule(rule config.RateLimitRule) (Rule, error) {
	if rule.Limit <= 0 {
		return Rule{}, fmt.Errorf("limit must be positive, got %d", rule.Limit)
	}
	if rule.Window == "" {
		return Rule{}, fmt.Errorf("window duration is not set")
	}
	window, err := time.ParseDuration(rule.Window)
	if err != nil {
		return Rule{}, err
	}
	if window <= 0 {
		return Rule{}, fmt.Errorf("window must be positive, got %s", window)
	}
	return Rule{Limit: rule.Limit, Window: window}, nil
}
