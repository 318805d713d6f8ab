package dispatch

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/funnyzak/replaytap/internal/logger"
)

type urlStrategyMode string

const (
	urlModePassthrough urlStrategyMode = "passthrough"
	urlModeRewrite     urlStrategyMode = "rewrite"
)

// URLStrategyOptions configures how replay target URLs are resolved
type URLStrategyOptions struct {
	Mode  string
	Rules []RewriteRuleOption
}

// RewriteRuleOption describes a single rewrite rule definition
type RewriteRuleOption struct {
	Name    string
	Match   string
	Replace string
	Regex   bool
}

type urlStrategy struct {
	rules []rewriteRule
}

type rewriteRule struct {
	name    string
	match   string
	replace string
	regex   bool
	expr    *regexp.Regexp
}

// newURLStrategy returns nil for passthrough, which leaves URLs untouched.
func newURLStrategy(opts URLStrategyOptions, log logger.Logger) *urlStrategy {
	mode := urlStrategyMode(strings.ToLower(strings.TrimSpace(opts.Mode)))
	if mode == "" {
		mode = urlModePassthrough
	}

	switch mode {
	case urlModeRewrite:
		rules := buildRewriteRules(opts.Rules, log)
		if len(rules) == 0 {
			return nil
		}
		return &urlStrategy{rules: rules}
	default:
		return nil
	}
}

// resolve returns the target URL and the name of the applied rule, if any.
func (s *urlStrategy) resolve(rawURL string) (string, string) {
	if s == nil {
		return rawURL, ""
	}
	for _, rule := range s.rules {
		if rule.regex {
			if rule.expr == nil || !rule.expr.MatchString(rawURL) {
				continue
			}
			return rule.expr.ReplaceAllString(rawURL, rule.replace), rule.name
		}
		if strings.HasPrefix(rawURL, rule.match) {
			return rule.replace + strings.TrimPrefix(rawURL, rule.match), rule.name
		}
	}
	return rawURL, ""
}

func buildRewriteRules(options []RewriteRuleOption, log logger.Logger) []rewriteRule {
	var rules []rewriteRule
	for idx, opt := range options {
		rule := rewriteRule{
			name:    opt.Name,
			match:   strings.TrimSpace(opt.Match),
			replace: strings.TrimSpace(opt.Replace),
			regex:   opt.Regex,
		}
		if rule.name == "" {
			rule.name = fmt.Sprintf("rewrite_rule_%d", idx+1)
		}
		if rule.match == "" {
			continue
		}
		if rule.regex {
			expr, err := regexp.Compile(rule.match)
			if err != nil {
				if log != nil {
					log.Warn("Invalid rewrite regex skipped", "rule", rule.name, "error", err)
				}
				continue
			}
			rule.expr = expr
		}
		rules = append(rules, rule)
	}
	return rules
}
