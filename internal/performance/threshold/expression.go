// Package threshold parses threshold expressions and judges runs against them.
package threshold

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/wesleyorama2/contactload/internal/performance/metrics"
)

// ErrSyntax is returned for expressions that cannot be parsed.
var ErrSyntax = errors.New("invalid threshold expression")

// Expression is one parsed threshold such as "p(95)<500".
type Expression struct {
	// Source is the expression as written
	Source string `json:"source"`

	// Stat is the normalised statistic: "avg", "rate", "p(95)", ...
	Stat string `json:"stat"`

	// Op is one of < <= > >= == !=
	Op string `json:"op"`

	// Limit is the right-hand side. Duration limits are in milliseconds.
	Limit float64 `json:"limit"`

	// AbortOnFail stops the run as soon as the expression fails
	AbortOnFail bool `json:"abortOnFail,omitempty"`
}

var expressionRe = regexp.MustCompile(`^\s*(p\(\s*[0-9.]+\s*\)|p[0-9.]+|[a-z]+)\s*(<=|>=|==|!=|<|>)\s*(.+?)\s*$`)

var knownStats = map[string]bool{
	"avg":    true,
	"min":    true,
	"max":    true,
	"med":    true,
	"count":  true,
	"rate":   true,
	"value":  true,
	"passes": true,
	"fails":  true,
}

// Parse parses an expression such as "p(95)<1000", "p95 < 500ms" or
// "rate<0.05".
func Parse(expr string) (Expression, error) {
	m := expressionRe.FindStringSubmatch(expr)
	if m == nil {
		return Expression{}, fmt.Errorf("%w: %q", ErrSyntax, expr)
	}

	stat := strings.ReplaceAll(m[1], " ", "")
	if strings.HasPrefix(stat, "p") && stat != "passes" {
		p, ok := metrics.ParsePercentile(stat)
		if !ok {
			return Expression{}, fmt.Errorf("%w: %q: bad percentile %s", ErrSyntax, expr, m[1])
		}
		stat = "p(" + strconv.FormatFloat(p, 'f', -1, 64) + ")"
	} else if !knownStats[stat] {
		return Expression{}, fmt.Errorf("%w: %q: unknown statistic %s", ErrSyntax, expr, stat)
	}

	limit, err := parseLimit(m[3])
	if err != nil {
		return Expression{}, fmt.Errorf("%w: %q: %v", ErrSyntax, expr, err)
	}

	return Expression{
		Source: strings.TrimSpace(expr),
		Stat:   stat,
		Op:     m[2],
		Limit:  limit,
	}, nil
}

// MustParse is like Parse but panics on error. It is meant for the static
// profiles.
func MustParse(expr string) Expression {
	e, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return e
}

// parseLimit accepts plain numbers and durations, which become milliseconds.
func parseLimit(s string) (float64, error) {
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("limit %q is neither a number nor a duration", s)
	}
	return float64(d) / float64(time.Millisecond), nil
}

// Compare reports whether actual satisfies the expression.
func (e Expression) Compare(actual float64) bool {
	return compareValues(actual, e.Op, e.Limit)
}

func (e Expression) String() string {
	return e.Source
}

func compareValues(actual float64, op string, limit float64) bool {
	switch op {
	case "<":
		return actual < limit
	case "<=":
		return actual <= limit
	case ">":
		return actual > limit
	case ">=":
		return actual >= limit
	case "==":
		return actual == limit
	case "!=":
		return actual != limit
	default:
		return false
	}
}
