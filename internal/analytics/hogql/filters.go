package hogql

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultTimestampField = Field("timestamp")
	DefaultHostField      = Field("properties.$host")
	DefaultIPField        = Field("properties.$ip")
	DefaultPathField      = Field("properties.$pathname")
	DefaultDeveloperFlag  = Field("properties.is_developer")

	warehouseTimeLayout = "2006-01-02 15:04:05"
)

// localhostPattern matches loopback hosts with an optional port.
const localhostPattern = `^(localhost|127\.0\.0\.1|0\.0\.0\.0|\[::1\]|::1)(:[0-9]+)?$`

// FormatTime renders t in the warehouse literal format: UTC, space separated, no zone suffix.
func FormatTime(t time.Time) string {
	return t.UTC().Format(warehouseTimeLayout)
}

// FormatDate converts an ISO-8601 timestamp or date into the warehouse literal format.
func FormatDate(iso string) (string, error) {
	iso = strings.TrimSpace(iso)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, iso); err == nil {
			return FormatTime(t), nil
		}
	}
	return "", fmt.Errorf("invalid ISO-8601 timestamp %q", iso)
}

// DateRange bounds field inclusively on both ends. An empty field means timestamp.
func DateRange(start, end time.Time, field Field) Expr {
	if field == "" {
		field = DefaultTimestampField
	}
	return And{
		Compare{Left: field, Op: OpGte, Right: Timestamp(start)},
		Compare{Left: field, Op: OpLte, Right: Timestamp(end)},
	}
}

// EventName matches a single event.
func EventName(name string) Expr {
	return Compare{Left: Field("event"), Op: OpEq, Right: String(name)}
}

// InternalTrafficOptions toggles each internal-traffic exclusion. Empty
// field names fall back to the standard event properties.
type InternalTrafficOptions struct {
	ExcludeLocalhost     bool
	InternalIPs          []string
	InternalPathPatterns []string
	ExcludeDevelopers    bool

	HostField     Field
	IPField       Field
	PathField     Field
	DeveloperFlag Field
}

// InternalTraffic returns one predicate per enabled exclusion. Disabled
// exclusions contribute nothing.
func InternalTraffic(opts InternalTrafficOptions) []Expr {
	var out []Expr
	if opts.ExcludeLocalhost {
		host := orDefault(opts.HostField, DefaultHostField)
		out = append(out, Not{Expr: Call{Name: "ifNull", Args: []Expr{
			Call{Name: "match", Args: []Expr{host, String(localhostPattern)}},
			Raw("0"),
		}}})
	}
	if len(opts.InternalIPs) > 0 {
		ip := orDefault(opts.IPField, DefaultIPField)
		values := make(Tuple, 0, len(opts.InternalIPs))
		for _, v := range opts.InternalIPs {
			values = append(values, String(v))
		}
		out = append(out, Compare{Left: nullSafe(ip), Op: OpNotIn, Right: values})
	}
	if len(opts.InternalPathPatterns) > 0 {
		path := orDefault(opts.PathField, DefaultPathField)
		for _, pattern := range opts.InternalPathPatterns {
			out = append(out, Compare{Left: nullSafe(path), Op: OpNotLike, Right: String(pattern)})
		}
	}
	if opts.ExcludeDevelopers {
		flag := orDefault(opts.DeveloperFlag, DefaultDeveloperFlag)
		out = append(out, Compare{
			Left:  Call{Name: "ifNull", Args: []Expr{Call{Name: "toString", Args: []Expr{flag}}, String("")}},
			Op:    OpNotEq,
			Right: String("true"),
		})
	}
	return out
}

// Combine conjoins expressions: none yields 1=1, one is returned as is, and
// two or more render as and(a, b, ...). Nested conjunctions are flattened
// and always-true operands dropped.
func Combine(exprs ...Expr) Expr {
	var flat And
	for _, e := range exprs {
		flat = flatten(flat, e)
	}
	switch len(flat) {
	case 0:
		return True{}
	case 1:
		return flat[0]
	default:
		return flat
	}
}

func flatten(dst And, e Expr) And {
	switch v := e.(type) {
	case nil, True:
		return dst
	case And:
		for _, inner := range v {
			dst = flatten(dst, inner)
		}
		return dst
	default:
		return append(dst, e)
	}
}

func orDefault(f, def Field) Field {
	if f == "" {
		return def
	}
	return f
}

func nullSafe(f Field) Expr {
	return Call{Name: "ifNull", Args: []Expr{f, String("")}}
}
