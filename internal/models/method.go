package models

import "fmt"

// Method identifies one way of delivering a locate request to a district.
// The set is closed: routing code switches exhaustively over these values
// instead of dispatching on raw config strings.
type Method string

const (
	MethodAPI   Method = "api"
	MethodWeb   Method = "web"
	MethodEmail Method = "email"
	MethodPhone Method = "phone"
)

// AllMethods returns every known method in default priority order.
func AllMethods() []Method {
	return []Method{MethodAPI, MethodWeb, MethodEmail, MethodPhone}
}

// ParseMethod converts a config/database string to a Method. "webform" is
// accepted as a legacy alias for "web".
func ParseMethod(s string) (Method, error) {
	switch s {
	case "api":
		return MethodAPI, nil
	case "web", "webform":
		return MethodWeb, nil
	case "email":
		return MethodEmail, nil
	case "phone":
		return MethodPhone, nil
	default:
		return "", fmt.Errorf("models: unknown submission method %q", s)
	}
}

func (m Method) String() string { return string(m) }
