package check

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Status passes when the response status equals code.
func Status(code int) Predicate {
	return func(resp *Response) (bool, error) {
		if resp.Err != nil {
			return false, nil
		}
		return resp.Status == code, nil
	}
}

// StatusIn passes when the response status is one of codes.
func StatusIn(codes ...int) Predicate {
	return func(resp *Response) (bool, error) {
		if resp.Err != nil {
			return false, nil
		}
		for _, c := range codes {
			if resp.Status == c {
				return true, nil
			}
		}
		return false, nil
	}
}

// StatusBelow passes when a response arrived with a status lower than code.
func StatusBelow(code int) Predicate {
	return func(resp *Response) (bool, error) {
		if resp.Err != nil || resp.Status == 0 {
			return false, nil
		}
		return resp.Status < code, nil
	}
}

// DurationBelow passes when the request took less than d.
func DurationBelow(d time.Duration) Predicate {
	return func(resp *Response) (bool, error) {
		if resp.Err != nil {
			return false, nil
		}
		return resp.Duration < d, nil
	}
}

// BodyContains passes when the body contains s.
func BodyContains(s string) Predicate {
	return func(resp *Response) (bool, error) {
		return bytes.Contains(resp.Body, []byte(s)), nil
	}
}

// JSONEquals passes when the value at path, rendered as a string, equals
// want. path accepts gjson syntax or a simple JSONPath such as $.status.
func JSONEquals(path, want string) Predicate {
	gpath := GJSONPath(path)
	return func(resp *Response) (bool, error) {
		res, err := lookup(resp.Body, gpath)
		if err != nil {
			return false, err
		}
		return res.Exists() && res.String() == want, nil
	}
}

// JSONArray passes when the value at path (the whole body when path is
// empty) is a JSON array.
func JSONArray(path string) Predicate {
	gpath := GJSONPath(path)
	return func(resp *Response) (bool, error) {
		res, err := lookup(resp.Body, gpath)
		if err != nil {
			return false, err
		}
		return res.IsArray(), nil
	}
}

// JSONArrayNotEmpty passes when the value at path is a JSON array with at
// least one element.
func JSONArrayNotEmpty(path string) Predicate {
	gpath := GJSONPath(path)
	return func(resp *Response) (bool, error) {
		res, err := lookup(resp.Body, gpath)
		if err != nil {
			return false, err
		}
		return res.IsArray() && len(res.Array()) > 0, nil
	}
}

// Not inverts p. Errors are still failures.
func Not(p Predicate) Predicate {
	return func(resp *Response) (bool, error) {
		ok, err := p(resp)
		if err != nil {
			return false, err
		}
		return !ok, nil
	}
}

func lookup(body []byte, gpath string) (gjson.Result, error) {
	if len(body) == 0 {
		return gjson.Result{}, fmt.Errorf("empty body")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("body is not valid JSON")
	}
	return gjson.GetBytes(body, gpath), nil
}

// GJSONPath converts a simple JSONPath expression ($.a.b[0], $['a']) into
// gjson syntax. Plain gjson paths are returned unchanged and an empty path
// selects the whole document.
func GJSONPath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "$" {
		return "@this"
	}
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")
	if path == "" {
		return "@this"
	}

	path = strings.NewReplacer("['", ".", "']", "", "[\"", ".", "\"]", "").Replace(path)
	path = strings.NewReplacer("[", ".", "]", "").Replace(path)
	return strings.TrimPrefix(path, ".")
}
