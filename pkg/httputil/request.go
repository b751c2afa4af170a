package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/kennel/pkg/errs"
)

// ParseJSON decodes the request body into dest. Failures are
// invalid-parameter errors.
func ParseJSON(r *http.Request, dest interface{}) error {
	err := json.NewDecoder(r.Body).Decode(dest)
	var tooLarge *http.MaxBytesError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return errs.InvalidParameter("request body is empty")
	case errors.As(err, &tooLarge):
		return errs.InvalidParameter("request body exceeds %d bytes", tooLarge.Limit)
	default:
		return errs.InvalidParameter("invalid JSON: %v", err)
	}
}

// ParseJSONOrError decodes JSON and writes the error response on failure
func ParseJSONOrError(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	if err := ParseJSON(r, dest); err != nil {
		WriteDomainError(w, r, err)
		return false
	}
	return true
}

func parseQueryInt[T int | int64](r *http.Request, key string, defaultVal T, bits int) (T, error) {
	str := r.URL.Query().Get(key)
	if str == "" {
		return defaultVal, nil
	}
	val, err := strconv.ParseInt(str, 10, bits)
	if err != nil {
		return 0, errs.InvalidParameter("query parameter %s must be an integer, got [%s]", key, str)
	}
	return T(val), nil
}

// ParseQueryInt extracts an integer query parameter
func ParseQueryInt(r *http.Request, key string, defaultVal int) (int, error) {
	return parseQueryInt(r, key, defaultVal, strconv.IntSize)
}

// ParseQueryInt64 extracts an int64 query parameter
func ParseQueryInt64(r *http.Request, key string, defaultVal int64) (int64, error) {
	return parseQueryInt(r, key, defaultVal, 64)
}

// ParseQueryBool extracts a boolean query parameter. A parameter present
// without a value counts as true.
func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	values, ok := r.URL.Query()[key]
	if !ok {
		return defaultVal, nil
	}
	if len(values) == 0 || values[0] == "" {
		return true, nil
	}
	val, err := strconv.ParseBool(values[0])
	if err != nil {
		return false, errs.InvalidParameter("query parameter %s must be a boolean, got [%s]", key, values[0])
	}
	return val, nil
}

// ParseQueryList extracts a comma separated query parameter. Repeated
// parameters are concatenated.
func ParseQueryList(r *http.Request, key string) []string {
	var out []string
	for _, v := range r.URL.Query()[key] {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
	}
	return out
}
