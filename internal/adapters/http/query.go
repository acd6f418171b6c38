package http

import (
	"net/url"
	"strconv"
)

// GetInt returns def when key is absent and an error when it is not an
// integer.
func GetInt(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
