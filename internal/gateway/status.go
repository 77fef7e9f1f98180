package gateway

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"ojclient/pkg/errors"
)

// CheckStatus maps a non-2xx response to a coded error. The message is taken
// from the REST error body when it has one of the usual shapes:
// {"detail": "..."}, {"field": ["...", ...]}, or a bare string.
func CheckStatus(resp *Response) error {
	if resp.OK() {
		return nil
	}
	code := errors.FromHTTPStatus(resp.StatusCode)
	msg := ErrorMessage(resp.Body)
	if msg == "" {
		msg = fmt.Sprintf("%s (HTTP %d)", code.Message(), resp.StatusCode)
	}
	return errors.New(code).WithMessage(msg).WithDetail("status", resp.StatusCode)
}

const maxRawMessage = 200

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ErrorMessage extracts a human readable message from an error body.
func ErrorMessage(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return truncate(trimmed, maxRawMessage)
	}

	switch v := raw.(type) {
	case string:
		return v
	case []any:
		return joinMessages(v)
	case map[string]any:
		for _, key := range []string{"detail", "message", "error"} {
			if msg, ok := v[key].(string); ok && msg != "" {
				return msg
			}
		}
		if list, ok := v["non_field_errors"].([]any); ok {
			return joinMessages(list)
		}
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			var msg string
			switch fv := v[k].(type) {
			case string:
				msg = fv
			case []any:
				msg = joinMessages(fv)
			}
			if msg != "" {
				parts = append(parts, k+": "+msg)
			}
		}
		return strings.Join(parts, "; ")
	}
	return ""
}

func joinMessages(items []any) string {
	parts := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok && s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
