package trajectory

import (
	"encoding/base64"
	"encoding/json"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// DefaultWindow bounds how far after an identifier the proximity search looks.
const DefaultWindow = 600

// maxWindow is the largest repeat count regexp accepts.
const maxWindow = 1000

var (
	idFields   = []string{"cascade_id", "cascadeId", "id"}
	textFields = []string{"text", "response", "content", "message", "output", "result"}
	convFields = []string{"cascade_id", "cascadeId"}

	idPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"cascade_id"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`"cascadeId"\s*:\s*"([^"]+)"`),
		regexp.MustCompile(`\bcascade_id\b\s*[=:]\s*([A-Za-z0-9_-]+)`),
	}
	base64Like = regexp.MustCompile(`^[A-Za-z0-9+/]+={0,2}$`)
)

type visitKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

func identity(v any) (visitKey, bool) {
	switch n := v.(type) {
	case *Object:
		return visitKey{ptr: reflect.ValueOf(n).Pointer(), typ: reflect.TypeOf(n)}, true
	case map[string]any:
		return visitKey{ptr: reflect.ValueOf(n).Pointer(), typ: reflect.TypeOf(n)}, true
	case []any:
		if len(n) == 0 {
			return visitKey{}, false
		}
		return visitKey{ptr: reflect.ValueOf(n).Pointer(), len: len(n), typ: reflect.TypeOf(n)}, true
	}
	return visitKey{}, false
}

// Walk visits every node of a snapshot depth first, parents before children
// and children in document order. Each container is visited once even when
// it is reachable more than once.
func Walk(root any, visit func(node any)) {
	stack := []any{root}
	seen := map[visitKey]struct{}{}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == nil {
			continue
		}
		if k, ok := identity(cur); ok {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
		}
		visit(cur)

		switch n := cur.(type) {
		case *Object:
			keys := n.Keys()
			for i := len(keys) - 1; i >= 0; i-- {
				v, _ := n.Get(keys[i])
				stack = append(stack, v)
			}
		case map[string]any:
			keys := make([]string, 0, len(n))
			for k := range n {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for i := len(keys) - 1; i >= 0; i-- {
				stack = append(stack, n[keys[i]])
			}
		case []any:
			for i := len(n) - 1; i >= 0; i-- {
				stack = append(stack, n[i])
			}
		}
	}
}

// field returns the first member among names holding a non-blank string.
func field(node any, names []string) (string, bool) {
	get := func(string) (any, bool) { return nil, false }
	switch n := node.(type) {
	case *Object:
		get = n.Get
	case map[string]any:
		get = func(k string) (any, bool) { v, ok := n[k]; return v, ok }
	default:
		return "", false
	}
	for _, name := range names {
		v, ok := get(name)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s, true
			}
		}
	}
	return "", false
}

// ExtractText finds the output recorded for id in a snapshot. Structural
// matches are tried first and the last one wins; otherwise the nearest text
// field within window characters after the identifier is used. A result that
// looks like base64 and decodes to text is returned decoded.
func ExtractText(snapshot any, id string, window int) string {
	if id == "" {
		return ""
	}
	var candidates []string
	Walk(snapshot, func(node any) {
		nid, ok := field(node, idFields)
		if !ok || nid != id {
			return
		}
		if text, ok := field(node, textFields); ok {
			candidates = append(candidates, text)
		}
	})
	if len(candidates) > 0 {
		return strings.TrimSpace(DecodeMaybeBase64(candidates[len(candidates)-1]))
	}

	text, ok := proximity(Stringify(snapshot), id, window)
	if !ok {
		Walk(snapshot, func(node any) {
			if s, isStr := node.(string); isStr {
				if t, hit := proximity(s, id, window); hit {
					text, ok = t, true
				}
			}
		})
	}
	if !ok {
		return ""
	}
	return strings.TrimSpace(DecodeMaybeBase64(text))
}

func proximityPattern(id string, window int) *regexp.Regexp {
	if window <= 0 {
		window = DefaultWindow
	}
	if window > maxWindow {
		window = maxWindow
	}
	return regexp.MustCompile(regexp.QuoteMeta(id) +
		`[\s\S]{0,` + strconv.Itoa(window) + `}?"(?:text|response|content|message|output|result)"\s*:\s*"((?:[^"\\]|\\.)*)"`)
}

// proximity returns the last text literal found near an occurrence of id.
func proximity(serialized, id string, window int) (string, bool) {
	if serialized == "" || !strings.Contains(serialized, id) {
		return "", false
	}
	matches := proximityPattern(id, window).FindAllStringSubmatch(serialized, -1)
	for i := len(matches) - 1; i >= 0; i-- {
		if m := matches[i][1]; m != "" {
			return unescape(m), true
		}
	}
	return "", false
}

func unescape(s string) string {
	var out string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &out); err != nil {
		return s
	}
	return out
}

// DecodeMaybeBase64 returns the decoded text when s is base64 shaped (only
// base64 characters, at least 16 long, length a multiple of 4) and decodes to
// valid UTF-8. Otherwise s is returned unchanged.
func DecodeMaybeBase64(s string) string {
	n := strings.TrimSpace(s)
	if len(n) < 16 || len(n)%4 != 0 || !base64Like.MatchString(n) {
		return s
	}
	b, err := base64.StdEncoding.DecodeString(n)
	if err != nil || len(b) == 0 || !utf8.Valid(b) {
		return s
	}
	decoded := string(b)
	if strings.ContainsRune(decoded, utf8.RuneError) {
		return s
	}
	return decoded
}

// ConversationIDs lists the conversation identifiers found in a snapshot in
// discovery order: identifier fields of objects and identifier patterns in
// string nodes, or the patterns over the serialized snapshot when the walk
// finds nothing.
func ConversationIDs(snapshot any) []string {
	var ids []string
	Walk(snapshot, func(node any) {
		if id, ok := field(node, convFields); ok {
			ids = append(ids, id)
		}
		if s, ok := node.(string); ok {
			ids = append(ids, idsFromText(s)...)
		}
	})
	if len(ids) > 0 {
		return ids
	}
	if _, isStr := snapshot.(string); isStr {
		return nil
	}
	return idsFromText(Stringify(snapshot))
}

// ExtractConversationID returns the last identifier found in a snapshot that
// differs from exclude.
func ExtractConversationID(snapshot any, exclude string) (string, bool) {
	ids := ConversationIDs(snapshot)
	for i := len(ids) - 1; i >= 0; i-- {
		if ids[i] != exclude {
			return ids[i], true
		}
	}
	return "", false
}

func idsFromText(s string) []string {
	var ids []string
	for _, p := range idPatterns {
		for _, m := range p.FindAllStringSubmatch(s, -1) {
			if m[1] != "" {
				ids = append(ids, m[1])
			}
		}
	}
	return ids
}
