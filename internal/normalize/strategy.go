package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"discussion_syncer/internal/domain"
)

// Rename maps alternate payload keys onto one canonical key. From is in
// priority order and the first present source wins. A dotted source reads
// one level into a nested summary object. A source ending in "_ms" holds
// epoch milliseconds and is truncated to seconds.
type Rename struct {
	To   string
	From []string
}

// Strategy is the per-entity-kind normalization table.
type Strategy struct {
	Entity    string
	IDKey     string
	Renames   []Rename
	Drop      []string
	RefKeys   []string
	TimeKeys  []string
	TokenKeys []string
}

var mediaTopicToken = regexp.MustCompile(`\{media_topic:?(\d+)?\}`)

// Apply turns one raw record into a canonical field mapping. raw is not modified.
func (s Strategy) Apply(raw map[string]any) (Fields, error) {
	f := Fields(clone(raw))

	for _, r := range s.Renames {
		if err := s.rename(f, r); err != nil {
			return nil, err
		}
	}
	for _, key := range s.Drop {
		delete(f, key)
	}

	for _, key := range s.RefKeys {
		v, ok := f[key]
		if !ok {
			continue
		}
		if _, done := v.(domain.Ref); done {
			continue
		}
		ref, err := ParseRef(toString(v))
		if err != nil {
			return nil, &domain.MalformedPayloadError{Entity: s.Entity, Key: key, Reason: err.Error()}
		}
		f[key] = ref
	}

	s.extractToken(f)

	for _, key := range s.TimeKeys {
		v, ok := f[key]
		if !ok || v == nil || v == "" {
			delete(f, key)
			continue
		}
		t, ok := toTime(v)
		if !ok {
			return nil, &domain.MalformedPayloadError{Entity: s.Entity, Key: key, Reason: "unparsable timestamp"}
		}
		f[key] = t
	}

	if s.IDKey != "" && f.String(s.IDKey) == "" {
		return nil, &domain.MalformedPayloadError{Entity: s.Entity, Key: s.IDKey}
	}

	return f, nil
}

func (s Strategy) rename(f Fields, r Rename) error {
	var (
		value any
		found bool
	)
	for _, src := range r.From {
		v, ok := lookup(f, src)
		if !ok || v == nil {
			continue
		}
		if strings.HasSuffix(src, "_ms") {
			ms, ok := toInt64(v)
			if !ok {
				return &domain.MalformedPayloadError{Entity: s.Entity, Key: src, Reason: "not an epoch milliseconds value"}
			}
			v = ms / 1000
		}
		value, found = v, true
		break
	}

	for _, src := range r.From {
		if !strings.Contains(src, ".") {
			delete(f, src)
		}
	}
	if found {
		f[r.To] = value
	}
	return nil
}

func lookup(f Fields, path string) (any, bool) {
	head, tail, nested := strings.Cut(path, ".")
	v, ok := f[head]
	if !ok || !nested {
		return v, ok
	}
	m := toMap(v)
	if m == nil {
		return nil, false
	}
	v, ok = m[tail]
	return v, ok
}

// extractToken strips {media_topic:<id>} placeholders from text fields and
// uses the first embedded id when the record carries none.
func (s Strategy) extractToken(f Fields) {
	for _, key := range s.TokenKeys {
		text, ok := f[key].(string)
		if !ok || !strings.Contains(text, "{media_topic") {
			continue
		}
		if m := mediaTopicToken.FindStringSubmatch(text); m != nil && m[1] != "" && s.IDKey != "" && f.String(s.IDKey) == "" {
			f[s.IDKey] = m[1]
		}
		f[key] = mediaTopicToken.ReplaceAllString(text, "")
	}
}

// refKinds maps the kind prefix of composite references to entity kinds.
var refKinds = map[string]domain.Kind{
	"user":  domain.KindUser,
	"group": domain.KindGroup,
}

// ParseRef parses a composite "<kind>:<id>" reference.
func ParseRef(s string) (domain.Ref, error) {
	prefix, id, ok := strings.Cut(s, ":")
	if !ok {
		return domain.Ref{}, fmt.Errorf("bad composite reference %q", s)
	}
	kind, ok := refKinds[strings.ToLower(prefix)]
	if !ok {
		return domain.Ref{}, fmt.Errorf("unknown reference kind in %q", s)
	}
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return domain.Ref{}, fmt.Errorf("bad reference id in %q", s)
	}
	return domain.Ref{Kind: kind, ID: n}, nil
}
