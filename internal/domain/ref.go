package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind tags the entity kind a polymorphic reference points to.
type Kind string

const (
	KindUser  Kind = "user"
	KindGroup Kind = "group"
)

// Kinds lists the supported reference kinds in lookup priority order.
var Kinds = []Kind{KindGroup, KindUser}

func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindUser, KindGroup:
		return k, nil
	default:
		return "", fmt.Errorf("unknown reference kind %q", s)
	}
}

// Ref is a (kind, id) pair addressing a user or a group. A Ref with an empty
// Kind carries only an id whose kind has to be discovered during resolution.
type Ref struct {
	Kind Kind  `json:"kind"`
	ID   int64 `json:"id"`
}

func (r Ref) IsZero() bool {
	return r.ID == 0
}

func (r Ref) String() string {
	if r.Kind == "" {
		return strconv.FormatInt(r.ID, 10)
	}
	return string(r.Kind) + ":" + strconv.FormatInt(r.ID, 10)
}

// Actor is a locally stored user or group snapshot.
type Actor struct {
	Ref
	Name      string `json:"name"`
	Shortname string `json:"shortname,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
}
