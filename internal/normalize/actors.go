package normalize

import (
	"strings"

	"discussion_syncer/internal/domain"
)

var actorStrategies = map[domain.Kind]Strategy{
	domain.KindUser:  UserStrategy,
	domain.KindGroup: GroupStrategy,
}

// Actor normalizes one user or group snapshot.
func Actor(kind domain.Kind, raw map[string]any) (domain.Actor, error) {
	s, ok := actorStrategies[kind]
	if !ok {
		return domain.Actor{}, &domain.MalformedPayloadError{Entity: "actor", Key: "kind", Reason: "unsupported kind " + string(kind)}
	}
	f, err := s.Apply(raw)
	if err != nil {
		return domain.Actor{}, err
	}
	id, ok := f.Int64("id")
	if !ok {
		return domain.Actor{}, &domain.MalformedPayloadError{Entity: s.Entity, Key: "id", Reason: "not an integer"}
	}

	name := f.String("name")
	if name == "" {
		name = strings.TrimSpace(f.String("first_name") + " " + f.String("last_name"))
	}

	return domain.Actor{
		Ref:       domain.Ref{Kind: kind, ID: id},
		Name:      name,
		Shortname: f.String("shortname"),
		PhotoURL:  f.String("photo_url"),
	}, nil
}

var entitySections = []struct {
	key  string
	kind domain.Kind
}{
	{"groups", domain.KindGroup},
	{"users", domain.KindUser},
}

// Actors collects the user and group snapshots batched in an "entities" object.
func Actors(entities map[string]any) ([]domain.Actor, error) {
	var actors []domain.Actor
	for _, section := range entitySections {
		for _, raw := range toMaps(entities[section.key]) {
			a, err := Actor(section.kind, raw)
			if err != nil {
				return nil, err
			}
			actors = append(actors, a)
		}
	}
	return actors, nil
}

// UsersPage is one page of a likes or voters listing.
type UsersPage struct {
	Users []domain.Actor
	// Total is the remote aggregate count when the page reports one.
	Total *int
}

var totalKeys = []string{"total_count", "totalCount", "count"}

// Users normalizes a likes/voters response. The users value is either a
// plain list or an object carrying "count" and "items".
func Users(resp map[string]any) (UsersPage, error) {
	var (
		page  UsersPage
		items []map[string]any
	)

	switch v := resp["users"].(type) {
	case []any:
		items = toMaps(v)
	case map[string]any:
		items = toMaps(v["items"])
		if n, ok := toInt64(v["count"]); ok {
			total := int(n)
			page.Total = &total
		}
	}

	if page.Total == nil {
		for _, key := range totalKeys {
			if n, ok := toInt64(resp[key]); ok {
				total := int(n)
				page.Total = &total
				break
			}
		}
	}

	page.Users = make([]domain.Actor, 0, len(items))
	for _, raw := range items {
		a, err := Actor(domain.KindUser, raw)
		if err != nil {
			return UsersPage{}, err
		}
		page.Users = append(page.Users, a)
	}
	return page, nil
}

// PageInfo reads the continuation anchor and the optional has_more flag.
func PageInfo(resp map[string]any) (anchor string, hasMore *bool) {
	anchor = toString(resp["anchor"])
	if v, ok := resp["has_more"]; ok {
		b := Fields{"has_more": v}.Bool("has_more")
		hasMore = &b
	}
	return anchor, hasMore
}
