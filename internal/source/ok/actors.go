package ok

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"discussion_syncer/internal/domain"
	"discussion_syncer/internal/normalize"
)

const (
	methodUsersInfo  = "users.getInfo"
	methodGroupsInfo = "group.getInfo"

	userFields  = "uid,name,first_name,last_name,pic_1"
	groupFields = "uid,name,shortname,pic_avatar"
)

type caller interface {
	Call(ctx context.Context, method string, params map[string]string) (map[string]any, error)
}

// UserFetcher loads user profiles by id.
type UserFetcher struct {
	api caller
}

func NewUserFetcher(api caller) *UserFetcher {
	return &UserFetcher{api: api}
}

func (f *UserFetcher) FetchActors(ctx context.Context, ids []int64) ([]domain.Actor, error) {
	return fetchActors(ctx, f.api, methodUsersInfo, domain.KindUser, map[string]string{
		"uids":   joinIDs(ids),
		"fields": userFields,
	})
}

// GroupFetcher loads group profiles by id.
type GroupFetcher struct {
	api caller
}

func NewGroupFetcher(api caller) *GroupFetcher {
	return &GroupFetcher{api: api}
}

func (f *GroupFetcher) FetchActors(ctx context.Context, ids []int64) ([]domain.Actor, error) {
	return fetchActors(ctx, f.api, methodGroupsInfo, domain.KindGroup, map[string]string{
		"uids":   joinIDs(ids),
		"fields": groupFields,
	})
}

func fetchActors(ctx context.Context, api caller, method string, kind domain.Kind, params map[string]string) ([]domain.Actor, error) {
	resp, err := api.Call(ctx, method, params)
	if err != nil {
		return nil, err
	}

	items, _ := resp["result"].([]any)
	actors := make([]domain.Actor, 0, len(items))
	for _, item := range items {
		raw, ok := item.(map[string]any)
		if !ok {
			return nil, &domain.MalformedPayloadError{Entity: string(kind), Key: "result", Reason: fmt.Sprintf("unexpected item %T", item)}
		}
		a, err := normalize.Actor(kind, raw)
		if err != nil {
			return nil, err
		}
		actors = append(actors, a)
	}
	return actors, nil
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ",")
}
