package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/samber/lo"

	"discussion_syncer/internal/domain"
)

var actorTables = map[domain.Kind]string{
	domain.KindUser:  "users",
	domain.KindGroup: "groups",
}

type ActorStore struct {
	db *sqlx.DB
}

func NewActorStore(db *sqlx.DB) *ActorStore {
	return &ActorStore{db: db}
}

func (s *ActorStore) GetActor(ctx context.Context, ref domain.Ref) (*domain.Actor, error) {
	table, ok := actorTables[ref.Kind]
	if !ok {
		return nil, fmt.Errorf("unsupported actor kind %q", ref.Kind)
	}

	a := domain.Actor{Ref: ref}
	query := `SELECT name, shortname, photo_url FROM ` + table + ` WHERE id = $1`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, ref.ID).Scan(&a.Name, &a.Shortname, &a.PhotoURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpsertActors writes snapshots in one statement per kind. A later snapshot
// of the same actor in the batch is ignored.
func (s *ActorStore) UpsertActors(ctx context.Context, actors []domain.Actor) error {
	byKind := lo.GroupBy(lo.UniqBy(actors, func(a domain.Actor) domain.Ref { return a.Ref }),
		func(a domain.Actor) domain.Kind { return a.Kind })
	if unknown := lo.Without(lo.Keys(byKind), domain.Kinds...); len(unknown) > 0 {
		return fmt.Errorf("unsupported actor kinds %v", unknown)
	}

	for _, kind := range domain.Kinds {
		batch := byKind[kind]
		if len(batch) == 0 {
			continue
		}

		table := actorTables[kind]
		var sb strings.Builder
		sb.WriteString("INSERT INTO " + table + " (id, name, shortname, photo_url) VALUES ")
		args := make([]any, 0, len(batch)*4)

		for i, a := range batch {
			if i > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d)", i*4+1, i*4+2, i*4+3, i*4+4)
			args = append(args, a.ID, a.Name, a.Shortname, a.PhotoURL)
		}
		// partial snapshots never blank out stored fields
		fmt.Fprintf(&sb, ` ON CONFLICT (id) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), %[1]s.name),
			shortname = COALESCE(NULLIF(EXCLUDED.shortname, ''), %[1]s.shortname),
			photo_url = COALESCE(NULLIF(EXCLUDED.photo_url, ''), %[1]s.photo_url),
			updated_at = NOW()`, table)

		if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("upsert %s: %w", table, err)
		}
	}

	return nil
}
