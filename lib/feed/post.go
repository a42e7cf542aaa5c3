package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Post struct {
	ID        uint32    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Author    uint32    `json:"author"`
}

// PostRef is what feeds carry: enough to place a post, nothing to render it.
type PostRef struct {
	ID        uint32
	Author    uint32
	CreatedAt time.Time
}

func (p Post) Ref() PostRef {
	return PostRef{ID: p.ID, Author: p.Author, CreatedAt: p.CreatedAt}
}

// PostStore reads the Django tables posts_post and interactions_followlinks
// from PostgreSQL.
type PostStore struct {
	db *pgxpool.Pool
}

func NewPostStore(db *pgxpool.Pool) *PostStore {
	return &PostStore{db: db}
}

func (ps *PostStore) FindFolloweeIDs(ctx context.Context, userId uint32) ([]uint32, error) {
	query := `
        SELECT following_id
        FROM interactions_followlinks
        WHERE follower_id = $1;
    `
	return ps.queryIDs(ctx, query, userId)
}

func (ps *PostStore) FindFollowerIDs(ctx context.Context, userId uint32) ([]uint32, error) {
	query := `
        SELECT follower_id
        FROM interactions_followlinks
        WHERE following_id = $1;
    `
	return ps.queryIDs(ctx, query, userId)
}

func (ps *PostStore) FindRecentPostIDs(ctx context.Context, authorId uint32, limit int) ([]PostRef, error) {
	query := `
        SELECT p.id, p.author_id, p.created_at
        FROM posts_post p
        WHERE p.author_id = $1
        ORDER BY p.created_at DESC
        LIMIT $2;
    `
	rows, err := ps.db.Query(ctx, query, authorId, limit)
	if err != nil {
		return nil, fmt.Errorf("recent posts of author %d: %w", authorId, err)
	}
	return scanRefs(rows)
}

func (ps *PostStore) FindGlobalRecentPosts(ctx context.Context, limit int) ([]PostRef, error) {
	query := `
        SELECT p.id, p.author_id, p.created_at
        FROM posts_post p
        ORDER BY p.created_at DESC
        LIMIT $1;
    `
	rows, err := ps.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("global recent posts: %w", err)
	}
	return scanRefs(rows)
}

func (ps *PostStore) FindPostsByIDs(ctx context.Context, ids []uint32) ([]Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `
        SELECT p.id, p.content, p.created_at, p.author_id
        FROM posts_post p
        WHERE p.id = ANY($1);
    `
	args := make([]int64, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}

	rows, err := ps.db.Query(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("posts by ids: %w", err)
	}
	defer rows.Close()

	found := make(map[uint32]Post, len(ids))
	for rows.Next() {
		var p Post
		if err := rows.Scan(&p.ID, &p.Content, &p.CreatedAt, &p.Author); err != nil {
			return nil, err
		}
		found[p.ID] = p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return inOrder(ids, found), nil
}

func (ps *PostStore) queryIDs(ctx context.Context, query string, userId uint32) ([]uint32, error) {
	rows, err := ps.db.Query(ctx, query, userId)
	if err != nil {
		return nil, fmt.Errorf("follow links of user %d: %w", userId, err)
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func scanRefs(rows pgx.Rows) ([]PostRef, error) {
	defer rows.Close()

	var refs []PostRef
	for rows.Next() {
		var r PostRef
		if err := rows.Scan(&r.ID, &r.Author, &r.CreatedAt); err != nil {
			return nil, err
		}
		refs = append(refs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// inOrder returns the found posts in the order of ids, skipping the missing ones.
func inOrder(ids []uint32, found map[uint32]Post) []Post {
	posts := make([]Post, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			posts = append(posts, p)
		}
	}
	return posts
}
