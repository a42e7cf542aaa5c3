package feed

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// SQLiteStore is PostStore for the development database, same tables, through
// database/sql and the go-sqlite3 driver.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (ss *SQLiteStore) FindFolloweeIDs(ctx context.Context, userId uint32) ([]uint32, error) {
	query := `
        SELECT following_id
        FROM interactions_followlinks
        WHERE follower_id = ?;
    `
	return ss.queryIDs(ctx, query, userId)
}

func (ss *SQLiteStore) FindFollowerIDs(ctx context.Context, userId uint32) ([]uint32, error) {
	query := `
        SELECT follower_id
        FROM interactions_followlinks
        WHERE following_id = ?;
    `
	return ss.queryIDs(ctx, query, userId)
}

func (ss *SQLiteStore) FindRecentPostIDs(ctx context.Context, authorId uint32, limit int) ([]PostRef, error) {
	query := `
        SELECT p.id, p.author_id, p.created_at
        FROM posts_post p
        WHERE p.author_id = ?
        ORDER BY p.created_at DESC
        LIMIT ?;
    `
	rows, err := ss.db.QueryContext(ctx, query, authorId, limit)
	if err != nil {
		return nil, fmt.Errorf("recent posts of author %d: %w", authorId, err)
	}
	return scanSQLRefs(rows)
}

func (ss *SQLiteStore) FindGlobalRecentPosts(ctx context.Context, limit int) ([]PostRef, error) {
	query := `
        SELECT p.id, p.author_id, p.created_at
        FROM posts_post p
        ORDER BY p.created_at DESC
        LIMIT ?;
    `
	rows, err := ss.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("global recent posts: %w", err)
	}
	return scanSQLRefs(rows)
}

func (ss *SQLiteStore) FindPostsByIDs(ctx context.Context, ids []uint32) ([]Post, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `
        SELECT p.id, p.content, p.created_at, p.author_id
        FROM posts_post p
        WHERE p.id IN (` + placeholders + `);
    `
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := ss.db.QueryContext(ctx, query, args...)
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

func (ss *SQLiteStore) queryIDs(ctx context.Context, query string, userId uint32) ([]uint32, error) {
	rows, err := ss.db.QueryContext(ctx, query, userId)
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

func scanSQLRefs(rows *sql.Rows) ([]PostRef, error) {
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
