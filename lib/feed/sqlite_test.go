package feed

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `
CREATE TABLE posts_post (
    id INTEGER PRIMARY KEY,
    content TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    author_id INTEGER NOT NULL
);
CREATE TABLE interactions_followlinks (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    follower_id INTEGER NOT NULL,
    following_id INTEGER NOT NULL
);
`

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// every pooled connection would get its own empty in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(testSchema)
	require.NoError(t, err)
	return NewSQLiteStore(db), db
}

func insertPost(t *testing.T, db *sql.DB, id, author uint32, content string, at time.Time) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO posts_post (id, content, created_at, author_id) VALUES (?, ?, ?, ?)`,
		id, content, at, author)
	require.NoError(t, err)
}

func insertFollow(t *testing.T, db *sql.DB, follower, following uint32) {
	t.Helper()
	_, err := db.Exec(`INSERT INTO interactions_followlinks (follower_id, following_id) VALUES (?, ?)`,
		follower, following)
	require.NoError(t, err)
}

func TestSQLiteStoreFollowLinks(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	insertFollow(t, db, 1, 2)
	insertFollow(t, db, 1, 3)
	insertFollow(t, db, 4, 2)

	followees, err := store.FindFolloweeIDs(ctx, 1)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{2, 3}, followees)

	followers, err := store.FindFollowerIDs(ctx, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint32{1, 4}, followers)

	none, err := store.FindFollowerIDs(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStoreRecentPosts(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	insertPost(t, db, 10, 2, "first", epoch)
	insertPost(t, db, 11, 2, "second", epoch.Add(time.Minute))
	insertPost(t, db, 12, 2, "third", epoch.Add(2*time.Minute))
	insertPost(t, db, 13, 3, "other author", epoch.Add(3*time.Minute))

	refs, err := store.FindRecentPostIDs(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, refs, 2)
	assert.Equal(t, uint32(12), refs[0].ID)
	assert.Equal(t, uint32(11), refs[1].ID)
	assert.Equal(t, uint32(2), refs[0].Author)
	assert.True(t, refs[0].CreatedAt.Equal(epoch.Add(2*time.Minute)))

	global, err := store.FindGlobalRecentPosts(ctx, 10)
	require.NoError(t, err)
	ids := make([]uint32, len(global))
	for i, r := range global {
		ids[i] = r.ID
	}
	assert.Equal(t, []uint32{13, 12, 11, 10}, ids)
}

func TestSQLiteStoreFindPostsByIDsKeepsRequestOrder(t *testing.T) {
	store, db := newTestStore(t)
	ctx := context.Background()

	insertPost(t, db, 10, 2, "first", epoch)
	insertPost(t, db, 11, 3, "second", epoch.Add(time.Minute))

	posts, err := store.FindPostsByIDs(ctx, []uint32{11, 99, 10})
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, uint32(11), posts[0].ID)
	assert.Equal(t, "second", posts[0].Content)
	assert.Equal(t, uint32(10), posts[1].ID)

	empty, err := store.FindPostsByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUnavailable(t *testing.T) {
	assert.NoError(t, Unavailable(nil))

	err := Unavailable(errors.New("connection refused"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Contains(t, err.Error(), "connection refused")

	assert.Equal(t, err, Unavailable(err))
	assert.Equal(t, context.Canceled, Unavailable(context.Canceled))
}
