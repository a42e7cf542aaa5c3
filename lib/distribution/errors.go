package distribution

import (
	"errors"
	"fmt"

	"github.com/smks17/feed_distribution/lib/feed"
)

// ErrInvalidArgument is returned before any I/O for requests that can never
// succeed.
var ErrInvalidArgument = errors.New("distribution: invalid argument")

// ErrStoreUnavailable is feed.ErrStoreUnavailable, re-exported for callers
// that only talk to the engine.
var ErrStoreUnavailable = feed.ErrStoreUnavailable

// PartialFanOutError reports the recipients a publish or retract did not
// reach. The post is still delivered everywhere else; the missed followers
// pick it up on their next cold-start repair.
type PartialFanOutError struct {
	PostID uint32
	Failed []uint32
	Err    error
}

func (e *PartialFanOutError) Error() string {
	return fmt.Sprintf("post %d: partial fan-out, %d feeds missed: %v", e.PostID, len(e.Failed), e.Err)
}

func (e *PartialFanOutError) Unwrap() error {
	return e.Err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidArgument}, args...)...)
}

func validatePage(page, limit int) error {
	if page < 1 || page > MaxPage {
		return invalid("page must be within 1..%d, got %d", MaxPage, page)
	}
	if limit < 1 || limit > MaxPageSize {
		return invalid("limit must be within 1..%d, got %d", MaxPageSize, limit)
	}
	return nil
}

func validateUser(name string, id uint32) error {
	if id == 0 {
		return invalid("%s id must be set", name)
	}
	return nil
}

func validatePost(post feed.PostRef) error {
	if post.ID == 0 {
		return invalid("post id must be set")
	}
	if err := validateUser("author", post.Author); err != nil {
		return err
	}
	if post.CreatedAt.IsZero() {
		return invalid("post %d has no creation time", post.ID)
	}
	return nil
}
