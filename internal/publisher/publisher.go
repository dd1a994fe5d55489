package publisher

import "context"

// Publisher writes artifact content to the remote store. Publish resolves
// create-vs-update itself: an existence probe decides whether the write
// carries the prior revision token.
//
// The probe-then-write pair is not transactional against concurrent
// writers. The watcher is the sole writer to its artifact paths by
// convention, so the narrow window is accepted rather than locked.
type Publisher interface {
	Publish(ctx context.Context, path string, content []byte, message string) error
}
