package session

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// New returns the store for kind ("redis" or "memory"). client is only
// used for redis.
func New(kind string, client *redis.Client) (Store, error) {
	switch kind {
	case "memory":
		return NewMemoryStore(), nil
	case "redis", "":
		if client == nil {
			return nil, fmt.Errorf("session: redis store needs a client")
		}
		return NewRedisStore(client), nil
	default:
		return nil, fmt.Errorf("session: unknown store %q", kind)
	}
}
