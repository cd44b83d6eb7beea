package taskstore_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/checkin/internal/adapters/taskstore"
)

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("CHECKIN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CHECKIN_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	convey.Convey("Given a redis task store with one pending task", t, storeContract(func() taskstore.Store {
		// Each run gets its own namespace so sorted sets start empty.
		prefix := fmt.Sprintf("checkin-test:%d:", time.Now().UnixNano())
		t.Cleanup(func() {
			ctx := context.Background()
			keys, _ := client.Keys(ctx, prefix+"*").Result()
			if len(keys) > 0 {
				client.Del(ctx, keys...)
			}
		})
		return taskstore.NewRedisStore(client, taskstore.WithKeyPrefix(prefix), taskstore.WithTTL(time.Minute))
	}))
}
