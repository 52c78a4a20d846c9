package redis

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/viant/fluxflow/service/dao/flowctx"
	"github.com/viant/fluxflow/service/dao/flowctx/repotest"
)

func TestRepository(t *testing.T) {
	repotest.Run(t, func(t *testing.T) flowctx.Repository {
		server := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: server.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return New(client, "test:")
	})
}
