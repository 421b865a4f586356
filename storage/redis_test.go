package storage

import "testing"

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions("redis://:pw@cache.local:6380/2")
	if opts.Addr != "cache.local:6380" || opts.Password != "pw" || opts.DB != 2 || opts.TLSConfig != nil {
		t.Fatalf("unexpected url options %+v", opts)
	}

	opts = RedisOptions("planner.redis.cache.windows.net:6380,password=abc=,ssl=True,abortConnect=False")
	if opts.Addr != "planner.redis.cache.windows.net:6380" || opts.Password != "abc=" {
		t.Fatalf("unexpected azure options %+v", opts)
	}
	if opts.TLSConfig == nil {
		t.Fatalf("ssl=True should enable TLS")
	}

	if opts := RedisOptions("localhost:6379"); opts.Addr != "localhost:6379" || opts.TLSConfig != nil {
		t.Fatalf("unexpected bare address options %+v", opts)
	}
}
