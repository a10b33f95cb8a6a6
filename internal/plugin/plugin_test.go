package plugin

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []Call
	fail  map[string]error
}

func (r *recordingRunner) Run(_ context.Context, sha string, keys []string, args []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{SHA: sha, Keys: keys, Args: args})
	return r.fail[sha]
}

func TestDispatcherRunsEveryCall(t *testing.T) {
	boom := errors.New("boom")
	runner := &recordingRunner{fail: map[string]error{"bad": boom}}
	d := NewDispatcher("plugin-test", runner)

	calls := []Call{
		{SHA: "a", Keys: []string{"oid:0x1"}, Args: []string{"COUNTERS", "1000"}},
		{SHA: "bad"},
		{SHA: "c"},
	}
	errs := d.RunAll(context.Background(), calls)
	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.NoError(t, errs[2])

	var shas []string
	for _, c := range runner.calls {
		shas = append(shas, c.SHA)
	}
	sort.Strings(shas)
	assert.Equal(t, []string{"a", "bad", "c"}, shas)
}

func TestDispatcherEmpty(t *testing.T) {
	d := NewDispatcher("plugin-test-empty", &recordingRunner{})
	assert.Empty(t, d.RunAll(context.Background(), nil))
}

func TestRedisRunner(t *testing.T) {
	addr := os.Getenv("COUNTER_AGENT_REDIS_ADDR")
	if addr == "" {
		t.Skip("COUNTER_AGENT_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	defer client.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	r := NewRedis(client)
	sha, err := r.Load(ctx, "redis.call('SET', KEYS[1], ARGV[1]); return nil")
	require.NoError(t, err)

	key := "COUNTER_AGENT_PLUGIN_TEST"
	require.NoError(t, r.Run(ctx, sha, []string{key}, []string{"ok"}))
	defer client.Del(ctx, key)
	assert.Equal(t, "ok", client.Get(ctx, key).Val())

	assert.Error(t, r.Run(ctx, "0000000000000000000000000000000000000000", nil, nil))
}
