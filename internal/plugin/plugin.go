// Package plugin 对刚发布的计数器执行后处理脚本，脚本存放在服务端，按 SHA 引用
package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/gopkg/util/gopool"
	"github.com/go-redis/redis/v8"
)

const poolCap int32 = 64

// Runner 执行单个脚本
type Runner interface {
	Run(ctx context.Context, sha string, keys []string, args []string) error
}

// Redis 通过 EVALSHA 执行 Lua 脚本
type Redis struct {
	client redis.UniversalClient
}

var _ Runner = (*Redis)(nil)

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Run(ctx context.Context, sha string, keys []string, args []string) error {
	argv := make([]interface{}, len(args))
	for i, a := range args {
		argv[i] = a
	}
	err := r.client.EvalSha(ctx, sha, keys, argv...).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("evalsha %s: %w", sha, err)
	}
	return nil
}

// Load 将脚本写入服务端并返回其 SHA
func (r *Redis) Load(ctx context.Context, script string) (string, error) {
	sha, err := r.client.ScriptLoad(ctx, script).Result()
	if err != nil {
		return "", fmt.Errorf("script load: %w", err)
	}
	return sha, nil
}

// Call 一次脚本调用
type Call struct {
	SHA  string
	Keys []string
	Args []string
}

// Dispatcher 通过协程池并发分发调用
type Dispatcher struct {
	runner Runner
	pool   gopool.Pool
}

func NewDispatcher(name string, runner Runner) *Dispatcher {
	return &Dispatcher{
		runner: runner,
		pool:   gopool.NewPool(name, poolCap, gopool.NewConfig()),
	}
}

// RunAll 执行全部调用并等待完成，返回值与调用一一对应，成功为 nil
func (d *Dispatcher) RunAll(ctx context.Context, calls []Call) []error {
	errs := make([]error, len(calls))
	var wg sync.WaitGroup
	for i, c := range calls {
		wg.Add(1)
		d.pool.CtxGo(ctx, func() {
			defer wg.Done()
			errs[i] = d.runner.Run(ctx, c.SHA, c.Keys, c.Args)
		})
	}
	wg.Wait()
	return errs
}
