package table

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

const (
	separator     = ":"
	scanBatchSize = 512
)

// Redis 以名为 "<table>:<key>" 的 hash 保存每一行
type Redis struct {
	client redis.UniversalClient
	name   string
	prefix string
}

var _ Table = (*Redis)(nil)

func NewRedis(client redis.UniversalClient, name string) *Redis {
	return &Redis{client: client, name: name, prefix: name + separator}
}

func (r *Redis) Name() string { return r.name }

func (r *Redis) key(k string) string { return r.prefix + k }

func (r *Redis) Set(ctx context.Context, key string, fvs []FieldValue) error {
	if len(fvs) == 0 {
		return nil
	}
	if err := r.client.HSet(ctx, r.key(key), pairs(fvs)...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", r.key(key), err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, key string) (map[string]string, error) {
	row, err := r.client.HGetAll(ctx, r.key(key)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", r.key(key), err)
	}
	return row, nil
}

// Keys 扫描表的全部行，去掉表名前缀后按字典序返回
func (r *Redis) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := r.client.Scan(ctx, 0, r.prefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), r.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s*: %w", r.prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (r *Redis) Del(ctx context.Context, key string, fields ...string) error {
	var err error
	if len(fields) == 0 {
		err = r.client.Del(ctx, r.key(key)).Err()
	} else {
		err = r.client.HDel(ctx, r.key(key), fields...).Err()
	}
	if err != nil {
		return fmt.Errorf("del %s: %w", r.key(key), err)
	}
	return nil
}

// Apply 在 MULTI/EXEC 中执行 HDEL 与 HSET
func (r *Redis) Apply(ctx context.Context, key string, del []string, fvs []FieldValue) error {
	if len(del) == 0 {
		return r.Set(ctx, key, fvs)
	}
	k := r.key(key)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, k, del...)
		if len(fvs) > 0 {
			pipe.HSet(ctx, k, pairs(fvs)...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply %s: %w", k, err)
	}
	return nil
}

func pairs(fvs []FieldValue) []interface{} {
	out := make([]interface{}, 0, 2*len(fvs))
	for _, fv := range fvs {
		out = append(out, fv.Field, fv.Value)
	}
	return out
}
