package lock

import (
	"time"

	"github.com/xiaoxuxiansheng/redis_lock"
)

// Options 锁管理器选项
type Options struct {
	// 请求未指定 expiry 时锁的有效期
	DefaultExpiry time.Duration
	// 分布式互斥锁的过期秒数
	GuardExpireSeconds int64
	// 为空时只在进程内维护锁
	Client *redis_lock.Client
	Now    func() time.Time
}

type Option func(*Options)

func WithDefaultExpiry(expiry time.Duration) Option {
	return func(o *Options) {
		o.DefaultExpiry = expiry
	}
}

func WithGuardExpireSeconds(seconds int64) Option {
	return func(o *Options) {
		o.GuardExpireSeconds = seconds
	}
}

func WithRedisClient(client *redis_lock.Client) Option {
	return func(o *Options) {
		o.Client = client
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Options) {
		o.Now = now
	}
}

func repair(o *Options) {
	if o.DefaultExpiry <= 0 {
		o.DefaultExpiry = 5 * time.Minute
	}

	if o.GuardExpireSeconds <= 0 {
		o.GuardExpireSeconds = 5
	}

	if o.Now == nil {
		o.Now = time.Now
	}
}
