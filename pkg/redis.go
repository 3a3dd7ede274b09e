package pkg

import (
	"fmt"
	"sync"

	"github.com/xiaoxuxiansheng/redis_lock"
)

var (
	redisClient *redis_lock.Client
	once        sync.Once
)

func NewRedisClient(network, address, password string) *redis_lock.Client {
	return redis_lock.NewClient(network, address, password)
}

func GetRedisClient(network, address, password string) *redis_lock.Client {
	once.Do(func() {
		redisClient = redis_lock.NewClient(network, address, password)
	})
	return redisClient
}

// 构造加锁互斥 key，多实例下串行执行 LockFeature
func BuildLockGuardKey() string {
	return "gowfs:lock:guard"
}

// 构造要素锁 key，值为持有者 lockId 与过期时间
func BuildFeatureLockKey(fid string) string {
	return fmt.Sprintf("gowfs:lock:feature:%s", fid)
}

// 构造记录入库互斥 key
func BuildRecordLockKey(identifier string) string {
	return fmt.Sprintf("gowfs:record:lock:%s", identifier)
}
