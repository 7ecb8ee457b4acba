// Package keylock 提供按 key 粒度的互斥锁。
// 同一 key 的操作串行，不同 key 之间互不阻塞；引用计数归零后回收，map 不会无限增长。
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyLock 按 key 加锁。零值不可用，请使用 New。
type KeyLock struct {
	mu    sync.Mutex
	locks map[string]*entry
}

func New() *KeyLock {
	return &KeyLock{locks: make(map[string]*entry)}
}

// Lock 获取 key 对应的锁，返回的函数用于释放。
func (k *KeyLock) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len 当前持有或等待中的 key 数量。
func (k *KeyLock) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
