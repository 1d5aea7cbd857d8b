// Package registry 实现监听注册表
//
// 📋 **数据结构**
// - source:      源地址哈希 → 订阅者集合
// - destination: 目标地址哈希 → 订阅者集合
// - wildcard:    订阅全部消息的订阅者集合
// - handles:     订阅者 → 其持有的过滤器（反向索引，UnsubscribeAll 不必扫描全部映射）
//
// 空集合会被立即删除，注册表大小只与在线订阅数相关。
// 锁只在修改/查找期间持有，从不跨越投递。
package registry

import (
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

type handleEntry struct {
	sub     relay.Subscriber
	filters mapset.Set[types.Filter]
}

// Registry 监听注册表实现
type Registry struct {
	mu sync.RWMutex

	source      map[types.AddressHash]mapset.Set[types.HandleID]
	destination map[types.AddressHash]mapset.Set[types.HandleID]
	wildcard    mapset.Set[types.HandleID]
	handles     map[types.HandleID]*handleEntry
}

// New 创建空注册表
func New() *Registry {
	return &Registry{
		source:      make(map[types.AddressHash]mapset.Set[types.HandleID]),
		destination: make(map[types.AddressHash]mapset.Set[types.HandleID]),
		wildcard:    mapset.NewThreadUnsafeSet[types.HandleID](),
		handles:     make(map[types.HandleID]*handleEntry),
	}
}

var _ relay.Registry = (*Registry)(nil)

// Subscribe 添加过滤器；未知的过滤器类型被忽略
func (r *Registry) Subscribe(filter types.Filter, sub relay.Subscriber) {
	if sub == nil || !filter.Kind.Valid() {
		return
	}
	filter = normalize(filter)
	id := sub.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.handles[id]
	if !ok {
		entry = &handleEntry{sub: sub, filters: mapset.NewThreadUnsafeSet[types.Filter]()}
		r.handles[id] = entry
	}
	if !entry.filters.Add(filter) {
		return
	}

	switch filter.Kind {
	case types.FilterAll:
		r.wildcard.Add(id)
	case types.FilterSource:
		addToIndex(r.source, filter.Address, id)
	case types.FilterDestination:
		addToIndex(r.destination, filter.Address, id)
	}
}

// Unsubscribe 撤销单个过滤器；订阅者不再持有任何过滤器时从注册表中移除
func (r *Registry) Unsubscribe(filter types.Filter, id types.HandleID) {
	filter = normalize(filter)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.handles[id]
	if !ok || !entry.filters.Contains(filter) {
		return
	}
	r.removeFilter(filter, id)
	entry.filters.Remove(filter)
	if entry.filters.Cardinality() == 0 {
		delete(r.handles, id)
	}
}

// UnsubscribeAll 移除订阅者的全部过滤器，未知 id 为空操作
func (r *Registry) UnsubscribeAll(id types.HandleID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.handles[id]
	if !ok {
		return
	}
	for filter := range entry.filters.Iter() {
		r.removeFilter(filter, id)
	}
	delete(r.handles, id)
}

// Match 通配 ∪ source[src] ∪ destination[dst]，每个订阅者最多一次
func (r *Registry) Match(source, destination *types.AddressHash) []relay.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.wildcard.Clone()
	if source != nil {
		if set, ok := r.source[*source]; ok {
			ids.Append(set.ToSlice()...)
		}
	}
	if destination != nil {
		if set, ok := r.destination[*destination]; ok {
			ids.Append(set.ToSlice()...)
		}
	}

	out := make([]relay.Subscriber, 0, ids.Cardinality())
	ids.Each(func(id types.HandleID) bool {
		if entry, ok := r.handles[id]; ok {
			out = append(out, entry.sub)
		}
		return false
	})
	return out
}

// Stats 在线订阅者数与过滤器总数
func (r *Registry) Stats() (handles int, filters int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.handles {
		filters += entry.filters.Cardinality()
	}
	return len(r.handles), filters
}

// removeFilter 调用方持有写锁
func (r *Registry) removeFilter(filter types.Filter, id types.HandleID) {
	switch filter.Kind {
	case types.FilterAll:
		r.wildcard.Remove(id)
	case types.FilterSource:
		removeFromIndex(r.source, filter.Address, id)
	case types.FilterDestination:
		removeFromIndex(r.destination, filter.Address, id)
	}
}

func addToIndex(index map[types.AddressHash]mapset.Set[types.HandleID], key types.AddressHash, id types.HandleID) {
	set, ok := index[key]
	if !ok {
		set = mapset.NewThreadUnsafeSet[types.HandleID]()
		index[key] = set
	}
	set.Add(id)
}

func removeFromIndex(index map[types.AddressHash]mapset.Set[types.HandleID], key types.AddressHash, id types.HandleID) {
	set, ok := index[key]
	if !ok {
		return
	}
	set.Remove(id)
	if set.Cardinality() == 0 {
		delete(index, key)
	}
}

// normalize 通配过滤器忽略地址
func normalize(filter types.Filter) types.Filter {
	if filter.Kind == types.FilterAll {
		return types.AllFilter()
	}
	return filter
}
