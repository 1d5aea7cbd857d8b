package types

import "fmt"

// FilterKind 订阅过滤器类型
// 取值与客户端协议中的 "from" 字段一致
type FilterKind string

const (
	// FilterSource 按消息源地址过滤
	FilterSource FilterKind = "src"
	// FilterDestination 按消息目标地址过滤
	FilterDestination FilterKind = "dest"
	// FilterAll 接收全部消息
	FilterAll FilterKind = "all"
)

// Valid 是否为已知的过滤器类型
func (k FilterKind) Valid() bool {
	switch k {
	case FilterSource, FilterDestination, FilterAll:
		return true
	}
	return false
}

// Filter 订阅过滤器
// Kind 为 FilterAll 时 Address 被忽略
type Filter struct {
	Kind    FilterKind
	Address AddressHash
}

// SourceFilter 构造源地址过滤器
func SourceFilter(h AddressHash) Filter { return Filter{Kind: FilterSource, Address: h} }

// DestinationFilter 构造目标地址过滤器
func DestinationFilter(h AddressHash) Filter { return Filter{Kind: FilterDestination, Address: h} }

// AllFilter 构造通配过滤器
func AllFilter() Filter { return Filter{Kind: FilterAll} }

func (f Filter) String() string {
	if f.Kind == FilterAll {
		return string(FilterAll)
	}
	return fmt.Sprintf("%s:%s", f.Kind, f.Address)
}
