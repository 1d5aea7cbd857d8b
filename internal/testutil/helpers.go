package testutil

import (
	"github.com/weisyn/tonrelay/pkg/types"
)

// Hash 生成每个字节都为 b 的地址哈希
func Hash(b byte) types.AddressHash {
	var h types.AddressHash
	for i := range h {
		h[i] = b
	}
	return h
}

// HashPtr 同 Hash，返回指针
func HashPtr(b byte) *types.AddressHash {
	h := Hash(b)
	return &h
}
