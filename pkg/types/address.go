package types

import (
	"encoding/hex"
	"fmt"
)

// AddressHashSize 账户地址哈希部分长度（字节）
const AddressHashSize = 32

// AddressHash 账户地址的哈希部分（不含 workchain）
// 作为监听注册表的键使用，可直接比较
type AddressHash [AddressHashSize]byte

// String 返回十六进制表示
func (h AddressHash) String() string {
	return hex.EncodeToString(h[:])
}

// AddressHashFromBytes 从字节切片构造地址哈希
func AddressHashFromBytes(b []byte) (AddressHash, error) {
	var h AddressHash
	if len(b) != AddressHashSize {
		return h, fmt.Errorf("address hash must be %d bytes, got %d", AddressHashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// RawAddress 原始格式地址（workchain + 哈希）
// 用于订阅确认中回显规范化后的地址
type RawAddress struct {
	Workchain int32
	Hash      AddressHash
}

// String 返回 "<workchain>:<hex>" 原始格式
func (a RawAddress) String() string {
	return fmt.Sprintf("%d:%s", a.Workchain, a.Hash.String())
}
