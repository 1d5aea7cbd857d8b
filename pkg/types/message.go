package types

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint 消息指纹（原始字节的 SHA-256）
type Fingerprint [sha256.Size]byte

// FingerprintOf 计算原始消息的指纹
func FingerprintOf(raw []byte) Fingerprint {
	return sha256.Sum256(raw)
}

// String 返回十六进制表示
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// ExternalMessage 已解析的外部消息
// 创建后不再修改；Source/Destination 为 nil 表示消息头中没有对应的标准地址
type ExternalMessage struct {
	Raw         []byte
	Source      *AddressHash
	Destination *AddressHash
}

// Hex 返回原始字节的十六进制编码（下发给订阅者的 data 字段）
func (m *ExternalMessage) Hex() string {
	return hex.EncodeToString(m.Raw)
}
