// Package codec 解码 TON 外部消息
//
// 只关心消息头中的源/目标标准地址（addr_std 的 32 字节哈希部分），
// 消息体与 StateInit 不做解析，原始字节原样转发。
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/tvm/cell"

	"github.com/weisyn/tonrelay/pkg/interfaces/relay"
	"github.com/weisyn/tonrelay/pkg/types"
)

var (
	// ErrMalformedMessage 无法解析为 TON 消息
	ErrMalformedMessage = errors.New("malformed message")

	// ErrInvalidAddress 地址字符串无法解析
	ErrInvalidAddress = errors.New("invalid address")
)

// Codec 基于 tonutils-go 的解码器
type Codec struct{}

var _ relay.Codec = (*Codec)(nil)

// New 创建解码器
func New() *Codec {
	return &Codec{}
}

// Parse 从 BOC 中提取源/目标地址哈希
func (c *Codec) Parse(raw []byte) (*types.ExternalMessage, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	root, err := cell.FromBOC(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var msg tlb.Message
	if err := tlb.LoadFromCell(&msg, root.BeginParse()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var src, dst *address.Address
	switch msg.MsgType {
	case tlb.MsgTypeInternal:
		m := msg.AsInternal()
		src, dst = m.SrcAddr, m.DstAddr
	case tlb.MsgTypeExternalIn:
		m := msg.AsExternalIn()
		src, dst = m.SrcAddr, m.DstAddr
	case tlb.MsgTypeExternalOut:
		m := msg.AsExternalOut()
		src, dst = m.SrcAddr, m.DstAddr
	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedMessage, msg.MsgType)
	}

	return &types.ExternalMessage{
		Raw:         raw,
		Source:      hashPart(src),
		Destination: hashPart(dst),
	}, nil
}

// ParseAddress 支持用户友好格式（base64）与原始格式 "<workchain>:<hex>"
func (c *Codec) ParseAddress(s string) (types.RawAddress, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.RawAddress{}, fmt.Errorf("%w: empty", ErrInvalidAddress)
	}
	if strings.Contains(s, ":") {
		return parseRaw(s)
	}

	addr, err := address.ParseAddr(s)
	if err != nil {
		return types.RawAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	hash, err := types.AddressHashFromBytes(addr.Data())
	if err != nil {
		return types.RawAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return types.RawAddress{Workchain: addr.Workchain(), Hash: hash}, nil
}

func parseRaw(s string) (types.RawAddress, error) {
	wcPart, hashPart, ok := strings.Cut(s, ":")
	if !ok {
		return types.RawAddress{}, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	wc, err := strconv.ParseInt(wcPart, 10, 32)
	if err != nil {
		return types.RawAddress{}, fmt.Errorf("%w: workchain %q", ErrInvalidAddress, wcPart)
	}
	data, err := hex.DecodeString(hashPart)
	if err != nil {
		return types.RawAddress{}, fmt.Errorf("%w: hash %q", ErrInvalidAddress, hashPart)
	}
	hash, err := types.AddressHashFromBytes(data)
	if err != nil {
		return types.RawAddress{}, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return types.RawAddress{Workchain: int32(wc), Hash: hash}, nil
}

// hashPart 只接受 addr_std，其余（addr_none / addr_extern / addr_var）视为缺失
func hashPart(addr *address.Address) *types.AddressHash {
	if addr == nil || addr.Type() != address.StdAddress {
		return nil
	}
	hash, err := types.AddressHashFromBytes(addr.Data())
	if err != nil {
		return nil
	}
	return &hash
}
