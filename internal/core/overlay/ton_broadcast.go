package overlay

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/xssnick/raptorq"
	"github.com/xssnick/tonutils-go/adnl/keys"
	"github.com/xssnick/tonutils-go/adnl/node"
	tonoverlay "github.com/xssnick/tonutils-go/adnl/overlay"
	"github.com/xssnick/tonutils-go/adnl/rldp"
	"github.com/xssnick/tonutils-go/tl"
)

func init() {
	tl.Register(broadcastID{}, "overlay.broadcast.id src:int256 data_hash:int256 flags:int = overlay.broadcast.Id")
}

const (
	// broadcastFlagAnySender 广播 ID 不绑定发送者
	broadcastFlagAnySender int32 = 1

	// maxSimpleBroadcastSize 超过该长度改用 FEC 广播
	maxSimpleBroadcastSize = 768

	// fecSymbolSize 覆盖网络 FEC 符号长度
	fecSymbolSize uint32 = 768

	// maxFECBroadcastSize 接收端接受的 FEC 广播上限
	maxFECBroadcastSize uint32 = 1 << 20

	// fecStreamTTL 未完成或已完成的 FEC 流保留时间
	fecStreamTTL = 2 * time.Minute

	// maxFECStreams 同时跟踪的 FEC 流上限，超过后先清理过期流
	maxFECStreams = 1024
)

var (
	// ErrBadBroadcast 广播签名或结构无效
	ErrBadBroadcast = errors.New("invalid overlay broadcast")
)

// broadcastID overlay.broadcast.id
type broadcastID struct {
	Source   []byte `tl:"int256"`
	DataHash []byte `tl:"int256"`
	Flags    int32  `tl:"int"`
}

// ShardOverlayKey 分片公共覆盖网络的完整标识（pub.overlay 的 name）
//
// 工作链的全部分片共享一个公共覆盖网络，分片固定为 shardIdAll
func ShardOverlayKey(workchain int32, zeroStateFileHash []byte) ([]byte, error) {
	if len(zeroStateFileHash) != 32 {
		return nil, fmt.Errorf("zero state file hash must be 32 bytes, got %d", len(zeroStateFileHash))
	}
	return tl.Serialize(node.ShardPublicOverlayID{
		Workchain:         workchain,
		Shard:             math.MinInt64,
		ZeroStateFileHash: zeroStateFileHash,
	}, true)
}

// ShardOverlayID 覆盖网络短标识，出现在每条 overlay.message / overlay.query 中
func ShardOverlayID(overlayKey []byte) ([]byte, error) {
	return tl.Hash(keys.PublicKeyOverlay{Key: overlayKey})
}

// externalBroadcastData 外部消息广播的载荷：序列化后的 tonNode.externalMessageBroadcast
func externalBroadcastData(payload []byte) ([]byte, error) {
	return tl.Serialize(node.NewExternalMessageBroadcast{
		Message: node.ExternalMessage{Data: payload},
	}, true)
}

// externalFromBroadcastData 从广播载荷中取出外部消息，其它广播类型返回 false
func externalFromBroadcastData(data []byte) ([]byte, bool) {
	var obj tl.Serializable
	if _, err := tl.Parse(&obj, data, true); err != nil {
		return nil, false
	}
	switch m := obj.(type) {
	case node.NewExternalMessageBroadcast:
		return m.Message.Data, true
	case *node.NewExternalMessageBroadcast:
		return m.Message.Data, true
	}
	return nil, false
}

func simpleBroadcastHash(source any, data []byte, flags int32) ([]byte, error) {
	src := make([]byte, 32)
	if flags&broadcastFlagAnySender == 0 {
		var err error
		if src, err = tl.Hash(source); err != nil {
			return nil, err
		}
	}
	dataHash := sha256.Sum256(data)
	return tl.Hash(broadcastID{Source: src, DataHash: dataHash[:], Flags: flags})
}

func signedPayload(hash []byte, date uint32) ([]byte, error) {
	return tl.Serialize(tonoverlay.BroadcastToSign{Hash: hash, Date: date}, true)
}

func fecPartHash(broadcastHash, symbol []byte, seqno uint32) ([]byte, error) {
	dataHash := sha256.Sum256(symbol)
	return tl.Hash(tonoverlay.BroadcastFECPartID{
		BroadcastHash: broadcastHash,
		DataHash:      dataHash[:],
		Seqno:         seqno,
	})
}

// buildBroadcasts 为载荷生成签名广播：短载荷一条 overlay.broadcast，
// 长载荷按 RaptorQ 编码为若干 overlay.broadcastFec 分片（多发约 3% 冗余）
func buildBroadcasts(key ed25519.PrivateKey, data []byte, now time.Time) ([]tl.Serializable, error) {
	source := keys.PublicKeyED25519{Key: key.Public().(ed25519.PublicKey)}
	date := uint32(now.Unix())

	if len(data) <= maxSimpleBroadcastSize {
		hash, err := simpleBroadcastHash(source, data, broadcastFlagAnySender)
		if err != nil {
			return nil, err
		}
		toSign, err := signedPayload(hash, date)
		if err != nil {
			return nil, err
		}
		return []tl.Serializable{tonoverlay.Broadcast{
			Source:      source,
			Certificate: tonoverlay.CertificateEmpty{},
			Flags:       broadcastFlagAnySender,
			Data:        data,
			Date:        int32(date),
			Signature:   ed25519.Sign(key, toSign),
		}}, nil
	}

	enc, err := raptorq.NewRaptorQ(fecSymbolSize).CreateEncoder(data)
	if err != nil {
		return nil, fmt.Errorf("raptorq encoder: %w", err)
	}
	dataHash := sha256.Sum256(data)
	base := tonoverlay.BroadcastFEC{
		Source:      source,
		Certificate: tonoverlay.CertificateEmpty{},
		DataHash:    dataHash[:],
		DataSize:    uint32(len(data)),
		Flags:       broadcastFlagAnySender,
		FEC: rldp.FECRaptorQ{
			DataSize:     uint32(len(data)),
			SymbolSize:   fecSymbolSize,
			SymbolsCount: enc.BaseSymbolsNum(),
		},
		Date: date,
	}
	broadcastHash, err := base.CalcID()
	if err != nil {
		return nil, err
	}

	count := enc.BaseSymbolsNum() + enc.BaseSymbolsNum()/33 + 1
	parts := make([]tl.Serializable, 0, count)
	for seqno := uint32(0); seqno < count; seqno++ {
		part := base
		part.Seqno = seqno
		part.Data = enc.GenSymbol(seqno)

		partHash, err := fecPartHash(broadcastHash, part.Data, seqno)
		if err != nil {
			return nil, err
		}
		toSign, err := signedPayload(partHash, date)
		if err != nil {
			return nil, err
		}
		part.Signature = ed25519.Sign(key, toSign)
		parts = append(parts, part)
	}
	return parts, nil
}

// verifySimpleBroadcast 校验 overlay.broadcast 签名，返回广播 ID
func verifySimpleBroadcast(b *tonoverlay.Broadcast) ([]byte, error) {
	src, ok := b.Source.(keys.PublicKeyED25519)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported source key", ErrBadBroadcast)
	}
	hash, err := simpleBroadcastHash(b.Source, b.Data, b.Flags)
	if err != nil {
		return nil, err
	}
	toSign, err := signedPayload(hash, uint32(b.Date))
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(src.Key, toSign, b.Signature) {
		return nil, fmt.Errorf("%w: bad signature", ErrBadBroadcast)
	}
	return hash, nil
}

// fecStream 一个正在重组的 FEC 广播
type fecStream struct {
	decoder   *raptorq.Decoder
	dataHash  []byte
	source    ed25519.PublicKey
	done      bool
	updatedAt time.Time
}

// fecAssembler 按广播 ID 收集 FEC 分片并在可解码时还原载荷
type fecAssembler struct {
	mu      sync.Mutex
	streams map[string]*fecStream
	now     func() time.Time
}

func newFECAssembler(now func() time.Time) *fecAssembler {
	return &fecAssembler{streams: make(map[string]*fecStream), now: now}
}

// add 校验并加入一个分片；载荷刚好还原完成时返回 (data, true)
//
// 同一广播还原完成后的分片被忽略，因此每个 FEC 广播只交付一次
func (a *fecAssembler) add(part *tonoverlay.BroadcastFEC) ([]byte, bool, error) {
	src, ok := part.Source.(keys.PublicKeyED25519)
	if !ok {
		return nil, false, fmt.Errorf("%w: unsupported source key", ErrBadBroadcast)
	}
	fec, ok := part.FEC.(rldp.FECRaptorQ)
	if !ok {
		return nil, false, fmt.Errorf("%w: unsupported fec type", ErrBadBroadcast)
	}
	if fec.DataSize != part.DataSize || part.DataSize == 0 || part.DataSize > maxFECBroadcastSize {
		return nil, false, fmt.Errorf("%w: data size %d", ErrBadBroadcast, part.DataSize)
	}

	broadcastHash, err := part.CalcID()
	if err != nil {
		return nil, false, err
	}
	partHash, err := fecPartHash(broadcastHash, part.Data, part.Seqno)
	if err != nil {
		return nil, false, err
	}
	toSign, err := signedPayload(partHash, part.Date)
	if err != nil {
		return nil, false, err
	}
	if !ed25519.Verify(src.Key, toSign, part.Signature) {
		return nil, false, fmt.Errorf("%w: bad part signature", ErrBadBroadcast)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	id := string(broadcastHash)
	stream := a.streams[id]
	if stream == nil {
		a.pruneLocked(now)
		dec, err := raptorq.NewRaptorQ(fec.SymbolSize).CreateDecoder(fec.DataSize)
		if err != nil {
			return nil, false, fmt.Errorf("raptorq decoder: %w", err)
		}
		stream = &fecStream{decoder: dec, dataHash: part.DataHash, source: src.Key}
		a.streams[id] = stream
	} else if !bytes.Equal(stream.source, src.Key) {
		return nil, false, fmt.Errorf("%w: source changed mid-stream", ErrBadBroadcast)
	}
	stream.updatedAt = now
	if stream.done {
		return nil, false, nil
	}

	ready, err := stream.decoder.AddSymbol(part.Seqno, part.Data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: symbol %d: %v", ErrBadBroadcast, part.Seqno, err)
	}
	if !ready {
		return nil, false, nil
	}
	decoded, data, err := stream.decoder.Decode()
	if err != nil {
		return nil, false, fmt.Errorf("raptorq decode: %w", err)
	}
	if !decoded {
		return nil, false, nil
	}

	stream.done = true
	stream.decoder = nil
	if sum := sha256.Sum256(data); !bytes.Equal(sum[:], stream.dataHash) {
		return nil, false, fmt.Errorf("%w: data hash mismatch", ErrBadBroadcast)
	}
	return data, true, nil
}

// pruneLocked 调用方持有 mu
func (a *fecAssembler) pruneLocked(now time.Time) {
	if len(a.streams) < maxFECStreams {
		return
	}
	for id, s := range a.streams {
		if now.Sub(s.updatedAt) > fecStreamTTL {
			delete(a.streams, id)
		}
	}
}

// len 正在跟踪的流数量
func (a *fecAssembler) len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.streams)
}
