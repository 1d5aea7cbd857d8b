package overlay

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/xssnick/tonutils-go/adnl/keys"
	"github.com/xssnick/tonutils-go/tl"
)

// ErrInvalidKeyFile 密钥文件存在但内容无法解析
var ErrInvalidKeyFile = errors.New("invalid identity key file")

// LoadOrCreateIdentity 从文件加载节点私钥，文件不存在时生成 Ed25519 私钥并以 0600 权限写入
//
// 文件内容为 base64 编码的 crypto.MarshalPrivateKey 结果。
// 已存在但无法解析的文件不会被覆盖，返回 ErrInvalidKeyFile。
func LoadOrCreateIdentity(path string) (priv crypto.PrivKey, created bool, err error) {
	if strings.TrimSpace(path) == "" {
		return nil, false, fmt.Errorf("密钥文件路径不能为空")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		priv, err := decodePrivateKey(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, false, fmt.Errorf("%w %s: %v", ErrInvalidKeyFile, path, err)
		}
		return priv, false, nil
	case !errors.Is(err, fs.ErrNotExist):
		return nil, false, fmt.Errorf("读取密钥文件失败: %w", err)
	}

	priv, _, err = crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, false, fmt.Errorf("生成节点私钥失败: %w", err)
	}
	if err := persistPrivateKey(priv, path); err != nil {
		return nil, false, err
	}
	return priv, true, nil
}

// PeerIDFromKey 由私钥得到节点标识
func PeerIDFromKey(priv crypto.PrivKey) (peer.ID, error) {
	return peer.IDFromPrivateKey(priv)
}

// ADNLKey 同一把 Ed25519 身份密钥用作 ADNL 私钥
func ADNLKey(priv crypto.PrivKey) (ed25519.PrivateKey, error) {
	if priv == nil || priv.Type() != crypto.Ed25519 {
		return nil, fmt.Errorf("%w: ADNL 需要 Ed25519 密钥", ErrInvalidKeyFile)
	}
	raw, err := priv.Raw()
	if err != nil {
		return nil, fmt.Errorf("导出私钥失败: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: 私钥长度 %d", ErrInvalidKeyFile, len(raw))
	}
	return ed25519.PrivateKey(raw), nil
}

// ADNLID ADNL 地址：公钥 pub.ed25519 的 TL 哈希
func ADNLID(key ed25519.PrivateKey) ([]byte, error) {
	return tl.Hash(keys.PublicKeyED25519{Key: key.Public().(ed25519.PublicKey)})
}

func decodePrivateKey(b64 string) (crypto.PrivKey, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty key")
	}
	return crypto.UnmarshalPrivateKey(data)
}

func persistPrivateKey(priv crypto.PrivKey, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("创建密钥目录失败: %w", err)
		}
	}
	raw, err := crypto.MarshalPrivateKey(priv)
	if err != nil {
		return fmt.Errorf("序列化节点私钥失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(base64.StdEncoding.EncodeToString(raw)), 0o600); err != nil {
		return fmt.Errorf("写入密钥文件失败: %w", err)
	}
	return nil
}
