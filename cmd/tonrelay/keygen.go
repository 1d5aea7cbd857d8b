package main

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	overlayconfig "github.com/weisyn/tonrelay/internal/config/overlay"
	"github.com/weisyn/tonrelay/internal/core/overlay"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "生成(或读取)覆盖网络身份密钥并打印节点 ID 与 ADNL 地址",
	Long: `读取 KEY_FILE 指定的身份密钥，不存在时生成 Ed25519 密钥并以 0600 权限写入。
已存在但无法解析的密钥文件不会被覆盖。
同一把密钥同时用作 libp2p 节点 ID 与 TON ADNL 身份。`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		opts := overlayconfig.New(&cfg.Overlay).GetOptions()

		priv, created, err := overlay.LoadOrCreateIdentity(opts.KeyFile)
		if err != nil {
			return err
		}
		id, err := overlay.PeerIDFromKey(priv)
		if err != nil {
			return err
		}
		adnlKey, err := overlay.ADNLKey(priv)
		if err != nil {
			return err
		}
		adnlID, err := overlay.ADNLID(adnlKey)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if created {
			fmt.Fprintf(out, "已生成密钥: %s\n", opts.KeyFile)
		}
		fmt.Fprintf(out, "peer id: %s\n", id.String())
		fmt.Fprintf(out, "adnl id: %s\n", hex.EncodeToString(adnlID))
		return nil
	},
}
