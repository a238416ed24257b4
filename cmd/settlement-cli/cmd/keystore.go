package cmd

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"settlement-core/pkg/keystore"
)

var (
	keyOut      string
	keyPassword string
	keyLight    bool
)

var keystoreCmd = &cobra.Command{
	Use:   "keystore",
	Short: "发奖热钱包 keystore 管理",
}

// keystoreNewCmd 生成新的私钥并加密保存
var keystoreNewCmd = &cobra.Command{
	Use:   "new",
	Short: "生成新的发奖热钱包并保存为 keystore (V3) 文件",
	RunE: func(cmd *cobra.Command, args []string) error {
		password := passwordOrEnv()
		if password == "" {
			return fmt.Errorf("password is required (--password or CHAIN_PASSWORD)")
		}
		addr, err := keystore.NewKeyFile(keyOut, password, keyLight)
		if err != nil {
			return err
		}
		fmt.Println("---------------------------------------------------")
		fmt.Printf("地址 (Address): %s\n", addr.Hex())
		fmt.Printf("Keystore 文件: %s\n", keyOut)
		fmt.Println("---------------------------------------------------")
		fmt.Println("请给该地址充值奖励代币与少量 gas，并妥善保管密码。")
		return nil
	},
}

// keystoreAddressCmd 解密 keystore 并显示地址, 用于确认密码正确
var keystoreAddressCmd = &cobra.Command{
	Use:   "address",
	Short: "显示 keystore 对应的地址",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := keystore.LoadPayoutKey(keyOut, passwordOrEnv(), "")
		if err != nil {
			return err
		}
		fmt.Println(crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	},
}

func init() {
	keystoreCmd.PersistentFlags().StringVarP(&keyOut, "file", "f", "payout.json", "keystore 文件路径")
	keystoreCmd.PersistentFlags().StringVarP(&keyPassword, "password", "p", "", "keystore 密码")
	keystoreNewCmd.Flags().BoolVar(&keyLight, "light", false, "使用轻量 scrypt 参数 (仅测试环境)")

	keystoreCmd.AddCommand(keystoreNewCmd)
	keystoreCmd.AddCommand(keystoreAddressCmd)
	rootCmd.AddCommand(keystoreCmd)
}

func passwordOrEnv() string {
	if keyPassword != "" {
		return keyPassword
	}
	return os.Getenv("CHAIN_PASSWORD")
}
