package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"settlement-core/pkg/config"
	"settlement-core/pkg/logger"
)

var actorFID int64

// rootCmd 代表基础命令，没有子命令时直接调用
var rootCmd = &cobra.Command{
	Use:   "settlement-cli",
	Short: "游戏结算运维命令行工具",
	Long: `用于在 HTTP 服务之外执行结算、收尾与账本查询，
以及生成发奖热钱包的 keystore 文件。`,
	SilenceUsage: true,
}

// Execute 将所有子命令添加到根命令并设置标志
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Int64Var(&actorFID, "actor", 0, "执行操作的管理员 FID")
}

// loadConfig 需要访问数据库或链的子命令在执行前调用
func loadConfig() {
	config.Init()
	logger.Init(config.Global.App.Env)
}

// requireAdmin 只允许配置中的管理员执行写操作
func requireAdmin() error {
	for _, fid := range config.Global.Admin.FIDs {
		if fid == actorFID {
			return nil
		}
	}
	return fmt.Errorf("actor %d is not an admin (use --actor)", actorFID)
}
