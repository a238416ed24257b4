package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"settlement-core/internal/bootstrap"
	"settlement-core/internal/service/payout"
	"settlement-core/internal/service/settlement"
	"settlement-core/pkg/config"
	"settlement-core/pkg/errno"
)

var (
	winnersFile   string
	confirm       bool
	advantageOnly bool
	notes         string
)

// settleCmd 代表 settle 命令
var settleCmd = &cobra.Command{
	Use:   "settle <game-id>",
	Short: "结算一个游戏",
	Long: `从 JSON 文件读取赢家列表 ([{"fid":1,"amount":"10","position":1}, ...])，
解析地址、逐笔转账并写入结算记录。已结算的名次会被跳过。`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()
		if err := requireAdmin(); err != nil {
			return err
		}

		winners, err := loadWinners(winnersFile)
		if err != nil {
			return err
		}

		ctx := context.Background()
		infra, err := bootstrap.Connect(config.Global)
		if err != nil {
			return err
		}
		defer infra.Close()

		svcs, err := bootstrap.NewServices(ctx, config.Global, infra)
		if err != nil {
			return err
		}

		res, err := svcs.Settlement.Settle(ctx, settlement.Request{
			GameID:        args[0],
			ActorFID:      actorFID,
			Winners:       winners,
			Confirm:       confirm,
			AdvantageOnly: advantageOnly,
			Notes:         notes,
		})
		if err != nil {
			return describe(err)
		}

		fmt.Println("---------------------------------------------------")
		for i, w := range res.ResolvedWinners {
			fmt.Printf("#%d fid=%d amount=%s address=%s tx=%s\n", w.Position, w.FID, w.Amount, w.Address, res.TxHashes[i])
		}
		if len(res.Skipped) > 0 {
			fmt.Printf("已结算而跳过的名次: %v\n", res.Skipped)
		}
		fmt.Printf("游戏状态: %s\n", res.GameStatus)
		return nil
	},
}

func init() {
	settleCmd.Flags().StringVarP(&winnersFile, "winners", "w", "", "赢家列表 JSON 文件")
	settleCmd.Flags().BoolVar(&confirm, "confirm", false, "确认执行链上转账")
	settleCmd.Flags().BoolVar(&advantageOnly, "advantage-only", false, "只记录名次, 不转账 (金额必须为 0)")
	settleCmd.Flags().StringVar(&notes, "notes", "", "备注")
	_ = settleCmd.MarkFlagRequired("winners")
	rootCmd.AddCommand(settleCmd)
}

func loadWinners(path string) ([]payout.WinnerEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read winners file: %w", err)
	}
	var winners []payout.WinnerEntry
	if err := json.Unmarshal(raw, &winners); err != nil {
		return nil, fmt.Errorf("parse winners file: %w", err)
	}
	if len(winners) == 0 {
		return nil, fmt.Errorf("winners file %s is empty", path)
	}
	return winners, nil
}

// describe 把业务错误连同结构化字段一起打印
func describe(err error) error {
	code, msg := errno.Decode(err)
	data := errno.DataOf(err)
	if len(data) == 0 {
		return fmt.Errorf("[%d] %s: %w", code, msg, err)
	}
	return fmt.Errorf("[%d] %s %v: %w", code, msg, data, err)
}
