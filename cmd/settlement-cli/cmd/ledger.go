package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"settlement-core/internal/service/settlement"
	"settlement-core/pkg/config"
	"settlement-core/pkg/database"
)

// ledgerCmd 查看某个游戏的结算记录
var ledgerCmd = &cobra.Command{
	Use:   "ledger <game-id>",
	Short: "查看游戏的结算记录",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()
		ledger, err := openLedger()
		if err != nil {
			return err
		}

		records, err := ledger.Records(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("暂无结算记录")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "KEY\tFID\tAMOUNT\tADDRESS\tTX\tSTATUS\tSETTLED_AT")
		for _, r := range records {
			tx := "-"
			if r.TxHash != nil {
				tx = *r.TxHash
			}
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n", r.PositionKey, r.FID, r.Amount, r.Address, tx, r.Status, r.SettledAt.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

// finalizeCmd 所有名次结算后把游戏标记为 settled
var finalizeCmd = &cobra.Command{
	Use:   "finalize <game-id>",
	Short: "收尾: 所有必需名次结算后把游戏标记为 settled",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()
		if err := requireAdmin(); err != nil {
			return err
		}
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		if err := ledger.Finalize(context.Background(), args[0]); err != nil {
			return describe(err)
		}
		fmt.Printf("游戏 %s 已标记为 settled\n", args[0])
		return nil
	},
}

var (
	pendingMined   bool
	pendingDropped bool
)

// pendingCmd 处理超时未确认的转账, 该名次在处理前不会被再次支付
var pendingCmd = &cobra.Command{
	Use:   "pending <game-id> <position-key>",
	Short: "处理未确认的转账: --mined 确认上链, --dropped 作废并重新开放名次",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		loadConfig()
		if err := requireAdmin(); err != nil {
			return err
		}
		mined, err := pendingOutcome(pendingMined, pendingDropped)
		if err != nil {
			return err
		}
		ledger, err := openLedger()
		if err != nil {
			return err
		}
		rec, err := ledger.ResolvePending(context.Background(), args[0], args[1], mined)
		if err != nil {
			return describe(err)
		}
		fmt.Printf("游戏 %s 名次 %s 已处理: %s\n", args[0], args[1], rec.Status)
		return nil
	},
}

func init() {
	pendingCmd.Flags().BoolVar(&pendingMined, "mined", false, "交易已上链")
	pendingCmd.Flags().BoolVar(&pendingDropped, "dropped", false, "交易已作废")

	rootCmd.AddCommand(ledgerCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(pendingCmd)
}

// pendingOutcome --mined 与 --dropped 必须且只能指定一个
func pendingOutcome(mined, dropped bool) (bool, error) {
	if mined == dropped {
		return false, fmt.Errorf("exactly one of --mined or --dropped is required")
	}
	return mined, nil
}

func openLedger() (*settlement.Ledger, error) {
	db, err := database.ConnectPostgres(config.Global.DB.DSN(), false)
	if err != nil {
		return nil, err
	}
	return settlement.NewLedger(db), nil
}
