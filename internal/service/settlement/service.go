// Package settlement 把声明的赢家变成已支付且已落库的结算记录, 每个名次只结算一次
package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"settlement-core/internal/model"
	"settlement-core/internal/service/directory"
	"settlement-core/internal/service/payout"
	"settlement-core/internal/service/transfer"
	"settlement-core/pkg/errno"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/monitor"
)

// AddressResolver 即 directory.Directory
type AddressResolver interface {
	ResolveAddresses(ctx context.Context, fids []int64, ordering *directory.StakeOrdering) map[int64][]string
}

// Transferer 即 transfer.Executor, 测试中可以替换
type Transferer interface {
	Transfer(ctx context.Context, winners []payout.ResolvedWinner, token string) ([]string, error)
}

// Eligibility 游戏相关的资格校验, 必须在 Resolve 之前执行
type Eligibility interface {
	CheckWinners(ctx context.Context, game *model.Game, entries []payout.WinnerEntry) error
}

// Community 社区维度的代币与质押排序配置
type Community struct {
	Token    string
	Ordering *directory.StakeOrdering
}

type Options struct {
	LeaseTTL time.Duration
	// TransferBudget 单笔转账 (广播 + 等待确认) 的时间上限, 用于在转账前按笔数续租
	TransferBudget time.Duration
	Communities    map[string]Community // key "default" 作为兜底
}

type Service struct {
	ledger      *Ledger
	directory   AddressResolver
	transferer  Transferer
	eligibility Eligibility
	opts        Options
}

func NewService(ledger *Ledger, dir AddressResolver, transferer Transferer, eligibility Eligibility, opts Options) *Service {
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = 10 * time.Minute
	}
	if opts.TransferBudget <= 0 {
		opts.TransferBudget = 2 * time.Minute
	}
	return &Service{
		ledger:      ledger,
		directory:   dir,
		transferer:  transferer,
		eligibility: eligibility,
		opts:        opts,
	}
}

// Ledger 暴露账本给 handler / CLI 做查询与收尾
func (s *Service) Ledger() *Ledger {
	return s.ledger
}

type Request struct {
	GameID        string
	ActorFID      int64
	Winners       []payout.WinnerEntry
	Confirm       bool
	AdvantageOnly bool
	Notes         string
}

type Result struct {
	TxHash          string                  `json:"tx_hash"`
	TxHashes        []string                `json:"tx_hashes"`
	ResolvedWinners []payout.ResolvedWinner `json:"resolved_winners"`
	Skipped         []string                `json:"skipped_positions,omitempty"`
	GameStatus      string                  `json:"game_status"`
}

// Settle 结算流水线: 校验 -> 幂等过滤 -> 租约 -> 解析地址 -> 逐笔转账 -> 落库 -> 尝试收尾
func (s *Service) Settle(ctx context.Context, req Request) (*Result, error) {
	// 1. 基础校验
	if !req.Confirm {
		return nil, errno.New(errno.ErrValidation, "confirm must be true to settle").WithReason("confirm_required")
	}
	if len(req.Winners) == 0 {
		return nil, errno.New(errno.ErrValidation, "no winners supplied")
	}

	game, err := s.ledger.loadGame(ctx, req.GameID)
	if err != nil {
		return nil, err
	}
	if game.Status == model.GameStatusCancelled {
		return nil, errno.New(errno.ErrValidation, fmt.Sprintf("game %s is cancelled", game.ID)).WithReason("game_cancelled")
	}

	// 名次与 FID 都必须在整批内唯一, 必须在幂等过滤之前检查
	keys := make([]string, len(req.Winners))
	seenKeys := make(map[string]int, len(req.Winners))
	seenFIDs := make(map[int64]int, len(req.Winners))
	for i, w := range req.Winners {
		keys[i] = model.PositionKey(game.Kind, w.Position, w.FID)
		if _, dup := seenKeys[keys[i]]; dup {
			return nil, errno.New(errno.ErrValidation, fmt.Sprintf("position %s appears more than once", keys[i])).
				AtPosition(w.Position).ForFID(w.FID)
		}
		if first, dup := seenFIDs[w.FID]; dup {
			return nil, errno.New(errno.ErrValidation,
				fmt.Sprintf("fid %d appears more than once (positions %d and %d)", w.FID, req.Winners[first].Position, w.Position)).
				AtPosition(w.Position).ForFID(w.FID).WithReason("duplicate_fid")
		}
		seenKeys[keys[i]] = i
		seenFIDs[w.FID] = i
	}

	// 2. 游戏相关的资格校验 (例如是否真的参与了该游戏)
	if s.eligibility != nil {
		if err := s.eligibility.CheckWinners(ctx, game, req.Winners); err != nil {
			return nil, err
		}
	}

	// 3. 幂等: 已经落库的名次直接跳过, 全部跳过时不发生任何转账
	pending, skipped, settled, err := s.partition(ctx, game, req.Winners, keys)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		logger.Info("settlement replay, every position already settled",
			zap.String("game_id", game.ID), zap.Strings("positions", skipped))
		monitor.ObserveSettlement(game.Kind, "noop")
		return replayResult(req.Winners, keys, settled, game.Status), nil
	}
	if game.Status == model.GameStatusSettled {
		return nil, errno.New(errno.ErrValidation, fmt.Sprintf("game %s is already settled", game.ID)).WithReason("game_settled")
	}

	// 4. 租约: 同一游戏并发结算时只有一个请求能继续
	leaseToken := uuid.NewString()
	acquired, err := s.ledger.AcquireLease(ctx, game.ID, leaseToken, s.opts.LeaseTTL)
	if err != nil {
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	if !acquired {
		monitor.ObserveSettlement(game.Kind, "conflict")
		return nil, errno.New(errno.ErrConflict, fmt.Sprintf("settlement for game %s is already in progress", game.ID)).
			WithReason("settlement_in_progress")
	}
	defer func() {
		// 请求被取消也要释放租约
		if err := s.ledger.ReleaseLease(context.WithoutCancel(ctx), game.ID, leaseToken); err != nil {
			logger.Warn("release settlement lease failed", zap.String("game_id", game.ID), zap.Error(err))
		}
	}()

	// 拿到租约后重新检查, 防止上一个持有者刚刚写完
	pending, skipped, _, err = s.partition(ctx, game, req.Winners, keys)
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		settled, err := s.ledger.SettledKeys(ctx, game.ID, keys)
		if err != nil {
			return nil, errno.Wrap(errno.ErrDatabase, "", err)
		}
		return replayResult(req.Winners, keys, settled, game.Status), nil
	}

	// 5. 解析地址并校验赢家
	community := s.community(game.Community)
	fids := make([]int64, len(pending))
	for i, w := range pending {
		fids[i] = w.FID
	}
	addrs := s.directory.ResolveAddresses(ctx, fids, community.Ordering)

	resolved, err := payout.Resolve(pending, addrs, payout.ResolveOptions{AdvantageOnly: req.AdvantageOnly})
	if err != nil {
		monitor.ObserveSettlement(game.Kind, "invalid")
		return nil, err
	}

	// 6. 转账: advantage-only 的赢家不发生转账
	token := game.TokenAddress
	if token == "" {
		token = community.Token
	}
	var paid []payout.ResolvedWinner
	for _, w := range resolved {
		if !w.IsAdvantageOnly() {
			paid = append(paid, w)
		}
	}

	var hashes []string
	var transferErr error
	if len(paid) > 0 {
		// 按笔数续租, 转账必须在租约到期前结束, 留出一个 LeaseTTL 用于落库
		until, held, err := s.ledger.ExtendLease(ctx, game.ID, leaseToken, s.opts.LeaseTTL+time.Duration(len(paid))*s.opts.TransferBudget)
		if err != nil {
			return nil, errno.Wrap(errno.ErrDatabase, "", err)
		}
		if !held {
			monitor.ObserveSettlement(game.Kind, "conflict")
			return nil, errno.New(errno.ErrConflict, fmt.Sprintf("settlement lease for game %s expired before transfers started", game.ID)).
				WithReason("lease_lost")
		}
		transferCtx, cancel := context.WithDeadline(ctx, until.Add(-s.opts.LeaseTTL))
		hashes, transferErr = s.transferer.Transfer(transferCtx, paid, token)
		cancel()
	}

	// 7. 数量校验: 确认的哈希数必须与已确认的转账数一致
	confirmed := len(paid)
	var te *transfer.TransferError
	if transferErr != nil {
		confirmed = 0
		if errors.As(transferErr, &te) {
			confirmed = te.Index
		}
	}
	if len(hashes) != confirmed {
		monitor.ObserveSettlement(game.Kind, "corruption_guard")
		return nil, corruption(fmt.Sprintf("game %s: expected %d confirmed transfers, executor returned %d hashes",
			game.ID, confirmed, len(hashes)), confirmed, len(hashes))
	}

	// 8. 组装需要落库的记录: 已确认的付费记录 + advantage-only 记录
	rows := make([]payout.ResolvedWinner, 0, len(resolved))
	rowHashes := make([]string, 0, len(resolved))
	next := 0
	for _, w := range resolved {
		if w.IsAdvantageOnly() {
			rows = append(rows, w)
			rowHashes = append(rowHashes, "")
			continue
		}
		if next < confirmed {
			rows = append(rows, w)
			rowHashes = append(rowHashes, hashes[next])
		}
		next++
	}

	if _, err := s.ledger.RecordSettlement(ctx, game, req.ActorFID, rows, rowHashes, token, req.Notes); err != nil {
		if errors.Is(err, errno.ErrCorruptionGuard) {
			return nil, err
		}
		// 钱已经转出但账本没写进去: 最高级别告警, 交由人工补录
		logger.Error("transfers confirmed but ledger write failed",
			zap.String("game_id", game.ID), zap.Strings("tx_hashes", hashes), zap.Error(err))
		monitor.ObserveSettlement(game.Kind, "ledger_failed")
		return nil, errno.Wrap(errno.ErrDatabase, "transfers were sent but could not be recorded; contact an operator", err).
			WithField("tx_hashes", hashes)
	}
	for _, w := range rows {
		if f, _ := w.Amount.Float64(); f > 0 {
			monitor.ObservePayout(token, f)
		}
	}

	if transferErr != nil {
		// 已广播但未确认的交易占住该名次, 人工确认前不允许重新支付
		if te != nil && te.Kind == transfer.KindTimeout && te.TxHash != "" && te.Index < len(paid) {
			if _, err := s.ledger.RecordPending(context.WithoutCancel(ctx), game, req.ActorFID, paid[te.Index], te.TxHash, token, req.Notes); err != nil {
				logger.Error("record pending transfer failed",
					zap.String("game_id", game.ID), zap.String("tx_hash", te.TxHash), zap.Error(err))
			}
		}
		monitor.ObserveSettlement(game.Kind, "transfer_failed")
		return nil, transferFailure(te, transferErr, confirmed)
	}

	// 9. 所有必需名次都已结算时收尾
	status := game.Status
	if done, err := s.ledger.TryFinalize(ctx, game); err != nil {
		logger.Warn("finalize after settlement failed", zap.String("game_id", game.ID), zap.Error(err))
	} else if done {
		status = model.GameStatusSettled
	}

	monitor.ObserveSettlement(game.Kind, "success")
	logger.Info("settlement completed",
		zap.String("game_id", game.ID),
		zap.Int64("actor", req.ActorFID),
		zap.Int("paid", len(hashes)),
		zap.Int("advantage_only", len(rows)-len(hashes)),
		zap.Strings("skipped", skipped))

	result := &Result{
		TxHashes:        hashes,
		ResolvedWinners: resolved,
		Skipped:         skipped,
		GameStatus:      status,
	}
	if result.TxHashes == nil {
		result.TxHashes = []string{}
	}
	if len(hashes) > 0 {
		result.TxHash = hashes[0]
	}
	return result, nil
}

// partition 把赢家分成待结算与已结算两组
func (s *Service) partition(ctx context.Context, game *model.Game, winners []payout.WinnerEntry, keys []string) ([]payout.WinnerEntry, []string, map[string]model.SettlementRecord, error) {
	settled, err := s.ledger.SettledKeys(ctx, game.ID, keys)
	if err != nil {
		return nil, nil, nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	var pending []payout.WinnerEntry
	var skipped []string
	for i, w := range winners {
		if rec, ok := settled[keys[i]]; ok && rec.Status == model.SettlementStatusPending {
			txHash := ""
			if rec.TxHash != nil {
				txHash = *rec.TxHash
			}
			return nil, nil, nil, errno.New(errno.ErrConflict,
				fmt.Sprintf("position %s has an unconfirmed transfer %s; resolve it before settling again", keys[i], txHash)).
				AtPosition(w.Position).ForFID(w.FID).WithReason("transfer_pending").WithField("tx_hash", txHash)
		}
		if _, ok := settled[keys[i]]; ok {
			skipped = append(skipped, keys[i])
			continue
		}
		pending = append(pending, w)
	}
	return pending, skipped, settled, nil
}

func (s *Service) community(name string) Community {
	if c, ok := s.opts.Communities[name]; ok {
		return c
	}
	return s.opts.Communities["default"]
}

// replayResult 重放时返回首次结算的结果
func replayResult(winners []payout.WinnerEntry, keys []string, settled map[string]model.SettlementRecord, status string) *Result {
	result := &Result{TxHashes: []string{}, Skipped: keys, GameStatus: status}
	for i := range winners {
		rec := settled[keys[i]]
		result.ResolvedWinners = append(result.ResolvedWinners, payout.ResolvedWinner{
			FID:      rec.FID,
			Amount:   rec.Amount,
			Position: rec.Position,
			Address:  rec.Address,
		})
		if rec.TxHash != nil {
			result.TxHashes = append(result.TxHashes, *rec.TxHash)
		}
	}
	if len(result.TxHashes) > 0 {
		result.TxHash = result.TxHashes[0]
	}
	return result
}

// transferFailure 对外只暴露失败的名次与类型, 不透出 RPC 原文
func transferFailure(te *transfer.TransferError, cause error, recorded int) error {
	if te == nil {
		return errno.Wrap(errno.ErrUpstream, "token transfer failed", cause)
	}
	d := errno.Wrap(errno.ErrUpstream,
		fmt.Sprintf("transfer to fid %d at position %d failed (%s); %d earlier payouts were recorded",
			te.FID, te.Position, te.Kind, recorded), cause).
		AtPosition(te.Position).ForFID(te.FID).WithReason(string(te.Kind))
	if te.TxHash != "" {
		d.WithField("tx_hash", te.TxHash)
	}
	if te.Kind == transfer.KindTimeout && te.TxHash != "" {
		d.WithField("pending", true)
	}
	return d
}
