package settlement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"settlement-core/internal/event"
	"settlement-core/internal/model"
	"settlement-core/internal/service/payout"
	"settlement-core/pkg/errno"
	"settlement-core/pkg/logger"
	"settlement-core/pkg/monitor"
)

// Ledger 结算账本: 记录谁在哪个名次拿到了多少钱, 以及对应的交易哈希
type Ledger struct {
	db  *gorm.DB
	now func() time.Time
}

func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// RecordSettlement 写入结算记录
// resolved 与 txHashes 按下标一一对应, advantage-only 的记录对应空哈希
// 长度不一致或付费记录缺哈希时返回 CorruptionGuardError, 不写任何数据
func (l *Ledger) RecordSettlement(ctx context.Context, game *model.Game, actorFID int64, resolved []payout.ResolvedWinner, txHashes []string, token, notes string) ([]model.SettlementRecord, error) {
	if len(resolved) != len(txHashes) {
		return nil, corruption(fmt.Sprintf("resolved %d winners but got %d transaction hashes", len(resolved), len(txHashes)),
			len(resolved), len(txHashes))
	}
	for i, w := range resolved {
		if !w.IsAdvantageOnly() && strings.TrimSpace(txHashes[i]) == "" {
			return nil, corruption(fmt.Sprintf("paid winner at position %d has no transaction hash", w.Position),
				len(resolved), len(txHashes))
		}
	}
	if len(resolved) == 0 {
		return nil, nil
	}

	now := l.now()
	records := make([]model.SettlementRecord, 0, len(resolved))
	payouts := make([]event.PayoutRecord, 0, len(resolved))
	var duplicates []string

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, w := range resolved {
			rec := model.SettlementRecord{
				GameID:       game.ID,
				PositionKey:  model.PositionKey(game.Kind, w.Position, w.FID),
				Position:     w.Position,
				FID:          w.FID,
				Address:      w.Address,
				Amount:       w.Amount,
				TokenAddress: token,
				SettledByFID: actorFID,
				SettledAt:    now,
				Notes:        notes,
			}
			if txHashes[i] != "" {
				h := txHashes[i]
				rec.TxHash = &h
			}

			// 1. 已存在同名次记录时不覆盖 (记录只追加)
			res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				// 同一名次已经付过一次, 本次转账是重复支付, 其余名次照常入账
				logger.Error("position already settled, duplicate payout detected",
					zap.String("game_id", game.ID),
					zap.String("position_key", rec.PositionKey),
					zap.String("tx_hash", txHashes[i]))
				duplicates = append(duplicates, rec.PositionKey)
				continue
			}
			records = append(records, rec)
			payouts = append(payouts, event.PayoutRecord{
				FID:         rec.FID,
				Position:    rec.Position,
				PositionKey: rec.PositionKey,
				Amount:      rec.Amount.String(),
				TxHash:      txHashes[i],
			})
		}

		if len(payouts) == 0 {
			return nil
		}

		// 2. 同一事务写 Outbox, 通知与结算结果保持一致
		return model.CreateOutboxMessage(tx, event.TopicSettlement, game.ID, event.Envelope{
			Type:       event.TypeSettlementCompleted,
			OccurredAt: now,
			Data: event.SettlementCompletedEvent{
				GameID:    game.ID,
				GameKind:  game.Kind,
				SettledBy: actorFID,
				Token:     token,
				Payouts:   payouts,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if len(duplicates) > 0 {
		// 3. 已入账的记录照常返回, 重复的名次以 CorruptionGuardError 上报, 需要人工追回
		monitor.ObserveCorruptionGuard()
		d := errno.New(errno.ErrCorruptionGuard,
			fmt.Sprintf("Settlement aborted to prevent data corruption: position %s was already settled, transfer duplicated",
				strings.Join(duplicates, ", "))).
			WithReason("position_already_settled").
			WithField("position_keys", duplicates)
		return records, d
	}
	return records, nil
}

// RecordPending 记录已广播但未确认的转账
// 该名次被 pending 记录占住, 在 ResolvePending 之前任何结算请求都不会再为它转账
func (l *Ledger) RecordPending(ctx context.Context, game *model.Game, actorFID int64, w payout.ResolvedWinner, txHash, token, notes string) (*model.SettlementRecord, error) {
	if strings.TrimSpace(txHash) == "" {
		return nil, corruption(fmt.Sprintf("pending transfer at position %d has no transaction hash", w.Position), 1, 0)
	}
	h := txHash
	rec := model.SettlementRecord{
		GameID:       game.ID,
		PositionKey:  model.PositionKey(game.Kind, w.Position, w.FID),
		Position:     w.Position,
		FID:          w.FID,
		Address:      w.Address,
		Amount:       w.Amount,
		TokenAddress: token,
		TxHash:       &h,
		SettledByFID: actorFID,
		SettledAt:    l.now(),
		Status:       model.SettlementStatusPending,
		Notes:        notes,
	}
	res := l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
	if res.Error != nil {
		return nil, errno.Wrap(errno.ErrDatabase, "", res.Error)
	}
	if res.RowsAffected == 0 {
		monitor.ObserveCorruptionGuard()
		return nil, errno.New(errno.ErrCorruptionGuard,
			fmt.Sprintf("Settlement aborted to prevent data corruption: position %s was already settled, transfer duplicated", rec.PositionKey)).
			WithReason("position_already_settled").AtPosition(rec.Position).
			WithField("position_key", rec.PositionKey).WithField("tx_hash", txHash)
	}
	logger.Warn("transfer broadcast but not confirmed, position locked",
		zap.String("game_id", game.ID),
		zap.String("position_key", rec.PositionKey),
		zap.String("tx_hash", txHash))
	return &rec, nil
}

// ResolvePending 人工处理 pending 转账
// mined=true: 交易已上链, 记录转为 confirmed 并补发结算事件
// mined=false: 交易已作废, 记录改名保留为 dropped, 名次重新开放
func (l *Ledger) ResolvePending(ctx context.Context, gameID, positionKey string, mined bool) (*model.SettlementRecord, error) {
	var rec model.SettlementRecord
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("game_id = ? AND position_key = ? AND status = ?", gameID, positionKey, model.SettlementStatusPending).
			First(&rec).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errno.New(errno.ErrNotFound,
					fmt.Sprintf("no pending transfer for game %s position %s", gameID, positionKey)).
					WithField("position_key", positionKey)
			}
			return err
		}

		if !mined {
			rec.PositionKey = fmt.Sprintf("%s#dropped:%d", positionKey, rec.ID)
			rec.Status = model.SettlementStatusDropped
			return tx.Model(&model.SettlementRecord{}).
				Where("id = ? AND status = ?", rec.ID, model.SettlementStatusPending).
				Updates(map[string]interface{}{"position_key": rec.PositionKey, "status": rec.Status}).Error
		}

		res := tx.Model(&model.SettlementRecord{}).
			Where("id = ? AND status = ?", rec.ID, model.SettlementStatusPending).
			Update("status", model.SettlementStatusConfirmed)
		if res.Error != nil {
			return res.Error
		}
		rec.Status = model.SettlementStatusConfirmed

		var game model.Game
		if err := tx.First(&game, "id = ?", gameID).Error; err != nil {
			return err
		}
		txHash := ""
		if rec.TxHash != nil {
			txHash = *rec.TxHash
		}
		return model.CreateOutboxMessage(tx, event.TopicSettlement, gameID, event.Envelope{
			Type:       event.TypeSettlementCompleted,
			OccurredAt: l.now(),
			Data: event.SettlementCompletedEvent{
				GameID:    gameID,
				GameKind:  game.Kind,
				SettledBy: rec.SettledByFID,
				Token:     rec.TokenAddress,
				Payouts: []event.PayoutRecord{{
					FID:         rec.FID,
					Position:    rec.Position,
					PositionKey: rec.PositionKey,
					Amount:      rec.Amount.String(),
					TxHash:      txHash,
				}},
			},
		})
	})
	if err != nil {
		var d *errno.Detail
		if errors.As(err, &d) {
			return nil, err
		}
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	logger.Info("pending transfer resolved",
		zap.String("game_id", gameID),
		zap.String("position_key", positionKey),
		zap.Bool("mined", mined))
	return &rec, nil
}

// IsAlreadySettled 该名次是否已经有结算记录
func (l *Ledger) IsAlreadySettled(ctx context.Context, gameID, positionKey string) (bool, error) {
	var count int64
	err := l.db.WithContext(ctx).Model(&model.SettlementRecord{}).
		Where("game_id = ? AND position_key = ?", gameID, positionKey).
		Count(&count).Error
	return count > 0, err
}

// SettledKeys 批量版本, 返回已结算的名次键及其记录
func (l *Ledger) SettledKeys(ctx context.Context, gameID string, keys []string) (map[string]model.SettlementRecord, error) {
	out := make(map[string]model.SettlementRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	var records []model.SettlementRecord
	if err := l.db.WithContext(ctx).
		Where("game_id = ? AND position_key IN ?", gameID, keys).
		Find(&records).Error; err != nil {
		return nil, err
	}
	for _, r := range records {
		out[r.PositionKey] = r
	}
	return out, nil
}

// Records 按名次顺序返回游戏的全部结算记录
func (l *Ledger) Records(ctx context.Context, gameID string) ([]model.SettlementRecord, error) {
	var records []model.SettlementRecord
	err := l.db.WithContext(ctx).
		Where("game_id = ?", gameID).
		Order("position ASC, id ASC").
		Find(&records).Error
	return records, err
}

// MissingKeys 返回尚未结算的必需名次
func (l *Ledger) MissingKeys(ctx context.Context, game *model.Game) ([]string, error) {
	required := game.RequiredKeys()
	settled, err := l.SettledKeys(ctx, game.ID, required)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, k := range required {
		// pending 记录占住名次但还不算结算完成
		if r, ok := settled[k]; !ok || !r.IsConfirmed() {
			missing = append(missing, k)
		}
	}
	return missing, nil
}

// Finalize 所有必需名次结算完毕后把游戏标记为 settled
// 对已 settled 的游戏重复调用是成功的空操作
func (l *Ledger) Finalize(ctx context.Context, gameID string) error {
	game, err := l.loadGame(ctx, gameID)
	if err != nil {
		return err
	}
	if game.Status == model.GameStatusSettled {
		return nil
	}
	if game.Status == model.GameStatusCancelled {
		return errno.New(errno.ErrValidation, fmt.Sprintf("game %s is cancelled", gameID)).WithReason("game_cancelled")
	}

	missing, err := l.MissingKeys(ctx, game)
	if err != nil {
		return errno.Wrap(errno.ErrDatabase, "", err)
	}
	if len(missing) > 0 {
		return errno.New(errno.ErrValidation,
			fmt.Sprintf("game %s still has unsettled positions: %s", gameID, strings.Join(missing, ", "))).
			WithReason("positions_unsettled").WithField("missing", missing)
	}

	_, err = l.markSettled(ctx, game)
	return err
}

// TryFinalize 结算后顺带尝试收尾, 仍有缺失名次时返回 false 而不是错误
func (l *Ledger) TryFinalize(ctx context.Context, game *model.Game) (bool, error) {
	if game.Status == model.GameStatusSettled {
		return true, nil
	}
	missing, err := l.MissingKeys(ctx, game)
	if err != nil {
		return false, err
	}
	if len(missing) > 0 {
		return false, nil
	}
	if _, err := l.markSettled(ctx, game); err != nil {
		return false, err
	}
	return true, nil
}

// markSettled 条件更新: 只有未结束的游戏才会被改成 settled, 并发收尾时只有一方写入事件
func (l *Ledger) markSettled(ctx context.Context, game *model.Game) (bool, error) {
	now := l.now()
	var changed bool

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Game{}).
			Where("id = ? AND status IN ?", game.ID, []string{model.GameStatusOpen, model.GameStatusClosed}).
			Updates(map[string]interface{}{
				"status":     model.GameStatusSettled,
				"settled_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		return model.CreateOutboxMessage(tx, event.TopicSettlement, game.ID, event.Envelope{
			Type:       event.TypeGameSettled,
			OccurredAt: now,
			Data:       event.GameSettledEvent{GameID: game.ID},
		})
	})
	if err != nil {
		return false, errno.Wrap(errno.ErrDatabase, "", err)
	}
	if changed {
		game.Status = model.GameStatusSettled
		game.SettledAt = &now
		logger.Info("game finalized", zap.String("game_id", game.ID))
	}
	return changed, nil
}

// AcquireLease 结算租约, 同一游戏同一时刻只允许一个结算流程发起转账
// 基于条件更新实现, 进程崩溃后租约到期自动失效
func (l *Ledger) AcquireLease(ctx context.Context, gameID, token string, ttl time.Duration) (bool, error) {
	now := l.now()
	res := l.db.WithContext(ctx).Model(&model.Game{}).
		Where("id = ? AND (settling_token IS NULL OR settling_until < ?)", gameID, now).
		Updates(map[string]interface{}{
			"settling_token": token,
			"settling_until": now.Add(ttl),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ExtendLease 续租, 只有仍持有且未过期的租约才能延长
// 返回新的到期时间, ok=false 表示租约已经丢失
func (l *Ledger) ExtendLease(ctx context.Context, gameID, token string, ttl time.Duration) (time.Time, bool, error) {
	now := l.now()
	until := now.Add(ttl)
	res := l.db.WithContext(ctx).Model(&model.Game{}).
		Where("id = ? AND settling_token = ? AND settling_until >= ?", gameID, token, now).
		Update("settling_until", until)
	if res.Error != nil {
		return time.Time{}, false, res.Error
	}
	if res.RowsAffected != 1 {
		return time.Time{}, false, nil
	}
	return until, true, nil
}

// ReleaseLease 只释放自己持有的租约
func (l *Ledger) ReleaseLease(ctx context.Context, gameID, token string) error {
	return l.db.WithContext(ctx).Model(&model.Game{}).
		Where("id = ? AND settling_token = ?", gameID, token).
		Updates(map[string]interface{}{
			"settling_token": nil,
			"settling_until": nil,
		}).Error
}

func (l *Ledger) loadGame(ctx context.Context, gameID string) (*model.Game, error) {
	var game model.Game
	if err := l.db.WithContext(ctx).First(&game, "id = ?", gameID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errno.New(errno.ErrNotFound, fmt.Sprintf("game %s not found", gameID))
		}
		return nil, errno.Wrap(errno.ErrDatabase, "", err)
	}
	return &game, nil
}

func corruption(msg string, expected, got int) error {
	monitor.ObserveCorruptionGuard()
	logger.Error("settlement aborted to prevent data corruption",
		zap.String("detail", msg), zap.Int("expected", expected), zap.Int("got", got))
	return errno.New(errno.ErrCorruptionGuard, "Settlement aborted to prevent data corruption: "+msg).
		WithField("expected", expected).WithField("got", got)
}
