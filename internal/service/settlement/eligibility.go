package settlement

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"settlement-core/internal/model"
	"settlement-core/internal/service/payout"
	"settlement-core/pkg/errno"
)

// ParticipantEligibility 赢家必须是该游戏的参赛者
type ParticipantEligibility struct {
	db *gorm.DB
}

func NewParticipantEligibility(db *gorm.DB) *ParticipantEligibility {
	return &ParticipantEligibility{db: db}
}

func (e *ParticipantEligibility) CheckWinners(ctx context.Context, game *model.Game, entries []payout.WinnerEntry) error {
	fids := make([]int64, 0, len(entries))
	for _, w := range entries {
		fids = append(fids, w.FID)
	}

	var joined []int64
	if err := e.db.WithContext(ctx).Model(&model.GameParticipant{}).
		Where("game_id = ? AND fid IN ?", game.ID, fids).
		Pluck("fid", &joined).Error; err != nil {
		return errno.Wrap(errno.ErrDatabase, "", err)
	}

	in := make(map[int64]bool, len(joined))
	for _, fid := range joined {
		in[fid] = true
	}
	for _, w := range entries {
		if !in[w.FID] {
			return errno.New(errno.ErrValidation,
				fmt.Sprintf("fid %d at position %d did not participate in game %s", w.FID, w.Position, game.ID)).
				ForFID(w.FID).AtPosition(w.Position).WithReason("not_a_participant")
		}
	}
	return nil
}

// Join 记录参赛者, 重复加入是空操作
func (e *ParticipantEligibility) Join(ctx context.Context, gameID string, fid int64) error {
	var game model.Game
	if err := e.db.WithContext(ctx).First(&game, "id = ?", gameID).Error; err != nil {
		return errno.New(errno.ErrNotFound, fmt.Sprintf("game %s not found", gameID))
	}
	if game.Status != model.GameStatusOpen {
		return errno.New(errno.ErrValidation, fmt.Sprintf("game %s is not open", gameID)).WithReason("game_not_open")
	}
	p := model.GameParticipant{GameID: gameID, FID: fid}
	return e.db.WithContext(ctx).Where(p).FirstOrCreate(&p).Error
}
