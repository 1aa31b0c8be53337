package feed

import (
	"sort"

	"github.com/junha0101/subway-alert/internal/models"
	"github.com/junha0101/subway-alert/internal/station"
)

// stationsAway 为 nil 的记录排序时视为最差
const unknownStationsAway = 1 << 30

// DirectionQuery 方面筛选条件
type DirectionQuery struct {
	NeighborAPIName string
	UpOrDown        string // "up" | "down"
}

// PickTopTwoForDirection 从到站记录中挑选朝向指定方面的前两条
// - 先按方向匹配过滤；全被滤掉时回退到未过滤列表（有数据就不空手而归）
// - 按 stationsAway 升序稳定排序，nil 排在所有已知值之后
// - 最多返回 2 条
func PickTopTwoForDirection(records []models.Arrival, q DirectionQuery, tokens station.DirectionTokens) []models.Arrival {
	if len(records) == 0 {
		return nil
	}

	filtered := make([]models.Arrival, 0, len(records))
	for _, r := range records {
		if tokens.IsTrainTowardsNeighbor(station.MatchParams{
			NeighborAPIName: q.NeighborAPIName,
			UpOrDown:        q.UpOrDown,
			UpdnLineText:    r.UpdnLine,
			TrainLineNm:     r.TrainLineNm,
			BstatnNm:        r.BstatnNm,
		}) {
			filtered = append(filtered, r)
		}
	}

	// 方向过滤过严时回退全量：宁可给出"最接近的猜测"也不显示空结果
	candidates := filtered
	if len(candidates) == 0 {
		candidates = append(candidates, records...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return stationsAwayOrKnownWorst(candidates[i]) < stationsAwayOrKnownWorst(candidates[j])
	})

	if len(candidates) > 2 {
		candidates = candidates[:2]
	}
	return candidates
}

func stationsAwayOrKnownWorst(a models.Arrival) int {
	if a.StationsAway == nil {
		return unknownStationsAway
	}
	return *a.StationsAway
}
