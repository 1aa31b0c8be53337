package station

import (
	"regexp"
	"strings"
)

// DirectionTokens 方向文本 → up/down 键的映射表
// 首尔地铁的方向表述不统一（상행/하행/내선/외선），按线路体系可配置
type DirectionTokens struct {
	Up   []string
	Down []string
}

// DefaultDirectionTokens 2호선/4호선 默认映射
func DefaultDirectionTokens() DirectionTokens {
	return DirectionTokens{
		Up:   []string{"상행", "내선"},
		Down: []string{"하행", "외선"},
	}
}

var normalizeStrip = regexp.MustCompile(`[()\s]`)

// Normalize 比较用归一化：去掉空白/括号并转小写
func Normalize(s string) string {
	return strings.ToLower(normalizeStrip.ReplaceAllString(s, ""))
}

var lineSuffix = regexp.MustCompile(`^(.+?)\s*\((.+?)\)$`)

// StripLineSuffix 去掉括号内的线路标注："평촌(4호선)" → "평촌"
func StripLineSuffix(nameWithLine string) string {
	if m := lineSuffix.FindStringSubmatch(nameWithLine); m != nil {
		return m[1]
	}
	return nameWithLine
}

// MatchParams 方向匹配输入（实时到站记录的相关字段）
type MatchParams struct {
	NeighborAPIName string // 用户选定的方面（邻站）
	UpOrDown        string // "up" | "down"
	UpdnLineText    string // API: "상행" | "하행" | "내선" | "외선" …（可缺失）
	TrainLineNm     string // API: "성수행", "정부과천청사행" 等（可缺失）
	BstatnNm        string // API: 终到站（可缺失）
}

// IsTrainTowardsNeighbor 判断到站记录是否朝向指定邻站
// 规则：方向文本通过 AND（行선 含邻站 OR 终到站 含邻站）
// - 方向文本缺失时宽松放行（实时源上报不稳定，宁可误报不可漏报）
// - 总函数：任意输入都有定义，不失败
func (t DirectionTokens) IsTrainTowardsNeighbor(p MatchParams) bool {
	target := Normalize(p.NeighborAPIName)

	inTrainLine := p.TrainLineNm != "" && strings.Contains(Normalize(p.TrainLineNm), target)
	inDest := p.BstatnNm != "" && strings.Contains(Normalize(p.BstatnNm), target)

	dirOk := p.UpdnLineText == ""
	if !dirOk {
		var tokens []string
		switch p.UpOrDown {
		case "up":
			tokens = t.Up
		case "down":
			tokens = t.Down
		}
		for _, tok := range tokens {
			if strings.Contains(p.UpdnLineText, tok) {
				dirOk = true
				break
			}
		}
	}

	return dirOk && (inTrainLine || inDest)
}
