package models

// RawArrival 首尔实时到站 API 的原始记录（只保留需要的字段）
type RawArrival struct {
	SubwayID    string `json:"subwayId,omitempty"`
	UpdnLine    string `json:"updnLine,omitempty"`    // "상행" | "하행" | "내선" | "외선"
	TrainLineNm string `json:"trainLineNm,omitempty"` // "정부과천청사행" 等
	BstatnNm    string `json:"bstatnNm,omitempty"`    // 终到站
	ArvlMsg2    string `json:"arvlMsg2,omitempty"`    // "2분 후(서초 진입)" 摘要
	ArvlMsg3    string `json:"arvlMsg3,omitempty"`    // "서초 진입" 当前状态
	RecptnDt    string `json:"recptnDt,omitempty"`    // 接收时刻
}

// Arrival 规范化后的到站记录
// StationsAway 从自由文本解析；解析失败为 nil（排序时视为最差）
type Arrival struct {
	UpdnLine     string `json:"updn_line,omitempty"`
	TrainLineNm  string `json:"train_line_nm,omitempty"`
	BstatnNm     string `json:"bstatn_nm,omitempty"`
	ArvlMsg2     string `json:"arvl_msg2,omitempty"`
	ArvlMsg3     string `json:"arvl_msg3,omitempty"`
	RecptnDt     string `json:"recptn_dt,omitempty"`
	StationsAway *int   `json:"stations_away,omitempty"`
}
