package station

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Row 车站数据行（2호선/4호선 数据集）
type Row struct {
	DisplayName   string `json:"displayName"`   // App 显示名："인덕원역"
	APIName       string `json:"apiName"`       // API 查询名："인덕원"
	Line          string `json:"line"`          // "2호선" | "4호선"
	NeighborsUp   string `json:"neighborsUp"`   // "정부과천청사(4호선)"，可为空
	NeighborsDown string `json:"neighborsDown"` // "평촌(4호선)"，可为空
	BranchTag     string `json:"branchTag"`     // "main" 等
}

// Direction 方面候选（邻站）
type Direction struct {
	Key             string `json:"key"`   // "up" | "down"
	Label           string `json:"label"` // "평촌 방면"
	NeighborAPIName string `json:"neighborApiName"`
}

// Directory 车站目录（只读数据集）
type Directory struct {
	rows []Row
}

// LoadDirectory 从 JSON 数据文件加载车站目录
func LoadDirectory(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stations file: %w", err)
	}

	var rows []Row
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stations file: %w", err)
	}

	return NewDirectory(rows), nil
}

// NewDirectory 以内存数据构建目录（测试用）
func NewDirectory(rows []Row) *Directory {
	return &Directory{rows: rows}
}

// All 返回全部数据（只读）
func (d *Directory) All() []Row {
	return d.rows
}

// LinesFor 指定车站（apiName）的线路列表（去重）
func (d *Directory) LinesFor(apiName string) []string {
	key := Normalize(apiName)
	seen := make(map[string]bool)
	var lines []string
	for _, row := range d.rows {
		if Normalize(row.APIName) == key && !seen[row.Line] {
			seen[row.Line] = true
			lines = append(lines, row.Line)
		}
	}
	return lines
}

// SearchResult 自动补全结果
type SearchResult struct {
	DisplayName string `json:"displayName"`
	APIName     string `json:"apiName"`
	Line        string `json:"line"`
}

// Search 站名部分匹配（显示名/查询名均可），limit<=0 时默认 10
func (d *Directory) Search(query string, limit int, line string) []SearchResult {
	q := Normalize(query)
	if q == "" {
		return nil
	}
	if limit <= 0 {
		limit = 10
	}

	var lineFilter string
	if line != "" {
		lineFilter = Normalize(line)
	}

	var results []SearchResult
	for _, row := range d.rows {
		if lineFilter != "" && Normalize(row.Line) != lineFilter {
			continue
		}
		cand1 := Normalize(row.DisplayName)
		cand2 := Normalize(row.APIName)
		if strings.Contains(cand1, q) || strings.Contains(cand2, q) {
			results = append(results, SearchResult{
				DisplayName: row.DisplayName,
				APIName:     row.APIName,
				Line:        row.Line,
			})
			if len(results) >= limit {
				break
			}
		}
	}
	return results
}

// DirectionsFor 指定车站+线路的方面候选（up/down 邻站）
func (d *Directory) DirectionsFor(apiName, line string) []Direction {
	keyStation := Normalize(apiName)
	keyLine := Normalize(line)

	for _, row := range d.rows {
		if Normalize(row.APIName) != keyStation || Normalize(row.Line) != keyLine {
			continue
		}

		var out []Direction
		if row.NeighborsUp != "" {
			name := StripLineSuffix(row.NeighborsUp)
			out = append(out, Direction{Key: "up", Label: name + " 방면", NeighborAPIName: name})
		}
		if row.NeighborsDown != "" {
			name := StripLineSuffix(row.NeighborsDown)
			out = append(out, Direction{Key: "down", Label: name + " 방면", NeighborAPIName: name})
		}
		return out
	}
	return nil
}

// ValidateDirection 选定的方面是否为该车站/线路的有效邻站
func (d *Directory) ValidateDirection(apiName, line, pickedNeighborAPIName string) bool {
	key := Normalize(pickedNeighborAPIName)
	for _, c := range d.DirectionsFor(apiName, line) {
		if Normalize(c.NeighborAPIName) == key {
			return true
		}
	}
	return false
}
