package utils

import "strconv"

// Label 是 Trace 中的一条注解：可解释、可追踪。
// Value 是注解值，Source 是写入它的阶段（collect / score / postfilter ...）。
type Label struct {
	Value  string `json:"value"`
	Source string `json:"source"`
}

// IntLabel 以整数值构造 Label。
func IntLabel(v int, source string) Label {
	return Label{Value: strconv.Itoa(v), Source: source}
}

// FloatLabel 以浮点值构造 Label（保留 4 位小数）。
func FloatLabel(v float64, source string) Label {
	return Label{Value: strconv.FormatFloat(v, 'f', 4, 64), Source: source}
}

// MergeLabel 合并同名 Label，保留历史：
// - Value: 以 '|' 累积（例如同一视频先后出现在 exploit 与 popular 层："exploit|popular"）
// - Source: 以 ',' 累积
func MergeLabel(existing Label, incoming Label) Label {
	if existing.Value == "" {
		return incoming
	}
	if incoming.Value == "" {
		return existing
	}

	merged := existing
	merged.Value = existing.Value + "|" + incoming.Value
	switch {
	case existing.Source == "":
		merged.Source = incoming.Source
	case incoming.Source == "" || incoming.Source == existing.Source:
		merged.Source = existing.Source
	default:
		merged.Source = existing.Source + "," + incoming.Source
	}
	return merged
}
