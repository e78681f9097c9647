// Package vecmath 是向量相似度计算的小工具集。
package vecmath

import "math"

// Cosine 计算余弦相似度；维度不一致、空向量或零向量返回 0。
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Peak 返回 v 与 refs 中任一向量的最大余弦相似度；refs 为空时 ok=false。
func Peak(v []float64, refs [][]float64) (peak float64, ok bool) {
	if len(v) == 0 {
		return 0, false
	}
	for _, r := range refs {
		if len(r) != len(v) {
			continue
		}
		s := Cosine(v, r)
		if !ok || s > peak {
			peak = s
			ok = true
		}
	}
	return peak, ok
}
