package recall

import "github.com/rushteam/vidrec/core"

// ApplyAuthorInstanceCaps 单遍贪心地限制每个作者、每个实例的条数。
// 保持输入顺序，超出上限的候选直接丢弃（不替换、不重排）。
// 上限 <= 0 表示不限制；作者未知的候选不计入作者计数。
func ApplyAuthorInstanceCaps(cands []*core.Candidate, maxPerAuthor, maxPerInstance int) []*core.Candidate {
	if maxPerAuthor <= 0 && maxPerInstance <= 0 {
		return cands
	}
	authors := make(map[string]int)
	instances := make(map[string]int)
	out := make([]*core.Candidate, 0, len(cands))
	for _, c := range cands {
		if c == nil {
			continue
		}
		author := c.AuthorKey()
		instance := c.Ref.InstanceDomain
		if maxPerAuthor > 0 && author != "" && authors[author] >= maxPerAuthor {
			continue
		}
		if maxPerInstance > 0 && instances[instance] >= maxPerInstance {
			continue
		}
		if author != "" {
			authors[author]++
		}
		instances[instance]++
		out = append(out, c)
	}
	return out
}
