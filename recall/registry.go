package recall

import (
	"sort"
	"sync"
)

// Builder 根据共享依赖构建一种生成器。
// 各生成器在 init 中调用 Register(kind, builder) 注册。
type Builder func(d Deps) Generator

var (
	builders   = make(map[string]Builder)
	buildersMu sync.RWMutex
)

// Register 注册一种生成器的构建逻辑；同名注册会覆盖。
func Register(kind string, builder Builder) {
	if kind == "" || builder == nil {
		return
	}
	buildersMu.Lock()
	defer buildersMu.Unlock()
	builders[kind] = builder
}

// SupportedKinds 返回已注册的生成器类型（排序），用于错误提示与校验。
func SupportedKinds() []string {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Build 用 d 构建所有已注册的生成器，返回 kind → Generator。
func Build(d Deps) map[string]Generator {
	buildersMu.RLock()
	defer buildersMu.RUnlock()
	out := make(map[string]Generator, len(builders))
	for kind, b := range builders {
		out[kind] = b(d)
	}
	return out
}
