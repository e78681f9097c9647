package core

import (
	"sort"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/rushteam/vidrec/pkg/utils"
)

// 常用的 Trace 注解名
const (
	TraceLayer     = "layer"
	TraceRankPre   = "rank_pre"
	TraceRankFinal = "rank_final"
	TracePoolMin   = "pool_min"
	TracePoolMax   = "pool_max"
	TraceDropped   = "dropped"
)

// Trace 是调试/观测信息的旁路通道：按 like key 记录 Label，不修改候选本身。
// 只用于 explain，任何逻辑都不应读取它。
type Trace struct {
	RequestID string

	mu      sync.Mutex
	entries map[string]map[string]utils.Label
	layers  map[string]map[string]utils.Label
}

func NewTrace() *Trace {
	return &Trace{
		RequestID: uuid.NewString(),
		entries:   make(map[string]map[string]utils.Label),
		layers:    make(map[string]map[string]utils.Label),
	}
}

// Put 记录候选级注解；同名注解按 MergeLabel 累积。
func (t *Trace) Put(key, name string, lbl utils.Label) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	put(t.entries, key, name, lbl)
}

// PutLayer 记录层级注解（例如池内最小/最大分数）。
func (t *Trace) PutLayer(layer, name string, lbl utils.Label) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	put(t.layers, layer, name, lbl)
}

func put(m map[string]map[string]utils.Label, key, name string, lbl utils.Label) {
	labels, ok := m[key]
	if !ok {
		labels = make(map[string]utils.Label)
		m[key] = labels
	}
	if old, ok := labels[name]; ok {
		labels[name] = utils.MergeLabel(old, lbl)
		return
	}
	labels[name] = lbl
}

// Get 读取候选级注解。
func (t *Trace) Get(key, name string) (utils.Label, bool) {
	if t == nil {
		return utils.Label{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	lbl, ok := t.entries[key][name]
	return lbl, ok
}

// Layer 读取层级注解。
func (t *Trace) Layer(layer, name string) (utils.Label, bool) {
	if t == nil {
		return utils.Label{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	lbl, ok := t.layers[layer][name]
	return lbl, ok
}

// Keys 返回有注解的 like key（排序后）。
func (t *Trace) Keys() []string {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON 输出注解快照，用于 explain。
func (t *Trace) MarshalJSON() ([]byte, error) {
	if t == nil {
		return []byte("null"), nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return json.Marshal(struct {
		RequestID string                            `json:"request_id"`
		Items     map[string]map[string]utils.Label `json:"items,omitempty"`
		Layers    map[string]map[string]utils.Label `json:"layers,omitempty"`
	}{t.RequestID, t.entries, t.layers})
}
