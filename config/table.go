package config

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/vidrec/core"
)

// GuestPrefix 是无点赞用户使用的 profile 前缀：mode=home 且无点赞时优先选 guest_home。
const GuestPrefix = "guest_"

// DefaultMode 是 mode 为空时使用的 profile。
const DefaultMode = "home"

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// Table 是具名 profile 表，加载后只读，可并发访问。
type Table struct {
	profiles map[string]*Profile
}

// tableFile 是 profile YAML 文件的顶层结构。
//
//	profiles:
//	  - name: home
//	    batch_size: 30
//	    layers: [...]
type tableFile struct {
	Profiles []*Profile `yaml:"profiles"`
}

// NewTable 校验并构建 profile 表；传入的 profile 会被拷贝。
func NewTable(profiles ...*Profile) (*Table, error) {
	t := &Table{profiles: make(map[string]*Profile, len(profiles))}
	for _, p := range profiles {
		if p == nil {
			continue
		}
		cp := p.clone()
		if err := cp.Validate(); err != nil {
			return nil, err
		}
		if _, dup := t.profiles[cp.Name]; dup {
			return nil, invalid(cp.Name, fmt.Errorf("duplicate profile"))
		}
		t.profiles[cp.Name] = cp
	}
	if len(t.profiles) == 0 {
		return nil, core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig, "config: empty profile table", nil)
	}
	return t, nil
}

// ParseTable 从 YAML 解析 profile 表。
func ParseTable(data []byte) (*Table, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig, "config: parse profiles", err)
	}
	return NewTable(f.Profiles...)
}

// LoadTable 从文件加载 profile 表。
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig, "config: read "+path, err)
	}
	return ParseTable(data)
}

// DefaultTable 返回内置的四个 profile：home / guest_home / upnext / guest_upnext。
func DefaultTable() *Table {
	t, err := ParseTable(defaultProfilesYAML)
	if err != nil {
		panic(fmt.Sprintf("config: builtin profiles: %v", err))
	}
	return t
}

// Get 按名称读取 profile。
func (t *Table) Get(name string) (*Profile, bool) {
	p, ok := t.profiles[name]
	return p, ok
}

// Names 返回所有 profile 名称（排序）。
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.profiles))
	for name := range t.profiles {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Resolve 根据 mode 与是否有点赞选择 profile：
// 无点赞且存在 guest_<mode> 时选它，否则选 <mode>；都不存在返回 core.ErrUnknownProfile。
// 返回的 profile 为共享只读对象，调用方不得修改。
func (t *Table) Resolve(mode string, hasLikes bool) (*Profile, error) {
	if mode == "" {
		mode = DefaultMode
	}
	if !hasLikes {
		if p, ok := t.profiles[GuestPrefix+mode]; ok {
			return p, nil
		}
	}
	if p, ok := t.profiles[mode]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("mode %q: %w", mode, core.ErrUnknownProfile)
}
