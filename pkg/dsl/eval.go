package dsl

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/rushteam/vidrec/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvErr  error
	celEnvOnce sync.Once

	// programs 缓存已编译的表达式（expr → *Program）
	programs sync.Map
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("video", cel.DynType),
		cel.Variable("rctx", cel.DynType),
	)
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	celEnvOnce.Do(func() {
		celEnv, celEnvErr = initCELEnv()
	})
	return celEnv, celEnvErr
}

// Program 是编译后的候选过滤表达式，可并发复用。
//
// 表达式语法（CEL 标准语法），可用变量：
//   - video.views / video.likes / video.duration / video.age_days（数值）
//   - video.language / video.author / video.instance / video.layer（字符串）
//   - video.nsfw（布尔）、video.similarity（[0,1]）
//   - rctx.user_id / rctx.mode / rctx.has_likes
//
// 示例：
//   - `video.duration >= 60 && !video.nsfw`
//   - `video.age_days < 30.0 || video.views > 10000`
//   - `video.language in ["en", ""]`
type Program struct {
	expr string
	prg  cel.Program
}

// Compile 编译表达式；相同表达式只编译一次。
// 表达式必须返回布尔值，否则在编译期报错。
func Compile(expr string) (*Program, error) {
	if v, ok := programs.Load(expr); ok {
		return v.(*Program), nil
	}
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.BoolType) && !t.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must return bool, got %s", t)
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program error: %w", err)
	}
	p := &Program{expr: expr, prg: prg}
	actual, _ := programs.LoadOrStore(expr, p)
	return actual.(*Program), nil
}

// String 返回原始表达式。
func (p *Program) String() string { return p.expr }

// Eval 对候选求值。
func (p *Program) Eval(c *core.Candidate, rctx *core.RecommendContext) (bool, error) {
	now := time.Now()
	if rctx != nil && !rctx.Now.IsZero() {
		now = rctx.Now
	}
	out, _, err := p.prg.Eval(map[string]any{
		"video": VideoInput(c, now),
		"rctx":  rctxInput(rctx),
	})
	if err != nil {
		return false, fmt.Errorf("eval error: %w", err)
	}
	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression must return boolean, got %T", out.Value())
	}
	return result, nil
}

// VideoInput 构建候选的 CEL 输入；元数据缺失时各字段取零值，保证表达式不会因缺 key 报错。
func VideoInput(c *core.Candidate, now time.Time) map[string]any {
	in := map[string]any{
		"id":         c.Ref.VideoID,
		"instance":   c.Ref.InstanceDomain,
		"layer":      c.Layer,
		"similarity": c.SimilarityScore,
		"views":      int64(0),
		"likes":      int64(0),
		"duration":   int64(0),
		"age_days":   -1.0,
		"language":   "",
		"nsfw":       false,
		"author":     "",
	}
	m := c.Meta
	if m == nil {
		return in
	}
	in["views"] = m.Views
	in["likes"] = m.Likes
	in["duration"] = int64(m.DurationSec)
	in["language"] = m.Language
	in["nsfw"] = m.NSFW
	in["author"] = m.AuthorKey()
	if !m.PublishedAt.IsZero() {
		age := now.Sub(m.PublishedAt).Hours() / 24
		if age < 0 {
			age = 0
		}
		in["age_days"] = age
	}
	return in
}

func rctxInput(rctx *core.RecommendContext) map[string]any {
	if rctx == nil {
		return map[string]any{"user_id": "", "mode": "", "has_likes": false}
	}
	return map[string]any{
		"user_id":   rctx.UserID,
		"mode":      rctx.Mode,
		"has_likes": rctx.HasLikes(),
	}
}
