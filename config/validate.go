package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/rushteam/vidrec/core"
	"github.com/rushteam/vidrec/pkg/dsl"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Validate 校验 profile：先做结构标签校验，再做跨字段的语义校验。
// 通过后补全默认值。所有错误都包装为 core.ErrInvalidConfig。
func (p *Profile) Validate() error {
	for i := range p.Layers {
		if p.Layers[i].Kind == "" {
			p.Layers[i].Kind = p.Layers[i].Name
		}
	}
	if err := getValidator().Struct(p); err != nil {
		return invalid(p.Name, err)
	}
	if err := p.validateSemantics(); err != nil {
		return invalid(p.Name, err)
	}
	p.applyDefaults()
	return nil
}

func (p *Profile) validateSemantics() error {
	var errs []error
	names := make(map[string]bool, len(p.Layers))
	for i := range p.Layers {
		l := &p.Layers[i]
		if names[l.Name] {
			errs = append(errs, fmt.Errorf("duplicate layer %q", l.Name))
		}
		names[l.Name] = true

		switch l.Kind {
		case KindExploit, KindExplore, KindPopular, KindFresh, KindRandom:
		default:
			errs = append(errs, fmt.Errorf("layer %q: unknown kind %q", l.Name, l.Kind))
		}
		if l.Kind == KindExplore && l.Band.Min >= l.Band.Max {
			errs = append(errs, fmt.Errorf("layer %q: band min %.3f must be below max %.3f", l.Name, l.Band.Min, l.Band.Max))
		}
		if l.Filter != "" {
			if _, err := dsl.Compile(l.Filter); err != nil {
				errs = append(errs, fmt.Errorf("layer %q: filter: %w", l.Name, err))
			}
		}
	}

	for _, name := range p.Mixing.Order {
		if !names[name] {
			errs = append(errs, fmt.Errorf("mixing.order: unknown layer %q", name))
		}
	}
	for name := range p.Scoring.LayerWeights {
		if !names[name] {
			errs = append(errs, fmt.Errorf("scoring.layer_weights: unknown layer %q", name))
		}
	}
	for name, n := range p.SoftCaps.Min {
		if !names[name] {
			errs = append(errs, fmt.Errorf("soft_caps.min: unknown layer %q", name))
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("soft_caps.min.%s: negative", name))
		}
		if max, ok := p.SoftCaps.Max[name]; ok && max < n {
			errs = append(errs, fmt.Errorf("soft_caps: %s min %d exceeds max %d", name, n, max))
		}
	}
	for name, n := range p.SoftCaps.Max {
		if !names[name] {
			errs = append(errs, fmt.Errorf("soft_caps.max: unknown layer %q", name))
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("soft_caps.max.%s: negative", name))
		}
	}
	return errors.Join(errs...)
}

func invalid(profile string, err error) error {
	return core.WrapDomainError(core.ModuleConfig, core.ErrorCodeInvalidConfig,
		fmt.Sprintf("config: profile %q invalid", profile), err)
}
