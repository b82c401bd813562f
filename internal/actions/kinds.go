package actions

import (
	"fmt"
	"time"

	"github.com/AaronLay10/ActionGraph/internal/engine"
	"github.com/AaronLay10/ActionGraph/internal/graph"
	"github.com/AaronLay10/ActionGraph/internal/mqtt"
)

// Deps are the collaborators the built-in kinds need.
type Deps struct {
	Stage     Stage
	Publisher Publisher
	Devices   *mqtt.DeviceRegistry
}

// NewRegistry returns a registry with every built-in kind.
// A nil Stage is replaced by an empty MemoryStage.
func NewRegistry(deps Deps) (*engine.Registry, error) {
	reg := engine.NewRegistry()
	if err := Register(reg, deps); err != nil {
		return nil, err
	}
	return reg, nil
}

// Register adds the built-in kinds to reg.
func Register(reg *engine.Registry, deps Deps) error {
	if deps.Stage == nil {
		deps.Stage = NewMemoryStage()
	}
	if deps.Devices == nil {
		deps.Devices = mqtt.NewDeviceRegistry("devices")
	}
	stage := deps.Stage

	specs := []engine.KindSpec{
		{Name: graph.KindStart, Unique: true, New: instant(nil)},
		{Name: graph.KindEnd, Unique: true, New: instant(nil)},
		{
			Name: "wait", Params: []string{"seconds"}, Defaults: []string{"1"},
			New: func(env engine.Env) (engine.Handler, error) {
				return engine.HandlerFunc(func(p graph.Payload, finish func()) error {
					d, err := p.Seconds(0)
					if err != nil {
						return err
					}
					runTimed(env.Host, d, nil, finish)
					return nil
				}), nil
			},
		},
		tweenKind("move", PropPosition, stage, []string{"target", "x", "y", "seconds"}, []string{"", "0", "0", "1"}),
		tweenKind("rotate", PropRotation, stage, []string{"target", "degrees", "seconds"}, []string{"", "0", "1"}),
		tweenKind("scale", PropScale, stage, []string{"target", "sx", "sy", "seconds"}, []string{"", "1", "1", "1"}),
		tweenKind("fade", PropAlpha, stage, []string{"target", "alpha", "seconds"}, []string{"", "0", "1"}),
		tweenKind("color", PropColor, stage, []string{"target", "r", "g", "b", "a", "seconds"}, []string{"", "1", "1", "1", "1", "1"}),
		{
			Name: "show", Params: []string{"target"}, Defaults: []string{""},
			New: instant(func(p graph.Payload) error {
				return setVisible(stage, p, true)
			}),
		},
		{
			Name: "hide", Params: []string{"target"}, Defaults: []string{""},
			New: instant(func(p graph.Payload) error {
				return setVisible(stage, p, false)
			}),
		},
		{
			Name: "dialogue", Params: []string{"speaker", "line"}, Defaults: []string{"", ""},
			New: func(env engine.Env) (engine.Handler, error) {
				return engine.HandlerFunc(func(p graph.Payload, finish func()) error {
					// Acknowledgement may arrive from outside the tick loop; hand it back to the host.
					stage.Say(p.Param(0), p.Param(1), func() {
						env.Host.OnNextTick(finish)
					})
					return nil
				}), nil
			},
		},
		{
			Name: "transition", Params: []string{"state"}, Defaults: []string{""},
			New: instant(func(p graph.Payload) error {
				if p.Param(0) == "" {
					return fmt.Errorf("transition: missing state")
				}
				return stage.Transition(p.Param(0))
			}),
		},
		deviceKind(deps.Publisher, deps.Devices),
	}

	for _, spec := range specs {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// instant builds a factory for kinds that finish as soon as they are applied.
func instant(apply func(p graph.Payload) error) engine.Factory {
	return func(env engine.Env) (engine.Handler, error) {
		return engine.HandlerFunc(func(p graph.Payload, finish func()) error {
			if apply != nil {
				if err := apply(p); err != nil {
					return err
				}
			}
			finish()
			return nil
		}), nil
	}
}

func setVisible(stage Stage, p graph.Payload, visible bool) error {
	target := p.Param(0)
	if target == "" {
		return fmt.Errorf("%s: missing target", p.Kind)
	}
	stage.SetVisible(target, visible)
	return nil
}

// tweenKind interpolates prop on the target in parameter 0 to the values that follow
// it, over the duration in the last parameter.
func tweenKind(name string, prop Property, stage Stage, params, defaults []string) engine.KindSpec {
	return engine.KindSpec{
		Name:     name,
		Params:   params,
		Defaults: defaults,
		New: func(env engine.Env) (engine.Handler, error) {
			return engine.HandlerFunc(func(p graph.Payload, finish func()) error {
				target := p.Param(0)
				if target == "" {
					return fmt.Errorf("%s: missing target", name)
				}
				n := prop.Arity()
				to, err := p.Floats(1, n)
				if err != nil {
					return err
				}
				d, err := p.Seconds(1 + n)
				if err != nil {
					return err
				}
				from := stage.Get(target, prop)
				if len(from) != n {
					from = prop.Default()
				}
				runTimed(env.Host, d, func(t float64) {
					stage.Set(target, prop, lerp(from, to, t))
				}, finish)
				return nil
			}), nil
		},
	}
}

// runTimed calls step with progress in (0, 1] on each tick until d has elapsed, then finishes.
// A non-positive duration completes on the first tick.
func runTimed(host engine.Host, d time.Duration, step func(t float64), finish func()) {
	var elapsed time.Duration
	var cancel func()
	cancel = host.OnTick(func(dt time.Duration) {
		elapsed += dt
		t := 1.0
		if d > 0 && elapsed < d {
			t = float64(elapsed) / float64(d)
		}
		if step != nil {
			step(t)
		}
		if t >= 1 {
			cancel()
			finish()
		}
	})
}

func lerp(from, to []float64, t float64) []float64 {
	out := make([]float64, len(to))
	for i := range to {
		out[i] = from[i] + (to[i]-from[i])*t
	}
	return out
}
