package module

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mafredri/cdp/protocol/input"
	"github.com/mafredri/cdp/protocol/runtime"

	"bidimapper/pkg/domain"
)

// InputModule input.* 命令
type InputModule struct {
	*Deps

	mu sync.Mutex
	// pressed 每个上下文已按下的输入源状态，releaseActions 用
	pressed map[domain.ContextID]*inputState
}

type inputState struct {
	keys    []string
	buttons []int
}

// NewInputModule 创建模块
func NewInputModule(d *Deps) *InputModule {
	return &InputModule{Deps: d, pressed: make(map[domain.ContextID]*inputState)}
}

type performActionsParams struct {
	Context domain.ContextID `json:"context"`
	Actions []actionSource   `json:"actions"`
}

type actionSource struct {
	Type    string       `json:"type"`
	ID      string       `json:"id"`
	Actions []actionItem `json:"actions"`
}

type actionItem struct {
	Type     string   `json:"type"`
	Duration *int     `json:"duration"`
	Value    string   `json:"value"`
	X        *float64 `json:"x"`
	Y        *float64 `json:"y"`
	Button   *int     `json:"button"`
	DeltaX   *float64 `json:"deltaX"`
	DeltaY   *float64 `json:"deltaY"`
}

// PerformActions input.performActions：按源内顺序注入
func (m *InputModule) PerformActions(ctx context.Context, cmd *domain.Command) (any, error) {
	var p performActionsParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, _, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}

	m.mu.Lock()
	st, ok := m.pressed[p.Context]
	if !ok {
		st = &inputState{}
		m.pressed[p.Context] = st
	}
	m.mu.Unlock()

	var x, y float64
	for _, src := range p.Actions {
		for _, a := range src.Actions {
			var err error
			switch a.Type {
			case "pause":
				d := 0
				if a.Duration != nil {
					d = *a.Duration
				}
				select {
				case <-time.After(time.Duration(d) * time.Millisecond):
				case <-ctx.Done():
					return nil, domain.NewError(domain.ErrUnknownError, "action sequence interrupted")
				}
			case "keyDown":
				err = t.DispatchKeyEvent(ctx, keyEventArgs("keyDown", a.Value))
				m.mu.Lock()
				st.keys = append(st.keys, a.Value)
				m.mu.Unlock()
			case "keyUp":
				err = t.DispatchKeyEvent(ctx, keyEventArgs("keyUp", a.Value))
				m.mu.Lock()
				st.keys = removeString(st.keys, a.Value)
				m.mu.Unlock()
			case "pointerMove":
				if a.X != nil {
					x = *a.X
				}
				if a.Y != nil {
					y = *a.Y
				}
				err = t.DispatchMouseEvent(ctx, mouseEventArgs("mouseMoved", x, y, -1))
			case "pointerDown":
				b := buttonOf(a)
				err = t.DispatchMouseEvent(ctx, mouseEventArgs("mousePressed", x, y, b))
				m.mu.Lock()
				st.buttons = append(st.buttons, b)
				m.mu.Unlock()
			case "pointerUp":
				b := buttonOf(a)
				err = t.DispatchMouseEvent(ctx, mouseEventArgs("mouseReleased", x, y, b))
				m.mu.Lock()
				st.buttons = removeInt(st.buttons, b)
				m.mu.Unlock()
			case "scroll":
				args := mouseEventArgs("mouseWheel", x, y, -1)
				dx, dy := 0.0, 0.0
				if a.DeltaX != nil {
					dx = *a.DeltaX
				}
				if a.DeltaY != nil {
					dy = *a.DeltaY
				}
				args.DeltaX = &dx
				args.DeltaY = &dy
				err = t.DispatchMouseEvent(ctx, args)
			default:
				return nil, domain.InvalidArgument("Unknown action type '%s'", a.Type)
			}
			if err != nil {
				return nil, domain.UnknownError(err)
			}
		}
	}
	return domain.EmptyResult{}, nil
}

type releaseActionsParams struct {
	Context domain.ContextID `json:"context"`
}

// ReleaseActions input.releaseActions：逆序释放按下的输入源
func (m *InputModule) ReleaseActions(ctx context.Context, cmd *domain.Command) (any, error) {
	var p releaseActionsParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, _, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}

	m.mu.Lock()
	st := m.pressed[p.Context]
	delete(m.pressed, p.Context)
	m.mu.Unlock()
	if st == nil {
		return domain.EmptyResult{}, nil
	}

	for i := len(st.buttons) - 1; i >= 0; i-- {
		if err := t.DispatchMouseEvent(ctx, mouseEventArgs("mouseReleased", 0, 0, st.buttons[i])); err != nil {
			return nil, domain.UnknownError(err)
		}
	}
	for i := len(st.keys) - 1; i >= 0; i-- {
		if err := t.DispatchKeyEvent(ctx, keyEventArgs("keyUp", st.keys[i])); err != nil {
			return nil, domain.UnknownError(err)
		}
	}
	return domain.EmptyResult{}, nil
}

type setFilesParams struct {
	Context domain.ContextID `json:"context"`
	Element struct {
		Handle   string `json:"handle"`
		SharedID string `json:"sharedId"`
	} `json:"element"`
	Files []string `json:"files"`
}

// SetFiles input.setFiles：为文件输入元素注入文件列表
func (m *InputModule) SetFiles(ctx context.Context, cmd *domain.Command) (any, error) {
	var p setFilesParams
	if err := json.Unmarshal(cmd.Params, &p); err != nil {
		return nil, domain.InvalidArgument("malformed params: %s", err)
	}
	t, _, derr := m.targetFor(p.Context)
	if derr != nil {
		return nil, derr
	}
	handle := p.Element.Handle
	if handle == "" {
		return nil, domain.NewError(domain.ErrNoSuchNode, "Element reference requires a handle")
	}
	if err := t.SetFileInputFiles(ctx, p.Files, runtime.RemoteObjectID(handle)); err != nil {
		return nil, domain.UnknownError(err)
	}
	return domain.EmptyResult{}, nil
}

func keyEventArgs(typ, value string) *input.DispatchKeyEventArgs {
	args := &input.DispatchKeyEventArgs{Type: typ}
	if value != "" {
		args.Text = &value
		args.Key = &value
	}
	return args
}

func mouseEventArgs(typ string, x, y float64, button int) *input.DispatchMouseEventArgs {
	args := &input.DispatchMouseEventArgs{Type: typ, X: x, Y: y}
	if button >= 0 {
		name := mouseButtonName(button)
		args.Button = input.MouseButton(name)
		clicks := 1
		args.ClickCount = &clicks
	}
	return args
}

func mouseButtonName(button int) string {
	switch button {
	case 1:
		return "middle"
	case 2:
		return "right"
	case 3:
		return "back"
	case 4:
		return "forward"
	default:
		return "left"
	}
}

func buttonOf(a actionItem) int {
	if a.Button != nil {
		return *a.Button
	}
	return 0
}

func removeString(xs []string, s string) []string {
	for i, x := range xs {
		if x == s {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}

func removeInt(xs []int, v int) []int {
	for i, x := range xs {
		if x == v {
			return append(xs[:i], xs[i+1:]...)
		}
	}
	return xs
}
