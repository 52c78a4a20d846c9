package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Shopify/go-lua"
	"github.com/viant/fluxflow/model/flow"
)

const (
	luaStatePoolSize    = 10
	luaGlobalTableIndex = -2
	luaTableSetIndex    = -3
	luaGlobalTableName  = "_G"
	luaArgPrologue      = "local businessData = select(1, ...)\n"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// Lua runs a sandboxed chunk receiving businessData; a returned table becomes the output
type Lua struct {
	statePool chan *lua.State
	compiled  sync.Map
}

func (l *Lua) Run(ctx context.Context, source string, data flow.Values) (flow.Values, error) {
	bytecode, err := l.compile(source)
	if err != nil {
		return nil, err
	}
	L := l.getState()
	defer l.returnState(L)
	setupSandbox(L)
	if err = L.Load(bytes.NewReader(bytecode), "chunk", "b"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	goToLua(L, map[string]interface{}(data))
	if err = L.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}
	defer L.Pop(1)
	switch L.TypeOf(-1) {
	case lua.TypeNil:
		return nil, nil
	case lua.TypeTable:
		if values, ok := luaToGo(L, -1).(map[string]interface{}); ok {
			return values, nil
		}
	}
	return flow.Values{"result": luaToGo(L, -1)}, nil
}

func (l *Lua) compile(source string) ([]byte, error) {
	if cached, ok := l.compiled.Load(source); ok {
		return cached.([]byte), nil
	}
	L := lua.NewState()
	setupSandbox(L)
	if err := lua.LoadString(L, luaArgPrologue+source); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, err
	}
	l.compiled.Store(source, buf.Bytes())
	return buf.Bytes(), nil
}

func setupSandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func (l *Lua) getState() *lua.State {
	select {
	case L := <-l.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (l *Lua) returnState(L *lua.State) {
	L.SetTop(0)
	select {
	case l.statePool <- L:
	default:
	}
}

func goToLua(L *lua.State, value interface{}) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case int:
		L.PushInteger(v)
	case int64:
		L.PushInteger(int(v))
	case float64:
		L.PushNumber(v)
	case []interface{}:
		L.CreateTable(len(v), 0)
		for i, item := range v {
			L.PushInteger(i + 1)
			goToLua(L, item)
			L.SetTable(luaTableSetIndex)
		}
	case flow.Values:
		goToLua(L, map[string]interface{}(v))
	case map[string]interface{}:
		L.CreateTable(0, len(v))
		for k, item := range v {
			L.PushString(k)
			goToLua(L, item)
			L.SetTable(luaTableSetIndex)
		}
	case nil:
		L.PushNil()
	default:
		L.PushString(fmt.Sprintf("%v", v))
	}
}

func luaToGo(L *lua.State, index int) interface{} {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		num, _ := L.ToNumber(index)
		if num == float64(int(num)) {
			return int(num)
		}
		return num
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToGo(L, L.AbsIndex(index))
	default:
		return nil
	}
}

// luaTableToGo converts the table at absolute index; sequences become slices
func luaTableToGo(L *lua.State, index int) interface{} {
	length := L.RawLength(index)
	entries := 0
	L.PushNil()
	for L.Next(index) {
		entries++
		L.Pop(1)
	}
	if length > 0 && length == entries {
		ret := make([]interface{}, length)
		for i := 1; i <= length; i++ {
			L.RawGetInt(index, i)
			ret[i-1] = luaToGo(L, -1)
			L.Pop(1)
		}
		return ret
	}
	ret := map[string]interface{}{}
	L.PushNil()
	for L.Next(index) {
		key := fmt.Sprintf("%v", luaToGo(L, -2))
		if L.TypeOf(-2) == lua.TypeString {
			key, _ = L.ToString(-2)
		}
		ret[key] = luaToGo(L, -1)
		L.Pop(1)
	}
	return ret
}

// NewLua creates a lua engine with a state pool
func NewLua() *Lua {
	return &Lua{statePool: make(chan *lua.State, luaStatePoolSize)}
}
