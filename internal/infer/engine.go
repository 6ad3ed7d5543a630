package infer

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// Engine is a quantized fixed-shape model runtime. Input is
// WindowLen*Channels int8 values frame-major; output is NumClasses int8
// logits.
type Engine interface {
	Allocate() error
	// Params is valid after a successful Allocate.
	Params() Params
	SetInput(data []int8) error
	Invoke() error
	Output() ([]int8, error)
	Close() error
}

// EngineConfig selects and locates a model.
type EngineConfig struct {
	Kind      string
	ModelPath string
	Threads   int
}

type engineCtor func(cfg EngineConfig) (Engine, error)

var (
	registryMu sync.Mutex
	registry   = map[string]engineCtor{}
)

func registerEngine(kind string, ctor engineCtor) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[kind] = ctor
}

// EngineKinds lists the engines compiled into this binary.
func EngineKinds() []string {
	registryMu.Lock()
	defer registryMu.Unlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func OpenEngine(cfg EngineConfig) (Engine, error) {
	kind := strings.ToLower(strings.TrimSpace(cfg.Kind))
	if kind == "" {
		kind = "linear"
	}
	registryMu.Lock()
	ctor, ok := registry[kind]
	registryMu.Unlock()
	if !ok {
		return nil, errors.Errorf("engine %q not available (have %s)", kind, strings.Join(EngineKinds(), ", "))
	}
	e, err := ctor(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s engine", kind)
	}
	return e, nil
}
