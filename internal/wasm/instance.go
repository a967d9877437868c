package wasm

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/tetratelabs/wazero/api"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apiwasm "github.com/woxQAQ/tokenbridge/api/wasm"
	"github.com/woxQAQ/tokenbridge/internal/codec"
)

const tracerName = "github.com/woxQAQ/tokenbridge/internal/wasm"

var _ apiwasm.Caller = (*Instance)(nil)

// InstanceManager creates bridge instances from compiled modules.
type InstanceManager struct {
	runtime *Runtime
	caps    *Capabilities
	logger  *zap.Logger

	codec  codec.Codec
	layout ResultLayout
	tracer trace.Tracer

	// serializes the instance limit check with registration
	mu sync.Mutex
}

// Option configures an InstanceManager.
type Option func(*InstanceManager)

// WithCodec sets the structured encoding used by Call and CallInto.
func WithCodec(c codec.Codec) Option {
	return func(m *InstanceManager) { m.codec = c }
}

// WithResultLayout pins the result record layout.
func WithResultLayout(l ResultLayout) Option {
	return func(m *InstanceManager) { m.layout = l }
}

// WithTracer sets the tracer used for guest call spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *InstanceManager) { m.tracer = t }
}

// NewInstanceManager creates a new instance manager. Instances are
// created against caps; by default they use MessagePack and detect the
// result layout.
func NewInstanceManager(runtime *Runtime, caps *Capabilities, logger *zap.Logger, opts ...Option) *InstanceManager {
	m := &InstanceManager{
		runtime: runtime,
		caps:    caps,
		logger:  logger.With(zap.String("component", "wasm-instance")),
		codec:   codec.MsgPack{},
		layout:  LayoutAuto,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer(tracerName)
	}
	if m.caps == nil {
		m.caps = BuildCapabilities(logger, CapabilityConfig{})
	}
	return m
}

// InstanceConfig holds configuration for creating instances.
type InstanceConfig struct {
	// Module name to instantiate.
	ModuleName string

	// Instance ID (if empty, a ULID is generated).
	InstanceID string
}

// Instance is a live guest module together with its resolved allocator,
// memory and export table. All operations on one Instance are serialized.
type Instance struct {
	mu sync.Mutex

	// wazero module instance.
	module api.Module

	// Instance metadata.
	ID        string
	Name      string
	CreatedAt int64

	exports   *ExportTable
	allocator api.Function
	memory    *Memory

	codec   codec.Codec
	layout  ResultLayout
	tracer  trace.Tracer
	sinks   []*ConsoleSink
	runtime *Runtime
	logger  *zap.Logger
	closed  bool
}

// Instantiate creates a new instance from a compiled module: it links the
// module against the capability environment, runs _initialize when
// exported, then resolves the export table, the allocator and memory.
func (m *InstanceManager) Instantiate(ctx context.Context, config *InstanceConfig) (*Instance, error) {
	if m.runtime.IsClosed() {
		return nil, errors.New("wasm runtime is closed")
	}

	compiled, ok := m.runtime.GetCompiledModule(config.ModuleName)
	if !ok {
		return nil, &ModuleNotFoundError{ModuleName: config.ModuleName}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if limit := m.runtime.config.MaxInstances; limit > 0 && m.runtime.InstanceCount() >= limit {
		return nil, &InstanceLimitError{Limit: limit}
	}

	instanceID := config.InstanceID
	if instanceID == "" {
		instanceID = ulid.Make().String()
	}

	m.logger.Info("Instantiating Wasm module",
		zap.String("module", config.ModuleName),
		zap.String("instance_id", instanceID),
	)

	modConfig, sinks := m.caps.ModuleConfig(instanceID)
	module, err := m.runtime.runtime.InstantiateModule(ctx, compiled.Module, modConfig)
	if err != nil {
		return nil, &InstantiationError{
			ModuleName: config.ModuleName,
			InstanceID: instanceID,
			Err:        err,
		}
	}

	instance, err := m.bind(ctx, module, config.ModuleName, instanceID)
	if err != nil {
		flushSinks(sinks)
		_ = module.Close(ctx)
		return nil, err
	}
	instance.sinks = sinks

	m.runtime.StoreInstance(instance)

	m.logger.Info("Module instantiated successfully",
		zap.String("instance_id", instanceID),
		zap.Int("exported_functions", instance.exports.Len()),
		zap.Uint32("memory_bytes", instance.memory.Size()),
	)

	return instance, nil
}

func (m *InstanceManager) bind(ctx context.Context, module api.Module, moduleName, instanceID string) (*Instance, error) {
	if init := module.ExportedFunction(InitializeExport); init != nil {
		if _, err := init.Call(ctx); err != nil {
			return nil, &InstantiationError{ModuleName: moduleName, InstanceID: instanceID, Err: err}
		}
	}

	exports := buildExportTable(module)

	def, ok := module.ExportedFunctionDefinitions()[ReallocExport]
	if !ok || !isReallocShape(def) {
		return nil, &MissingCapabilityError{ModuleName: moduleName, Capability: ReallocExport}
	}

	mem := module.Memory()
	if mem == nil {
		return nil, &MissingCapabilityError{ModuleName: moduleName, Capability: "memory"}
	}

	return &Instance{
		module:    module,
		ID:        instanceID,
		Name:      moduleName,
		CreatedAt: time.Now().Unix(),
		exports:   exports,
		allocator: module.ExportedFunction(ReallocExport),
		memory:    NewMemory(mem),
		codec:     m.codec,
		layout:    m.layout,
		tracer:    m.tracer,
		runtime:   m.runtime,
		logger: m.logger.With(
			zap.String("instance_id", instanceID),
			zap.String("module", moduleName),
		),
	}, nil
}

// HasFunction reports whether name is an invocable export.
func (i *Instance) HasFunction(name string) bool {
	_, ok := i.exports.Lookup(name)
	return ok
}

// Functions returns the invocable export names, sorted.
func (i *Instance) Functions() []string {
	return i.exports.Names()
}

// Generation returns the current memory generation.
func (i *Instance) Generation() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.memory.Generation()
}

// Close closes the instance and releases resources. Safe to call more than once.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true
	flushSinks(i.sinks)
	i.runtime.DeleteInstance(i.ID)
	return i.module.Close(ctx)
}

func (i *Instance) checkOpen() error {
	if i.closed {
		return &InstanceClosedError{InstanceID: i.ID}
	}
	return nil
}

func flushSinks(sinks []*ConsoleSink) {
	for _, s := range sinks {
		s.Flush()
	}
}
