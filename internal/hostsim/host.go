package hostsim

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/gdext-bridge/abi"
)

// MessageKind classifies messages printed through the table.
type MessageKind uint8

const (
	MessageError MessageKind = iota
	MessageWarning
	MessageScriptError
)

func (k MessageKind) String() string {
	switch k {
	case MessageError:
		return "ERROR"
	case MessageWarning:
		return "WARNING"
	case MessageScriptError:
		return "SCRIPT ERROR"
	}
	return fmt.Sprintf("message(%d)", uint8(k))
}

// Message is one entry printed by the extension or raised by the host.
type Message struct {
	Description string
	Function    string
	File        string
	Line        int32
	Kind        MessageKind
	Host        bool
}

func (m Message) String() string {
	if m.Function == "" {
		return fmt.Sprintf("%s: %s", m.Kind, m.Description)
	}
	return fmt.Sprintf("%s: %s\n   at: %s (%s:%d)", m.Kind, m.Description, m.Function, m.File, m.Line)
}

// Options configures a Host.
type Options struct {
	Version      abi.GodotVersion
	LibraryPath  string
	WideCharSize int
	// Editor also runs the editor initialization level.
	Editor bool
}

// DefaultOptions mirrors a 4.2 host on a platform with 32-bit wchar_t.
func DefaultOptions() Options {
	return Options{
		Version:      abi.GodotVersion{Major: 4, Minor: 2, Patch: 1, String: "Godot Engine v4.2.1.stable"},
		LibraryPath:  "res://bin/libextension.so",
		WideCharSize: 4,
	}
}

// Host is an in-process engine double. It owns a linear memory that serves
// as the host address space, a class database with a handful of native
// classes, an object model with reference counting and instance bindings,
// and the complete interface table the bridge consumes.
type Host struct {
	opts    Options
	rt      wazero.Runtime
	mod     api.Module
	mem     *Memory
	heap    *Heap
	table   *abi.InterfaceTable
	library abi.Ptr

	strings    map[uint32]*hstring
	containers map[uint32]*container
	objects    map[abi.Ptr]*object
	byID       map[uint64]*object
	classes    map[string]*class
	classTags  map[abi.Ptr]*class
	binds      map[abi.Ptr]*method
	singletons map[string]abi.Ptr
	builtins   map[abi.VariantType]map[string]builtin
	utilities  map[string]utility
	messages   []Message
	initInfo   *abi.Initialization
	levels     []abi.InitializationLevel

	nextString    uint32
	nextContainer uint32
	nextID        uint64

	mu    sync.Mutex
	msgMu sync.Mutex
}

// New creates a host with its address space and native class database.
func New(ctx context.Context, opts Options) (*Host, error) {
	if opts.WideCharSize != 2 && opts.WideCharSize != 4 {
		opts.WideCharSize = 4
	}

	rt := wazero.NewRuntime(ctx)
	mem, mod, err := newMemory(ctx, rt)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}

	h := &Host{
		opts:       opts,
		rt:         rt,
		mod:        mod,
		mem:        mem,
		heap:       newHeap(mem),
		strings:    make(map[uint32]*hstring),
		containers: make(map[uint32]*container),
		objects:    make(map[abi.Ptr]*object),
		byID:       make(map[uint64]*object),
		classes:    make(map[string]*class),
		classTags:  make(map[abi.Ptr]*class),
		binds:      make(map[abi.Ptr]*method),
		singletons: make(map[string]abi.Ptr),
	}
	h.library = h.alloc(abi.PointerSize)
	h.installNativeClasses()
	h.installBuiltins()
	h.table = h.buildTable()
	return h, nil
}

// Close releases the address space.
func (h *Host) Close(ctx context.Context) error {
	return h.rt.Close(ctx)
}

// Table returns the interface table handed to the extension entry point.
func (h *Host) Table() *abi.InterfaceTable { return h.table }

// Library returns the library handle handed to the extension entry point.
func (h *Host) Library() abi.Ptr { return h.library }

// Memory returns the host address space.
func (h *Host) Memory() *Memory { return h.mem }

// Heap returns the host allocator.
func (h *Host) Heap() *Heap { return h.heap }

// Messages returns everything printed so far.
func (h *Host) Messages() []Message {
	h.msgMu.Lock()
	defer h.msgMu.Unlock()
	out := make([]Message, len(h.messages))
	copy(out, h.messages)
	return out
}

// Errors returns printed errors, both the extension's and the host's own.
func (h *Host) Errors() []Message {
	var out []Message
	for _, m := range h.Messages() {
		if m.Kind != MessageWarning {
			out = append(out, m)
		}
	}
	return out
}

// ResetMessages clears the message log.
func (h *Host) ResetMessages() {
	h.msgMu.Lock()
	h.messages = nil
	h.msgMu.Unlock()
}

func (h *Host) print(kind MessageKind) func(description, function, file string, line int32, editorNotify bool) {
	return func(description, function, file string, line int32, _ bool) {
		h.msgMu.Lock()
		h.messages = append(h.messages, Message{
			Kind:        kind,
			Description: description,
			Function:    function,
			File:        file,
			Line:        line,
		})
		h.msgMu.Unlock()
	}
}

// fail records a host-side error the way the engine's error macros print.
func (h *Host) fail(format string, args ...any) {
	h.msgMu.Lock()
	h.messages = append(h.messages, Message{
		Kind:        MessageError,
		Description: fmt.Sprintf(format, args...),
		Host:        true,
	})
	h.msgMu.Unlock()
}

// failLocked is fail for callers holding h.mu; messages use their own lock.
func (h *Host) failLocked(format string, args ...any) {
	h.fail(format, args...)
}

// Memory helpers. Out-of-range access is recorded and reads as zero.

func (h *Host) read(p abi.Ptr, n uint32) []byte {
	b, err := h.mem.Read(uint32(p), n)
	if err != nil {
		h.fail("%v", err)
		return make([]byte, n)
	}
	return b
}

func (h *Host) write(p abi.Ptr, b []byte) {
	if err := h.mem.Write(uint32(p), b); err != nil {
		h.fail("%v", err)
	}
}

func (h *Host) u32(p abi.Ptr) uint32 {
	v, err := h.mem.ReadU32(uint32(p))
	if err != nil {
		h.fail("%v", err)
	}
	return v
}

func (h *Host) putU32(p abi.Ptr, v uint32) {
	if err := h.mem.WriteU32(uint32(p), v); err != nil {
		h.fail("%v", err)
	}
}

func (h *Host) u64(p abi.Ptr) uint64 {
	v, err := h.mem.ReadU64(uint32(p))
	if err != nil {
		h.fail("%v", err)
	}
	return v
}

func (h *Host) putU64(p abi.Ptr, v uint64) {
	if err := h.mem.WriteU64(uint32(p), v); err != nil {
		h.fail("%v", err)
	}
}

func (h *Host) alloc(n uint32) abi.Ptr {
	p, err := h.heap.Alloc(n)
	if err != nil {
		h.fail("%v", err)
		return abi.Null
	}
	return abi.Ptr(p)
}

func (h *Host) free(p abi.Ptr) {
	h.heap.Free(uint32(p))
}

func (h *Host) putInt(p abi.Ptr, v int64) {
	h.putU64(p, uint64(v))
}

func (h *Host) getInt(p abi.Ptr) int64 {
	return int64(h.u64(p))
}

func (h *Host) putBool(p abi.Ptr, v bool) {
	b := []byte{0}
	if v {
		b[0] = 1
	}
	h.write(p, b)
}

func (h *Host) putCallError(err *abi.CallError, kind abi.CallErrorType, argument, expected int32) {
	if err == nil {
		return
	}
	err.Error = kind
	err.Argument = argument
	err.Expected = expected
}

// extensionCall runs an extension method with its r_error kept in linear
// memory, where the engine holds it, and copies the outcome to err.
func (h *Host) extensionCall(m *method, instance abi.Ptr, args []abi.Ptr, ret abi.Ptr, err *abi.CallError) {
	block := h.alloc(abi.CallErrorSize)
	if block.IsNull() {
		h.putCallError(err, abi.CallErrorInvalidMethod, 0, 0)
		return
	}
	defer h.free(block)

	var ce abi.CallError
	m.ext.Call(m.ext.MethodUserdata, instance, args, ret, &ce)
	if ce.Error < abi.CallOK || ce.Error > abi.CallErrorMethodNotConst {
		h.fail("method %q reported unknown call error %d", m.name, int32(ce.Error))
	}
	b, _ := ce.MarshalBinary()
	h.write(block, b)
	if err == nil {
		return
	}
	if e := err.UnmarshalBinary(h.read(block, abi.CallErrorSize)); e != nil {
		h.fail("%v", e)
	}
}

func le64(b []byte) uint64 { return binary.LittleEndian.Uint64(b) }
