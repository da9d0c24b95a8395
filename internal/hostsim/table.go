package hostsim

import (
	"github.com/wippyai/gdext-bridge/abi"
)

// buildTable assembles the interface table. Every entry is populated; the
// table is not modified after New returns.
func (h *Host) buildTable() *abi.InterfaceTable {
	t := &abi.InterfaceTable{
		GetGodotVersion: func() abi.GodotVersion { return h.opts.Version },
		Memory:          h.mem,
		WideCharSize:    uint32(h.opts.WideCharSize),

		PrintError:       h.print(MessageError),
		PrintWarning:     h.print(MessageWarning),
		PrintScriptError: h.print(MessageScriptError),
	}

	t.MemAlloc = func(size uint32) abi.Ptr {
		p, err := h.heap.AllocRaw(size)
		if err != nil {
			return abi.Null
		}
		return abi.Ptr(p)
	}
	t.MemRealloc = func(p abi.Ptr, size uint32) abi.Ptr {
		np, err := h.heap.Realloc(uint32(p), size)
		if err != nil {
			return abi.Null
		}
		return abi.Ptr(np)
	}
	t.MemFree = func(p abi.Ptr) {
		if !p.IsNull() && !h.heap.Owns(uint32(p)) {
			h.fail("mem_free: %s was not allocated", p)
			return
		}
		h.heap.Free(uint32(p))
	}

	h.installVariants(t)
	h.installAccess(t)
	h.installPtrAccessors(t)
	h.installStrings(t)
	h.installObjects(t)
	h.installClassDB(t)
	h.installMethodCalls(t)
	return t
}
