// Package gdextbridge lets Go code be driven by, and drive, a host engine
// through the versioned GDExtension plugin interface.
//
// The host hands the bridge a single table of entry points at load time. The
// bridge registers extension classes, methods, properties and signals against
// that table and fields every inbound callback the host makes: constructing
// and destroying instances, reading and writing properties, calling methods and
// virtual overrides. Arguments arrive either boxed as Variants or as raw typed
// pointers and are translated to Go values and back.
//
// # Architecture Overview
//
//	gdextbridge/         Root package with the host Memory and Allocator interfaces
//	├── abi/             ABI types: interface table, call errors, class and method info
//	├── errors/          Structured error types for the bridge error taxonomy
//	├── resource/        Generational handle arena used for userdata tokens
//	├── variant/         Variant marshaling: encode/decode, ptrcall storage, operators
//	├── classdb/         Class registrar: classes, method binds, properties, signals
//	├── binding/         Instance bindings between host objects and Go wrappers
//	├── dispatch/        Callbacks the host invokes on registered classes and methods
//	└── loader/          Load-time entry, bridge context and initialization levels
//
// # Quick Start
//
//	type Foo struct{ binding.Owner }
//
//	func (f *Foo) Bar(x int64) int64 { return 2 * x }
//
//	entry := loader.Entry(loader.Config{
//	    MinimumLevel: abi.InitializationScene,
//	    Init: func(b *loader.Bridge, level abi.InitializationLevel) error {
//	        if level != abi.InitializationScene {
//	            return nil
//	        }
//	        if _, err := classdb.Register[Foo](b.Classes(), "Foo", "RefCounted"); err != nil {
//	            return err
//	        }
//	        _, err := b.Classes().AddMethod("Foo", "bar", (*Foo).Bar, classdb.ArgNames("x"))
//	        return err
//	    },
//	})
//
// The host calls entry once with its interface table; everything else is driven
// by the host through the callbacks the bridge installs.
//
// # Thread Safety
//
// The bridge has no scheduler of its own. Calls arrive on whatever thread the
// host chooses. The class registry and the binding map are guarded by
// read/write locks; no bridge call blocks on I/O.
//
// # Memory Model
//
// Variant slots and typed storage are host memory. The bridge allocates the
// destination slot of every operation it issues and destroys it when the
// result is discarded. Host objects outlive their bindings, never the reverse.
package gdextbridge
