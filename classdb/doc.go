// Package classdb declares extension classes to the host.
//
// # Main Types
//
//   - Registry: registers classes, methods, properties, signals and constants
//     through the interface table and resolves the userdata the host echoes
//     back on every call
//   - Class: one registered class with its capability record
//   - Method: one bound Go function carrying both calling conventions
//
// # Methods
//
// Methods are bound by reflection. A method expression such as (*Foo).Bar
// binds an instance method, a plain function binds a static one. A final
// ...any parameter makes the method vararg. Results may be empty, one value,
// one error, or a value followed by an error. Names beginning with an
// underscore are virtual overrides resolved through get_virtual.
//
// # Ordering
//
// A class must be registered after its parent and unregistered before it.
// Classes remember the initialization level they were registered at;
// UnregisterLevel removes them leaf to root.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Lookups by userdata go through
// generational arenas and never take the registration lock.
package classdb
