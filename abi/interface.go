package abi

import gdextbridge "github.com/wippyai/gdext-bridge"

// Typed accessors returned by the table's lookup entries. All pointers other
// than variant arguments refer to typed storage.
type (
	VariantFromTypeConstructor func(dst, src Ptr)
	TypeFromVariantConstructor func(dst, src Ptr)
	PtrOperatorEvaluator       func(left, right, ret Ptr)
	PtrBuiltInMethod           func(base Ptr, args []Ptr, ret Ptr)
	PtrConstructor             func(base Ptr, args []Ptr)
	PtrDestructor              func(base Ptr)
	PtrSetter                  func(base, value Ptr)
	PtrGetter                  func(base, ret Ptr)
	PtrIndexedSetter           func(base Ptr, index int64, value Ptr)
	PtrIndexedGetter           func(base Ptr, index int64, ret Ptr)
	PtrKeyedSetter             func(base, key, value Ptr)
	PtrKeyedGetter             func(base, key, ret Ptr)
	PtrUtilityFunction         func(ret Ptr, args []Ptr)
)

// InterfaceTable is the host's table of entry points. It is handed to the
// bridge once at load and never mutated afterwards.
type InterfaceTable struct {
	GetGodotVersion func() GodotVersion

	// memory
	Memory     gdextbridge.Memory
	MemAlloc   func(size uint32) Ptr
	MemRealloc func(p Ptr, size uint32) Ptr
	MemFree    func(p Ptr)

	// logging
	PrintError       func(description, function, file string, line int32, editorNotify bool)
	PrintWarning     func(description, function, file string, line int32, editorNotify bool)
	PrintScriptError func(description, function, file string, line int32, editorNotify bool)

	// variant lifecycle and operations
	VariantNewCopy          func(dst, src Ptr)
	VariantNewNil           func(dst Ptr)
	VariantDestroy          func(self Ptr)
	VariantCall             func(self, method Ptr, args []Ptr, ret Ptr, err *CallError)
	VariantConstruct        func(t VariantType, ret Ptr, args []Ptr, err *CallError)
	VariantEvaluate         func(op VariantOperator, a, b, ret Ptr) bool
	VariantSet              func(self, key, value Ptr) bool
	VariantSetNamed         func(self, key, value Ptr) bool
	VariantSetKeyed         func(self, key, value Ptr) bool
	VariantSetIndexed       func(self Ptr, index int64, value Ptr) (valid, oob bool)
	VariantGet              func(self, key, ret Ptr) bool
	VariantGetNamed         func(self, key, ret Ptr) bool
	VariantGetKeyed         func(self, key, ret Ptr) bool
	VariantGetIndexed       func(self Ptr, index int64, ret Ptr) (valid, oob bool)
	VariantIterInit         func(self, iter Ptr) (more, valid bool)
	VariantIterNext         func(self, iter Ptr) (more, valid bool)
	VariantIterGet          func(self, iter, ret Ptr) bool
	VariantHash             func(self Ptr) int64
	VariantRecursiveHash    func(self Ptr, depth int64) int64
	VariantHashCompare      func(self, other Ptr) bool
	VariantBooleanize       func(self Ptr) bool
	VariantDuplicate        func(self, ret Ptr, deep bool)
	VariantStringify        func(self, ret Ptr)
	VariantGetType          func(self Ptr) VariantType
	VariantHasMethod        func(self, method Ptr) bool
	VariantCanConvert       func(from, to VariantType) bool
	VariantCanConvertStrict func(from, to VariantType) bool

	// ptrcall accessor lookups
	GetVariantFromTypeConstructor  func(t VariantType) VariantFromTypeConstructor
	GetVariantToTypeConstructor    func(t VariantType) TypeFromVariantConstructor
	VariantGetPtrOperatorEvaluator func(op VariantOperator, a, b VariantType) PtrOperatorEvaluator
	VariantGetPtrBuiltinMethod     func(t VariantType, method Ptr, hash int64) PtrBuiltInMethod
	VariantGetPtrConstructor       func(t VariantType, index int32) PtrConstructor
	VariantGetPtrDestructor        func(t VariantType) PtrDestructor
	VariantGetPtrSetter            func(t VariantType, member Ptr) PtrSetter
	VariantGetPtrGetter            func(t VariantType, member Ptr) PtrGetter
	VariantGetPtrIndexedSetter     func(t VariantType) PtrIndexedSetter
	VariantGetPtrIndexedGetter     func(t VariantType) PtrIndexedGetter
	VariantGetPtrKeyedSetter       func(t VariantType) PtrKeyedSetter
	VariantGetPtrKeyedGetter       func(t VariantType) PtrKeyedGetter
	VariantGetPtrUtilityFunction   func(name Ptr, hash int64) PtrUtilityFunction

	// strings; lengths are in code units of the encoding
	StringNewWithLatin1CharsAndLen   func(dst, contents Ptr, length int64)
	StringNewWithUtf8CharsAndLen     func(dst, contents Ptr, length int64)
	StringNewWithUtf16CharsAndLen    func(dst, contents Ptr, length int64)
	StringNewWithUtf32CharsAndLen    func(dst, contents Ptr, length int64)
	StringNewWithWideCharsAndLen     func(dst, contents Ptr, length int64)
	StringToLatin1Chars              func(self, text Ptr, maxWriteLength int64) int64
	StringToUtf8Chars                func(self, text Ptr, maxWriteLength int64) int64
	StringToUtf16Chars               func(self, text Ptr, maxWriteLength int64) int64
	StringToUtf32Chars               func(self, text Ptr, maxWriteLength int64) int64
	StringToWideChars                func(self, text Ptr, maxWriteLength int64) int64
	StringNameNewWithLatin1Chars     func(dst, contents Ptr, isStatic bool)
	StringNameNewWithUtf8CharsAndLen func(dst, contents Ptr, length int64)
	// WideCharSize is the width of the host's wchar_t in bytes (2 or 4).
	WideCharSize uint32

	// packed arrays and containers; all return element pointers
	PackedByteArrayOperatorIndex    func(self Ptr, index int64) Ptr
	PackedInt32ArrayOperatorIndex   func(self Ptr, index int64) Ptr
	PackedInt64ArrayOperatorIndex   func(self Ptr, index int64) Ptr
	PackedFloat32ArrayOperatorIndex func(self Ptr, index int64) Ptr
	PackedFloat64ArrayOperatorIndex func(self Ptr, index int64) Ptr
	PackedStringArrayOperatorIndex  func(self Ptr, index int64) Ptr
	PackedVector2ArrayOperatorIndex func(self Ptr, index int64) Ptr
	PackedVector3ArrayOperatorIndex func(self Ptr, index int64) Ptr
	PackedColorArrayOperatorIndex   func(self Ptr, index int64) Ptr
	ArrayOperatorIndex              func(self Ptr, index int64) Ptr
	DictionaryOperatorIndex         func(self, key Ptr) Ptr

	// objects
	ObjectMethodBindCall      func(methodBind, object Ptr, args []Ptr, ret Ptr, err *CallError)
	ObjectMethodBindPtrcall   func(methodBind, object Ptr, args []Ptr, ret Ptr)
	ObjectDestroy             func(object Ptr)
	GlobalGetSingleton        func(name Ptr) Ptr
	ObjectGetInstanceBinding  func(object, token Ptr, callbacks *InstanceBindingCallbacks) Ptr
	ObjectSetInstanceBinding  func(object, token, binding Ptr, callbacks *InstanceBindingCallbacks)
	ObjectFreeInstanceBinding func(object, token Ptr)
	ObjectSetInstance         func(object, className, instance Ptr)
	ObjectGetClassName        func(object, library, ret Ptr) bool
	ObjectCastTo              func(object, classTag Ptr) Ptr
	ObjectGetInstanceFromID   func(id uint64) Ptr
	ObjectGetInstanceID       func(object Ptr) uint64
	RefGetObject              func(ref Ptr) Ptr
	RefSetObject              func(ref, object Ptr)

	// class database
	ClassdbConstructObject                        func(className Ptr) Ptr
	ClassdbGetMethodBind                          func(className, method Ptr, hash int64) Ptr
	ClassdbGetClassTag                            func(className Ptr) Ptr
	ClassdbRegisterExtensionClass                 func(library, className, parent Ptr, info *ClassCreationInfo)
	ClassdbRegisterExtensionClassMethod           func(library, className Ptr, info *ClassMethodInfo)
	ClassdbRegisterExtensionClassIntegerConstant  func(library, className, enumName, constantName Ptr, value int64, isBitfield bool)
	ClassdbRegisterExtensionClassProperty         func(library, className Ptr, info *PropertyInfo, setter, getter Ptr)
	ClassdbRegisterExtensionClassPropertyGroup    func(library, className, group, prefix Ptr)
	ClassdbRegisterExtensionClassPropertySubgroup func(library, className, subgroup, prefix Ptr)
	ClassdbRegisterExtensionClassSignal           func(library, className, signal Ptr, args []PropertyInfo)
	ClassdbUnregisterExtensionClass               func(library, className Ptr)

	GetLibraryPath func(library, ret Ptr)
}
