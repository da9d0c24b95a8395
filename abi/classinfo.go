package abi

// Class hooks. instance is the class-instance pointer the bridge handed to
// ObjectSetInstance; userdata is the class userdata of ClassCreationInfo.
type (
	ClassSet               func(instance, name, value Ptr) bool
	ClassGet               func(instance, name, ret Ptr) bool
	ClassGetPropertyList   func(instance Ptr) []PropertyInfo
	ClassFreePropertyList  func(instance Ptr, list []PropertyInfo)
	ClassPropertyCanRevert func(instance, name Ptr) bool
	ClassPropertyGetRevert func(instance, name, ret Ptr) bool
	ClassNotification      func(instance Ptr, what int32, reversed bool)
	ClassToString          func(instance Ptr, isValid *bool, out Ptr)
	ClassReference         func(instance Ptr)
	ClassUnreference       func(instance Ptr)
	ClassCreateInstance    func(userdata Ptr) Ptr
	ClassFreeInstance      func(userdata, instance Ptr)
	ClassCallVirtual       func(instance Ptr, args []Ptr, ret Ptr)
	ClassGetVirtual        func(userdata, name Ptr) ClassCallVirtual
)

// ClassCreationInfo describes an extension class to the host. CreateInstance
// and FreeInstance are mandatory; a nil optional hook is reported to the host
// as absent.
type ClassCreationInfo struct {
	IsVirtual  bool
	IsAbstract bool
	IsExposed  bool

	Set               ClassSet
	Get               ClassGet
	GetPropertyList   ClassGetPropertyList
	FreePropertyList  ClassFreePropertyList
	PropertyCanRevert ClassPropertyCanRevert
	PropertyGetRevert ClassPropertyGetRevert
	Notification      ClassNotification
	ToString          ClassToString
	Reference         ClassReference
	Unreference       ClassUnreference
	CreateInstance    ClassCreateInstance
	FreeInstance      ClassFreeInstance
	GetVirtual        ClassGetVirtual

	ClassUserdata Ptr
}

// Method callbacks. methodUserdata is echoed back from ClassMethodInfo.
type (
	ClassMethodCall    func(methodUserdata, instance Ptr, args []Ptr, ret Ptr, err *CallError)
	ClassMethodPtrCall func(methodUserdata, instance Ptr, args []Ptr, ret Ptr)
)

// ClassMethodInfo describes one bound method. Name points to a StringName;
// DefaultArguments point to Variants the bridge keeps alive for the lifetime
// of the class.
type ClassMethodInfo struct {
	Name           Ptr
	MethodUserdata Ptr
	Call           ClassMethodCall
	Ptrcall        ClassMethodPtrCall
	Flags          MethodFlags

	HasReturnValue      bool
	ReturnValueInfo     *PropertyInfo
	ReturnValueMetadata ArgumentMetadata

	ArgumentsInfo     []PropertyInfo
	ArgumentsMetadata []ArgumentMetadata

	DefaultArguments []Ptr
}

// PropertyInfo describes a property, argument or return value. Name and
// ClassName point to StringNames, HintString to a String.
type PropertyInfo struct {
	Type       VariantType
	Name       Ptr
	ClassName  Ptr
	Hint       PropertyHint
	HintString Ptr
	Usage      PropertyUsage
}

// Instance binding callbacks. token distinguishes bindings of different
// extensions attached to the same host object.
type (
	InstanceBindingCreate    func(token, instance Ptr) Ptr
	InstanceBindingFree      func(token, instance, binding Ptr)
	InstanceBindingReference func(token, binding Ptr, reference bool) bool
)

// InstanceBindingCallbacks are passed with every binding get/set.
type InstanceBindingCallbacks struct {
	Create    InstanceBindingCreate
	Free      InstanceBindingFree
	Reference InstanceBindingReference
}

// Initialization is filled in by the entry function. The host calls
// Initialize for each level from MinimumLevel upward and Deinitialize in
// reverse on shutdown.
type Initialization struct {
	MinimumLevel InitializationLevel
	Userdata     Ptr
	Initialize   func(userdata Ptr, level InitializationLevel)
	Deinitialize func(userdata Ptr, level InitializationLevel)
}

// EntryFunc is the single function the host looks up and calls at load.
type EntryFunc func(table *InterfaceTable, library Ptr, init *Initialization) bool
