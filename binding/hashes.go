package binding

import "github.com/wippyai/gdext-bridge/abi"

// engineMethods holds the signature hashes of the engine methods Call
// reaches by name. get_name and set_name are Node's; Resource's variants
// take a String and go through CallHash.
var engineMethods = map[string]int64{
	"get_class":           abi.MethodHash(abi.VariantTypeString),
	"get_instance_id":     abi.MethodHash(abi.VariantTypeInt),
	"is_class":            abi.MethodHash(abi.VariantTypeBool, abi.VariantTypeString),
	"has_method":          abi.MethodHash(abi.VariantTypeBool, abi.VariantTypeStringName),
	"get":                 abi.MethodHash(abi.VariantTypeNil, abi.VariantTypeStringName),
	"set":                 abi.MethodHash(abi.VariantTypeNil, abi.VariantTypeStringName, abi.VariantTypeNil),
	"get_reference_count": abi.MethodHash(abi.VariantTypeInt),
	"get_name":            abi.MethodHash(abi.VariantTypeStringName),
	"set_name":            abi.MethodHash(abi.VariantTypeNil, abi.VariantTypeStringName),
	"is_editor_hint":      abi.MethodHash(abi.VariantTypeBool),
}

// EngineMethodHash returns the hash Call uses for an engine method.
func EngineMethodHash(method string) (int64, bool) {
	h, ok := engineMethods[method]
	return h, ok
}
