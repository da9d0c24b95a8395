package variant

// Builtin method hashes. The host derives them from the method signature,
// so every method with the same signature shares a hash.
const (
	hashIntConst        int64 = 3173160232 // int f() const: size
	hashIntFromInt      int64 = 848867239  // int f(int): resize
	hashArrayConst      int64 = 4144163970 // Array f() const: keys
	hashObjectConst     int64 = 4008621732 // Object f() const: get_object
	hashStringNameConst int64 = 1825232092 // StringName f() const: get_method, get_name
)
