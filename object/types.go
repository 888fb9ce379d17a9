package object

// Builtin type descriptors. Methods are installed by the init functions of
// the files that implement each type.
var (
	ObjectType = newBuiltinType("object", nil, TypeBase)
	TypeType   = newBuiltinType("type", ObjectType, TypeBase)

	NoneTypeType           = newBuiltinType("NoneType", ObjectType, 0)
	NotImplementedTypeType = newBuiltinType("NotImplementedType", ObjectType, 0)
	EllipsisTypeType       = newBuiltinType("ellipsis", ObjectType, 0)

	IntType     = newBuiltinType("int", ObjectType, TypeBase)
	BoolType    = newBuiltinType("bool", IntType, 0)
	FloatType   = newBuiltinType("float", ObjectType, TypeBase)
	ComplexType = newBuiltinType("complex", ObjectType, TypeBase)

	StrType       = newBuiltinType("str", ObjectType, TypeBase)
	BytesType     = newBuiltinType("bytes", ObjectType, TypeBase)
	ByteArrayType = newBuiltinType("bytearray", ObjectType, TypeBase)

	TupleType     = newBuiltinType("tuple", ObjectType, TypeBase)
	ListType      = newBuiltinType("list", ObjectType, TypeBase)
	DictType      = newBuiltinType("dict", ObjectType, TypeBase)
	SetType       = newBuiltinType("set", ObjectType, TypeBase)
	FrozenSetType = newBuiltinType("frozenset", ObjectType, TypeBase)
	SliceType     = newBuiltinType("slice", ObjectType, 0)
	RangeType     = newBuiltinType("range", ObjectType, 0)

	FunctionType          = newBuiltinType("function", ObjectType, 0)
	BuiltinFunctionType   = newBuiltinType("builtin_function_or_method", ObjectType, 0)
	MethodDescriptorType  = newBuiltinType("method_descriptor", ObjectType, 0)
	GetSetDescriptorType  = newBuiltinType("getset_descriptor", ObjectType, 0)
	MethodType            = newBuiltinType("method", ObjectType, 0)
	CellType              = newBuiltinType("cell", ObjectType, 0)
	CodeType              = newBuiltinType("code", ObjectType, 0)
	ModuleType            = newBuiltinType("module", ObjectType, TypeBase)
	GeneratorType         = newBuiltinType("generator", ObjectType, 0)
	CoroutineType         = newBuiltinType("coroutine", ObjectType, 0)
	CoroutineWrapperType  = newBuiltinType("coroutine_wrapper", ObjectType, 0)
	StaticMethodType      = newBuiltinType("staticmethod", ObjectType, TypeBase)
	ClassMethodType       = newBuiltinType("classmethod", ObjectType, TypeBase)
	PropertyType          = newBuiltinType("property", ObjectType, TypeBase)
	SuperType             = newBuiltinType("super", ObjectType, TypeBase)
	OpaqueType            = newBuiltinType("opaque", ObjectType, 0)
	MappingProxyType      = newBuiltinType("mappingproxy", ObjectType, 0)
	SeqIteratorType       = newBuiltinType("iterator", ObjectType, 0)
	CallableIteratorType  = newBuiltinType("callable_iterator", ObjectType, 0)
	ListIteratorType      = newBuiltinType("list_iterator", ObjectType, 0)
	ListReverseIterType   = newBuiltinType("list_reverseiterator", ObjectType, 0)
	TupleIteratorType     = newBuiltinType("tuple_iterator", ObjectType, 0)
	StrIteratorType       = newBuiltinType("str_ascii_iterator", ObjectType, 0)
	BytesIteratorType     = newBuiltinType("bytes_iterator", ObjectType, 0)
	RangeIteratorType     = newBuiltinType("range_iterator", ObjectType, 0)
	SetIteratorType       = newBuiltinType("set_iterator", ObjectType, 0)
	DictKeysType          = newBuiltinType("dict_keys", ObjectType, 0)
	DictValuesType        = newBuiltinType("dict_values", ObjectType, 0)
	DictItemsType         = newBuiltinType("dict_items", ObjectType, 0)
	DictKeyIteratorType   = newBuiltinType("dict_keyiterator", ObjectType, 0)
	DictValueIteratorType = newBuiltinType("dict_valueiterator", ObjectType, 0)
	DictItemIteratorType  = newBuiltinType("dict_itemiterator", ObjectType, 0)
	EnumerateType         = newBuiltinType("enumerate", ObjectType, TypeBase)
	ZipType               = newBuiltinType("zip", ObjectType, TypeBase)
	MapType               = newBuiltinType("map", ObjectType, TypeBase)
	FilterType            = newBuiltinType("filter", ObjectType, TypeBase)
	ReversedType          = newBuiltinType("reversed", ObjectType, TypeBase)
)

// Exception hierarchy.
var (
	BaseExceptionType     = newBuiltinType("BaseException", ObjectType, TypeBase)
	SystemExitType        = newSubtype("SystemExit", BaseExceptionType)
	KeyboardInterruptType = newSubtype("KeyboardInterrupt", BaseExceptionType)
	GeneratorExitType     = newSubtype("GeneratorExit", BaseExceptionType)
	ExceptionType         = newSubtype("Exception", BaseExceptionType)

	StopIterationType      = newSubtype("StopIteration", ExceptionType)
	StopAsyncIterationType = newSubtype("StopAsyncIteration", ExceptionType)
	ArithmeticErrorType    = newSubtype("ArithmeticError", ExceptionType)
	FloatingPointErrorType = newSubtype("FloatingPointError", ArithmeticErrorType)
	OverflowErrorType      = newSubtype("OverflowError", ArithmeticErrorType)
	ZeroDivisionErrorType  = newSubtype("ZeroDivisionError", ArithmeticErrorType)
	AssertionErrorType     = newSubtype("AssertionError", ExceptionType)
	AttributeErrorType     = newSubtype("AttributeError", ExceptionType)
	BufferErrorType        = newSubtype("BufferError", ExceptionType)
	EOFErrorType           = newSubtype("EOFError", ExceptionType)
	ImportErrorType        = newSubtype("ImportError", ExceptionType)
	ModuleNotFoundErrorType = newSubtype("ModuleNotFoundError", ImportErrorType)
	LookupErrorType        = newSubtype("LookupError", ExceptionType)
	IndexErrorType         = newSubtype("IndexError", LookupErrorType)
	KeyErrorType           = newSubtype("KeyError", LookupErrorType)
	MemoryErrorType        = newSubtype("MemoryError", ExceptionType)
	NameErrorType          = newSubtype("NameError", ExceptionType)
	UnboundLocalErrorType  = newSubtype("UnboundLocalError", NameErrorType)
	OSErrorType            = newSubtype("OSError", ExceptionType)
	FileNotFoundErrorType  = newSubtype("FileNotFoundError", OSErrorType)
	ReferenceErrorType     = newSubtype("ReferenceError", ExceptionType)
	RuntimeErrorType       = newSubtype("RuntimeError", ExceptionType)
	NotImplementedErrorType = newSubtype("NotImplementedError", RuntimeErrorType)
	RecursionErrorType     = newSubtype("RecursionError", RuntimeErrorType)
	SyntaxErrorType        = newSubtype("SyntaxError", ExceptionType)
	SystemErrorType        = newSubtype("SystemError", ExceptionType)
	TypeErrorType          = newSubtype("TypeError", ExceptionType)
	ValueErrorType         = newSubtype("ValueError", ExceptionType)
	UnicodeErrorType       = newSubtype("UnicodeError", ValueErrorType)
	UnicodeDecodeErrorType = newSubtype("UnicodeDecodeError", UnicodeErrorType)
	UnicodeEncodeErrorType = newSubtype("UnicodeEncodeError", UnicodeErrorType)
	WarningType            = newSubtype("Warning", ExceptionType)
	DeprecationWarningType = newSubtype("DeprecationWarning", WarningType)
	RuntimeWarningType     = newSubtype("RuntimeWarning", WarningType)
	UserWarningType        = newSubtype("UserWarning", WarningType)
)

// BuiltinTypes lists the types exposed by name in the builtins namespace.
func BuiltinTypes() []*Type {
	return []*Type{
		ObjectType, TypeType, IntType, BoolType, FloatType, ComplexType,
		StrType, BytesType, ByteArrayType, TupleType, ListType, DictType,
		SetType, FrozenSetType, SliceType, RangeType, StaticMethodType,
		ClassMethodType, PropertyType, SuperType, EnumerateType, ZipType,
		MapType, FilterType, ReversedType,
	}
}

// ExceptionTypes lists the builtin exception classes.
func ExceptionTypes() []*Type {
	return []*Type{
		BaseExceptionType, SystemExitType, KeyboardInterruptType,
		GeneratorExitType, ExceptionType, StopIterationType,
		StopAsyncIterationType, ArithmeticErrorType, FloatingPointErrorType,
		OverflowErrorType, ZeroDivisionErrorType, AssertionErrorType,
		AttributeErrorType, BufferErrorType, EOFErrorType, ImportErrorType,
		ModuleNotFoundErrorType, LookupErrorType, IndexErrorType,
		KeyErrorType, MemoryErrorType, NameErrorType, UnboundLocalErrorType,
		OSErrorType, FileNotFoundErrorType, ReferenceErrorType,
		RuntimeErrorType, NotImplementedErrorType, RecursionErrorType,
		SyntaxErrorType, SystemErrorType, TypeErrorType, ValueErrorType,
		UnicodeErrorType, UnicodeDecodeErrorType, UnicodeEncodeErrorType,
		WarningType, DeprecationWarningType, RuntimeWarningType,
		UserWarningType,
	}
}
