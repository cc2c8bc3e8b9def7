package edm

// Primitive type names.
const (
	TypeBinary         = "Edm.Binary"
	TypeBoolean        = "Edm.Boolean"
	TypeByte           = "Edm.Byte"
	TypeDate           = "Edm.Date"
	TypeDateTimeOffset = "Edm.DateTimeOffset"
	TypeDecimal        = "Edm.Decimal"
	TypeDouble         = "Edm.Double"
	TypeDuration       = "Edm.Duration"
	TypeGuid           = "Edm.Guid"
	TypeInt16          = "Edm.Int16"
	TypeInt32          = "Edm.Int32"
	TypeInt64          = "Edm.Int64"
	TypeSByte          = "Edm.SByte"
	TypeSingle         = "Edm.Single"
	TypeStream         = "Edm.Stream"
	TypeString         = "Edm.String"
	TypeTimeOfDay      = "Edm.TimeOfDay"
)

var primitiveTypes = map[string]bool{
	TypeBinary:         true,
	TypeBoolean:        true,
	TypeByte:           true,
	TypeDate:           true,
	TypeDateTimeOffset: true,
	TypeDecimal:        true,
	TypeDouble:         true,
	TypeDuration:       true,
	TypeGuid:           true,
	TypeInt16:          true,
	TypeInt32:          true,
	TypeInt64:          true,
	TypeSByte:          true,
	TypeSingle:         true,
	TypeStream:         true,
	TypeString:         true,
	TypeTimeOfDay:      true,
}

// IsPrimitive reports whether typeName names a primitive type.
func IsPrimitive(typeName string) bool {
	return primitiveTypes[typeName]
}

// IsIntegral reports whether typeName is one of the integer types.
func IsIntegral(typeName string) bool {
	switch typeName {
	case TypeByte, TypeSByte, TypeInt16, TypeInt32, TypeInt64:
		return true
	}
	return false
}

// IsFloating reports whether typeName is one of the non-integral numeric
// types.
func IsFloating(typeName string) bool {
	switch typeName {
	case TypeSingle, TypeDouble, TypeDecimal:
		return true
	}
	return false
}
