package models

// DataType is the type carried by a port.
type DataType string

const (
	DataTypeString  DataType = "String"
	DataTypeNumber  DataType = "Number"
	DataTypeBoolean DataType = "Boolean"
	DataTypeObject  DataType = "Object"
	DataTypeArray   DataType = "Array"
	DataTypeAny     DataType = "Any"
)

// Port represents a typed connection point on a node.
type Port struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	DataType DataType `json:"data_type"`
}

// CompatibleWith reports whether a value of type t may flow into a port of type target.
// Any matches everything in either position; otherwise the types must be equal.
func (t DataType) CompatibleWith(target DataType) bool {
	if t == DataTypeAny || target == DataTypeAny {
		return true
	}

	return t == target
}
