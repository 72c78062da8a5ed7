package datamodel

import (
	"fmt"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/obis"
)

// AttributeRef identifies a specific attribute of a specific object.
// It is the cosem-attribute-descriptor of the Get and Set services.
type AttributeRef struct {
	Class       ClassID
	LogicalName obis.Code
	Attribute   AttributeID
}

func (r AttributeRef) String() string {
	return fmt.Sprintf("%s %s/%d", r.Class, r.LogicalName, r.Attribute)
}

// MethodRef identifies a specific method of a specific object.
// It is the cosem-method-descriptor of the Action service.
type MethodRef struct {
	Class       ClassID
	LogicalName obis.Code
	Method      MethodID
}

func (r MethodRef) String() string {
	return fmt.Sprintf("%s %s/m%d", r.Class, r.LogicalName, r.Method)
}

// ObjectDefinition is the structure {class_id, logical_name} used by
// Register Activation register assignments.
type ObjectDefinition struct {
	Class       ClassID
	LogicalName obis.Code
}

// Value encodes d as structure{long-unsigned, octet-string}.
func (d ObjectDefinition) Value() cosem.Value {
	return cosem.Structure(cosem.LongUnsigned(uint16(d.Class)), d.LogicalName.Value())
}

// ParseObjectDefinition decodes structure{long-unsigned, octet-string}.
func ParseObjectDefinition(v cosem.Value) (ObjectDefinition, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(e) != 2 || e[0].Tag() != cosem.TagLongUnsigned {
		return ObjectDefinition{}, fmt.Errorf("%w: object definition must be structure{long-unsigned, octet-string}", ErrTypeMismatch)
	}
	ln, err := obis.FromValue(e[1])
	if err != nil {
		return ObjectDefinition{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	c, _ := e[0].Uint()
	return ObjectDefinition{Class: ClassID(c), LogicalName: ln}, nil
}

// CaptureObject is the capture object definition
// {class_id, logical_name, attribute_index, data_index} used by Profile
// Generic capture_objects and selective access descriptors.
type CaptureObject struct {
	Class       ClassID
	LogicalName obis.Code
	Attribute   int8
	DataIndex   uint16
}

// Ref returns the attribute the capture object reads.
func (c CaptureObject) Ref() AttributeRef {
	return AttributeRef{Class: c.Class, LogicalName: c.LogicalName, Attribute: AttributeID(c.Attribute)}
}

// Value encodes c as structure{long-unsigned, octet-string, integer, long-unsigned}.
func (c CaptureObject) Value() cosem.Value {
	return cosem.Structure(
		cosem.LongUnsigned(uint16(c.Class)),
		c.LogicalName.Value(),
		cosem.Integer(c.Attribute),
		cosem.LongUnsigned(c.DataIndex),
	)
}

// ParseCaptureObject decodes a capture object definition.
func ParseCaptureObject(v cosem.Value) (CaptureObject, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(e) != 4 ||
		e[0].Tag() != cosem.TagLongUnsigned || e[2].Tag() != cosem.TagInteger || e[3].Tag() != cosem.TagLongUnsigned {
		return CaptureObject{}, fmt.Errorf("%w: capture object must be structure{long-unsigned, octet-string, integer, long-unsigned}", ErrTypeMismatch)
	}
	ln, err := obis.FromValue(e[1])
	if err != nil {
		return CaptureObject{}, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	c, _ := e[0].Uint()
	a, _ := e[2].Int()
	d, _ := e[3].Uint()
	if a <= 0 {
		return CaptureObject{}, fmt.Errorf("%w: attribute index %d", ErrInvalidValue, a)
	}
	return CaptureObject{Class: ClassID(c), LogicalName: ln, Attribute: int8(a), DataIndex: uint16(d)}, nil
}
