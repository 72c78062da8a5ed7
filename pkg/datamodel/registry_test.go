package datamodel

import (
	"context"
	"errors"
	"testing"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/obis"
)

// testObject is a minimal class with one writable unsigned attribute,
// one read-only attribute and one method.
type testObject struct {
	Base
	value   cosem.Value
	invoked int
}

func newTestObject(class ClassID, name obis.Code) *testObject {
	return &testObject{
		Base: NewBase(class, 0, name,
			[]AttributeEntry{
				NewReadWriteAttribute(2, "value", cosem.TagUnsigned),
				NewReadOnlyAttribute(3, "status", cosem.TagDontCare),
			},
			[]MethodEntry{NewMethodEntry(1, "reset")},
		),
		value: cosem.Unsigned(0),
	}
}

func (o *testObject) GetAttribute(ctx context.Context, id AttributeID) (cosem.Value, error) {
	if err := o.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case AttrLogicalName:
		return o.GetLogicalName(), nil
	case 2:
		return o.value, nil
	}
	return cosem.Null(), nil
}

func (o *testObject) SetAttribute(ctx context.Context, id AttributeID, v cosem.Value) error {
	if err := o.CheckSet(ctx, id, v); err != nil {
		return err
	}
	o.value = v
	return nil
}

func (o *testObject) InvokeMethod(ctx context.Context, id MethodID, _ cosem.Value) (cosem.Value, error) {
	if err := o.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	o.invoked++
	return cosem.Null(), nil
}

func TestRegistry_Add(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Add(newTestObject(ClassData, obis.New(0, 0, 96, 1, 0, 255))); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := reg.Add(newTestObject(ClassData, obis.New(0, 0, 96, 1, 1, 255))); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	// Try to add duplicate
	err := reg.Add(newTestObject(ClassRegister, obis.New(0, 0, 96, 1, 0, 255)))
	if !errors.Is(err, ErrObjectExists) {
		t.Errorf("Add(duplicate) = %v, want ErrObjectExists", err)
	}

	if reg.Len() != 2 {
		t.Errorf("Len() = %v, want 2", reg.Len())
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	name := obis.New(1, 0, 1, 8, 0, 255)
	reg.Add(newTestObject(ClassRegister, name))

	obj, err := reg.Lookup(ClassRegister, name)
	if err != nil || obj.LogicalName() != name {
		t.Fatalf("Lookup = %v, %v", obj, err)
	}

	// Class must match
	if _, err := reg.Lookup(ClassData, name); !errors.Is(err, ErrObjectUndefined) {
		t.Errorf("Lookup(wrong class) = %v, want ErrObjectUndefined", err)
	}
	if reg.Get(obis.New(9, 9, 9, 9, 9, 9)) != nil {
		t.Error("Get(unknown) = non-nil, want nil")
	}
}

func TestRegistry_OrderAndRemove(t *testing.T) {
	reg := NewRegistry()
	names := []obis.Code{obis.New(0, 0, 1, 0, 0, 2), obis.New(0, 0, 1, 0, 0, 0), obis.New(0, 0, 1, 0, 0, 1)}
	for _, n := range names {
		reg.Add(newTestObject(ClassData, n))
	}

	objs := reg.Objects()
	for i, o := range objs {
		if o.LogicalName() != names[i] {
			t.Errorf("objects[%d] = %v, want %v", i, o.LogicalName(), names[i])
		}
	}

	if err := reg.Remove(names[1]); err != nil {
		t.Fatal(err)
	}
	if err := reg.Remove(names[1]); !errors.Is(err, ErrObjectUndefined) {
		t.Errorf("Remove(twice) = %v", err)
	}
	if got := reg.Objects(); len(got) != 2 || got[1].LogicalName() != names[2] {
		t.Errorf("Objects() after remove = %v", got)
	}
}

type recordingListener struct {
	refs []AttributeRef
}

func (l *recordingListener) OnAttributeChanged(ref AttributeRef) {
	l.refs = append(l.refs, ref)
}

func TestRegistry_ChangeListener(t *testing.T) {
	reg := NewRegistry()
	ref := AttributeRef{Class: ClassData, LogicalName: obis.New(0, 0, 96, 1, 0, 255), Attribute: 2}

	// No listener set: must not panic
	reg.NotifyChanged(ref)

	l := &recordingListener{}
	reg.SetChangeListener(l)
	reg.NotifyChanged(ref)

	if len(l.refs) != 1 || l.refs[0] != ref {
		t.Errorf("listener got %v", l.refs)
	}
}
