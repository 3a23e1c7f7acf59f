package interpreter_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gannet-ml/gannet/pkg/interpreter"
	"github.com/gannet-ml/gannet/pkg/ops"
	"github.com/gannet-ml/gannet/pkg/tensor"
)

func unitQuant() tensor.Quantization {
	return tensor.Quantization{Scale: []float32{1}, Zero: []int32{0}}
}

func inputU8(name string, extents ...int) *tensor.Tensor {
	t := tensor.New(name, tensor.UInt8, tensor.NewShape(extents...))
	t.SetQuantization(unitQuant())
	t.SetInput(true)
	return t
}

func constU8(t *testing.T, name string, data []byte, extents ...int) *tensor.Tensor {
	t.Helper()
	tn, err := tensor.NewConstant(name, tensor.UInt8, tensor.NewShape(extents...), data)
	if err != nil {
		t.Fatalf("failed to build constant %s: %v", name, err)
	}
	tn.SetQuantization(unitQuant())
	return tn
}

func plainU8(name string, extents ...int) *tensor.Tensor {
	t := tensor.New(name, tensor.UInt8, tensor.NewShape(extents...))
	t.SetQuantization(unitQuant())
	return t
}

func addOp(t *testing.T, a, b, out *tensor.Tensor) ops.Op {
	t.Helper()
	op, err := ops.NewBinary(ops.BinaryAdd, a, b, out, ops.ActivationNone)
	if err != nil {
		t.Fatalf("failed to build add: %v", err)
	}
	return op
}

func TestInterpreterAdd(t *testing.T) {
	a := inputU8("a", 3)
	b := inputU8("b", 3)
	out := plainU8("out", 3)
	out.SetOutput(true)

	group, err := ops.NewOpGroup([]*tensor.Tensor{a, b}, []*tensor.Tensor{out}, []ops.Op{addOp(t, a, b, out)})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	if a.IsAllocated() {
		t.Fatalf("input allocated before Prepare")
	}
	if err := in.Prepare(); err != nil {
		t.Fatalf("failed to prepare: %v", err)
	}
	for _, tn := range in.Inputs() {
		if !tn.IsAllocated() {
			t.Fatalf("input %v not allocated after Prepare", tn)
		}
	}

	copy(a.Bytes(), []byte{10, 20, 30})
	copy(b.Bytes(), []byte{1, 2, 3})
	if err := in.Execute(); err != nil {
		t.Fatalf("failed to execute: %v", err)
	}

	got := in.Outputs()[0].Bytes()
	if !bytes.Equal(got, []byte{11, 22, 33}) {
		t.Errorf("expected [11 22 33], got %v", got)
	}
}

func TestInterpreterExecuteRefreshesOutputs(t *testing.T) {
	a := inputU8("a", 2)
	b := constU8(t, "b", []byte{5, 5}, 2)
	out := plainU8("out", 2)

	group, err := ops.NewOpGroup([]*tensor.Tensor{a}, []*tensor.Tensor{out}, []ops.Op{addOp(t, a, b, out)})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	if err := in.Prepare(); err != nil {
		t.Fatalf("failed to prepare: %v", err)
	}

	copy(a.Bytes(), []byte{1, 2})
	if err := in.Execute(); err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if got := out.Bytes(); !bytes.Equal(got, []byte{6, 7}) {
		t.Errorf("expected [6 7], got %v", got)
	}

	copy(a.Bytes(), []byte{10, 20})
	if err := in.Execute(); err != nil {
		t.Fatalf("failed to execute again: %v", err)
	}
	if got := out.Bytes(); !bytes.Equal(got, []byte{15, 25}) {
		t.Errorf("expected [15 25], got %v", got)
	}
}

func TestInterpreterPrepareTwice(t *testing.T) {
	a := constU8(t, "a", []byte{1}, 1)
	b := constU8(t, "b", []byte{2}, 1)
	out := plainU8("out", 1)

	group, err := ops.NewOpGroup(nil, []*tensor.Tensor{out}, []ops.Op{addOp(t, a, b, out)})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	if err := in.Prepare(); err != nil {
		t.Fatalf("failed to prepare: %v", err)
	}
	if err := in.Prepare(); err == nil {
		t.Fatalf("expected second Prepare to fail")
	}
}

func TestInterpreterImplicitPrepare(t *testing.T) {
	a := constU8(t, "a", []byte{3, 4}, 2)
	b := constU8(t, "b", []byte{10, 10}, 2)
	out := plainU8("out", 2)

	group, err := ops.NewOpGroup(nil, []*tensor.Tensor{out}, []ops.Op{addOp(t, a, b, out)})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	if err := in.Execute(); err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if got := out.Bytes(); !bytes.Equal(got, []byte{13, 14}) {
		t.Errorf("expected [13 14], got %v", got)
	}
}

func TestInterpreterReordersOps(t *testing.T) {
	a := constU8(t, "a", []byte{1, 2}, 2)
	b := constU8(t, "b", []byte{10, 10}, 2)
	c := constU8(t, "c", []byte{1, 1}, 2)
	mid := plainU8("mid", 2)
	out := plainU8("out", 2)

	first := addOp(t, a, b, mid)
	second := addOp(t, mid, c, out)

	// Listed consumer-first; scheduling must recover producer order.
	group, err := ops.NewOpGroup(nil, []*tensor.Tensor{out}, []ops.Op{second, first})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	if err := in.Execute(); err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if got := out.Bytes(); !bytes.Equal(got, []byte{12, 13}) {
		t.Errorf("expected [12 13], got %v", got)
	}
}

func TestInterpreterDetectsCycle(t *testing.T) {
	x := plainU8("x", 2)
	y := constU8(t, "y", []byte{1, 1}, 2)
	z := plainU8("z", 2)

	forward := addOp(t, x, y, z)
	backward := addOp(t, z, y, x)

	group, err := ops.NewOpGroup(nil, []*tensor.Tensor{z}, []ops.Op{forward, backward})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	err = in.Prepare()
	if err == nil {
		t.Fatalf("expected Prepare to fail on a cycle")
	}
	if !strings.Contains(err.Error(), "cannot be scheduled") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestInterpreterNestedGroup(t *testing.T) {
	a := constU8(t, "a", []byte{1, 2}, 2)
	b := constU8(t, "b", []byte{10, 10}, 2)
	c := constU8(t, "c", []byte{1, 1}, 2)
	mid := plainU8("mid", 2)
	out := plainU8("out", 2)

	inner, err := ops.NewOpGroup([]*tensor.Tensor{a, b}, []*tensor.Tensor{mid}, []ops.Op{addOp(t, a, b, mid)})
	if err != nil {
		t.Fatalf("failed to build inner group: %v", err)
	}
	outer, err := ops.NewOpGroup(nil, []*tensor.Tensor{out}, []ops.Op{inner, addOp(t, mid, c, out)})
	if err != nil {
		t.Fatalf("failed to build outer group: %v", err)
	}

	in := interpreter.New(outer)
	if err := in.Prepare(); err != nil {
		t.Fatalf("failed to prepare: %v", err)
	}
	if !mid.IsAllocated() {
		t.Fatalf("nested intermediate not allocated")
	}
	if err := in.Execute(); err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if got := out.Bytes(); !bytes.Equal(got, []byte{12, 13}) {
		t.Errorf("expected [12 13], got %v", got)
	}
}

func TestInterpreterBorrowedLeaf(t *testing.T) {
	a := constU8(t, "a", []byte{7, 8}, 2)
	// Nothing produces leaf and it is not a declared group input; the
	// interpreter still allocates it and schedules its consumer.
	leaf := plainU8("leaf", 2)
	out := plainU8("out", 2)

	group, err := ops.NewOpGroup(nil, []*tensor.Tensor{out}, []ops.Op{addOp(t, a, leaf, out)})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	if err := in.Execute(); err != nil {
		t.Fatalf("failed to execute: %v", err)
	}
	if !leaf.IsAllocated() {
		t.Fatalf("leaf not allocated")
	}
	if got := out.Bytes(); !bytes.Equal(got, []byte{7, 8}) {
		t.Errorf("expected [7 8], got %v", got)
	}
}

func TestInterpreterPrepareSurfacesBoundsError(t *testing.T) {
	a := constU8(t, "a", []byte{1, 2}, 2)
	b := constU8(t, "b", []byte{1, 2, 3}, 3)
	out := plainU8("out", 2)

	group, err := ops.NewOpGroup(nil, []*tensor.Tensor{out}, []ops.Op{addOp(t, a, b, out)})
	if err != nil {
		t.Fatalf("failed to build group: %v", err)
	}

	in := interpreter.New(group)
	if err := in.Prepare(); err == nil {
		t.Fatalf("expected Prepare to fail on mismatched shapes")
	}
}
