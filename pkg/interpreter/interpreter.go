// Package interpreter drives an operator graph: it validates shapes,
// computes an execution order, allocates buffers, and runs the ops.
package interpreter

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gannet-ml/gannet/pkg/ops"
	"github.com/gannet-ml/gannet/pkg/tensor"
)

// Interpreter owns one OpGroup and executes it. The caller copies data
// into the input tensors before Execute and reads the output tensors
// afterwards; Execute may run repeatedly while shapes are unchanged.
// An Interpreter is driven from one goroutine at a time.
type Interpreter struct {
	group    *ops.OpGroup
	order    []ops.Op
	prepared bool
}

// New takes exclusive ownership of the group.
func New(group *ops.OpGroup) *Interpreter {
	return &Interpreter{group: group}
}

// Inputs returns the external input tensors the caller populates before
// each Execute.
func (in *Interpreter) Inputs() []*tensor.Tensor { return in.group.Inputs() }

// Outputs returns the external output tensors holding results after
// Execute.
func (in *Interpreter) Outputs() []*tensor.Tensor { return in.group.Outputs() }

// Prepare validates bounds, computes the execution order, and allocates
// every unallocated tensor the graph references. It runs once; calling
// it again is an error.
func (in *Interpreter) Prepare() error {
	if in.prepared {
		return errors.New("interpreter already prepared")
	}
	if err := in.group.Bounds(); err != nil {
		return err
	}
	if err := in.computeOrder(); err != nil {
		return err
	}
	if err := in.allocate(); err != nil {
		return err
	}
	in.prepared = true
	return nil
}

// computeOrder schedules ops so that every input of every op is an
// external input, a constant, a borrowed leaf nothing produces, or the
// output of an already-scheduled op. The group's stored order usually
// already satisfies this; repeated scans recover shuffled orders.
func (in *Interpreter) computeOrder() error {
	members := in.group.Ops()

	producer := make(map[*tensor.Tensor]ops.Op)
	for _, op := range members {
		for _, t := range op.Outputs() {
			producer[t] = op
		}
	}

	produced := make(map[*tensor.Tensor]bool)
	available := func(t *tensor.Tensor) bool {
		return t.IsConstant() || produced[t] || producer[t] == nil
	}

	order := make([]ops.Op, 0, len(members))
	done := make([]bool, len(members))
	for {
		progress := false
		for i, op := range members {
			if done[i] {
				continue
			}

			ready := true
			for _, t := range op.Inputs() {
				if !available(t) {
					ready = false
					break
				}
			}
			if ready {
				done[i] = true
				for _, t := range op.Outputs() {
					produced[t] = true
				}
				order = append(order, op)
				progress = true
			}
		}
		if !progress {
			break
		}
	}

	for i, op := range members {
		if !done[i] {
			return errors.Errorf("op %v cannot be scheduled: an input is neither produced nor external", op)
		}
	}

	if klog.V(2).Enabled() {
		for i, op := range order {
			klog.V(2).Infof("execution order %d: %v", i, op)
		}
	}
	in.order = order
	return nil
}

// allocate gives every referenced tensor a backing buffer. Constants
// arrive allocated and only have their strides and size verified;
// external inputs and outputs get engine-owned buffers the caller copies
// across.
func (in *Interpreter) allocate() error {
	seen := make(map[*tensor.Tensor]bool)
	var alloc func(t *tensor.Tensor) error
	alloc = func(t *tensor.Tensor) error {
		if t == nil || seen[t] {
			return nil
		}
		seen[t] = true
		was := t.IsAllocated()
		if err := t.Allocate(); err != nil {
			return err
		}
		if !was {
			klog.V(2).Infof("allocated %v, %d bytes", t, t.ByteSize())
		}
		return nil
	}

	var walk func(op ops.Op) error
	walk = func(op ops.Op) error {
		for _, t := range op.Inputs() {
			if err := alloc(t); err != nil {
				return err
			}
		}
		for _, t := range op.Outputs() {
			if err := alloc(t); err != nil {
				return err
			}
		}
		if g, ok := op.(*ops.OpGroup); ok {
			for _, member := range g.Ops() {
				if err := walk(member); err != nil {
					return err
				}
			}
		}
		return nil
	}
	return walk(in.group)
}

// Execute runs every op in the prepared order. The first call prepares
// implicitly.
func (in *Interpreter) Execute() error {
	if !in.prepared {
		if err := in.Prepare(); err != nil {
			return err
		}
	}
	for _, op := range in.order {
		klog.V(2).Infof("executing %v", op)
		if err := op.Execute(); err != nil {
			return errors.Wrapf(err, "executing %v", op)
		}
	}
	return nil
}
