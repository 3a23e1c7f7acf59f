package ops

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/gannet-ml/gannet/pkg/tensor"
)

// OpGroup is an ordered composite of ops plus the external input/output
// tensor boundary; it is the unit of model an interpreter consumes.
// Construction takes ownership of all three lists and no structural
// mutation is supported afterwards. An OpGroup is itself an Op, so a
// group may nest inside another as a subgraph.
type OpGroup struct {
	inputs  []*tensor.Tensor
	outputs []*tensor.Tensor
	ops     []Op
}

func NewOpGroup(inputs, outputs []*tensor.Tensor, ops []Op) (*OpGroup, error) {
	for i, op := range ops {
		if op == nil {
			return nil, errors.Wrapf(ErrConstruction, "OpGroup: op %d is nil", i)
		}
	}
	return &OpGroup{inputs: inputs, outputs: outputs, ops: ops}, nil
}

func (g *OpGroup) Inputs() []*tensor.Tensor  { return g.inputs }
func (g *OpGroup) Outputs() []*tensor.Tensor { return g.outputs }

// Ops returns the member ops in stored order.
func (g *OpGroup) Ops() []Op { return g.ops }

func (g *OpGroup) String() string {
	return fmt.Sprintf("OpGroup(%d ops, %d inputs, %d outputs)", len(g.ops), len(g.inputs), len(g.outputs))
}

func (g *OpGroup) Bounds() error {
	for _, op := range g.ops {
		if err := op.Bounds(); err != nil {
			return err
		}
	}
	return nil
}

func (g *OpGroup) Execute() error {
	for _, op := range g.ops {
		if err := op.Execute(); err != nil {
			return errors.Wrapf(err, "executing %v", op)
		}
	}
	return nil
}
