package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

var propTokens = []string{"MOM6", "CICE", "MARBL", "DROF", "SLND"}

func pickTokens(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = propTokens[n]
	}
	return out
}

type catalogSpec struct {
	required  [][]int
	allowed   [][]int
	forbidden [][]int
	inputs    []int
}

func buildCatalog(cs catalogSpec) *Registry {
	reg := New()
	for i := range cs.required {
		var params []component.InputParam
		for j := 0; j < cs.inputs[i]; j++ {
			params = append(params, component.InputParam{Name: fmt.Sprintf("in_%d_%d", i, j)})
		}
		_ = reg.Register(&component.Descriptor{
			Name:         fmt.Sprintf("c%d", i),
			RequiredFor:  pickTokens(cs.required[i]),
			AllowedFor:   pickTokens(cs.allowed[i]),
			ForbiddenFor: pickTokens(cs.forbidden[i]),
			Inputs:       params,
		})
	}
	return reg
}

func genCatalog() gopter.Gen {
	tokenSet := gen.SliceOfN(2, gen.IntRange(0, len(propTokens)-1))
	return gopter.CombineGens(
		gen.SliceOfN(4, tokenSet),
		gen.SliceOfN(4, tokenSet),
		gen.SliceOfN(4, tokenSet),
		gen.SliceOfN(4, gen.IntRange(0, 2)),
	).Map(func(vals []interface{}) catalogSpec {
		return catalogSpec{
			required:  vals[0].([][]int),
			allowed:   vals[1].([][]int),
			forbidden: vals[2].([][]int),
			inputs:    vals[3].([]int),
		}
	})
}

func buildInputs(reg *Registry, mask []bool) engine.InputBag {
	bag := engine.InputBag{}
	k := 0
	for _, d := range reg.Descriptors() {
		for _, p := range d.Inputs {
			if k < len(mask) && mask[k] {
				bag[p.Name] = k
			}
			k++
		}
	}
	return bag
}

func buildDescriptor(present []int) engine.FeatureDescriptor {
	fd := engine.FeatureDescriptor("2000")
	for _, tok := range pickTokens(present) {
		fd += engine.FeatureDescriptor("_" + tok)
	}
	return fd
}

// Property: a required component is either active or named in the
// missing_required_input error.
func TestRequiredComponentsProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("required implies active or reported", prop.ForAll(
		func(cs catalogSpec, present []int, mask []bool) bool {
			reg := buildCatalog(cs)
			fd := buildDescriptor(present)
			active, err := reg.Resolve(context.Background(), fd, buildInputs(reg, mask))

			for _, d := range reg.FindRequired(fd) {
				if err != nil {
					if !engine.IsKind(err, engine.ErrorKindMissingRequiredInput) {
						return false
					}
					missing := engine.MissingOf(err)
					if _, named := missing[d.Key()]; !named && len(d.MissingInputs(buildInputs(reg, mask))) > 0 {
						return false
					}
					continue
				}
				if !active.Has(d.Key()) {
					return false
				}
			}
			return true
		},
		genCatalog(),
		gen.SliceOf(gen.IntRange(0, len(propTokens)-1)),
		gen.SliceOfN(8, gen.Bool()),
	))

	properties.TestingRun(t)
}

// Property: an optional component is active exactly when it is eligible and
// all of its inputs are present.
func TestOptionalComponentsProperty(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("optional active iff eligible with inputs", prop.ForAll(
		func(cs catalogSpec, present []int, mask []bool) bool {
			reg := buildCatalog(cs)
			fd := buildDescriptor(present)
			bag := buildInputs(reg, mask)
			active, err := reg.Resolve(context.Background(), fd, bag)
			if err != nil {
				return engine.IsKind(err, engine.ErrorKindMissingRequiredInput)
			}

			for _, d := range reg.Descriptors() {
				if d.IsRequired(fd) {
					continue
				}
				want := d.IsEligible(fd) && len(d.MissingInputs(bag)) == 0
				if active.Has(d.Key()) != want {
					return false
				}
			}
			return true
		},
		genCatalog(),
		gen.SliceOf(gen.IntRange(0, len(propTokens)-1)),
		gen.SliceOfN(8, gen.Bool()),
	))

	properties.TestingRun(t)
}
