package components

import (
	"fmt"
	"os"

	"github.com/caseforge/caseforge/pkg/component"
	"github.com/caseforge/caseforge/pkg/engine"
)

// CaseCheck is mandatory for every MOM6 case and only verifies that the case
// directory exists. It has no outputs.
func CaseCheck() *component.Descriptor {
	return &component.Descriptor{
		Name:        "case_check",
		Description: "verify the case directory exists",
		RequiredFor: []string{"MOM6"},
		AllowedFor:  []string{"MOM6"},
		Inputs: []component.InputParam{
			{Name: "case_root", Comment: "case directory"},
		},
		Validate: func(in engine.InputBag) error {
			root, ok := in["case_root"].(string)
			if !ok || root == "" {
				return invalid("case_check", "case_root", "case_root must be a path")
			}
			info, err := os.Stat(root)
			if err != nil {
				return engine.NewError(engine.ErrorKindFileNotFound,
					fmt.Sprintf("case directory %s does not exist", root), err).WithParameter("case_root")
			}
			if !info.IsDir() {
				return invalid("case_check", "case_root", fmt.Sprintf("%s is not a directory", root))
			}
			return nil
		},
	}
}
