package selection

import (
	"github.com/anicol/peokops-sub001/internal/types"
)

// PhotoRequirement decides whether a selected check must capture a photo
// and why. Severity and AI-validation policy override the template's own
// default; the reason string is shown to the operator as-is.
func PhotoRequirement(tpl *types.Template) (bool, string) {
	if tpl == nil {
		return false, ""
	}
	if tpl.Severity == types.SeverityCritical {
		return true, "Critical checks always require photo evidence"
	}
	if tpl.AIValidation {
		return true, "This check is verified automatically and needs a photo"
	}
	if tpl.PhotoRequiredDefault {
		return true, "This check requires a photo"
	}
	return false, ""
}
