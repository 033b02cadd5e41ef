package budget

import (
	"time"

	"github.com/abathur-ai/abathur/internal/types"
)

// extensionThreshold is the remaining-fraction floor below which an
// extension may be requested (§4.6).
const extensionThreshold = 0.15

// extensionGrant is the iteration/token top-up applied to a granted
// extension, roughly half of the base Moderate allocation.
const (
	extensionIterations = 10
	extensionTokens     = 200_000
	extensionWallTime   = 20 * time.Minute
)

// ShouldRequestExtension reports whether the engine should request a budget
// extension this iteration (§4.6): remaining_fraction < 0.15, the attractor
// is FixedPoint, and extensions_requested < max_extensions.
func ShouldRequestExtension(budget types.ConvergenceBudget, attractorKind types.AttractorKind) bool {
	return budget.RemainingFraction() < extensionThreshold &&
		attractorKind == types.AttractorFixedPoint &&
		budget.CanExtend()
}

// GrantExtension decides whether a requested extension is granted
// automatically or requires out-of-band human approval (§4.6: "granted
// automatically unless priority is Thorough"). When approval is required,
// the caller must hold the extension pending until an operator approves it
// via cmd/abathurctl.
func GrantExtension(budget types.ConvergenceBudget, priority *types.PriorityHint) (granted types.ConvergenceBudget, needsApproval bool) {
	budget.ExtensionsRequested++

	if priority != nil && *priority == types.PriorityThorough {
		return budget, true
	}

	budget.ExtensionsGranted++
	budget.MaxIterations += extensionIterations
	budget.MaxTokens += extensionTokens
	budget.MaxWallTime += extensionWallTime
	return budget, false
}
