package analyzer

import "github.com/capcage/capcage/internal/problem"

// Allowed reports whether pkg's policy grants it the given capability
// (resolved from its PackagePolicy.AllowAPIs, including inherited scopes).
type Allowed func(pkg, capability string) bool

// Evaluate turns UsageRecords into DisallowedApiUsage problems for every
// record whose package was not granted its capability, one Problem per
// (package, capability) pair with every usage site attached.
func Evaluate(records []UsageRecord, allowed Allowed) []problem.Problem {
	type key struct{ pkg, capability string }

	order := make([]key, 0)
	usages := make(map[key][]problem.Usage)

	for _, r := range records {
		capability := string(r.Capability)
		if allowed(r.FromPackage, capability) {
			continue
		}

		k := key{pkg: r.FromPackage, capability: capability}
		if _, seen := usages[k]; !seen {
			order = append(order, k)
		}

		usages[k] = append(usages[k], problem.Usage{
			FromSymbol: r.FromSymbol,
			ToSymbol:   r.ToSymbol,
			Location:   r.Location,
		})
	}

	problems := make([]problem.Problem, 0, len(order))
	for _, k := range order {
		problems = append(problems, problem.NewDisallowedAPIUsage(k.pkg, k.capability, usages[k]))
	}

	return problems
}
