package pnl

import "fmt"

// RollupPolicy decides how a bucket treats parent rollup rows that arrive
// together with their own child detail rows.
type RollupPolicy string

const (
	// RollupIncludeAll sums every row classified into the bucket.
	RollupIncludeAll RollupPolicy = "include_all"
	// RollupPreferChildren drops a category's rollup rows from the bucket sum
	// when child rows for the same category landed in the same bucket.
	RollupPreferChildren RollupPolicy = "prefer_children"
)

// IsValid returns true for known policies
func (p RollupPolicy) IsValid() bool {
	return p == RollupIncludeAll || p == RollupPreferChildren
}

// RollupPolicies maps buckets to their policy. Missing buckets use RollupIncludeAll.
type RollupPolicies map[Bucket]RollupPolicy

// For returns the policy configured for b.
func (p RollupPolicies) For(b Bucket) RollupPolicy {
	if policy, ok := p[b]; ok {
		return policy
	}
	return RollupIncludeAll
}

// ParseRollupPolicies converts a bucket-name to policy-name map, as read from config.
func ParseRollupPolicies(raw map[string]string) (RollupPolicies, error) {
	policies := make(RollupPolicies, len(raw))
	for name, value := range raw {
		b := Bucket(name)
		if !b.IsValid() {
			return nil, fmt.Errorf("rollup policy: unknown bucket %q", name)
		}
		policy := RollupPolicy(value)
		if !policy.IsValid() {
			return nil, fmt.Errorf("rollup policy for %s: unknown policy %q", name, value)
		}
		policies[b] = policy
	}
	return policies, nil
}
