package engine

import "fmt"

type ViolationKind string

const (
	ViolationSelf           ViolationKind = "self"
	ViolationPrior          ViolationKind = "prior"
	ViolationNotPermutation ViolationKind = "not-permutation"
)

// ViolationError describes the first broken constraint found by Verify.
type ViolationError struct {
	Kind      ViolationKind
	Index     int
	Giver     string
	Recipient string
}

func (e *ViolationError) Error() string {
	switch e.Kind {
	case ViolationSelf:
		return fmt.Sprintf("%s is assigned to themselves (position %d)", e.Giver, e.Index+1)
	case ViolationPrior:
		return fmt.Sprintf("%s repeats last round's recipient %s (position %d)", e.Giver, e.Recipient, e.Index+1)
	default:
		return fmt.Sprintf("recipients are not a permutation of givers: %s", e.Recipient)
	}
}

// Verify checks a finished assignment: receivers must be a permutation of
// names with no self-assignment and no repeat of prior.
func Verify(names, receivers []string, prior map[string]string) error {
	if len(names) != len(receivers) {
		return &ViolationError{Kind: ViolationNotPermutation, Index: -1,
			Recipient: fmt.Sprintf("%d givers, %d recipients", len(names), len(receivers))}
	}
	counts := make(map[string]int, len(names))
	for _, name := range names {
		counts[name]++
	}
	for i, r := range receivers {
		counts[r]--
		if counts[r] < 0 {
			return &ViolationError{Kind: ViolationNotPermutation, Index: i, Giver: names[i], Recipient: r}
		}
	}
	if i, kind := firstViolation(names, receivers, prior); i >= 0 {
		return &ViolationError{Kind: kind, Index: i, Giver: names[i], Recipient: receivers[i]}
	}
	return nil
}
