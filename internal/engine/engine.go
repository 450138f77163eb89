package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"secretsanta/internal/domain"
	"secretsanta/internal/logging"
)

// DefaultMaxAttempts bounds the shuffle-repair-verify cycles of one Generate call.
const DefaultMaxAttempts = 100

var (
	ErrTooFewParticipants   = errors.New("need at least 2 participants")
	ErrDuplicateParticipant = errors.New("duplicate participant")
	ErrNoValidAssignment    = errors.New("no valid assignment found")
)

// RepairMode selects how an attempt fixes violations after the shuffle.
type RepairMode string

const (
	// RepairSinglePass runs each repair sweep once and leaves leftovers to verification.
	RepairSinglePass RepairMode = "single-pass"
	// RepairFixedPoint repeats the sweeps while they keep reducing violations.
	RepairFixedPoint RepairMode = "fixed-point"
)

// ParseRepairMode accepts the mode names used in config and flags.
func ParseRepairMode(s string) (RepairMode, error) {
	switch RepairMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", RepairSinglePass:
		return RepairSinglePass, nil
	case RepairFixedPoint:
		return RepairFixedPoint, nil
	default:
		return "", fmt.Errorf("invalid repair mode %q (want single-pass or fixed-point)", s)
	}
}

type Options struct {
	MaxAttempts int
	Repair      RepairMode
	// Seed feeds the generator when Rand is nil; 0 seeds from the clock.
	Seed   int64
	Rand   *rand.Rand
	Logger *slog.Logger
}

// Engine draws constrained random assignments. The generator is advanced
// across attempts and calls, so an Engine must not be shared between goroutines.
type Engine struct {
	MaxAttempts int
	Repair      RepairMode
	Rand        *rand.Rand
	Logger      *slog.Logger
}

func New(opts Options) Engine {
	rng := opts.Rand
	if rng == nil {
		seed := opts.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	repair := opts.Repair
	if repair == "" {
		repair = RepairSinglePass
	}
	return Engine{
		MaxAttempts: maxAttempts,
		Repair:      repair,
		Rand:        rng,
		Logger:      logging.OrDiscard(opts.Logger),
	}
}

// Result is a successful assignment plus the number of attempts it took.
type Result struct {
	Assignments []domain.Assignment
	Attempts    int
}

// Generate returns receivers index-aligned with names: names[i] gives to
// result[i]. Nobody receives themselves and nobody receives prior[names[i]].
func (e Engine) Generate(names []string, prior map[string]string) ([]string, error) {
	receivers, _, err := e.generate(names, prior)
	return receivers, err
}

// Assign runs Generate over participant emails and joins the result back to
// participant records by email.
func (e Engine) Assign(participants []domain.Participant, priors []domain.PriorAssignment) (Result, error) {
	byEmail := make(map[string]domain.Participant, len(participants))
	names := make([]string, 0, len(participants))
	for _, p := range participants {
		byEmail[p.Email] = p
		names = append(names, p.Email)
	}
	receivers, attempts, err := e.generate(names, PriorMap(priors))
	if err != nil {
		return Result{Attempts: attempts}, err
	}
	out := make([]domain.Assignment, len(names))
	for i, giverEmail := range names {
		giver := byEmail[giverEmail]
		recipient := byEmail[receivers[i]]
		out[i] = domain.Assignment{
			GiverName:      giver.Name,
			GiverEmail:     giver.Email,
			RecipientName:  recipient.Name,
			RecipientEmail: recipient.Email,
		}
	}
	return Result{Assignments: out, Attempts: attempts}, nil
}

// PriorMap builds giver -> recipient from last round's records. Records
// missing either email are skipped; a repeated giver keeps its last entry.
func PriorMap(priors []domain.PriorAssignment) map[string]string {
	m := make(map[string]string, len(priors))
	for _, p := range priors {
		if p.GiverEmail == "" || p.RecipientEmail == "" {
			continue
		}
		m[p.GiverEmail] = p.RecipientEmail
	}
	return m
}

func (e Engine) generate(names []string, prior map[string]string) ([]string, int, error) {
	n := len(names)
	if n < 2 {
		return nil, 0, ErrTooFewParticipants
	}
	seen := make(map[string]struct{}, n)
	for _, name := range names {
		if _, ok := seen[name]; ok {
			return nil, 0, fmt.Errorf("%w: %s", ErrDuplicateParticipant, name)
		}
		seen[name] = struct{}{}
	}
	maxAttempts := e.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	rng := e.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	log := logging.OrDiscard(e.Logger)

	receivers := make([]string, n)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		copy(receivers, names)
		rng.Shuffle(n, func(i, j int) { receivers[i], receivers[j] = receivers[j], receivers[i] })

		if !e.repair(names, receivers, prior) {
			log.Debug("attempt abandoned", "attempt", attempt, "stage", "prior-repair")
			continue
		}
		if i, kind := firstViolation(names, receivers, prior); i >= 0 {
			log.Debug("attempt abandoned", "attempt", attempt, "stage", "verify", "index", i, "violation", kind)
			continue
		}
		log.Info("assignment found", "participants", n, "attempts", attempt, "repair", string(e.repairMode()))
		return receivers, attempt, nil
	}
	log.Warn("attempt budget exhausted", "participants", n, "attempts", maxAttempts)
	return nil, maxAttempts, fmt.Errorf("%w after %d attempts", ErrNoValidAssignment, maxAttempts)
}

func (e Engine) repairMode() RepairMode {
	if e.Repair == "" {
		return RepairSinglePass
	}
	return e.Repair
}

// repair applies the sweeps for the configured mode. It reports false when
// some prior repeat has no usable swap partner.
func (e Engine) repair(names, receivers []string, prior map[string]string) bool {
	if e.repairMode() != RepairFixedPoint {
		repairSelf(names, receivers)
		return repairPrior(names, receivers, prior)
	}
	remaining := countViolations(names, receivers, prior)
	for round := 0; round < len(names) && remaining > 0; round++ {
		repairSelf(names, receivers)
		if !repairPrior(names, receivers, prior) {
			return false
		}
		after := countViolations(names, receivers, prior)
		if after >= remaining {
			break
		}
		remaining = after
	}
	return true
}

// repairSelf is one forward sweep swapping each self-assignment with the next slot.
func repairSelf(names, receivers []string) {
	n := len(names)
	for i := range names {
		if receivers[i] == names[i] {
			j := (i + 1) % n
			receivers[i], receivers[j] = receivers[j], receivers[i]
		}
	}
}

// repairPrior is one forward sweep that swaps each prior repeat with the first
// slot whose exchange creates no new violation at either end.
func repairPrior(names, receivers []string, prior map[string]string) bool {
	for i := range names {
		if !isPrior(prior, names[i], receivers[i]) {
			continue
		}
		j := swapPartner(names, receivers, prior, i)
		if j < 0 {
			return false
		}
		receivers[i], receivers[j] = receivers[j], receivers[i]
	}
	return true
}

func swapPartner(names, receivers []string, prior map[string]string, i int) int {
	for j := range names {
		if names[j] != receivers[j] &&
			receivers[j] != names[i] &&
			receivers[i] != names[j] &&
			!isPrior(prior, names[j], receivers[i]) &&
			!isPrior(prior, names[i], receivers[j]) {
			return j
		}
	}
	return -1
}

func isPrior(prior map[string]string, giver, recipient string) bool {
	last, ok := prior[giver]
	return ok && last == recipient
}

func firstViolation(names, receivers []string, prior map[string]string) (int, ViolationKind) {
	for i := range names {
		if names[i] == receivers[i] {
			return i, ViolationSelf
		}
		if isPrior(prior, names[i], receivers[i]) {
			return i, ViolationPrior
		}
	}
	return -1, ""
}

func countViolations(names, receivers []string, prior map[string]string) int {
	count := 0
	for i := range names {
		if names[i] == receivers[i] || isPrior(prior, names[i], receivers[i]) {
			count++
		}
	}
	return count
}
