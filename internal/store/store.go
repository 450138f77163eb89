package store

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"secretsanta/internal/domain"
	"secretsanta/internal/logging"
)

// MinParticipants is the smallest group a participant file may describe.
const MinParticipants = 3

// Store reads and writes participant and assignment files. CSV is the
// default; a .xlsx extension selects the first sheet of a workbook.
type Store struct {
	Logger *slog.Logger
}

func (s Store) log() *slog.Logger { return logging.OrDiscard(s.Logger) }

// LoadParticipants reads and validates the participant file at path.
func (s Store) LoadParticipants(path string) ([]domain.Participant, error) {
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	participants := make([]domain.Participant, 0, len(t.rows))
	for _, row := range t.rows {
		participants = append(participants, domain.Participant{
			Name:  t.cell(row, ColEmployeeName),
			Email: t.cell(row, ColEmployeeEmail),
		})
	}
	if err := validateParticipants(path, participants); err != nil {
		return nil, err
	}
	s.log().Debug("participants loaded", "source", path, "count", len(participants))
	return participants, nil
}

// ValidateParticipants applies the participant file rules to records that
// did not come from a file.
func ValidateParticipants(participants []domain.Participant) error {
	return validateParticipants("", participants)
}

func validateParticipants(source string, participants []domain.Participant) error {
	if len(participants) == 0 {
		return &ValidationError{Source: source, Msg: "the participant list is empty"}
	}
	if len(participants) < MinParticipants {
		return &ValidationError{Source: source, Msg: fmt.Sprintf("the number of participants must be more than %d, got %d", MinParticipants-1, len(participants))}
	}
	seen := make(map[string]int, len(participants))
	for i, p := range participants {
		row := i + 1
		if strings.TrimSpace(p.Name) == "" {
			return fieldError(source, row, ColEmployeeName, "")
		}
		if strings.TrimSpace(p.Email) == "" {
			return fieldError(source, row, ColEmployeeEmail, "")
		}
		if first, ok := seen[p.Email]; ok {
			return &ValidationError{
				Source: source,
				Row:    row,
				Field:  ColEmployeeEmail,
				Msg:    fmt.Sprintf("duplicate email found: '%s' at row %d (first seen at row %d)", p.Email, row, first),
			}
		}
		seen[p.Email] = row
	}
	return nil
}

// LoadPriorAssignments reads last round's assignments. An empty path or an
// empty file both mean there are no prior constraints.
func (s Store) LoadPriorAssignments(path string) ([]domain.PriorAssignment, error) {
	if strings.TrimSpace(path) == "" {
		return []domain.PriorAssignment{}, nil
	}
	t, err := readTable(path)
	if err != nil {
		return nil, err
	}
	if len(t.rows) == 0 {
		s.log().Warn("last round's assignment file is empty", "source", path)
		return []domain.PriorAssignment{}, nil
	}
	priors := make([]domain.PriorAssignment, 0, len(t.rows))
	for _, row := range t.rows {
		priors = append(priors, domain.PriorAssignment{
			GiverName:      t.cell(row, ColEmployeeName),
			GiverEmail:     t.cell(row, ColEmployeeEmail),
			RecipientName:  t.cell(row, ColSecretChildName),
			RecipientEmail: t.cell(row, ColSecretChildEmail),
		})
	}
	if err := validatePriorAssignments(path, priors); err != nil {
		return nil, err
	}
	s.log().Debug("prior assignments loaded", "source", path, "count", len(priors))
	return priors, nil
}

// validatePriorAssignments requires all four fields on every file record.
// API callers may omit names, so this applies to files only.
func validatePriorAssignments(source string, priors []domain.PriorAssignment) error {
	const where = " in last year's assignment file"
	for i, p := range priors {
		row := i + 1
		fields := []struct{ name, value string }{
			{ColEmployeeName, p.GiverName},
			{ColEmployeeEmail, p.GiverEmail},
			{ColSecretChildName, p.RecipientName},
			{ColSecretChildEmail, p.RecipientEmail},
		}
		for _, f := range fields {
			if strings.TrimSpace(f.value) == "" {
				return fieldError(source, row, f.name, where)
			}
		}
	}
	return nil
}

// SaveAssignments writes one row per assignment. The file is replaced
// atomically, so a failed write leaves any previous file untouched.
func (s Store) SaveAssignments(path string, assignments []domain.Assignment) error {
	if len(assignments) == 0 {
		return ErrNoAssignments
	}
	if strings.TrimSpace(path) == "" {
		return errors.New("output path is required")
	}
	records := make([][]string, 0, len(assignments)+1)
	records = append(records, assignmentColumns)
	for _, a := range assignments {
		records = append(records, []string{a.GiverName, a.GiverEmail, a.RecipientName, a.RecipientEmail})
	}
	if err := writeAtomic(path, records); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	s.log().Info("assignments saved", "path", path, "count", len(assignments))
	return nil
}
