package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"secretsanta/internal/domain"
)

// Prompter asks questions on Out and reads single-line answers from In.
type Prompter struct {
	In  *bufio.Reader
	Out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{In: bufio.NewReader(in), Out: out}
}

// Ask prints question and returns the trimmed answer. End of input counts as
// an empty answer.
func (p *Prompter) Ask(question string) (string, error) {
	fmt.Fprint(p.Out, question)
	line, err := p.In.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if errors.Is(err, io.EOF) {
		fmt.Fprintln(p.Out)
	}
	return strings.TrimSpace(line), nil
}

func (p *Prompter) Say(format string, args ...any) {
	fmt.Fprintf(p.Out, format+"\n", args...)
}

// Interactive walks through the prompt sequence: participants, optional
// prior round, then the output path. Failures are printed and the session
// ends normally, so the returned error is always nil.
func Interactive(ctx context.Context, s Service, p *Prompter) error {
	p.Say("Welcome to the Secret Santa Assignment Application!")
	out, err := interactive(ctx, s, p)
	if err != nil {
		s.log().Debug("interactive session failed", "error", err)
		p.Say("%v", err)
		return nil
	}
	p.Say("Results successfully saved to %s", out.OutputPath)
	return nil
}

func interactive(ctx context.Context, s Service, p *Prompter) (Outcome, error) {
	participantsPath, err := p.Ask("Enter the path to the Employee CSV file: ")
	if err != nil {
		return Outcome{}, err
	}
	participants, err := s.LoadParticipants(participantsPath)
	if err != nil {
		return Outcome{}, err
	}

	priorPath, err := p.Ask("Enter the path to last year's assignment CSV file (optional, press Enter to skip): ")
	if err != nil {
		return Outcome{}, err
	}
	var priors []domain.PriorAssignment
	if priorPath == "" {
		p.Say("No previous year's file provided. Proceeding without constraints from last year.")
	} else if priors, _, err = s.LoadPriors(ctx, priorPath, false); err != nil {
		return Outcome{}, err
	}

	res, err := s.Assign(ctx, participants, priors)
	if err != nil {
		return Outcome{}, err
	}

	outputPath, err := p.Ask(fmt.Sprintf("Enter the path to save the result CSV file (default: %s): ", s.outputPath("")))
	if err != nil {
		return Outcome{}, err
	}
	outputPath = s.outputPath(outputPath)
	meta := domain.Run{
		ParticipantsSource: participantsPath,
		PriorSource:        priorPath,
		OutputPath:         outputPath,
		Attempts:           res.Attempts,
	}
	runID, err := s.Persist(ctx, meta, res.Assignments, func() error {
		return s.Store.SaveAssignments(outputPath, res.Assignments)
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{
		RunID:       runID,
		OutputPath:  outputPath,
		PriorSource: priorPath,
		Attempts:    res.Attempts,
		Assignments: res.Assignments,
	}, nil
}
