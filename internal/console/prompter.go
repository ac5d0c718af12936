package console

import (
	"errors"
	"io"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// ErrQuit is returned by a Prompter when the user aborts input.
var ErrQuit = errors.New("quit")

type Prompter interface {
	Input(message string) (string, error)
	Select(message string, options []string, current string) (string, error)
}

type SurveyPrompter struct {
	opts []survey.AskOpt
}

func NewSurveyPrompter(opts ...survey.AskOpt) *SurveyPrompter {
	return &SurveyPrompter{opts: opts}
}

func (p *SurveyPrompter) Input(message string) (string, error) {
	var answer string
	err := survey.AskOne(&survey.Input{Message: message}, &answer, p.opts...)
	return answer, mapSurveyErr(err)
}

func (p *SurveyPrompter) Select(message string, options []string, current string) (string, error) {
	var answer string
	question := &survey.Select{
		Message: message,
		Options: options,
	}
	if current != "" {
		question.Default = current
	}
	err := survey.AskOne(question, &answer, p.opts...)
	return answer, mapSurveyErr(err)
}

func mapSurveyErr(err error) error {
	if errors.Is(err, terminal.InterruptErr) || errors.Is(err, io.EOF) {
		return ErrQuit
	}
	return err
}
