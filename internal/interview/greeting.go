package interview

import (
	"fmt"
	"strings"

	"github.com/spigell/aura-hire/internal/candidate"
)

const (
	DefaultCompany     = "L'Occitane"
	DefaultInterviewer = "Aura"
)

// Persona names the company and the interviewer a candidate is greeted by.
type Persona struct {
	Company     string `mapstructure:"company"`
	Interviewer string `mapstructure:"interviewer"`
}

func (p Persona) withDefaults() Persona {
	if strings.TrimSpace(p.Company) == "" {
		p.Company = DefaultCompany
	}
	if strings.TrimSpace(p.Interviewer) == "" {
		p.Interviewer = DefaultInterviewer
	}
	return p
}

// InterviewerName returns the configured interviewer or the default one.
func (p Persona) InterviewerName() string {
	return p.withDefaults().Interviewer
}

// Greeting is the first assistant message of every interview.
func (p Persona) Greeting(c candidate.Candidate) string {
	p = p.withDefaults()
	return fmt.Sprintf(
		"Hello %s, welcome to your interview with %s. I am %s, your AI interviewer for today. "+
			"We will go through a series of questions to understand your skills and experience for the %s role. "+
			"Please take your time to answer. Are you ready to begin?",
		c.Name, p.Company, p.Interviewer, c.Position,
	)
}

// SystemPrompt instructs the completion provider how to run the interview.
func (p Persona) SystemPrompt(c candidate.Candidate) string {
	p = p.withDefaults()
	return fmt.Sprintf(`You are %s, an AI interviewer working for %s.
You are interviewing %s for the %s role.
Ask one question at a time and wait for the answer before moving on.
Keep every reply short, friendly and professional.
Ask about experience, motivation and situations relevant to the role.
Do not score the candidate or reveal any evaluation.`,
		p.Interviewer, p.Company, c.Name, c.Position)
}
