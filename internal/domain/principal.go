package domain

import "fmt"

// PrincipalType distinguishes the callers the pipeline serves.
type PrincipalType string

const (
	// PrincipalRespondent is a normal user answering their own evaluations.
	PrincipalRespondent PrincipalType = "respondent"

	// PrincipalAdmin may read any evaluation.
	PrincipalAdmin PrincipalType = "admin"

	// PrincipalService is an automated caller such as the scoring worker.
	PrincipalService PrincipalType = "service"
)

// Principal identifies the caller of an operation. It is a tagged variant;
// the session layer that produces it is outside the pipeline.
type Principal struct {
	// Type selects the access rules applied to the caller.
	Type PrincipalType `json:"type" validate:"required,oneof=respondent admin service"`

	// ID is the respondent id for respondents, or an operator/service name.
	ID string `json:"id" validate:"required,min=1"`
}

// Respondent returns a respondent principal.
func Respondent(id string) Principal { return Principal{Type: PrincipalRespondent, ID: id} }

// Admin returns an admin principal.
func Admin(id string) Principal { return Principal{Type: PrincipalAdmin, ID: id} }

// Validate checks the principal.
func (p Principal) Validate() error { return validateStruct(p) }

// CanRead reports whether the principal may read e.
func (p Principal) CanRead(e *Evaluation) bool {
	switch p.Type {
	case PrincipalAdmin, PrincipalService:
		return true
	default:
		return e.OwnedBy(p.ID)
	}
}

// CanWrite reports whether the principal may submit answers to e.
// Only the owning respondent writes answers.
func (p Principal) CanWrite(e *Evaluation) bool {
	return p.Type == PrincipalRespondent && e.OwnedBy(p.ID)
}

// String returns a human-readable representation of the principal.
func (p Principal) String() string { return fmt.Sprintf("%s:%s", p.Type, p.ID) }
