package models

import "html/template"

// Field names a contact form input
type Field string

const (
	FieldName     Field = "name"
	FieldEmail    Field = "email"
	FieldCompany  Field = "company"
	FieldMessage  Field = "message"
	FieldHoneypot Field = "website"
)

// UserFields lists the fields a human fills in, in display order
var UserFields = []Field{FieldName, FieldEmail, FieldCompany, FieldMessage}

// FormInput holds the current contents of the contact form
type FormInput struct {
	Name     string
	Email    string
	Company  string
	Message  string
	Honeypot string
}

// Get returns the value of a field
func (f FormInput) Get(field Field) string {
	switch field {
	case FieldName:
		return f.Name
	case FieldEmail:
		return f.Email
	case FieldCompany:
		return f.Company
	case FieldMessage:
		return f.Message
	case FieldHoneypot:
		return f.Honeypot
	}
	return ""
}

// With returns a copy of the input with one field replaced
func (f FormInput) With(field Field, value string) FormInput {
	switch field {
	case FieldName:
		f.Name = value
	case FieldEmail:
		f.Email = value
	case FieldCompany:
		f.Company = value
	case FieldMessage:
		f.Message = value
	case FieldHoneypot:
		f.Honeypot = value
	}
	return f
}

// ValidationResult maps failed fields to a human readable reason.
// An empty result means the input is valid.
type ValidationResult map[Field]string

// Valid reports whether no field failed
func (v ValidationResult) Valid() bool {
	return len(v) == 0
}

// For returns the reason a field failed, or "" if it passed.
func (v ValidationResult) For(field string) string {
	return v[Field(field)]
}

// OutcomeKind tags the result of a submission attempt
type OutcomeKind string

const (
	OutcomeSuccess          OutcomeKind = "success"
	OutcomeNetworkError     OutcomeKind = "network_error"
	OutcomeServerRejected   OutcomeKind = "server_rejected"
	OutcomeRateLimited      OutcomeKind = "rate_limited"
	OutcomeValidationFailed OutcomeKind = "validation_failed"
	OutcomeSilentlyDropped  OutcomeKind = "silently_dropped"
)

// Outcome is the result of a submission attempt.
// RetryAfter is set for OutcomeRateLimited, Errors for OutcomeValidationFailed.
type Outcome struct {
	Kind       OutcomeKind
	RetryAfter int
	Errors     ValidationResult
	Message    string
}

// Succeeded reports whether the relay accepted the submission
func (o Outcome) Succeeded() bool {
	return o.Kind == OutcomeSuccess
}

// MessageType defines the type of message (success, error, warning)
type MessageType string

const (
	MessageSuccess MessageType = "success"
	MessageError   MessageType = "error"
	MessageWarning MessageType = "warning"
)

// Message represents a user feedback message
type Message struct {
	Type MessageType
	Text string
}

// PageData holds all data needed to render the HTML templates
type PageData struct {
	FormOpen      bool
	Form          FormInput
	FieldErrors   ValidationResult
	Submitting    bool
	Submitted     bool
	Message       *Message
	HoneypotField Field
	CSRFField     template.HTML
}
