package model

// Template describes how to build subject and body for one channel.
type Template struct {
	ID                string   `json:"id" mapstructure:"id"`
	Channel           Channel  `json:"channel" mapstructure:"channel"`
	SubjectTemplate   string   `json:"subject_template,omitempty" mapstructure:"subject"`
	BodyTemplate      string   `json:"body_template" mapstructure:"body"`
	RequiredVariables []string `json:"required_variables" mapstructure:"required_variables"`
}
