// Package domain contains entity without transport logic, just call meta-data
package domain

import "errors"

const MaxUsernameLen = 36

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrMissingLine     = errors.New("production and line are required")
)

// JoinOptions are echoed to the server as-is; the session core never interprets them.
type JoinOptions struct {
	ProductionID             string `json:"productionId"`
	LineID                   string `json:"lineId"`
	Username                 string `json:"username"`
	AudioInput               string `json:"audioinput,omitempty"`
	AudioOutput              string `json:"audiooutput,omitempty"`
	LineName                 string `json:"lineName,omitempty"`
	ProductionName           string `json:"productionName,omitempty"`
	LineUsedForProgramOutput bool   `json:"lineUsedForProgramOutput"`
	IsProgramUser            bool   `json:"isProgramUser"`
}

func (o JoinOptions) Validate() error {
	if o.ProductionID == "" || o.LineID == "" {
		return ErrMissingLine
	}
	if len(o.Username) == 0 {
		return ErrUsernameEmpty
	}
	if len(o.Username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	return nil
}
