package entity

import "time"

type Project struct {
	ID           ID         `json:"id"`
	Name         string     `json:"name"`
	Type         DeployType `json:"type"`
	Path         string     `json:"path"`
	Branch       string     `json:"branch"`
	BuildCommand string     `json:"build_command"`
	Description  string     `json:"description"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (p *Project) FillDefaults() {
	if p.Branch == "" {
		p.Branch = "main"
	}
	if p.Type == "" {
		p.Type = DeployTypeBackend
	}
}

func (p *Project) Validate() error {
	if p.Name == "" || p.Path == "" || !p.Type.Valid() {
		return ErrInvalid
	}
	return nil
}
