package repository

import (
	"strings"
	"time"

	"github.com/yz4230/shipyard/internal/entity"
	"gorm.io/gorm"
)

type Project struct {
	gorm.Model
	Name         string `gorm:"uniqueIndex"`
	Type         string
	Path         string
	Branch       string
	BuildCommand string
	Description  string
}

func (p *Project) ToEntity() *entity.Project {
	return &entity.Project{
		ID:           entity.NewID(p.ID),
		Name:         p.Name,
		Type:         entity.DeployType(p.Type),
		Path:         p.Path,
		Branch:       p.Branch,
		BuildCommand: p.BuildCommand,
		Description:  p.Description,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
	}
}

func (p *Project) FromEntity(e *entity.Project) {
	if e.ID != "" {
		p.ID = e.ID.Uint()
	}
	p.Name = e.Name
	p.Type = string(e.Type)
	p.Path = e.Path
	p.Branch = e.Branch
	p.BuildCommand = e.BuildCommand
	p.Description = e.Description
}

type Server struct {
	gorm.Model
	Name               string `gorm:"uniqueIndex"`
	Host               string
	Port               int
	Username           string
	Password           string
	PrivateKeyPath     string
	KeyPassphrase      string
	BackendUploadPath  string
	FrontendUploadPath string
	RestartScriptPath  string
	DockerContainer    string
	NginxReload        bool
}

func (s *Server) ToEntity() *entity.Server {
	return &entity.Server{
		ID:                 entity.NewID(s.ID),
		Name:               s.Name,
		Host:               s.Host,
		Port:               s.Port,
		Username:           s.Username,
		Password:           s.Password,
		PrivateKeyPath:     s.PrivateKeyPath,
		KeyPassphrase:      s.KeyPassphrase,
		BackendUploadPath:  s.BackendUploadPath,
		FrontendUploadPath: s.FrontendUploadPath,
		RestartScriptPath:  s.RestartScriptPath,
		DockerContainer:    s.DockerContainer,
		NginxReload:        s.NginxReload,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

func (s *Server) FromEntity(e *entity.Server) {
	if e.ID != "" {
		s.ID = e.ID.Uint()
	}
	s.Name = e.Name
	s.Host = e.Host
	s.Port = e.Port
	s.Username = e.Username
	s.Password = e.Password
	s.PrivateKeyPath = e.PrivateKeyPath
	s.KeyPassphrase = e.KeyPassphrase
	s.BackendUploadPath = e.BackendUploadPath
	s.FrontendUploadPath = e.FrontendUploadPath
	s.RestartScriptPath = e.RestartScriptPath
	s.DockerContainer = e.DockerContainer
	s.NginxReload = e.NginxReload
}

type Deployment struct {
	gorm.Model
	ProjectID     uint `gorm:"index"`
	ServerID      uint `gorm:"index"`
	DeployType    string
	Branch        string
	Description   string
	StagePull     bool
	StageBuild    bool
	StageUpload   bool
	StageRestart  bool
	PullResult    string
	BuildResult   string
	UploadResult  string
	RestartResult string
	Status        string `gorm:"index"`
	LogContent    string
	ErrorMessage  string
	EndTime       *time.Time
}

func (d *Deployment) ToEntity() *entity.Deployment {
	var logs []string
	if d.LogContent != "" {
		logs = strings.Split(d.LogContent, "\n")
	}
	return &entity.Deployment{
		ID:          entity.NewID(d.ID),
		ProjectID:   entity.NewID(d.ProjectID),
		ServerID:    entity.NewID(d.ServerID),
		DeployType:  entity.DeployType(d.DeployType),
		Branch:      d.Branch,
		Description: d.Description,
		Stages: entity.StageToggles{
			Pull:    d.StagePull,
			Build:   d.StageBuild,
			Upload:  d.StageUpload,
			Restart: d.StageRestart,
		},
		PullResult:    entity.StageResult(d.PullResult),
		BuildResult:   entity.StageResult(d.BuildResult),
		UploadResult:  entity.StageResult(d.UploadResult),
		RestartResult: entity.StageResult(d.RestartResult),
		Status:        entity.DeploymentStatus(d.Status),
		Logs:          logs,
		ErrorMessage:  d.ErrorMessage,
		StartedAt:     d.CreatedAt,
		EndedAt:       d.EndTime,
	}
}

func (d *Deployment) FromEntity(e *entity.Deployment) {
	if e.ID != "" {
		d.ID = e.ID.Uint()
	}
	d.ProjectID = e.ProjectID.Uint()
	d.ServerID = e.ServerID.Uint()
	d.DeployType = string(e.DeployType)
	d.Branch = e.Branch
	d.Description = e.Description
	d.StagePull = e.Stages.Pull
	d.StageBuild = e.Stages.Build
	d.StageUpload = e.Stages.Upload
	d.StageRestart = e.Stages.Restart
	d.PullResult = string(e.PullResult)
	d.BuildResult = string(e.BuildResult)
	d.UploadResult = string(e.UploadResult)
	d.RestartResult = string(e.RestartResult)
	d.Status = string(e.Status)
	d.LogContent = strings.Join(e.Logs, "\n")
	d.ErrorMessage = e.ErrorMessage
	d.EndTime = e.EndedAt
	if !e.StartedAt.IsZero() {
		d.CreatedAt = e.StartedAt
	}
}

// patchColumns converts a patch into the column set written by UpdateFields.
func patchColumns(p entity.DeploymentPatch) map[string]any {
	cols := map[string]any{}
	switch p.Stage {
	case entity.StagePull:
		cols["pull_result"] = string(p.Result)
	case entity.StageBuild:
		cols["build_result"] = string(p.Result)
	case entity.StageUpload:
		cols["upload_result"] = string(p.Result)
	case entity.StageRestart:
		cols["restart_result"] = string(p.Result)
	}
	if p.Status != nil {
		cols["status"] = string(*p.Status)
	}
	if p.ErrorMessage != nil {
		cols["error_message"] = *p.ErrorMessage
	}
	if p.EndedAt != nil {
		cols["end_time"] = *p.EndedAt
	}
	return cols
}
