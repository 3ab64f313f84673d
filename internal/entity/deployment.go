package entity

import "time"

type DeploymentStatus string

const (
	DeploymentStatusRunning DeploymentStatus = "running"
	DeploymentStatusSuccess DeploymentStatus = "success"
	DeploymentStatusFailed  DeploymentStatus = "failed"
)

// Terminal reports whether no further mutation of the deployment is allowed.
func (s DeploymentStatus) Terminal() bool {
	return s == DeploymentStatusSuccess || s == DeploymentStatusFailed
}

type DeployType string

const (
	DeployTypeBackend  DeployType = "backend"
	DeployTypeFrontend DeployType = "frontend"
)

func (t DeployType) Valid() bool {
	return t == DeployTypeBackend || t == DeployTypeFrontend
}

type Stage string

const (
	StagePull    Stage = "pull"
	StageBuild   Stage = "build"
	StageUpload  Stage = "upload"
	StageRestart Stage = "restart"
)

// Stages lists the pipeline stages in execution order.
var Stages = []Stage{StagePull, StageBuild, StageUpload, StageRestart}

type StageResult string

const (
	StageResultSuccess StageResult = "success"
	StageResultFailed  StageResult = "failed"
	StageResultSkipped StageResult = "skipped"
)

// StageToggles selects which stages of a run are executed.
type StageToggles struct {
	Pull    bool `json:"pull"`
	Build   bool `json:"build"`
	Upload  bool `json:"upload"`
	Restart bool `json:"restart"`
}

func AllStages() StageToggles {
	return StageToggles{Pull: true, Build: true, Upload: true, Restart: true}
}

func (t StageToggles) Enabled(s Stage) bool {
	switch s {
	case StagePull:
		return t.Pull
	case StageBuild:
		return t.Build
	case StageUpload:
		return t.Upload
	case StageRestart:
		return t.Restart
	}
	return false
}

type Deployment struct {
	ID            ID               `json:"id"`
	ProjectID     ID               `json:"project_id"`
	ServerID      ID               `json:"server_id"`
	DeployType    DeployType       `json:"deploy_type"`
	Branch        string           `json:"branch"`
	Description   string           `json:"description"`
	Stages        StageToggles     `json:"stages"`
	PullResult    StageResult      `json:"pull_result"`
	BuildResult   StageResult      `json:"build_result"`
	UploadResult  StageResult      `json:"upload_result"`
	RestartResult StageResult      `json:"restart_result"`
	Status        DeploymentStatus `json:"status"`
	Logs          []string         `json:"logs"`
	ErrorMessage  string           `json:"error_message,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	EndedAt       *time.Time       `json:"ended_at,omitempty"`
}

// Result returns the recorded result of the given stage.
func (d *Deployment) Result(s Stage) StageResult {
	switch s {
	case StagePull:
		return d.PullResult
	case StageBuild:
		return d.BuildResult
	case StageUpload:
		return d.UploadResult
	case StageRestart:
		return d.RestartResult
	}
	return ""
}

func (d *Deployment) SetResult(s Stage, r StageResult) {
	switch s {
	case StagePull:
		d.PullResult = r
	case StageBuild:
		d.BuildResult = r
	case StageUpload:
		d.UploadResult = r
	case StageRestart:
		d.RestartResult = r
	}
}

// DeploymentPatch is a partial update of a deployment record. Nil fields are left untouched.
type DeploymentPatch struct {
	Stage        Stage
	Result       StageResult
	Status       *DeploymentStatus
	ErrorMessage *string
	EndedAt      *time.Time
}
