package entity

import (
	"strconv"
	"time"
)

// Server is a deployment target reachable over SSH.
//
// Password and KeyPassphrase hold sealed values (see package credential); they are never
// rendered in API responses.
type Server struct {
	ID                 ID        `json:"id"`
	Name               string    `json:"name"`
	Host               string    `json:"host"`
	Port               int       `json:"port"`
	Username           string    `json:"username"`
	Password           string    `json:"-"`
	PrivateKeyPath     string    `json:"private_key_path,omitempty"`
	KeyPassphrase      string    `json:"-"`
	BackendUploadPath  string    `json:"backend_upload_path"`
	FrontendUploadPath string    `json:"frontend_upload_path"`
	RestartScriptPath  string    `json:"restart_script_path"`
	DockerContainer    string    `json:"docker_container,omitempty"`
	NginxReload        bool      `json:"nginx_reload"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (s *Server) FillDefaults() {
	if s.Port == 0 {
		s.Port = 22
	}
}

func (s *Server) Validate() error {
	if s.Name == "" || s.Host == "" || s.Username == "" || s.Port <= 0 || s.Port > 65535 {
		return ErrInvalid
	}
	return nil
}

func (s *Server) Addr() string {
	return s.Host + ":" + strconv.Itoa(s.Port)
}
