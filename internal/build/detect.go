package build

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yz4230/shipyard/internal/entity"
)

var (
	ErrProjectPathMissing = errors.New("project path does not exist")
	ErrUnknownBuildType   = errors.New("unable to detect project build type")
)

type Tool string

const (
	ToolMaven  Tool = "maven"
	ToolGradle Tool = "gradle"
	ToolNpm    Tool = "npm"
)

// Detection describes how a project is built.
type Detection struct {
	Tool           Tool              `json:"type"`
	Kind           entity.DeployType `json:"project_type"`
	Framework      string            `json:"framework,omitempty"`
	ConfigFile     string            `json:"config_file"`
	BuildCommand   string            `json:"build_command"`
	InstallCommand string            `json:"install_command,omitempty"`
	// ArtifactDir is relative to the project root.
	ArtifactDir string `json:"artifact_dir"`
}

type packageJSON struct {
	Scripts         map[string]string `json:"scripts"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

// Detector inspects project files to find the build tool.
type Detector struct{}

func (Detector) Detect(projectPath string) (Detection, error) {
	return Detect(projectPath)
}

func Detect(projectPath string) (Detection, error) {
	if _, err := os.Stat(projectPath); err != nil {
		return Detection{}, fmt.Errorf("%w: %s", ErrProjectPathMissing, projectPath)
	}

	if exists(filepath.Join(projectPath, "pom.xml")) {
		return Detection{
			Tool:         ToolMaven,
			Kind:         entity.DeployTypeBackend,
			ConfigFile:   "pom.xml",
			BuildCommand: "mvn clean package -Dmaven.test.skip=true",
			ArtifactDir:  "target",
		}, nil
	}

	if exists(filepath.Join(projectPath, "build.gradle")) || exists(filepath.Join(projectPath, "build.gradle.kts")) {
		return Detection{
			Tool:         ToolGradle,
			Kind:         entity.DeployTypeBackend,
			ConfigFile:   "build.gradle",
			BuildCommand: gradleCommand(projectPath) + " clean build -x test",
			ArtifactDir:  filepath.Join("build", "libs"),
		}, nil
	}

	if raw, err := os.ReadFile(filepath.Join(projectPath, "package.json")); err == nil {
		var pkg packageJSON
		if err := json.Unmarshal(raw, &pkg); err != nil {
			return Detection{}, fmt.Errorf("parse package.json: %w", err)
		}
		if d, ok := detectNpm(pkg); ok {
			return d, nil
		}
	}

	return Detection{}, ErrUnknownBuildType
}

func detectNpm(pkg packageJSON) (Detection, bool) {
	d := Detection{
		Tool:           ToolNpm,
		Kind:           entity.DeployTypeFrontend,
		ConfigFile:     "package.json",
		BuildCommand:   "npm run build",
		InstallCommand: "npm install",
		ArtifactDir:    "dist",
	}
	dep := func(name string) string {
		if v, ok := pkg.Dependencies[name]; ok {
			return v
		}
		return pkg.DevDependencies[name]
	}

	if isVue3(dep("vue")) {
		d.Framework = "vue3"
		if _, ok := pkg.Scripts["build:prod"]; ok {
			d.BuildCommand = "npm run build:prod"
		}
		return d, true
	}
	if dep("react") != "" {
		d.Framework = "react"
		return d, true
	}
	_, hasBuild := pkg.Scripts["build"]
	_, hasStart := pkg.Scripts["start"]
	if hasBuild || hasStart {
		d.Framework = "nodejs"
		if !hasBuild {
			d.BuildCommand = "npm run start"
		}
		return d, true
	}
	return Detection{}, false
}

func isVue3(version string) bool {
	v := strings.TrimLeft(version, "^~>=< ")
	return v == "3" || strings.HasPrefix(v, "3.")
}

func gradleCommand(projectPath string) string {
	if exists(filepath.Join(projectPath, "gradlew")) {
		return "./gradlew"
	}
	return "gradle"
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
