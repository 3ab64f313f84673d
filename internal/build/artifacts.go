package build

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Artifact struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Kind    string    `json:"kind"`
	ModTime time.Time `json:"mod_time"`
}

// FindArtifacts lists the build outputs of a project: jars for backends, the output
// directory for frontends.
func FindArtifacts(projectPath string, d Detection) ([]Artifact, error) {
	dir := filepath.Join(projectPath, d.ArtifactDir)
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if d.Tool == ToolNpm {
		size, err := DirSize(dir)
		if err != nil {
			return nil, err
		}
		return []Artifact{{Name: filepath.Base(dir), Path: dir, Size: size, Kind: "directory", ModTime: info.ModTime()}}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var res []Artifact
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".jar") || strings.Contains(name, "sources") || strings.Contains(name, "javadoc") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			return nil, err
		}
		res = append(res, Artifact{Name: name, Path: filepath.Join(dir, name), Size: fi.Size(), Kind: "jar", ModTime: fi.ModTime()})
	}
	return res, nil
}

// DirSize sums the sizes of the regular files under dir.
func DirSize(dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			fi, err := d.Info()
			if err != nil {
				return err
			}
			total += fi.Size()
		}
		return nil
	})
	return total, err
}

// CleanCommand returns the command that removes build outputs, or an empty string when
// outputs are removed directly (see Clean).
func CleanCommand(projectPath string, d Detection) string {
	switch d.Tool {
	case ToolMaven:
		return "mvn clean"
	case ToolGradle:
		return gradleCommand(projectPath) + " clean"
	}
	return ""
}

// RemoveArtifactDir deletes the artifact directory of a project.
func RemoveArtifactDir(projectPath string, d Detection) error {
	if d.ArtifactDir == "" {
		return fmt.Errorf("no artifact directory for %s", d.Tool)
	}
	return os.RemoveAll(filepath.Join(projectPath, d.ArtifactDir))
}

// Clean removes the build outputs of a project, through the build tool when it has a
// clean goal.
func (s *Supervisor) Clean(ctx context.Context, projectPath string, d Detection, onLog func(LogChunk)) error {
	command := CleanCommand(projectPath, d)
	if command == "" {
		return RemoveArtifactDir(projectPath, d)
	}
	out := s.Run(ctx, Request{Command: command, Dir: projectPath, Phase: PhaseClean, OnLog: onLog})
	return out.Err()
}
