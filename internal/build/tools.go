package build

import (
	"os/exec"
	"strings"
)

// CheckTools reports which of the allowed build tools resolve on PATH. Project-local
// wrappers such as ./gradlew are skipped.
func CheckTools(allowed []string) map[string]bool {
	res := make(map[string]bool, len(allowed))
	for _, tool := range allowed {
		if strings.HasPrefix(tool, "./") {
			continue
		}
		_, err := exec.LookPath(tool)
		res[tool] = err == nil
	}
	return res
}
