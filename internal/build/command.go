package build

import (
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// DefaultAllowedTools are the programs a build command may start.
var DefaultAllowedTools = []string{"mvn", "./mvnw", "gradle", "./gradlew", "npm", "npx", "yarn", "pnpm"}

var ErrEmptyCommand = errors.New("empty build command")

// Command is an argument vector executed without a shell.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// ParseCommand splits line on whitespace and validates the program against allowed.
// Shell metacharacters are rejected since nothing is interpreted by a shell.
func ParseCommand(line string, allowed []string) (Command, error) {
	if i := strings.IndexAny(line, "|&;<>()$`\\\"'*?[]#~{}\n"); i >= 0 {
		return Command{}, fmt.Errorf("build command %q: unsupported character %q", line, line[i])
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}
	if !lo.Contains(allowed, fields[0]) {
		return Command{}, fmt.Errorf("build command %q: %q is not an allowed build tool", line, fields[0])
	}
	return Command{Name: fields[0], Args: fields[1:]}, nil
}

// ExplicitCommand resolves a user supplied build command. A line starting with an allowed
// tool is used as is; anything else names an npm script.
func ExplicitCommand(cmdline string, allowed []string) string {
	cmdline = strings.TrimSpace(cmdline)
	fields := strings.Fields(cmdline)
	if len(fields) > 0 && lo.Contains(allowed, fields[0]) {
		return cmdline
	}
	return "npm run " + cmdline
}
