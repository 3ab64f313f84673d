package build

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCommand(t *testing.T) {
	cmd, err := ParseCommand("mvn clean package -Dmaven.test.skip=true", DefaultAllowedTools)
	require.NoError(t, err)
	assert.Equal(t, "mvn", cmd.Name)
	assert.Equal(t, []string{"clean", "package", "-Dmaven.test.skip=true"}, cmd.Args)

	cmd, err = ParseCommand("  npm   run build:prod ", DefaultAllowedTools)
	require.NoError(t, err)
	assert.Equal(t, "npm run build:prod", cmd.String())
}

func TestParseCommand_Rejects(t *testing.T) {
	for _, line := range []string{
		"",
		"rm -rf /",
		"npm run build; rm -rf /",
		"npm run build && curl evil",
		"npm run $(whoami)",
		"bash -c 'npm run build'",
	} {
		_, err := ParseCommand(line, DefaultAllowedTools)
		assert.Error(t, err, line)
	}
}

func TestExplicitCommand(t *testing.T) {
	assert.Equal(t, "npm run build:prod", ExplicitCommand("build:prod", DefaultAllowedTools))
	assert.Equal(t, "yarn build", ExplicitCommand("yarn build", DefaultAllowedTools))
	assert.Equal(t, "./gradlew bootJar", ExplicitCommand(" ./gradlew bootJar ", DefaultAllowedTools))
}
