package hook

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/yz4230/shipyard/internal/utils"
)

var postReceiveFlags struct {
	api       string
	token     string
	projectID string
	serverID  string
	branch    string
}

type refUpdate struct {
	Old, New, Ref string
}

var postReceiveCmd = &cobra.Command{
	Use:           "post-receive",
	Short:         "Start a deployment when the deploy branch is pushed. Not intended to be run manually.",
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := postReceiveFlags
		target := "refs/heads/" + f.branch

		updates, err := parseRefUpdates(os.Stdin)
		if err != nil {
			log.Error().Err(err).Msg("read stdin")
			return err
		}
		var hit *refUpdate
		for i := range updates {
			if updates[i].Ref == target {
				hit = &updates[i]
				break
			}
		}
		if hit == nil {
			log.Info().Str("ref", target).Msg("no deployment needed")
			return nil
		}

		log.Info().Str("old_sha", hit.Old).Str("new_sha", hit.New).Str("ref", hit.Ref).Msg("starting deployment...")
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()
		id, err := triggerDeployment(ctx, http.DefaultClient, f.api, f.token, deployRequest{
			ProjectID:   f.projectID,
			ServerID:    f.serverID,
			Branch:      f.branch,
			Description: "push " + hit.New,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to start deployment")
			return err
		}
		log.Info().Str("deployment_id", id).Msg("deployment started")
		return nil
	},
}

func parseRefUpdates(r io.Reader) ([]refUpdate, error) {
	var res []refUpdate
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		parts := strings.Fields(line)
		if len(parts) != 3 {
			log.Error().Str("line", line).Msg("invalid input line")
			continue
		}
		res = append(res, refUpdate{Old: parts[0], New: parts[1], Ref: parts[2]})
	}
	return res, s.Err()
}

type deployRequest struct {
	ProjectID   string `json:"project_id"`
	ServerID    string `json:"server_id"`
	Branch      string `json:"branch"`
	Description string `json:"description"`
}

// triggerDeployment asks a running shipyard API to start a deployment and returns its id.
func triggerDeployment(ctx context.Context, client *http.Client, api, token string, body deployRequest) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	url := utils.EnsureSuffix(api, "/") + "api/deployments"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("%s: %s %s", url, res.Status, strings.TrimSpace(string(msg)))
	}
	var out struct {
		DeploymentID string `json:"deployment_id"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.DeploymentID, nil
}

func init() {
	fl := postReceiveCmd.Flags()
	fl.StringVar(&postReceiveFlags.api, "api", "http://localhost:8080", "Base URL of the shipyard API")
	fl.StringVar(&postReceiveFlags.token, "token", os.Getenv("SHIPYARD_TOKEN"), "API token (default $SHIPYARD_TOKEN)")
	fl.StringVar(&postReceiveFlags.projectID, "project", "", "Project id to deploy")
	fl.StringVar(&postReceiveFlags.serverID, "server", "", "Server id to deploy to")
	fl.StringVar(&postReceiveFlags.branch, "branch", "main", "Branch whose pushes trigger a deployment")
	_ = postReceiveCmd.MarkFlagRequired("project")
	_ = postReceiveCmd.MarkFlagRequired("server")
}
