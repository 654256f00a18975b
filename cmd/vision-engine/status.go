package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var flagStatusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of a running engine's cameras",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&flagStatusAddr, "addr", "http://localhost:8090", "base URL of a running vision-engine serve instance")
}

type wireStatus struct {
	CameraID string `json:"cameraId"`
	Running  bool   `json:"running"`
	Health   struct {
		FPS            float64 `json:"fps"`
		Processed      uint64  `json:"processed"`
		PreviewClients int     `json:"previewClients"`
		Healthy        bool    `json:"healthy"`
	} `json:"health"`
	LastError string `json:"lastError,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(flagStatusAddr + "/status")
	if err != nil {
		return fmt.Errorf("reach %s: %w", flagStatusAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status endpoint returned %d", resp.StatusCode)
	}

	var statuses []wireStatus
	if err := json.NewDecoder(resp.Body).Decode(&statuses); err != nil {
		return fmt.Errorf("decode status response: %w", err)
	}

	rows := [][]string{{"Camera", "State", "FPS", "Processed", "Preview Clients", "Last Error"}}
	for _, s := range statuses {
		state := pterm.FgGreen.Sprint("running")
		if !s.Running {
			state = pterm.FgRed.Sprint("stopped")
		}
		rows = append(rows, []string{
			s.CameraID,
			state,
			fmt.Sprintf("%.1f", s.Health.FPS),
			fmt.Sprintf("%d", s.Health.Processed),
			fmt.Sprintf("%d", s.Health.PreviewClients),
			s.LastError,
		})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
