package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/moveoone/moveo/internal/prediction"
)

// modelFile is the JSON document accepted by "model put".
type modelFile struct {
	Name             string             `json:"name"`
	MinEvents        int                `json:"min_events"`
	Threshold        float64            `json:"threshold"`
	Bias             float64            `json:"bias"`
	Weights          map[string]float64 `json:"weights"`
	ConditionalEvent string             `json:"conditional_event"`
}

func newModelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Register and list prediction models",
	}
	cmd.AddCommand(newModelPutCmd(), newModelListCmd())
	return cmd
}

func readModelFile(path string) (*modelFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &mf, nil
}

func newModelPutCmd() *cobra.Command {
	var appID, modelID, path string
	cmd := &cobra.Command{
		Use:   "put",
		Short: "Create or replace a model from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			mf, err := readModelFile(path)
			if err != nil {
				return err
			}

			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			model := &prediction.Model{
				AppID:            appID,
				ID:               modelID,
				Name:             mf.Name,
				MinEvents:        mf.MinEvents,
				Threshold:        mf.Threshold,
				Bias:             mf.Bias,
				Weights:          mf.Weights,
				ConditionalEvent: mf.ConditionalEvent,
			}
			if err := prediction.New(db.DB(), "", nil, quietLogger()).SaveModel(cmd.Context(), model); err != nil {
				return fmt.Errorf("save model: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved model %s for %s\n", modelID, appID)
			return nil
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "owning application")
	cmd.Flags().StringVar(&modelID, "id", "", "model id used in /api/models/{id}/predict")
	cmd.Flags().StringVarP(&path, "file", "f", "", "model JSON file")
	for _, f := range []string{"app-id", "id", "file"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func newModelListCmd() *cobra.Command {
	var appID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the models of an app",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			models, err := prediction.New(db.DB(), "", nil, quietLogger()).ListModels(cmd.Context(), appID)
			if err != nil {
				return fmt.Errorf("list models: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tMIN_EVENTS\tTHRESHOLD\tFEATURES")
			for _, m := range models {
				fmt.Fprintf(w, "%s\t%s\t%d\t%.2f\t%d\n", m.ID, m.Name, m.MinEvents, m.Threshold, len(m.Weights))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&appID, "app-id", "", "application to list")
	_ = cmd.MarkFlagRequired("app-id")
	return cmd
}
