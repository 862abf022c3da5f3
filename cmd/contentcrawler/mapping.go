package main

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gbif/content-crawler-sub000/internal/config"
	"github.com/gbif/content-crawler-sub000/internal/contentstore"
	"github.com/gbif/content-crawler-sub000/internal/orchestrator"
)

func newMappingCmd(cfgFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mapping <content-type-id>",
		Short: "Prints the index mapping generated for a content type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			snapshot, err := contentstore.LoadFile(cfg.ContentStore.SnapshotPath)
			if err != nil {
				return fmt.Errorf("load content store: %w", err)
			}
			orch := orchestrator.New(snapshot, snapshot, nil, nil, nil, nil, nil, nil, nil, orchestratorConfig(cfg), nil)
			body, err := orch.Mapping(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			var out bytes.Buffer
			if err := json.Indent(&out, body, "", "  "); err != nil {
				return fmt.Errorf("format mapping: %w", err)
			}
			out.WriteByte('\n')
			_, err = cmd.OutOrStdout().Write(out.Bytes())
			return err
		},
	}
}
