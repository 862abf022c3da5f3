package main

import (
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "contentcrawler",
		Short: "Projects a content store into Elasticsearch indices.",
		Long: `contentcrawler reads the content types and entries of a content store,
projects every entry into a flat search document and writes one Elasticsearch
index per content type. Linked entries of tag-target content types are tagged
with back-references as the crawl proceeds.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML/JSON/TOML); env vars use the CRAWLER_ prefix")

	cmd.AddCommand(newCrawlCmd(&cfgFile))
	cmd.AddCommand(newMappingCmd(&cfgFile))
	return cmd
}
