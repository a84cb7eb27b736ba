package main

import (
	"fmt"
	"path/filepath"

	"github.com/cvbank/cvbank-backend/internal/cv/domain"
	"github.com/cvbank/cvbank-backend/internal/cv/extractor"
	"github.com/cvbank/cvbank-backend/internal/cv/storage"
	"github.com/spf13/cobra"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Print the text the enrichment pipeline would see for a local CV file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return err
		}

		mediaType := domain.ResolveMediaType(path, "")
		if !domain.IsSupportedMediaType(mediaType) {
			return fmt.Errorf("unsupported file type: %s", filepath.Ext(path))
		}

		fs, err := storage.NewFilesystem(filepath.Dir(path), log)
		if err != nil {
			return err
		}

		out, err := extractor.NewDefault(fs, log).Extract(cmd.Context(), storage.FileURI(path), mediaType)
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "parser: %s\npages: %d\ncharacters: %d\n\n", out.Parser, out.PageCount, len(out.Text))
		fmt.Fprintln(w, out.Text)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(extractCmd)
}
