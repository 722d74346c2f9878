package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/colview/internal/output"
	"github.com/ajitpratap0/colview/pkg/errors"
	"github.com/ajitpratap0/colview/pkg/formats"
	"github.com/ajitpratap0/colview/pkg/logger"
)

func newMetadataCommand(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "metadata FILE...",
		Short: "Show file metadata",
		Long: `Show the footer summary of each file: format, compression, row count,
row groups (Parquet) or stripes (ORC), writer and key/value metadata.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(flags, globalFlagSet(cmd)); err != nil {
				return err
			}
			return runMetadata(cmd.OutOrStdout(), args, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "text", "Output format (text, json, yaml)")
	return cmd
}

func runMetadata(w io.Writer, files []string, format string) error {
	log := logger.Get()
	all := make([]*formats.Metadata, 0, len(files))
	for i, file := range files {
		md, err := formats.ReadMetadata(file)
		if err != nil {
			return err
		}
		log.Debug("read metadata", zap.String("file", file), zap.String("format", string(md.Format)))

		switch format {
		case "text":
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := output.WriteFileHeader(w, file); err != nil {
				return err
			}
			if err := output.WriteMetadataText(w, md); err != nil {
				return err
			}
		case "json", "yaml":
			all = append(all, md)
		default:
			return errors.Newf(errors.ErrorTypeValidation, "unknown metadata format %q, use text, json or yaml", format)
		}
	}
	if format == "text" {
		return nil
	}
	return writeStructured(w, format, all)
}

// writeStructured writes a single document for one file and a list for
// several
func writeStructured[T any](w io.Writer, format string, items []T) error {
	var v any = items
	if len(items) == 1 {
		v = items[0]
	}
	if format == "yaml" {
		return output.WriteYAML(w, v)
	}
	return output.WriteJSON(w, v)
}

// schemaDocument is the json rendering of one file schema
type schemaDocument struct {
	File   string         `json:"file" yaml:"file"`
	Format formats.Format `json:"format" yaml:"format"`
	Fields any            `json:"fields" yaml:"fields"`
}

func newSchemaCommand(flags *globalFlags) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "schema FILE...",
		Short: "Show file schema",
		Long: `Show the schema of each file. raw prints the format library's own
schema dump, tree draws the normalized schema, json emits it as a document.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := setup(flags, globalFlagSet(cmd)); err != nil {
				return err
			}
			return runSchema(cmd, args, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "tree", "Schema format (raw, tree, json)")
	return cmd
}

func runSchema(cmd *cobra.Command, files []string, format string) error {
	w := cmd.OutOrStdout()
	var docs []schemaDocument
	for i, file := range files {
		switch format {
		case "raw":
			raw, err := formats.RawSchema(file)
			if err != nil {
				return err
			}
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := output.WriteFileHeader(w, file); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, raw); err != nil {
				return err
			}
		case "tree", "json":
			schema, ff, err := formats.ReadSchema(cmd.Context(), file)
			if err != nil {
				return err
			}
			if format == "json" {
				docs = append(docs, schemaDocument{File: file, Format: ff, Fields: schema.Fields})
				continue
			}
			if i > 0 {
				fmt.Fprintln(w)
			}
			if err := output.WriteFileHeader(w, file); err != nil {
				return err
			}
			if err := output.WriteSchemaTree(w, schema, string(ff)); err != nil {
				return err
			}
		default:
			return errors.Newf(errors.ErrorTypeValidation, "unknown schema format %q, use raw, tree or json", format)
		}
	}
	if format == "json" {
		return writeStructured(w, "json", docs)
	}
	return nil
}
