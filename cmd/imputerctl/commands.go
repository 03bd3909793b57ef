package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/couchcryptid/wildfire-imputer/internal/adapter/gcs"
	"github.com/couchcryptid/wildfire-imputer/internal/artifact"
	"github.com/couchcryptid/wildfire-imputer/internal/domain"
	"github.com/couchcryptid/wildfire-imputer/internal/imputer"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

type gcsFlags struct {
	bucket      string
	object      string
	credentials string
}

func (f *gcsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.bucket, "bucket", os.Getenv("IMPUTER_GCS_BUCKET"), "GCS bucket holding the artifact")
	cmd.Flags().StringVar(&f.object, "object", "wildfire_ml_models/wildfire_imputer.json", "GCS object name")
	cmd.Flags().StringVar(&f.credentials, "credentials", os.Getenv("IMPUTER_GCS_CREDENTIALS"), "service account key file (default: application default credentials)")
}

func (f *gcsFlags) upload(ctx context.Context, src string, logger *slog.Logger) error {
	if f.bucket == "" {
		return errors.New("--bucket is required for upload")
	}
	store, err := gcs.NewStore(ctx, f.bucket, f.object, f.credentials, logger)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Upload(ctx, src)
}

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:          "imputerctl",
		Short:        "Train and query wildfire feature imputer artifacts",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	logger := func() *slog.Logger {
		return sharedobs.NewLogger(logLevel, "text")
	}

	root.AddCommand(
		newTrainCmd(logger),
		newImputeCmd(logger),
		newInspectCmd(),
		newUploadCmd(logger),
	)
	return root
}

func newTrainCmd(logger func() *slog.Logger) *cobra.Command {
	var (
		corpus string
		out    string
		upload bool
		remote gcsFlags
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Fit an artifact from a reference corpus (CSV, JSON, or JSON lines)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := artifact.LoadCorpus(corpus)
			if err != nil {
				return err
			}
			model, err := imputer.Train(c.Schema(), c.Records)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			if err := artifact.Save(out, model); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "trained on %d records, %d numeric features -> %s\n",
				model.Dataset.Len(), len(model.Dataset.Numeric()), out)

			if !upload {
				return nil
			}
			if err := remote.upload(cmd.Context(), out, logger()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded gs://%s/%s\n", remote.bucket, remote.object)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpus, "corpus", "", "reference corpus file")
	cmd.Flags().StringVar(&out, "out", "models/wildfire_imputer.json", "artifact output path")
	cmd.Flags().BoolVar(&upload, "upload", false, "upload the artifact to GCS after training")
	remote.register(cmd)
	_ = cmd.MarkFlagRequired("corpus")
	return cmd
}

func newImputeCmd(logger func() *slog.Logger) *cobra.Command {
	var (
		path      string
		input     string
		k         int
		roundRisk bool
		features  bool
	)

	cmd := &cobra.Command{
		Use:   "impute",
		Short: "Impute one partial record read from --input or stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if k < 0 {
				return errors.New("--k must not be negative")
			}
			model, err := artifact.Load(path)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var rec domain.Record
			if err := json.NewDecoder(r).Decode(&rec); err != nil {
				return fmt.Errorf("decode input: %w", err)
			}
			if rec == nil {
				rec = domain.Record{}
			}

			engine := imputer.New(model, imputer.Config{}, logger(), nil)
			imputed, err := engine.Impute(cmd.Context(), rec, imputer.Options{K: k, RoundRisk: roundRisk})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if features {
				return enc.Encode(domain.NewImputedEvent("", engine.Schema(), rec, imputed))
			}
			return enc.Encode(imputed)
		},
	}
	cmd.Flags().StringVar(&path, "artifact", "models/wildfire_imputer.json", "artifact path")
	cmd.Flags().StringVar(&input, "input", "", "JSON record file (default: stdin)")
	cmd.Flags().IntVar(&k, "k", 0, "neighbor count (default: engine default)")
	cmd.Flags().BoolVar(&roundRisk, "round-risk", false, "round the imputed risk to an integer")
	cmd.Flags().BoolVar(&features, "features", false, "print the full event with feature vector and sampling query")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var path string

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Print artifact metadata and schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			model, err := artifact.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "trained_at: %s\n", model.TrainedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "records:    %d\n", model.Dataset.Len())
			fmt.Fprintf(out, "numeric:    %d\n", len(model.Dataset.Numeric()))
			fmt.Fprintln(out, "columns:")
			for _, c := range model.Dataset.Schema().Columns {
				fmt.Fprintf(out, "  %-24s %s\n", c.Name, c.Kind)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "artifact", "models/wildfire_imputer.json", "artifact path")
	return cmd
}

func newUploadCmd(logger func() *slog.Logger) *cobra.Command {
	var (
		path   string
		remote gcsFlags
	)

	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload an existing artifact to GCS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := artifact.Load(path); err != nil {
				return fmt.Errorf("refusing to upload invalid artifact: %w", err)
			}
			if err := remote.upload(cmd.Context(), path, logger()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "uploaded gs://%s/%s\n", remote.bucket, remote.object)
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "artifact", "models/wildfire_imputer.json", "artifact path")
	remote.register(cmd)
	return cmd
}
