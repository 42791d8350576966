package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/meigma/tarx"
	"github.com/meigma/tarx/index"
	"github.com/meigma/tarx/tarhttp"
)

func newCreateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <archive> <dir> [paths...]",
		Short: "Pack a directory tree into an archive",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			err = tarx.PackPaths(cmd.Context(), args[1], args[2:], f,
				tarx.PackWithLogger(logger()))
			if err != nil {
				return err
			}
			return f.Close()
		},
	}
	return cmd
}

func newExtractCommand() *cobra.Command {
	var preserveTimes, preserveOwner bool
	cmd := &cobra.Command{
		Use:   "extract <archive> <dir>",
		Short: "Unpack an archive under a directory",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return tarx.Unpack(cmd.Context(), args[1], f,
				tarx.UnpackWithLogger(logger()),
				tarx.UnpackWithPreserveTimes(preserveTimes),
				tarx.UnpackWithPreserveOwner(preserveOwner))
		},
	}
	cmd.Flags().BoolVar(&preserveTimes, "times", false, "restore modification times")
	cmd.Flags().BoolVar(&preserveOwner, "owner", false, "restore file ownership (requires privileges)")
	return cmd
}

func newListCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <archive>",
		Short: "List archive entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			idx, err := index.Scan(f)
			if err != nil {
				return err
			}
			for rec := range idx.Records() {
				switch rec.Kind {
				case tarx.KindSymlink, tarx.KindHardlink:
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %10d  %s -> %s\n",
						rec.Kind, rec.Size, rec.Path, rec.Linkname)
				default:
					fmt.Fprintf(cmd.OutOrStdout(), "%-8s %10d  %s\n",
						rec.Kind, rec.Size, rec.Path)
				}
			}
			return nil
		},
	}
	return cmd
}

func newIndexCommand() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "index <archive>",
		Short: "Build a sidecar index for an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			idx, err := index.Scan(f)
			if err != nil {
				return err
			}
			if out == "" {
				out = args[0] + ".idx"
			}
			if err := idx.WriteFile(out); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries, %d bytes, %s\n",
				out, idx.Len(), idx.ArchiveSize(), idx.ArchiveDigest())
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "index file path (default <archive>.idx)")
	return cmd
}

func newVerifyCommand() *cobra.Command {
	var workers int
	cmd := &cobra.Command{
		Use:   "verify <archive> <index>",
		Short: "Verify archive content against a sidecar index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := index.ReadFile(args[1])
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if err := index.Verify(cmd.Context(), f, idx,
				index.VerifyWithWorkers(workers)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d entries ok\n", args[0], idx.Len())
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "verification workers (0 = per CPU)")
	return cmd
}

func newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve <dir>",
		Short: "Serve directory subtrees as tar archives over HTTP",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handler := tarhttp.NewHandler(args[0], tarhttp.WithLogger(logger()))
			logger().Info("listening", "addr", addr, "dir", args[0])
			return http.ListenAndServe(addr, handler)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
