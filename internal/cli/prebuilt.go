package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/cbuildbot/internal/logging"
	"github.com/kingrea/cbuildbot/internal/prebuilt"
)

type uploadOptions struct {
	buildroot   string
	board       string
	uploadURL   string
	filterFile  string
	versionFile string
	credentials string
	jobs        int
	dryRun      bool
}

// NewPrebuiltCommand builds the `prebuilt` tool that publishes binary
// packages and records their version.
func NewPrebuiltCommand(env Env) *cobra.Command {
	env = env.withDefaults()
	cmd := &cobra.Command{
		Use:           "prebuilt",
		Short:         "Upload prebuilt binary packages and track their versions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(env.Stdout)
	cmd.SetErr(env.Stderr)
	cmd.SetFlagErrorFunc(flagErrors)
	cmd.AddCommand(newUploadCommand(env), newSetVersionCommand(env))
	return cmd
}

func newUploadCommand(env Env) *cobra.Command {
	opts := &uploadOptions{}
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload host or board packages under a gs:// prefix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runUpload(cmd, env, opts)
		},
	}
	cmd.SetFlagErrorFunc(flagErrors)
	flags := cmd.Flags()
	flags.StringVarP(&opts.buildroot, "buildroot", "r", ".", "root directory of the build")
	flags.StringVarP(&opts.board, "board", "b", "", "board whose packages to upload (default: host packages)")
	flags.StringVarP(&opts.uploadURL, "upload", "u", "", "gs:// prefix to upload under")
	flags.StringVar(&opts.filterFile, "filters", "", "file of path substrings to skip, one per line")
	flags.StringVar(&opts.versionFile, "version-file", "", "record the uploaded version in this file")
	flags.StringVar(&opts.credentials, "credentials", "", "service account JSON (default: application default credentials)")
	flags.IntVarP(&opts.jobs, "jobs", "j", prebuilt.DefaultJobs, "parallel uploads")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "print the upload plan without uploading")
	return cmd
}

func runUpload(cmd *cobra.Command, env Env, opts *uploadOptions) error {
	if !strings.HasPrefix(opts.uploadURL, "gs://") {
		return usagef("--upload must be a gs:// URL")
	}
	if opts.jobs < 1 {
		return usagef("--jobs must be at least 1")
	}
	ctx := cmd.Context()
	logger, err := logging.New("", env.Stderr)
	if err != nil {
		return err
	}

	filter := prebuilt.NewFilter()
	if opts.filterFile != "" {
		filter, err = prebuilt.LoadFilterFile(opts.filterFile)
		if err != nil {
			return err
		}
	}

	target := prebuilt.Target{Board: opts.board}
	version := prebuilt.NewVersion(env.Clock())
	dict, err := prebuilt.GenerateUploadDict(
		prebuilt.DirLister{},
		target.LocalDir(opts.buildroot),
		target.RemotePrefix(opts.uploadURL, version),
		target.StripPath(opts.buildroot),
	)
	if err != nil {
		return err
	}

	if opts.dryRun {
		locals := make([]string, 0, len(dict))
		for local := range dict {
			locals = append(locals, local)
		}
		sort.Strings(locals)
		for _, local := range locals {
			if filter.ShouldFilterPackage(local) {
				continue
			}
			fmt.Fprintf(env.Stdout, "%s -> %s\n", local, dict[local])
		}
		return nil
	}

	store := env.Store
	if store == nil {
		gcs, err := prebuilt.NewGCSStore(ctx, opts.credentials)
		if err != nil {
			return err
		}
		defer gcs.Close()
		store = gcs
	}
	uploader, err := prebuilt.NewUploader(store,
		prebuilt.WithFilter(filter),
		prebuilt.WithJobs(opts.jobs),
		prebuilt.WithUploadLogger(logger),
	)
	if err != nil {
		return err
	}
	report, err := uploader.Upload(ctx, dict)
	if err != nil {
		return err
	}
	logger.Printf("Uploaded %d %s packages (%d filtered) as version %s",
		len(report.Uploaded), target, len(report.Filtered), version)

	if opts.versionFile != "" {
		if err := prebuilt.UpdateLocalFile(opts.versionFile, target.VersionKey(), version); err != nil {
			return err
		}
	}
	fmt.Fprintln(env.Stdout, version)
	return nil
}

func newSetVersionCommand(env Env) *cobra.Command {
	var file, key, value string
	cmd := &cobra.Command{
		Use:   "set-version",
		Short: "Update or append one key in a version file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if file == "" || key == "" || value == "" {
				return usagef("--file, --key and --value are required")
			}
			if err := prebuilt.UpdateLocalFile(file, key, value); err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "%s %s\n", key, value)
			return nil
		},
	}
	cmd.SetFlagErrorFunc(flagErrors)
	cmd.Flags().StringVar(&file, "file", "", "version file to update")
	cmd.Flags().StringVar(&key, "key", "", "key to set")
	cmd.Flags().StringVar(&value, "value", "", "value to store")
	return cmd
}
