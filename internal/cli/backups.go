package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/sundew/sfimport/internal/config"
	"github.com/sundew/sfimport/internal/stager"
)

// BackupsOptions holds flags for the backups command.
type BackupsOptions struct {
	*RootOptions
	Prune bool
}

// NewBackupsCommand creates the backups command.
func NewBackupsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BackupsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List retained batch backups",
		Long: `List the batch directories retained under the backup root, oldest
first. With --prune, enforce the retention cap immediately instead of
waiting for the next archival.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showBackups(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Prune, "prune", false, "enforce the retention cap now")

	return cmd
}

// backupView is the JSON shape of one retained backup.
type backupView struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	ArchivedAt string `json:"archived_at"`
}

func showBackups(opts *BackupsOptions, cmd *cobra.Command) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load settings", err)
	}
	if cfg.Backup.Root == "" {
		return NewExitError(ExitCommandError, "settings: backup.root is not configured")
	}

	archiver := stager.NewArchiver(cfg.Backup.Root, cfg.Backup.Limit)

	if opts.Prune {
		if err := archiver.Prune(); err != nil {
			return WrapExitError(ExitCommandError, "failed to prune backups", err)
		}
	}

	backups, err := archiver.List()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list backups", err)
	}

	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if formatter.Format == "json" {
		views := []backupView{}
		for _, b := range backups {
			views = append(views, backupView{
				Name:       b.Name,
				Path:       b.Path,
				ArchivedAt: b.ArchivedAt.UTC().Format(time.RFC3339),
			})
		}
		return formatter.JSON(views)
	}

	if len(backups) == 0 {
		formatter.Textf("no backups retained\n")
		return nil
	}
	for _, b := range backups {
		formatter.Textf("%s  %s\n", b.ArchivedAt.UTC().Format(time.RFC3339), b.Name)
	}
	return nil
}
