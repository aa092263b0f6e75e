package main

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"phoneprov/config"
	"phoneprov/internal/catalog"
	"phoneprov/internal/logs"
	"phoneprov/internal/repo"
	"phoneprov/server"
)

var (
	configFile string
	actor      string
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "phoneprov",
		Short:        "VoIP phone provisioning server",
		Long:         `Generates per-device phone configs from templates and serves the staged provisioning protocol`,
		SilenceUsage: true,
		RunE:         runServe,
	}
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file path (overrides CONFIG_FILE)")

	rootCmd.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP server (default)",
			RunE:  runServe,
		},
		&cobra.Command{
			Use:   "import <catalog.yaml>",
			Short: "Import device types, templates and variables from YAML",
			Args:  cobra.ExactArgs(1),
			RunE:  runImport,
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Apply retention policy once and exit",
			RunE:  runCleanup,
		},
		versionsCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFile != "" {
		if err := os.Setenv("CONFIG_FILE", configFile); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app := &server.App{}
	if err := app.Initialize(cfg); err != nil {
		logs.Logger.Errorf("init: %v", err)
		return err
	}
	return app.Run()
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	server.InitLogging(cfg)

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	cat, err := catalog.Parse(f)
	if err != nil {
		return err
	}
	d, err := server.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	sum, err := catalog.NewImporter(d).Import(cmd.Context(), cat)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported: %d device types, %d templates, %d variables, %d global variables\n",
		sum.DeviceTypes, sum.Templates, sum.Variables, sum.GlobalVariables)
	return nil
}

func runCleanup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	server.InitLogging(cfg)

	d, err := server.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	rep, err := server.RetentionJob(cfg, d).RunOnce(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted: %d versions, %d log entries\n", rep.VersionsDeleted, rep.LogsDeleted)
	return nil
}

func versionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "versions",
		Short: "Inspect and roll back config versions",
	}
	rollback := &cobra.Command{
		Use:   "rollback <version_id>",
		Short: "Create a new active version with the content of an older one",
		Args:  cobra.ExactArgs(1),
		RunE:  runRollback,
	}
	rollback.Flags().StringVar(&actor, "actor", "cli", "Author recorded on the new version")
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list <target_id> <device_type_id>",
			Short: "List versions of a scope, newest first",
			Args:  cobra.ExactArgs(2),
			RunE:  runListVersions,
		},
		rollback,
	)
	return cmd
}

func parseID(raw, name string) (uint, error) {
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%s must be a positive number, got %q", name, raw)
	}
	return uint(n), nil
}

func runListVersions(cmd *cobra.Command, args []string) error {
	target, err := parseID(args[0], "target_id")
	if err != nil {
		return err
	}
	devType, err := parseID(args[1], "device_type_id")
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	server.InitLogging(cfg)
	d, err := server.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	views, err := server.VersionService(d).List(cmd.Context(), repo.Scope{TargetID: target, DeviceTypeID: devType})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tACTIVE\tDOWNLOADS\tCREATED\tBY\tCHANGELOG")
	for _, v := range views {
		fmt.Fprintf(tw, "%d\t%d\t%t\t%d\t%s\t%s\t%s\n",
			v.ID, v.VersionNumber, v.IsActive, v.Downloads, v.CreatedAt.Format("2006-01-02 15:04"), v.CreatedBy, v.Changelog)
	}
	return tw.Flush()
}

func runRollback(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "version_id")
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	server.InitLogging(cfg)
	d, err := server.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	v, err := server.VersionService(d).Rollback(cmd.Context(), id, actor)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created version %d (id %d): %s\n", v.VersionNumber, v.ID, v.Changelog)
	return nil
}
