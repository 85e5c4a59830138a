package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/clockwerk-io/clockwerk/internal/backup"
	"github.com/clockwerk-io/clockwerk/internal/config"
	"github.com/clockwerk-io/clockwerk/internal/mcp"
	"github.com/clockwerk-io/clockwerk/internal/store"
)

const version = "0.4.0"

const defaultRetain = 14

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	var err error
	switch os.Args[1] {
	case "backup":
		err = runBackup(os.Args[2:])
	case "backups":
		err = runBackupList(os.Args[2:])
	case "restore":
		err = runRestore(os.Args[2:])
	case "rm-backup":
		err = runBackupDelete(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	case "serve-mcp":
		err = runServeMCP(os.Args[2:])
	case "version", "--version", "-v":
		fmt.Printf("clockwerk %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds the flags shared by every subcommand.
type cliFlags struct {
	opts config.ResolveOptions
	args []string
}

func parseFlags(args []string) (cliFlags, error) {
	var out cliFlags
	for i := 0; i < len(args); i++ {
		arg := args[i]
		next := func() (string, error) {
			i++
			if i >= len(args) {
				return "", fmt.Errorf("flag %s requires a value", arg)
			}
			return args[i], nil
		}

		var err error
		switch {
		case arg == "--db":
			out.opts.CLIDBPath, err = next()
		case arg == "--backup-dir":
			out.opts.CLIBackupDir, err = next()
		case arg == "--schedule":
			out.opts.CLISchedule, err = next()
		case arg == "--retain":
			out.opts.CLIRetain, err = next()
		case arg == "--config":
			out.opts.ConfigPath, err = next()
		case strings.HasPrefix(arg, "-"):
			return out, fmt.Errorf("unknown flag: %s", arg)
		default:
			out.args = append(out.args, arg)
		}
		if err != nil {
			return out, err
		}
	}
	return out, nil
}

// openStore resolves configuration and opens the live store, returning the
// store together with its backup directory.
func openStore(flags cliFlags) (*store.Store, string, error) {
	cfg, err := config.ResolveConfig(flags.opts)
	if err != nil {
		return nil, "", err
	}

	backupDir := cfg.BackupDir.Value
	if backupDir == "" {
		backupDir = store.ExpandPath(store.DefaultBackupDir)
	}

	st, err := store.Open(store.Config{
		DBPath:    cfg.DBPath.Value,
		BackupDir: backupDir,
	})
	if err != nil {
		return nil, "", fmt.Errorf("opening store: %w", err)
	}
	return st, backupDir, nil
}

func runBackup(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	name := ""
	if len(flags.args) > 0 {
		name = flags.args[0]
	}

	st, dir, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	snap, err := backup.NewManager(st, dir).Create(context.Background(), name)
	if err != nil {
		return err
	}
	fmt.Printf("Created %s (%s)\n", snap.FileName, humanize.Bytes(uint64(snap.SizeBytes)))
	return nil
}

func runBackupList(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	st, dir, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	snapshots, err := backup.NewManager(st, dir).List(context.Background())
	if err != nil {
		return err
	}
	if len(snapshots) == 0 {
		fmt.Println("No backups found.")
		return nil
	}
	for _, snap := range snapshots {
		fmt.Printf("%-48s %10s  %s\n",
			snap.FileName,
			humanize.Bytes(uint64(snap.SizeBytes)),
			humanize.Time(snap.CreatedAt),
		)
	}
	return nil
}

func runRestore(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(flags.args) != 1 {
		return fmt.Errorf("usage: clockwerk restore <backup-file>")
	}

	st, dir, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := backup.NewRestorer(st, dir).Restore(context.Background(), flags.args[0]); err != nil {
		return err
	}
	fmt.Printf("Restored from %s\n", flags.args[0])
	return nil
}

func runBackupDelete(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}
	if len(flags.args) != 1 {
		return fmt.Errorf("usage: clockwerk rm-backup <backup-file>")
	}

	st, dir, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := backup.NewManager(st, dir).Delete(context.Background(), flags.args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", flags.args[0])
	return nil
}

func runStats(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	st, _, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(context.Background())
	if err != nil {
		return err
	}
	fmt.Printf("Store: %s\n", st.Path())
	fmt.Printf("  Users:        %d\n", stats.UserCount)
	fmt.Printf("  Projects:     %d\n", stats.ProjectCount)
	fmt.Printf("  Tasks:        %d\n", stats.TaskCount)
	fmt.Printf("  Time entries: %d\n", stats.TimeEntryCount)
	fmt.Printf("  Size:         %s\n", humanize.Bytes(uint64(stats.DBSizeBytes)))
	return nil
}

func runServeMCP(args []string) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	cfg, err := config.ResolveConfig(flags.opts)
	if err != nil {
		return err
	}

	st, dir, err := openStore(flags)
	if err != nil {
		return err
	}
	defer st.Close()

	manager := backup.NewManager(st, dir)

	scheduler := backup.NewScheduler(manager, backup.SchedulerConfig{
		Schedule: cfg.BackupSchedule.Value,
		Retain:   cfg.RetainCount(defaultRetain),
	})
	if err := scheduler.SetupJobs(); err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := mcp.NewServer(mcp.ServerConfig{
		Store:    st,
		Manager:  manager,
		Restorer: backup.NewRestorer(st, dir),
		Version:  version,
	})
	return mcp.ServeStdio(srv)
}

func printUsage() {
	fmt.Printf(`clockwerk %s - task and time tracking datastore

Usage:
  clockwerk <command> [arguments]

Commands:
  backup [name]       Create a backup (generated name when omitted)
  backups             List backups, newest first
  restore <name>      Restore the live store from a backup
  rm-backup <name>    Delete a backup
  stats               Show store statistics
  serve-mcp           Serve admin tools over MCP stdio (runs scheduler)
  version             Print version

Flags:
  --db <path>           Store file path (env: CLOCKWERK_DB)
  --backup-dir <path>   Backup directory (env: CLOCKWERK_BACKUP_DIR)
  --schedule <cron>     Automatic backup schedule (env: CLOCKWERK_BACKUP_SCHEDULE)
  --retain <n>          Backups to keep when pruning (env: CLOCKWERK_BACKUP_RETAIN)
  --config <path>       Config file (default ~/.clockwerk/config.yaml)
`, version)
}
