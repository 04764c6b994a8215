// Command hexagondb-server runs the in-memory key/value server: a cobra CLI
// wrapping configuration loading, startup, and graceful shutdown.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hexagondb/internal/config"
	"hexagondb/internal/metrics"
	"hexagondb/internal/server"
)

var (
	version    = "1.0.0" // set during build with -ldflags
	configPath string
)

var rootCmd = &cobra.Command{
	Use:     "hexagondb-server",
	Short:   "hexagondb - an in-memory, Redis-wire-compatible key/value server",
	Version: version,
	RunE:    runServer,
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfigWithFlagOverrides(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Printf("Starting hexagondb v%s\n", version)
	fmt.Printf("Listening on %s:%d\n", cfg.Server.BindAddress, cfg.Server.Port)
	fmt.Printf("Max connections: %d\n", cfg.Server.MaxConnections)
	if cfg.Persistence.AofEnabled {
		fmt.Printf("AOF: enabled (%s, fsync=%s)\n", cfg.Persistence.AofPath, cfg.Persistence.AofFsync)
	}
	if cfg.Persistence.RdbEnabled {
		fmt.Printf("RDB: enabled (%s, every %ds or %d+ changes)\n",
			cfg.Persistence.RdbPath, cfg.Persistence.RdbSaveInterval, cfg.Persistence.RdbMinChanges)
	}
	fmt.Println(strings.Repeat("=", 51))

	srv := server.New(cfg, metrics.NewMemorySink())

	if err := config.Watch(configPath, func(reloaded *config.Config) {
		log.Printf("config: change detected on disk, reloading")
		srv.ReloadConfig(reloaded)
	}); err != nil {
		log.Printf("config: file watch not started: %v", err)
	}

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			reloaded, err := loadConfigWithFlagOverrides(cmd)
			if err != nil {
				log.Printf("config: reload on SIGHUP failed: %v", err)
				continue
			}
			srv.ReloadConfig(reloaded)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server exited: %w", err)
		}
		return nil
	case sig := <-sigCh:
		fmt.Printf("\nReceived %s, shutting down...\n", sig)
		if err := srv.Shutdown(10 * time.Second); err != nil {
			log.Printf("shutdown: %v", err)
		}
		fmt.Println("hexagondb stopped")
		return nil
	}
}

// loadConfigWithFlagOverrides loads the TOML config (if present) and applies
// any explicitly-set command-line flags on top, so a flag always wins over
// the file and the file always wins over the built-in default.
func loadConfigWithFlagOverrides(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("bind") {
		cfg.Server.BindAddress, _ = flags.GetString("bind")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("max-connections") {
		cfg.Server.MaxConnections, _ = flags.GetInt("max-connections")
	}
	if flags.Changed("timeout") {
		d, _ := flags.GetDuration("timeout")
		cfg.Server.TimeoutSeconds = int(d.Seconds())
	}
	if flags.Changed("password") {
		cfg.Security.Password, _ = flags.GetString("password")
	}
	if flags.Changed("aof") {
		cfg.Persistence.AofEnabled, _ = flags.GetBool("aof")
	}
	if flags.Changed("rdb") {
		cfg.Persistence.RdbEnabled, _ = flags.GetBool("rdb")
	}
	return cfg, nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigWithFlagOverrides(cmd)
		if err != nil {
			return err
		}
		fmt.Println("hexagondb configuration:")
		fmt.Println(strings.Repeat("=", 31))
		fmt.Printf("Bind address: %s\n", cfg.Server.BindAddress)
		fmt.Printf("Port: %d\n", cfg.Server.Port)
		fmt.Printf("Max connections: %d\n", cfg.Server.MaxConnections)
		fmt.Printf("Timeout (s): %d\n", cfg.Server.TimeoutSeconds)
		fmt.Printf("AOF enabled: %t (%s, fsync=%s)\n", cfg.Persistence.AofEnabled, cfg.Persistence.AofPath, cfg.Persistence.AofFsync)
		fmt.Printf("RDB enabled: %t (%s, interval=%ds, min-changes=%d, backups=%d)\n",
			cfg.Persistence.RdbEnabled, cfg.Persistence.RdbPath, cfg.Persistence.RdbSaveInterval,
			cfg.Persistence.RdbMinChanges, cfg.Persistence.RdbBackupCount)
		fmt.Printf("Max memory: %s\n", cfg.Memory.MaxMemory)
		fmt.Printf("Authentication required: %t\n", cfg.Security.Password != "")
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("hexagondb-server v%s\n", version)
		fmt.Printf("Built with Go %s\n", runtime.Version())
		fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to hexagondb.toml (default: ./hexagondb.toml)")
	rootCmd.PersistentFlags().StringP("bind", "H", "127.0.0.1", "Address to bind to")
	rootCmd.PersistentFlags().IntP("port", "p", 2112, "Port to listen on")
	rootCmd.PersistentFlags().Int("max-connections", 10000, "Maximum number of concurrent connections")
	rootCmd.PersistentFlags().Duration("timeout", 0, "Per-connection idle timeout (0 disables)")
	rootCmd.PersistentFlags().String("password", "", "Require AUTH with this password")
	rootCmd.PersistentFlags().Bool("aof", false, "Enable append-only file persistence")
	rootCmd.PersistentFlags().Bool("rdb", false, "Enable point-in-time RDB snapshots")

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
