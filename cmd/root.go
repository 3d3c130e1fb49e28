// Copyright 2024 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// A filesystem fault-injection daemon.
//
// Usage:
//
//	chaosfs --pid <target-pid> --path <target-dir> < injectors.json
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsa/daemonize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chaos-mesh/chaosfs/internal/chaos/injector"
	"github.com/chaos-mesh/chaosfs/internal/config"
	"github.com/chaos-mesh/chaosfs/internal/logger"
	"github.com/chaos-mesh/chaosfs/internal/metrics"
	"github.com/chaos-mesh/chaosfs/internal/orchestrator"
)

var rootCmd = &cobra.Command{
	Use:   "chaosfs",
	Short: "Interpose a fault-injecting filesystem in front of a running process's directory",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.Int("pid", 0, "pid of the target process")
	flags.String("path", "", "directory inside the target's mount namespace to inject on")
	flags.StringP("verbose", "v", config.INFO, "log level: trace, debug, info, warning, error, off")
	flags.String("log-format", "text", "log format: text or json")
	flags.Bool("foreground", true, "run in the foreground instead of daemonizing")
	flags.String("metrics-addr", "", "address to serve Prometheus metrics on, e.g. :8080 (disabled if empty)")

	_ = rootCmd.MarkFlagRequired("pid")
	_ = rootCmd.MarkFlagRequired("path")

	_ = viper.BindPFlags(flags)
}

// Execute runs the root command; main.go's only job is to call this and
// translate a non-nil error into a process exit code.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) error {
	pid := viper.GetInt("pid")
	path := viper.GetString("path")
	foreground := viper.GetBool("foreground")

	if !foreground {
		return runInBackground()
	}

	logCfg := config.LoggingConfig{Severity: viper.GetString("verbose")}
	if err := logger.Init(logCfg); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetLogFormat(viper.GetString("log-format"))

	configs, err := injector.DecodeConfigs(os.Stdin)
	if err != nil {
		return fmt.Errorf("decoding injector config from stdin: %w", err)
	}
	logger.Infof("parsed %d injector configs for pid=%d path=%s", len(configs), pid, path)

	if addr := viper.GetString("metrics-addr"); addr != "" {
		srv := metrics.NewServer(addr)
		go func() {
			if err := srv.Serve(); err != nil {
				logger.Errorf("metrics server: %v", err)
			}
		}()
		defer func() {
			_ = srv.Shutdown(context.Background())
		}()
	}

	o, err := orchestrator.New(orchestrator.Config{PID: pid, Path: path, Injectors: configs})
	if err != nil {
		return err
	}

	if err := o.Start(); err != nil {
		if bgErr := daemonize.SignalOutcome(err); bgErr != nil {
			logger.Errorf("signaling outcome to parent process: %v", bgErr)
		}
		return fmt.Errorf("starting injection: %w", err)
	}
	if err := daemonize.SignalOutcome(nil); err != nil {
		logger.Errorf("signaling successful mount to parent process: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	logger.Infof("injection running, waiting for SIGTERM/SIGINT")
	<-sigCh

	logger.Infof("recovering")
	return o.Stop()
}

// runInBackground re-execs this binary with --foreground, waiting for it
// to either finish mounting or report an error, the same handoff gcsfuse
// uses daemonize.Run for.
func runInBackground() error {
	path, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locating own executable: %w", err)
	}

	args := append(append([]string{}, os.Args[1:]...), "--foreground")
	env := []string{fmt.Sprintf("PATH=%s", os.Getenv("PATH"))}

	if err := daemonize.Run(path, args, env, os.Stdout); err != nil {
		return fmt.Errorf("daemonize.Run: %w", err)
	}
	fmt.Fprintln(os.Stdout, "chaosfs is running in the background")
	return nil
}
