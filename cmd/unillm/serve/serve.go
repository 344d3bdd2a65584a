// Package servecmder provides the serve command that runs the gateway.
package servecmder

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/unillm/unillm/gateway"
	"github.com/unillm/unillm/pkg/config"
	"github.com/unillm/unillm/pkg/logger"
)

const serveLongDesc string = `Run the unillm gateway server.

The gateway reads its key and model mappings from a TOML config file and
listens on the configured address (default :11434, the Ollama port), so
any Ollama-compatible client can point at it unchanged.

Settings resolve in order: flags, then UNILLM_* environment variables,
then the config file, then built-in defaults.`

const serveShortDesc string = "Run the gateway server"

type ServeCommander struct {
	configPath string
	listen     string
	debug      bool
	logger     *zap.Logger
}

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}
	v := config.InitViper()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		RunE: func(cmd *cobra.Command, _ []string) error {
			debug, err := cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %v", err)
			}

			cmder.configPath = v.GetString(config.KeyConfigPath)
			cmder.listen = v.GetString(config.KeyListen)
			cmder.debug = debug || v.GetBool(config.KeyDebug)
			return cmder.run()
		},
	}

	cmd.Flags().StringP("config", "c", "config.toml", "Path to the TOML config file")
	cmd.Flags().StringP("listen", "l", "", "Listen address (overrides config file)")

	// Flags take precedence over UNILLM_* environment variables.
	_ = v.BindPFlag(config.KeyConfigPath, cmd.Flags().Lookup("config"))
	_ = v.BindPFlag(config.KeyListen, cmd.Flags().Lookup("listen"))

	return cmd
}

func (c *ServeCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer c.logger.Sync()

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	store, err := config.NewStore(cfg)
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	g, err := gateway.New(gateway.Config{ListenAddr: c.listen}, store, c.logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	defer g.Close()

	errChan := make(chan error, 1)
	go func() {
		if err := g.Run(); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return nil
	}
}
