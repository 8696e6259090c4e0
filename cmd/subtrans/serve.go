package main

import (
	"os/signal"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	cfgpkg "subtrans/internal/config"
	"subtrans/internal/diag"
	"subtrans/internal/httpapi"
)

var serveListen = (*httpapi.Server).ListenAndServe

func newServeCmd() *cobra.Command {
	var (
		flagConfig string
		flagLLM    string
		flagAddr   string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve POST /v1/translate over HTTP",
		Args:  cobra.NoArgs,
		Example: heredoc.Docf(`
			subtrans serve --llm mock --addr %s
			curl --data-binary @ep01.srt 'http://%s/v1/translate?source=English&target=Chinese'
		`, cfgpkg.Defaults().Serve.Addr, cfgpkg.Defaults().Serve.Addr),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flagConfig)
			if err != nil {
				return err
			}
			cfg = cfgpkg.Merge(cfg, cfgpkg.Config{
				MaxRetries: -1,
				LLM:        flagLLM,
				Serve:      cfgpkg.Serve{Addr: flagAddr},
			})
			if strings.TrimSpace(cfg.Serve.Addr) == "" {
				cfg.Serve.Addr = cfgpkg.Defaults().Serve.Addr
			}
			asm, err := cfgpkg.AssembleServer(cfg)
			if err != nil {
				return configErr("装配失败", err)
			}
			logger := diag.NewLogger(diag.NewCorrID(), cfg.Logging.Level)
			defer logger.Sync()

			srv := httpapi.New(asm.Components, asm.Settings, asm.NewPromptBuilder, httpapi.Options{
				Addr:           cfg.Serve.Addr,
				AllowedOrigins: cfg.Serve.AllowedOrigins,
				MaxBodyBytes:   cfg.Serve.MaxBodyBytes,
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), shutdownSignals...)
			defer stop()
			cmd.PrintErrf("[serve] 监听 %s | llm=%s\n", cfg.Serve.Addr, cfg.LLM)
			if err := serveListen(srv, ctx); err != nil {
				return &exitError{code: exitRuntime, err: err}
			}
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&flagConfig, "config", "", "配置文件路径（.json/.yaml）")
	fs.StringVar(&flagLLM, "llm", "", "provider 名称（覆盖配置）")
	fs.StringVar(&flagAddr, "addr", "", "监听地址（覆盖 serve.addr，默认 127.0.0.1:8080）")
	return cmd
}
