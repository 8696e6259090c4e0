package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/spf13/cobra"

	"subtrans/internal/pipeline"
)

// 版本号，发布构建时经 -ldflags "-X main.version=..." 注入。
var version = "dev"

var pipelineRun = pipeline.Run

// 退出码：0 成功；1 运行期失败；3 配置/装配失败（含命令行用法错误）。
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 3
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// exitError 携带退出码；quiet 为 true 时不再向 stderr 打印（例如用户取消）。
type exitError struct {
	code  int
	quiet bool
	err   error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func configErr(format string, err error) error {
	return &exitError{code: exitConfig, err: fmt.Errorf(format+": %w", err)}
}

func run(args []string, stdout, stderr io.Writer) int {
	// 在任何 ENV 读取前，尝试加载工作目录下的 .env（不覆盖已有 ENV）。
	_ = loadDotEnv(".env")

	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if !ee.quiet {
			fmt.Fprintf(stderr, "%v\n", ee.err)
		}
		return ee.code
	}
	// cobra 自身的用法错误（未知旗标、参数个数）
	fmt.Fprintf(stderr, "%v\n", err)
	return exitConfig
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "subtrans",
		Short: "Translate SRT subtitles with an LLM into bilingual subtitles",
		Long: heredoc.Doc(`
			subtrans splits subtitles into groups of entries, sends each group to an
			LLM together with the whole document as context, and merges the translation
			back under the original numbering and timecodes (translation line first,
			original line second).
		`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTranslateCmd(), newInitConfigCmd(), newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "subtrans %s\n", version)
		},
	}
}
