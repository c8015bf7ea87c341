package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"codesandbox/config"
	"codesandbox/executor"
	"codesandbox/internal/sanitize"
	"codesandbox/model"
	"codesandbox/service"
)

// errRejected marks a run or scan whose verdict was negative.
var errRejected = errors.New("rejected")

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	dimColor  = color.New(color.Faint)
)

func usage() {
	fmt.Println("Usage: sandboxctl <command>")
	fmt.Println()
	fmt.Println("  run <Main.java> [input...]   compile and run a file, one case per input")
	fmt.Println("  scan <file>                  check a file against the banned word list")
	fmt.Println("  prune                        remove every container created by the sandbox")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	var err error
	switch os.Args[1] {
	case "run":
		err = runFile(cfg, os.Args[2:])
	case "scan":
		err = scanFile(cfg, os.Args[2:])
	case "prune":
		err = prune(cfg)
	default:
		usage()
		os.Exit(1)
	}
	if errors.Is(err, errRejected) {
		os.Exit(2)
	}
	if err != nil {
		failColor.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runFile(cfg config.Config, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: sandboxctl run <Main.java> [input...]")
	}
	code, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if cfg.LogLevel == "debug" {
		logger, _ = zap.NewDevelopment()
	}

	ctx := context.Background()
	sandbox, closeSandbox, err := service.BuildSandbox(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeSandbox()

	resp := sandbox.Execute(ctx, model.ExecutionRequest{
		Code:      string(code),
		InputList: append([]string{}, args[1:]...),
		Language:  executor.DefaultLanguage,
	})
	printResponse(resp, args[1:])
	if resp.Status != model.StatusSuccess {
		return errRejected
	}
	return nil
}

func printResponse(resp model.ExecutionResponse, inputs []string) {
	for i, out := range resp.OutputList {
		input := ""
		if i < len(inputs) {
			input = inputs[i]
		}
		dimColor.Printf("case %d [%s]\n", i+1, input)
		fmt.Println(out)
	}

	status := okColor
	if resp.Status != model.StatusSuccess {
		status = failColor
	}
	status.Printf("%s", resp.Status)
	fmt.Printf("  time=%dms memory=%dB\n", resp.JudgeInfo.Time, resp.JudgeInfo.Memory)
	if resp.Message != "" {
		failColor.Println(resp.Message)
	}
}

func scanFile(cfg config.Config, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sandboxctl scan <file>")
	}
	code, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	guard, err := sanitize.LoadContentGuard(cfg.BannedWordsPath, cfg.MaxCodeLength)
	if err != nil {
		return err
	}
	if err := guard.Scan(string(code)); err != nil {
		failColor.Println(err)
		return errRejected
	}
	okColor.Printf("clean")
	fmt.Printf(" (%d banned words checked)\n", guard.Len())
	return nil
}

func prune(cfg config.Config) error {
	manager, err := executor.NewContainerManager(cfg.ContainerLogPath)
	if err != nil {
		return err
	}
	defer manager.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	removed, err := manager.PruneManaged(ctx)
	fmt.Printf("Removed %s sandbox container(s) labelled %s\n", okColor.Sprint(removed), executor.ManagedLabel)
	return err
}
