package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/koltyakov/servgate/internal/client"
)

func runCode(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: servgate code <create|list|delete> [flags]")
		return 2
	}
	switch args[0] {
	case "create":
		return runCodeCreate(ctx, args[1:], stdout, stderr)
	case "list":
		return runCodeList(ctx, args[1:], stdout, stderr)
	case "delete":
		return runCodeDelete(ctx, args[1:], stdout, stderr)
	default:
		fmt.Fprintln(stderr, "unknown code command:", args[0])
		return 2
	}
}

func runCodeCreate(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("code-create", flag.ContinueOnError)
	fs.SetOutput(stderr)
	resolve := clientFlags(fs)
	var code string
	fs.StringVar(&code, "code", "", "Requested code (empty or \"random\" generates one)")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: servgate code create [--code C] <port>")
		return 2
	}
	c, ok := requireClient(resolve(), stderr, "code create")
	if !ok {
		return 2
	}
	created, err := c.CodeCreate(ctx, strings.TrimSpace(code), strings.TrimSpace(fs.Arg(0)))
	if err != nil {
		fmt.Fprintln(stderr, "code create failed:", client.ShortError(err))
		return 1
	}
	fmt.Fprintln(stdout, "code:", created.Code)
	fmt.Fprintln(stdout, "url: ", created.URL)
	return 0
}

func runCodeList(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("code-list", flag.ContinueOnError)
	fs.SetOutput(stderr)
	resolve := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	c, ok := requireClient(resolve(), stderr, "code list")
	if !ok {
		return 2
	}
	codes, err := c.CodeList(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "code list failed:", client.ShortError(err))
		return 1
	}
	for _, code := range codes {
		fmt.Fprintln(stdout, code)
	}
	return 0
}

func runCodeDelete(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("code-delete", flag.ContinueOnError)
	fs.SetOutput(stderr)
	resolve := clientFlags(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: servgate code delete <code>")
		return 2
	}
	c, ok := requireClient(resolve(), stderr, "code delete")
	if !ok {
		return 2
	}
	if err := c.CodeDelete(ctx, strings.TrimSpace(fs.Arg(0))); err != nil {
		fmt.Fprintln(stderr, "code delete failed:", client.ShortError(err))
		return 1
	}
	fmt.Fprintln(stdout, "deleted")
	return 0
}
