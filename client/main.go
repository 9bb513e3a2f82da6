/*
 * Copyright (c) 2025 Ishaan Nene
 *
 * This source code is licensed under the MIT license found in the
 * LICENSE file in the root directory of this source tree.
 */
/*
This file is the command line client for the law QA API. It posts a question to /ask and prints the JSON reply.
Questions can come from -question or from a file with one question per line. -health and -memory query the server status endpoints instead.
Note: curl or Postman work just as well against the API.
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"lawqa/pkg/askclient"
	"lawqa/pkg/circuitbreaker"
	"lawqa/pkg/config"
	"lawqa/pkg/logging"
)

const defaultQuestion = " Punishment for attack on a person"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one client invocation and returns the process exit code:
// 0 when every call printed a 2xx JSON body, 1 otherwise, 2 for bad usage.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg := config.LoadClient()

	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	url := fs.String("url", cfg.BaseURL, "base URL of the answer server")
	question := fs.String("question", defaultQuestion, "question to ask")
	file := fs.String("file", "", "file with one question per line")
	health := fs.Bool("health", false, "query /health instead of asking")
	memory := fs.Bool("memory", false, "query /memory instead of asking")
	timeout := fs.Duration("timeout", cfg.Timeout, "per-request timeout")
	retries := fs.Int("retries", cfg.MaxAttempts-1, "extra attempts after a transport error or gateway status")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *retries < 0 {
		*retries = 0
	}

	errOut := color.New(color.FgRed, color.Bold)
	logger := logging.NewLoggerWithOutput("client", stderr, cfg.LogLevel)
	client := askclient.New(askclient.Options{
		BaseURL:     *url,
		Timeout:     *timeout,
		MaxAttempts: *retries + 1,
		Logger:      logger,
	})

	var calls []call
	switch {
	case *health:
		calls = []call{{label: askclient.HealthPath, fn: client.Health}}
	case *memory:
		calls = []call{{label: askclient.MemoryPath, fn: client.Memory}}
	case *file != "":
		questions, err := readQuestions(*file)
		if err != nil {
			errOut.Fprint(stderr, "Error: ")
			fmt.Fprintln(stderr, err)
			return 1
		}
		if len(questions) == 0 {
			errOut.Fprint(stderr, "Error: ")
			fmt.Fprintf(stderr, "no questions in %s\n", *file)
			return 1
		}
		for _, q := range questions {
			calls = append(calls, askCall(client, q))
		}
	default:
		calls = []call{askCall(client, *question)}
	}

	failed := false
	for i, c := range calls {
		if ctx.Err() != nil {
			failed = true
			break
		}
		if i > 0 && client.BreakerState() == circuitbreaker.StateOpen {
			failed = true
			logger.WithField("skipped", len(calls)-i).Warn("Circuit open, not asking the remaining questions")
			errOut.Fprint(stderr, "Error: ")
			fmt.Fprintf(stderr, "server keeps failing, skipped %d remaining question(s)\n", len(calls)-i)
			break
		}
		resp, err := c.fn(ctx)
		if !printResponse(stdout, resp) {
			failed = true
		}
		if err != nil {
			failed = true
			entry := logger.WithField("call", c.label)
			if resp != nil {
				entry = entry.WithCorrelationID(resp.CorrelationID)
			}
			entry.Error("Request failed", err)
			errOut.Fprint(stderr, "Error: ")
			fmt.Fprintln(stderr, describe(err))
		}
	}
	if failed {
		return 1
	}
	return 0
}

type call struct {
	label string
	fn    func(ctx context.Context) (*askclient.Response, error)
}

func askCall(client *askclient.Client, question string) call {
	return call{
		label: strings.TrimSpace(question),
		fn: func(ctx context.Context) (*askclient.Response, error) {
			return client.Ask(ctx, question)
		},
	}
}

// printResponse writes the parsed body to stdout and reports whether it was a
// 2xx JSON reply. Nothing is printed when no JSON body arrived.
func printResponse(stdout io.Writer, resp *askclient.Response) bool {
	if resp == nil || resp.Body == nil {
		return false
	}
	pretty, err := resp.Pretty()
	if err != nil {
		return false
	}
	fmt.Fprintln(stdout, pretty)
	return resp.OK()
}

func describe(err error) string {
	switch {
	case errors.Is(err, askclient.ErrTransport):
		return "could not reach server: " + err.Error()
	case errors.Is(err, askclient.ErrDecode):
		return "server reply was not JSON: " + err.Error()
	default:
		return err.Error()
	}
}

// readQuestions returns the non-blank, non-comment lines of path.
func readQuestions(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open questions file: %w", err)
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read questions file: %w", err)
	}
	return out, nil
}
