// Command push sends a batch of source readings to a running phantomwatt
// server, for scripting and smoke tests. The batch is read from a file or
// stdin as the same JSON body POST /api/readings accepts.
package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/phantomwatt/phantomwatt/pkg/common"
	"github.com/phantomwatt/phantomwatt/pkg/log"
)

func main() {
	url := lflag.String("url", "http://localhost:8080", "Base URL of the phantomwatt server")
	file := lflag.String("file", "-", "File with the readings batch JSON, - for stdin")
	token := lflag.String("token", "", "Bearer token for servers requiring auth")
	timeout := lflag.Duration("timeout", 10*time.Second, "Request timeout")
	lflag.Configure()

	ctx := context.Background()

	var in io.Reader = os.Stdin
	if *file != "-" {
		f, err := os.Open(*file)
		if err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to open readings file", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}
	body, err := io.ReadAll(in)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to read batch", "error", err)
		os.Exit(1)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *url+"/api/readings", bytes.NewReader(body))
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to build request", "error", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")
	if *token != "" {
		req.Header.Set("Authorization", "Bearer "+*token)
	}

	resp, err := common.HTTPClient(*timeout).Do(req)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "request failed", "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		log.Ctx(ctx).ErrorContext(ctx, "server rejected batch",
			"status", resp.StatusCode, "body", string(out))
		os.Exit(1)
	}
	fmt.Println(string(out))
}
