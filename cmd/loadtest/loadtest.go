// Command loadtest signs up a set of users, connects each over websocket and
// measures how many of the sent messages every client receives.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/sync/errgroup"

	"github.com/johndosdos/paychat/internal/handler"
	ws "github.com/johndosdos/paychat/internal/websocket"
)

const maxRetries = 30

type options struct {
	baseURL  string
	users    int
	messages int
	interval time.Duration
	drain    time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.baseURL, "url", "http://localhost:8080", "server base URL")
	flag.IntVar(&opts.users, "users", 20, "number of concurrent users")
	flag.IntVar(&opts.messages, "messages", 10, "messages sent per user")
	flag.DurationVar(&opts.interval, "interval", 200*time.Millisecond, "delay between a user's messages")
	flag.DurationVar(&opts.drain, "drain", 5*time.Second, "how long to keep reading after the last send")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(context.Background(), opts, log); err != nil {
		log.Error("load test failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, log *slog.Logger) error {
	runID := time.Now().Format("150405")
	client := &http.Client{Timeout: 10 * time.Second}

	tokens := make([]string, opts.users)
	for i := range tokens {
		username := fmt.Sprintf("load-%s-%d", runID, i)
		token, err := signupAndLogin(ctx, client, opts.baseURL, username)
		if err != nil {
			return fmt.Errorf("user %s: %w", username, err)
		}
		tokens[i] = token
	}
	log.Info("users ready", slog.Int("users", opts.users))

	var sent, received, limited atomic.Int64
	start := time.Now()

	g, gCtx := errgroup.WithContext(ctx)
	for i, token := range tokens {
		i, token := i, token
		g.Go(func() error {
			return runUser(gCtx, opts, i, token, &sent, &received, &limited)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	expected := sent.Load() * int64(opts.users)
	log.Info("load test done",
		slog.Duration("elapsed", time.Since(start)),
		slog.Int64("sent", sent.Load()),
		slog.Int64("rate_limited", limited.Load()),
		slog.Int64("received", received.Load()),
		slog.Int64("expected", expected))

	return nil
}

func runUser(ctx context.Context, opts options, i int, token string, sent, received, limited *atomic.Int64) error {
	header := http.Header{}
	header.Set(handler.SessionTokenHeader, token)

	wsURL := "ws" + strings.TrimPrefix(opts.baseURL, "http") + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to dial websocket: %w", err)
	}
	defer conn.CloseNow()

	readCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			var out ws.Outbound
			if err := wsjson.Read(readCtx, conn, &out); err != nil {
				return
			}
			switch out.Type {
			case ws.TypeMessage:
				received.Add(1)
			case ws.TypeRateLimited:
				limited.Add(1)
			}
		}
	}()

	for n := 0; n < opts.messages; n++ {
		msg := ws.Inbound{Type: ws.TypeMessage, Content: fmt.Sprintf("user %d message %d", i, n)}
		if err := wsjson.Write(ctx, conn, msg); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}
		sent.Add(1)

		select {
		case <-time.After(opts.interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	select {
	case <-time.After(opts.drain):
	case <-readDone:
	}
	cancel()
	<-readDone

	conn.Close(websocket.StatusNormalClosure, "done")
	return nil
}

// postJSON posts body to url, waiting out 429 responses from the account
// endpoint limiter.
func postJSON(ctx context.Context, client *http.Client, url string, body any) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		res, err := client.Do(req)
		if err != nil || res.StatusCode != http.StatusTooManyRequests || attempt >= maxRetries {
			return res, err
		}
		res.Body.Close()

		wait := time.Second
		if secs, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil {
			wait = time.Duration(secs) * time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func signupAndLogin(ctx context.Context, client *http.Client, baseURL, username string) (string, error) {
	creds := map[string]string{"username": username, "password": "load-secret"}

	res, err := postJSON(ctx, client, baseURL+"/account/signup", creds)
	if err != nil {
		return "", fmt.Errorf("failed to send signup request: %w", err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusCreated && res.StatusCode != http.StatusConflict {
		return "", fmt.Errorf("signup returned %s", res.Status)
	}

	res, err = postJSON(ctx, client, baseURL+"/account/login", creds)
	if err != nil {
		return "", fmt.Errorf("failed to send login request: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login returned %s", res.Status)
	}

	var body struct {
		Data struct {
			SessionToken string `json:"session_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if body.Data.SessionToken == "" {
		return "", errors.New("login response has no session token")
	}
	return body.Data.SessionToken, nil
}
