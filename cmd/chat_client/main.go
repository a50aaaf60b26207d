package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"quickchat/internal/chat/client"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Flag variables.
var (
	serverURL  string
	sessionJWT string
	memberID   string
	timeout    time.Duration
	logDir     string
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

var cmd = &cobra.Command{
	Use:   "chat_client",
	Short: "Terminal client for the QuickChat chat service.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if logDir != "" {
			logger.Log = logger.Initialize("chat_client", logDir)
		} else {
			logger.SetNewNop()
		}
		return run()
	},
}

func init() {
	cmd.Flags().StringVarP(&serverURL, "server", "s", "http://localhost:5000",
		"Base URL of the chat service.")
	cmd.Flags().StringVarP(&sessionJWT, "token", "t", os.Getenv("QUICKCHAT_TOKEN"),
		"Session JWT, defaults to $QUICKCHAT_TOKEN.")
	cmd.Flags().StringVarP(&memberID, "member", "m", "",
		"Member id the token was issued to.")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second,
		"Bound of every request.")
	cmd.Flags().StringVarP(&logDir, "log", "l", "",
		"Log directory. Logging is disabled when empty.")
	_ = cmd.MarkFlagRequired("member")
}

func run() error {
	if sessionJWT == "" {
		return fmt.Errorf("a session token is required (--token or $QUICKCHAT_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v := newView(os.Stdout)
	engine := client.NewEngine(memberID, client.NewRESTClient(serverURL, sessionJWT, timeout), client.Options{
		Timeout:  timeout,
		OnChange: v.invalidate,
	})
	v.engine = engine

	rt, err := client.DialRealtime(ctx, serverURL, sessionJWT, memberID)
	if err != nil {
		return fmt.Errorf("connect realtime: %s", errprocess.Message(err))
	}
	go func() {
		if err := rt.Run(ctx, engine); err != nil {
			logger.Log.Warn("realtime stopped", zap.Error(err))
			v.notice("realtime connection lost: %s", errprocess.Message(err))
		}
	}()
	go v.loop(ctx)

	if err := engine.LoadSidebar(ctx); err != nil {
		v.notice("load users: %s", errprocess.Message(err))
	}
	v.printUsers()
	v.printHelp()

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = rt.Close()
			return nil
		case line, ok := <-lines:
			if !ok {
				_ = rt.Close()
				return nil
			}
			if quit := handle(ctx, engine, rt, v, strings.TrimSpace(line)); quit {
				_ = rt.Close()
				return nil
			}
		}
	}
}

func handle(ctx context.Context, e *client.Engine, rt *client.Realtime, v *view, line string) bool {
	if line == "" {
		return false
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	var err error
	switch name {
	case "/quit", "/q":
		return true
	case "/help":
		v.printHelp()
	case "/users":
		err = e.LoadSidebar(ctx)
		v.printUsers()
	case "/open":
		err = e.SelectCounterpart(ctx, arg)
	case "/online":
		err = rt.RequestOnlineUsers()
	case "/img":
		image, readErr := imageDataURL(arg)
		if readErr != nil {
			v.notice("read image: %v", readErr)
			return false
		}
		_, err = e.Send(ctx, contentOf("", image))
	case "/rm":
		id, scope, _ := strings.Cut(arg, " ")
		if scope == "" {
			scope = string(client.ScopeMe)
		}
		err = e.DeleteMessage(ctx, id, client.DeleteScope(scope))
	default:
		if strings.HasPrefix(name, "/") {
			v.notice("unknown command %s, try /help", name)
			return false
		}
		_, err = e.Send(ctx, contentOf(line, ""))
	}

	if err != nil {
		v.notice("%s", errprocess.Message(err))
	}
	return false
}
