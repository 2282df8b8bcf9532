package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"kanbanServer/backend/internal/client"
	"kanbanServer/backend/internal/model"
	"kanbanServer/backend/internal/order"
	"kanbanServer/backend/internal/protocol"
)

var (
	serverURL string
	token     string
	boardID   string
)

func main() {
	root := &cobra.Command{
		Use:          "boardctl",
		Short:        "Drive a kanban board over its real-time connection",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:3002", "board server base URL")
	root.PersistentFlags().StringVar(&token, "token", os.Getenv("BOARD_TOKEN"), "access token (default $BOARD_TOKEN)")
	root.PersistentFlags().StringVarP(&boardID, "board", "b", "", "board id")
	_ = root.MarkPersistentFlagRequired("board")

	root.AddCommand(watchCmd(), moveCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func wsURL() (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/board/ws"
	return u.String(), nil
}

func fetchSnapshot(ctx context.Context) (model.BoardSnapshot, error) {
	var snap model.BoardSnapshot
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(serverURL, "/")+"/board/boards/"+url.PathEscape(boardID), nil)
	if err != nil {
		return snap, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return snap, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return snap, fmt.Errorf("load board %s: %s", boardID, resp.Status)
	}
	return snap, json.NewDecoder(resp.Body).Decode(&snap)
}

type session struct {
	conn *client.Conn
	mgr  *client.Manager
}

// open loads the board snapshot and connects.
func open(ctx context.Context) (*session, error) {
	snap, err := fetchSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	u, err := wsURL()
	if err != nil {
		return nil, err
	}
	conn, err := client.Dial(ctx, u, token)
	if err != nil {
		return nil, err
	}
	view := client.NewView(boardID)
	view.Load(snap)
	return &session{conn: conn, mgr: client.NewManager(view, conn, order.Default)}, nil
}

func printEvent(evt protocol.Event) {
	data, _ := json.Marshal(evt)
	fmt.Printf("%-14s %s\n", evt.EventName(), data)
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Join the board and print every event",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			s, err := open(ctx)
			if err != nil {
				return err
			}
			if err := s.mgr.Join(boardID); err != nil {
				return err
			}
			err = s.conn.Run(ctx, s.mgr, printEvent)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func moveCmd() *cobra.Command {
	var (
		to, after, before string
		wait              time.Duration
	)
	cmd := &cobra.Command{
		Use:   "move ITEM_ID",
		Short: "Move an item between two neighbours and wait for the server to confirm",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()
			s, err := open(ctx)
			if err != nil {
				return err
			}
			defer s.conn.Close()

			replies := make(chan protocol.Event, 16)
			onEvent := func(evt protocol.Event) {
				switch evt.(type) {
				case protocol.Moved, protocol.Error:
					select {
					case replies <- evt:
					default:
					}
				}
			}
			go func() { _ = s.conn.Run(ctx, s.mgr, onEvent) }()

			if err := s.mgr.Join(boardID); err != nil {
				return err
			}
			parent := to
			if parent == "" {
				var ok bool
				s.mgr.Read(func(v *client.View) {
					var it model.Item
					it, ok = v.Item(args[0])
					parent = it.ParentID
				})
				if !ok {
					return fmt.Errorf("item %s is not on board %s", args[0], boardID)
				}
			}
			ref, err := s.mgr.MoveBetween(args[0], parent, after, before)
			if err != nil {
				return err
			}
			if ref == "" {
				fmt.Println("already there, nothing sent")
				return nil
			}
			log.WithField("update", ref).Debug("move sent")

			for {
				select {
				case evt := <-replies:
					switch e := evt.(type) {
					case protocol.Moved:
						if e.Item.ID == args[0] {
							fmt.Printf("moved %s to %s at %g\n", e.Item.ID, e.ToParentID, e.Item.Order)
							return nil
						}
					case protocol.Error:
						if e.Ref == "" || e.Ref == ref {
							return fmt.Errorf("move rejected: %s (%s)", e.Message, e.Code)
						}
					}
				case <-ctx.Done():
					return fmt.Errorf("no confirmation within %s", wait)
				}
			}
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "target parent id (default: current parent)")
	cmd.Flags().StringVar(&after, "after", "", "place after this sibling")
	cmd.Flags().StringVar(&before, "before", "", "place before this sibling")
	cmd.Flags().DurationVar(&wait, "timeout", 5*time.Second, "how long to wait for confirmation")
	return cmd
}
