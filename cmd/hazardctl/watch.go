package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	internalgrpc "github.com/mr1hm/disaster-response/internal/grpc"
	"github.com/mr1hm/disaster-response/internal/hub"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Tail live hazard reports",
	Long: `Tail live hazard reports as they are ingested.

Examples:
  # Follow the WebSocket feed the dashboard uses
  hazardctl watch

  # Follow the gRPC stream, only High severity earthquakes
  hazardctl watch --grpc localhost:50051 --type Earthquake --min-severity High`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().String("grpc", "", "Stream over gRPC from this address instead of WebSocket")
	watchCmd.Flags().String("type", "", "Only show this disaster type (gRPC only)")
	watchCmd.Flags().String("min-severity", "", "Only show reports at or above this severity (gRPC only)")

	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	grpcAddr, _ := cmd.Flags().GetString("grpc")
	disasterType, _ := cmd.Flags().GetString("type")
	minSeverity, _ := cmd.Flags().GetString("min-severity")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if grpcAddr != "" {
		return watchGRPC(ctx, grpcAddr, &internalgrpc.StreamReportsRequest{
			DisasterType: disasterType,
			MinSeverity:  minSeverity,
		})
	}
	return watchWebSocket(ctx, wsURL(server))
}

func watchWebSocket(ctx context.Context, url string) error {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer ws.Close()

	// Unblock ReadJSON on Ctrl-C.
	go func() {
		<-ctx.Done()
		_ = ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		ws.Close()
	}()

	fmt.Printf("Watching %s\n", url)
	for {
		var ev hub.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("read event: %w", err)
		}
		printEvent(ev)
	}
}

func watchGRPC(ctx context.Context, addr string, req *internalgrpc.StreamReportsRequest) error {
	cc, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer cc.Close()

	stream, err := internalgrpc.NewClient(cc).StreamReports(ctx, req)
	if err != nil {
		return err
	}

	fmt.Printf("Watching %s\n", addr)
	for {
		ev, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		printEvent(*ev)
	}
}

func printEvent(ev hub.Event) {
	r := ev.Data
	fmt.Printf("[%s] %s %s near %s (%.4f, %.4f) id=%s\n",
		r.CreatedAt.Local().Format("15:04:05"), r.Severity, r.DisasterType, r.Location, r.Lat, r.Lon, r.ID)
}
