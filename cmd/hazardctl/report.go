package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	internalgrpc "github.com/mr1hm/disaster-response/internal/grpc"
	"github.com/mr1hm/disaster-response/internal/models"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Submit a hazard report",
	Long: `Submit a hazard report to the server.

Examples:
  hazardctl report --type Earthquake --severity High --lat 37.7749 --lon -122.4194 --location "Bay Area"

  # Leave --location empty to have the server label the report by city
  hazardctl report --type Fire --severity Medium --lat 34.05 --lon -118.24`,
	RunE: runReport,
}

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "List stored reports",
	RunE:  runReports,
}

func init() {
	reportCmd.Flags().String("location", "", "Location label")
	reportCmd.Flags().String("type", "", "Disaster type: Fire, Flood, Tornado, Earthquake, Hurricane or Other (required)")
	reportCmd.Flags().String("severity", "", "Severity: Low, Medium or High (required)")
	reportCmd.Flags().Float64("lat", 0, "Latitude (required)")
	reportCmd.Flags().Float64("lon", 0, "Longitude (required)")
	_ = reportCmd.MarkFlagRequired("type")
	_ = reportCmd.MarkFlagRequired("severity")
	_ = reportCmd.MarkFlagRequired("lat")
	_ = reportCmd.MarkFlagRequired("lon")

	reportsCmd.Flags().String("grpc", "", "Read from the gRPC service at this address instead of HTTP")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(reportsCmd)
}

func runReport(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	location, _ := cmd.Flags().GetString("location")
	disasterType, _ := cmd.Flags().GetString("type")
	severity, _ := cmd.Flags().GetString("severity")
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")

	in := models.ReportInput{
		Location:     location,
		DisasterType: disasterType,
		Severity:     severity,
		Lat:          &lat,
		Lon:          &lon,
	}
	// Catch typos before they reach the server.
	if _, err := in.Validate(); err != nil {
		return err
	}

	var resp struct {
		Message string `json:"message"`
		ID      string `json:"id"`
	}
	if err := newAPIClient(server).post(cmd.Context(), "/api/report", in, &resp); err != nil {
		return err
	}

	fmt.Printf("%s\n", resp.Message)
	fmt.Printf("  ID: %s\n", resp.ID)
	return nil
}

func runReports(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	grpcAddr, _ := cmd.Flags().GetString("grpc")

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var reports []models.Report
	if grpcAddr != "" {
		cc, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("failed to connect to %s: %w", grpcAddr, err)
		}
		defer cc.Close()

		reports, err = internalgrpc.NewClient(cc).ListReports(ctx)
		if err != nil {
			return err
		}
	} else if err := newAPIClient(server).get(ctx, "/api/reports", &reports); err != nil {
		return err
	}

	if len(reports) == 0 {
		fmt.Println("No reports")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tSEVERITY\tLOCATION\tLAT\tLON\tREPORTED")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.4f\t%.4f\t%s\n",
			r.ID, r.DisasterType, r.Severity, r.Location, r.Lat, r.Lon, r.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}
