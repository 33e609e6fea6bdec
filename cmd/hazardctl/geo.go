package main

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/mr1hm/disaster-response/internal/models"
)

var geoCmd = &cobra.Command{
	Use:   "geo",
	Short: "Show weather, recent earthquakes and nearby hospitals for a coordinate",
	RunE:  runGeo,
}

func init() {
	geoCmd.Flags().Float64("lat", 0, "Latitude (required)")
	geoCmd.Flags().Float64("lon", 0, "Longitude (required)")
	geoCmd.Flags().Bool("json", false, "Print the raw JSON view")
	_ = geoCmd.MarkFlagRequired("lat")
	_ = geoCmd.MarkFlagRequired("lon")

	rootCmd.AddCommand(geoCmd)
}

func runGeo(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	raw, _ := cmd.Flags().GetBool("json")

	if err := models.ValidateCoordinates(lat, lon); err != nil {
		return err
	}

	q := url.Values{
		"lat": {strconv.FormatFloat(lat, 'f', -1, 64)},
		"lon": {strconv.FormatFloat(lon, 'f', -1, 64)},
	}
	var view models.AggregatedGeoView
	if err := newAPIClient(server).get(cmd.Context(), "/api/geo?"+q.Encode(), &view); err != nil {
		return err
	}

	if raw {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(view)
	}

	label := view.Label
	if label == "" {
		label = models.UnknownCity
	}
	fmt.Printf("%s (%.4f, %.4f)\n\n", label, view.Lat, view.Lon)

	fmt.Println("Weather:")
	if w := view.Weather.Data; w != nil {
		fmt.Printf("  %s, %.1f°C (feels like %.1f°C), humidity %.0f%%, wind %.1f m/s\n",
			w.Description, w.TempC, w.FeelsLikeC, w.Humidity, w.WindSpeedMS)
	} else {
		printSlotError(view.Weather.Error)
	}

	fmt.Println("Recent earthquakes:")
	if view.Seismic.Error != nil {
		printSlotError(view.Seismic.Error)
	} else if len(view.Seismic.Data) == 0 {
		fmt.Println("  none")
	}
	for _, e := range view.Seismic.Data {
		fmt.Printf("  M%.1f  %s  (%.0f km away)\n", e.Magnitude, e.Place, e.DistanceKm)
	}

	fmt.Println("Nearby hospitals:")
	if view.Facilities.Error != nil {
		printSlotError(view.Facilities.Error)
	} else if len(view.Facilities.Data) == 0 {
		fmt.Println("  none")
	}
	for _, f := range view.Facilities.Data {
		fmt.Printf("  %s, %s  (%.1f km)\n", f.Name, f.Address, f.DistanceKm)
	}
	return nil
}

func printSlotError(e *models.SlotError) {
	if e == nil {
		fmt.Println("  unavailable")
		return
	}
	fmt.Printf("  unavailable (%s: %s)\n", e.Provider, e.Kind)
}
