// README: Offline fare calculator; prices one trip from a YAML rate sheet and prints the breakdown.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"fleetfare/internal/modules/pricing"
	"fleetfare/internal/types"
)

type options struct {
	sheet       string
	location    string
	vehicle     string
	distanceKm  float64
	durationMin float64
	waitMin     float64
	pickupZone  string
	dropoffZone string
	at          string
	cancel      bool
}

func main() {
	var o options
	flag.StringVar(&o.sheet, "sheet", "config/rates.example.yaml", "YAML rate sheet")
	flag.StringVar(&o.location, "location", "", "Location ID")
	flag.StringVar(&o.vehicle, "vehicle", "", "Vehicle type")
	flag.Float64Var(&o.distanceKm, "km", 0, "Trip distance in km")
	flag.Float64Var(&o.durationMin, "min", 0, "Trip duration in minutes")
	flag.Float64Var(&o.waitMin, "wait", 0, "Driver wait in minutes")
	flag.StringVar(&o.pickupZone, "pickup-zone", "", "Pickup zone ID")
	flag.StringVar(&o.dropoffZone, "dropoff-zone", "", "Drop-off zone ID")
	flag.StringVar(&o.at, "at", "", "Request time, RFC3339 (default now)")
	flag.BoolVar(&o.cancel, "cancel", false, "Price a cancellation instead of a trip")
	flag.Parse()

	if err := run(o, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "farecalc: %v\n", err)
		os.Exit(1)
	}
}

func run(o options, out io.Writer) error {
	snap, err := pricing.LoadSnapshotFile(o.sheet)
	if err != nil {
		return err
	}
	svc := pricing.NewService(pricing.NewSnapshotHolder(snap), nil)

	var result any
	if o.cancel {
		result, err = svc.ComputeCancellationFee(pricing.CancellationRequest{
			LocationID:  types.ID(o.location),
			VehicleType: pricing.VehicleType(o.vehicle),
		})
	} else {
		at := time.Now()
		if o.at != "" {
			if at, err = time.Parse(time.RFC3339, o.at); err != nil {
				return fmt.Errorf("parse -at: %w", err)
			}
		}
		result, err = svc.ComputeFare(pricing.FareRequest{
			LocationID:    types.ID(o.location),
			VehicleType:   pricing.VehicleType(o.vehicle),
			DistanceKm:    o.distanceKm,
			DurationMin:   o.durationMin,
			WaitMin:       o.waitMin,
			RequestedAt:   at,
			PickupZoneID:  o.pickupZone,
			DropoffZoneID: o.dropoffZone,
		})
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
