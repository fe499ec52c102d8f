package internal

import (
	"context"
	"log/slog"
	"math"
)

// geoTolerance is the per-axis slack, in degrees, before recorded and
// expected coordinates count as different.
const geoTolerance = 0.0001

// Reconciler corrects a remote asset's recorded timestamp and geolocation
// against what the sidecar says. Repair is best-effort: nothing here ever
// fails the unit of work.
type Reconciler struct {
	client *Client
}

func NewReconciler(client *Client) *Reconciler {
	return &Reconciler{client: client}
}

// Reconcile fetches the remote record and issues at most one correction
// request covering every discrepancy. Returns whether a correction was
// requested.
func (r *Reconciler) Reconcile(ctx context.Context, assetID string, md Metadata) bool {
	info, err := r.client.GetAsset(ctx, assetID)
	if err != nil {
		slog.Warn("could not retrieve asset information", "asset", assetID, "err", err)
		return false
	}

	upd := AssetUpdate{IDs: []string{assetID}}
	needsUpdate := false

	// One dateTimeOriginal correction covers a mismatch in either the
	// recorded EXIF date or the recorded file creation time.
	if md.CreatedAt != "" {
		if info.ExifInfo.DateTimeOriginal != md.CreatedAt || info.FileCreatedAt != md.CreatedAt {
			upd.DateTimeOriginal = md.CreatedAt
			needsUpdate = true
		}
	}

	if g := md.Geo; g != nil {
		lat, lon := info.ExifInfo.Latitude, info.ExifInfo.Longitude
		if lat == nil || lon == nil ||
			math.Abs(*lat-g.Latitude) > geoTolerance ||
			math.Abs(*lon-g.Longitude) > geoTolerance {
			upd.Latitude = &g.Latitude
			upd.Longitude = &g.Longitude
			needsUpdate = true
		}
	}

	if !needsUpdate {
		return false
	}

	if err := r.client.UpdateAssets(ctx, upd); err != nil {
		slog.Warn("asset metadata update failed", "asset", assetID, "err", err)
	} else {
		slog.Info("asset metadata updated", "asset", assetID)
	}
	return true
}
