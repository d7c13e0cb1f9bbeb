package prtg

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ChannelFetcher returns the channels of one sensor.
type ChannelFetcher interface {
	Channels(ctx context.Context, sensorID int64) ([]Channel, error)
}

// AttachChannels fetches channels for every sensor and stores them on the
// sensor. Sensors are processed in contiguous chunks of parallelism; all
// requests of a chunk run concurrently and the chunk completes before the
// next one starts.
//
// A failed request leaves that sensor's Channels nil and is logged; the
// other sensors are unaffected. Only context cancellation is returned.
func AttachChannels(ctx context.Context, f ChannelFetcher, sensors []Sensor, parallelism int) error {
	if parallelism <= 0 {
		parallelism = 1
	}

	for start := 0; start < len(sensors); start += parallelism {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("prtg: attach channels: %w", err)
		}

		end := min(start+parallelism, len(sensors))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			s := &sensors[i]
			if s.ObjID == nil {
				slog.Debug("prtg: sensor without objid, skipping channels", "index", i)
				continue
			}
			wg.Add(1)
			go func(s *Sensor) {
				defer wg.Done()
				channels, err := f.Channels(ctx, *s.ObjID)
				if err != nil {
					slog.Warn("prtg: channel fetch failed", "sensor", *s.ObjID, "err", err)
					return
				}
				s.Channels = channels
			}(s)
		}
		wg.Wait()
	}
	return nil
}
